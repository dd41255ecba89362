package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/abrezinsky/movievote/internal/logger"
)

// DefaultQRSize is the PNG edge length used when none is requested
const DefaultQRSize = 256

// ShareService renders share links and QR codes for movie pages
type ShareService struct {
	log       logger.Logger
	publicURL string
}

// NewShareService creates a ShareService. publicURL is the site viewers open
// in a browser, which may differ from the API base URL.
func NewShareService(log logger.Logger, publicURL string) *ShareService {
	return &ShareService{log: log, publicURL: strings.TrimRight(publicURL, "/")}
}

// MovieURL returns the details page URL of a movie
func (s *ShareService) MovieURL(movieID string) string {
	return s.publicURL + "/movies/" + url.PathEscape(movieID)
}

// MovieQR returns a PNG QR code pointing at a movie's details page
func (s *ShareService) MovieQR(ctx context.Context, movieID string, size int) ([]byte, error) {
	if size == 0 {
		size = DefaultQRSize
	}
	if size < 64 || size > 1024 {
		return nil, ErrInvalidQRSize
	}
	link := s.MovieURL(movieID)
	s.log.Debug("Generating share QR", "movie", movieID, "url", link, "size", size)
	return qrcode.Encode(link, qrcode.Medium, size)
}
