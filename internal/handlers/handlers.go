package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/abrezinsky/movievote/internal/auth"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/services"
)

// SessionManager is the session surface the gateway drives
type SessionManager interface {
	Viewer() models.Viewer
	Login(ctx context.Context, email, password string) (models.Viewer, error)
	Signup(ctx context.Context, name, email, password string) (models.Viewer, error)
	Logout(ctx context.Context) error
}

// Options configures the gateway middleware
type Options struct {
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// Gate locks the API and websocket behind an access key. Nil leaves them open.
	Gate *auth.Gate
}

// DefaultOptions allows local UIs on any port and 120 requests a minute
func DefaultOptions() Options {
	return Options{
		CORSOrigins:       []string{"http://localhost:*", "http://127.0.0.1:*"},
		RateLimitRequests: 120,
		RateLimitWindow:   time.Minute,
	}
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Voting   services.VotingServicer
	Movies   services.MovieServicer
	Share    services.ShareServicer
	Session  SessionManager
	WS       http.Handler
	Log      HTTPLogger
	opts     Options
	validate *validator.Validate
}

// HTTPLogger is an interface for loggers that support HTTP logging control
type HTTPLogger interface {
	IsHTTPLoggingEnabled() bool
}

// New creates a new Handlers instance with all dependencies. ws serves the
// websocket endpoint and may be nil.
func New(
	voting services.VotingServicer,
	movies services.MovieServicer,
	share services.ShareServicer,
	session SessionManager,
	ws http.Handler,
	log HTTPLogger,
	opts Options,
) *Handlers {
	return &Handlers{
		Voting:   voting,
		Movies:   movies,
		Share:    share,
		Session:  session,
		WS:       ws,
		Log:      log,
		opts:     opts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// NoopHTTPLogger is a test logger that always returns false for HTTP logging
type NoopHTTPLogger struct{}

func (NoopHTTPLogger) IsHTTPLoggingEnabled() bool { return false }

// NewForTesting creates a Handlers instance without a websocket endpoint or rate limit
func NewForTesting(
	voting services.VotingServicer,
	movies services.MovieServicer,
	share services.ShareServicer,
	session SessionManager,
) *Handlers {
	opts := DefaultOptions()
	opts.RateLimitRequests = 0
	return New(voting, movies, share, session, nil, NoopHTTPLogger{}, opts)
}
