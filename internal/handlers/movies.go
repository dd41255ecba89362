package handlers

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/services"
)

// maxPosterBytes caps an uploaded poster image
const maxPosterBytes = 5 << 20

// handleGetComments lists a movie's comments
func (h *Handlers) handleGetComments(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	comments, err := h.Movies.Comments(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, comments)
}

// handleAddComment posts a comment as the signed-in viewer
func (h *Handlers) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req CommentRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	comment, err := h.Movies.AddComment(r.Context(), h.Session.Viewer(), id, req.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, comment)
}

// handleDeleteComment removes a comment
func (h *Handlers) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Movies.DeleteComment(r.Context(), h.Session.Viewer(), id); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}

// handleAddMovie recommends a movie from a JSON body or a multipart form
// with an optional image part.
func (h *Handlers) handleAddMovie(w http.ResponseWriter, r *http.Request) {
	var (
		movie models.NewMovie
		image *models.Image
		err   error
	)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		movie, image, err = parseMovieForm(r)
	} else {
		var req MovieCreateRequest
		err = h.decodeAndValidate(r, &req)
		movie = models.NewMovie{Title: req.Title, Description: req.Description, Year: req.Year, Genres: req.Genres}
	}
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.Movies.AddMovie(r.Context(), h.Session.Viewer(), movie, image)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, created)
}

// parseMovieForm reads the same fields the backend's upload form uses
func parseMovieForm(r *http.Request) (models.NewMovie, *models.Image, error) {
	var movie models.NewMovie
	if err := r.ParseMultipartForm(maxPosterBytes); err != nil {
		return movie, nil, BadRequest("Invalid form: " + err.Error())
	}

	movie.Title = r.FormValue("title")
	movie.Description = r.FormValue("description")
	if y := r.FormValue("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			return movie, nil, BadRequest("Invalid year")
		}
		movie.Year = year
	}
	if g := strings.TrimSpace(r.FormValue("genres")); g != "" {
		if strings.HasPrefix(g, "[") {
			if err := json.Unmarshal([]byte(g), &movie.Genres); err != nil {
				return movie, nil, BadRequest("Invalid genres")
			}
		} else {
			for _, genre := range strings.Split(g, ",") {
				if genre = strings.TrimSpace(genre); genre != "" {
					movie.Genres = append(movie.Genres, genre)
				}
			}
		}
	}

	file, header, err := r.FormFile("image")
	if err == http.ErrMissingFile {
		return movie, nil, nil
	}
	if err != nil {
		return movie, nil, BadRequest("Invalid image: " + err.Error())
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxPosterBytes+1))
	if err != nil {
		return movie, nil, BadRequest("Invalid image: " + err.Error())
	}
	if len(data) > maxPosterBytes {
		return movie, nil, BadRequest("Image is too large")
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return movie, &models.Image{Filename: header.Filename, ContentType: contentType, Data: data}, nil
}

// handleShareLink returns the public URL of a movie's page
func (h *Handlers) handleShareLink(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, ShareResponse{
		URL:   h.Share.MovieURL(id),
		QRURL: "/api/movies/" + id + "/qr",
	})
}

// handleMovieQR renders a share QR code as PNG
func (h *Handlers) handleMovieQR(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	size, err := parseIntQuery(r, "size", services.DefaultQRSize)
	if err != nil {
		respondError(w, err)
		return
	}

	png, err := h.Share.MovieQR(r.Context(), id, size)
	if err != nil {
		respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(png)
}

// handleTopMovies returns the admin leaderboard
func (h *Handlers) handleTopMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.Movies.TopMovies(r.Context(), h.Session.Viewer())
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, movies)
}

// handleDeleteMovie removes a movie as an admin
func (h *Handlers) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.Movies.DeleteMovie(r.Context(), h.Session.Viewer(), id); err != nil {
		respondError(w, err)
		return
	}
	respondDeleted(w)
}
