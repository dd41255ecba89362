package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/abrezinsky/movievote/internal/auth"
)

// conditionalHTTPLogger only logs HTTP requests when HTTP logging is enabled
func (h *Handlers) conditionalHTTPLogger(next http.Handler) http.Handler {
	logger := middleware.Logger(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Log != nil && h.Log.IsHTTPLoggingEnabled() {
			logger.ServeHTTP(w, r)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

// rateLimit limits API requests per client IP. Zero requests disables it.
func (h *Handlers) rateLimit() func(http.Handler) http.Handler {
	if h.opts.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return httprate.Limit(
		h.opts.RateLimitRequests,
		h.opts.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusTooManyRequests, &APIError{
				Code:    ErrCodeRateLimited,
				Message: "Too many requests. Please try again later.",
			})
		}),
	)
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.conditionalHTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RedirectSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", auth.HeaderName},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// WebSocket
	if h.WS != nil {
		r.With(h.gate).Get("/ws", h.WS.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))
		r.Use(h.rateLimit())

		// Gateway access
		r.Post("/gateway/unlock", h.handleUnlock)
		r.Post("/gateway/lock", h.handleLock)

		r.Group(func(r chi.Router) {
			r.Use(h.gate)
			h.apiRoutes(r)
		})
	})

	return r
}

// gate applies the access key check when one is configured
func (h *Handlers) gate(next http.Handler) http.Handler {
	if h.opts.Gate == nil {
		return next
	}
	return h.opts.Gate.Require(next)
}

func (h *Handlers) apiRoutes(r chi.Router) {
	// Board and voting
	r.Get("/movies", h.handleBoard)
	r.Post("/movies", h.handleAddMovie)
	r.Get("/movies/{id}", h.handleMovieDetails)
	r.Post("/movies/{id}/vote", h.handleVote)
	r.Post("/refresh", h.handleRefresh)
	r.Get("/status", h.handleStatus)

	// Comments
	r.Get("/movies/{id}/comments", h.handleGetComments)
	r.Post("/movies/{id}/comments", h.handleAddComment)
	r.Delete("/comments/{id}", h.handleDeleteComment)

	// Sharing
	r.Get("/movies/{id}/share", h.handleShareLink)
	r.Get("/movies/{id}/qr", h.handleMovieQR)

	// Session
	r.Get("/session", h.handleGetSession)
	r.Post("/session/login", h.handleLogin)
	r.Post("/session/signup", h.handleSignup)
	r.Post("/session/logout", h.handleLogout)

	// Admin
	r.Get("/admin/top-movies", h.handleTopMovies)
	r.Delete("/admin/movies/{id}", h.handleDeleteMovie)
}
