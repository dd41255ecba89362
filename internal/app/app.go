package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/abrezinsky/movievote/internal/auth"
	"github.com/abrezinsky/movievote/internal/config"
	"github.com/abrezinsky/movievote/internal/handlers"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/repository"
	"github.com/abrezinsky/movievote/internal/services"
	"github.com/abrezinsky/movievote/internal/session"
	"github.com/abrezinsky/movievote/internal/websocket"
	"github.com/abrezinsky/movievote/pkg/moviesapi"
)

const (
	statusInterval  = 2 * time.Second
	shutdownTimeout = 10 * time.Second
)

// App holds all application dependencies
type App struct {
	log      logger.Logger
	cfg      *config.Config
	client   moviesapi.Client
	repo     *repository.Repository
	session  *session.Manager
	voting   *services.VotingService
	movies   *services.MovieService
	share    *services.ShareService
	hub      *websocket.Hub
	handlers *handlers.Handlers
	gate     *auth.Gate
	ctx      context.Context
	cancel   context.CancelFunc
	watch    sync.Once
}

// NewClient builds the backend client described by cfg. Demo mode serves an
// in-memory catalogue with a single admin account.
func NewClient(cfg *config.Config, log logger.Logger) (moviesapi.Client, error) {
	if cfg.Demo {
		log.Info("Demo mode: using in-memory movie backend")
		return moviesapi.NewMockClient(
			moviesapi.WithUser(moviesapi.DefaultMockUser(), "demo"),
			moviesapi.WithBaseURL(cfg.Remote.BaseURL),
		), nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	var client moviesapi.Client = moviesapi.NewHTTPClient(cfg.Remote.BaseURL, log,
		moviesapi.WithHTTPClient(&http.Client{Jar: jar, Timeout: cfg.Remote.Timeout}),
		moviesapi.WithRateLimit(cfg.Remote.RequestsPerSecond, cfg.Remote.Burst),
		moviesapi.WithRetries(cfg.Remote.Retries, cfg.Remote.RetryBase),
		moviesapi.WithSessionCookie(cfg.Remote.SessionCookie),
	)

	if b := cfg.Remote.Breaker; b.Enabled {
		client = moviesapi.NewBreakerClient(client, moviesapi.BreakerSettings{
			MinRequests:  b.MinRequests,
			FailureRatio: b.FailureRatio,
			Interval:     b.Interval,
			Timeout:      b.Timeout,
		}, log)
	}
	return client, nil
}

// New creates and initializes a new application instance
func New(log logger.Logger, cfg *config.Config, client moviesapi.Client) (*App, error) {
	policy, err := services.ParseFailurePolicy(cfg.Voting.FailurePolicy)
	if err != nil {
		return nil, err
	}

	repo, err := repository.New(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	votingService := services.NewVotingService(log, repo, client, services.VotingOptions{
		Policy:      policy,
		VoteTimeout: cfg.Voting.VoteTimeout,
	})
	movieService := services.NewMovieService(log, repo, client, votingService)
	shareService := services.NewShareService(log, cfg.Remote.ShareURL())
	sessions := session.NewManager(log, client, repo)

	hub := websocket.New(log, votingService)
	hub.Start()
	votingService.SetBroadcaster(hub)

	ctx, cancel := context.WithCancel(context.Background())

	gate := newGate(cfg.Server, log)
	h := handlers.New(votingService, movieService, shareService, sessions, http.HandlerFunc(hub.ServeWs), log, handlers.Options{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimit,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		Gate:              gate,
	})

	return &App{
		log:      log,
		cfg:      cfg,
		client:   client,
		repo:     repo,
		session:  sessions,
		voting:   votingService,
		movies:   movieService,
		share:    shareService,
		hub:      hub,
		handlers: h,
		gate:     gate,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// newGate locks the gateway when an access key is configured or when it
// listens beyond loopback, generating a key for the latter.
func newGate(s config.ServerConfig, log logger.Logger) *auth.Gate {
	key := s.AccessKey
	if key == "" {
		if isLoopback(s.Host) {
			return nil
		}
		key = auth.GenerateKey()
	}
	log.Info("Gateway access key", "key", key)
	return auth.New(key)
}

// Gate returns the access key gate, nil when the gateway is open
func (a *App) Gate() *auth.Gate { return a.gate }

// Session returns the session manager
func (a *App) Session() *session.Manager { return a.session }

// Voting returns the vote reconciler
func (a *App) Voting() *services.VotingService { return a.voting }

// Movies returns the movie service
func (a *App) Movies() *services.MovieService { return a.movies }

// Share returns the share link service
func (a *App) Share() *services.ShareService { return a.share }

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Restore brings back the saved session and loads the board. When the
// backend cannot be reached the cached board is served instead.
func (a *App) Restore(ctx context.Context) models.Viewer {
	viewer, err := a.session.Restore(ctx)
	if err != nil {
		a.log.Warn("Failed to restore session", "error", err)
	}
	if err := a.voting.Refresh(ctx, viewer); err != nil {
		a.log.Warn("Initial refresh failed, serving cached board", "error", err)
	}
	a.watch.Do(a.watchSession)
	return viewer
}

// Refresh refetches the board for the current viewer
func (a *App) Refresh(ctx context.Context) error {
	return a.voting.Refresh(ctx, a.session.Viewer())
}

// watchSession refetches the board whenever the viewer signs in or out,
// since every viewer vote on it belongs to the previous viewer.
func (a *App) watchSession() {
	a.session.OnChange(func(v models.Viewer) {
		if err := a.voting.ViewerChanged(a.ctx, v); err != nil && a.ctx.Err() == nil {
			a.log.Warn("Refresh after session change failed", "error", err)
		}
	})
}

// Start restores the session and launches the background refresh and
// websocket status loops. They stop on Close.
func (a *App) Start(ctx context.Context) {
	a.Restore(ctx)

	bg, cancel := context.WithCancel(ctx)
	prev := a.cancel
	a.cancel = func() {
		cancel()
		prev()
	}

	a.voting.StartRefresh(bg, a.cfg.Voting.RefreshInterval, a.session.Viewer)
	go a.hub.StartStatusUpdates(bg, statusInterval)
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("Failed to close store", "error", err)
		}
		a.repo = nil
	}
}

// URL is the address a browser on the LAN should use for the gateway
func (a *App) URL() string {
	return gatewayURL(a.cfg.Server.Host, a.cfg.Server.Port, realNetworkProvider{})
}

// BoardURL is the gateway's board endpoint, carrying the access key when
// the gateway is locked so a browser can open it directly.
func (a *App) BoardURL() string {
	u := a.URL() + "/api/movies"
	if a.gate != nil {
		u += "?" + url.Values{auth.QueryParam: {a.gate.Key()}}.Encode()
	}
	return u
}

// Run serves the gateway until ctx is cancelled, then shuts it down
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Server starting", "url", a.URL(), "backend", a.client.BaseURL(), "policy", a.voting.Policy())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
