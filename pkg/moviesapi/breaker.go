package moviesapi

import (
	"context"
	stderrors "errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/votes"
)

// BreakerSettings configures the circuit breaker around the backend
type BreakerSettings struct {
	// MinRequests is how many requests a window needs before it may trip
	MinRequests uint32
	// FailureRatio opens the circuit once this share of requests failed
	FailureRatio float64
	// Interval resets counts in the closed state
	Interval time.Duration
	// Timeout is how long the circuit stays open before probing
	Timeout time.Duration
}

// DefaultBreakerSettings opens after 60% failures over at least 10 requests
// and probes again after 30 seconds.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
	}
}

// BreakerClient wraps a Client so that an unreachable backend fails fast
// instead of stacking up timeouts behind every click.
type BreakerClient struct {
	next Client
	cb   *gobreaker.CircuitBreaker[any]
	log  logger.Logger
}

// NewBreakerClient wraps next with a circuit breaker
func NewBreakerClient(next Client, settings BreakerSettings, log logger.Logger) *BreakerClient {
	b := &BreakerClient{next: next, log: log}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "movies-api",
		MaxRequests: 3,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
		// Only transport trouble counts against the backend; a 404 or a
		// rejected vote is a healthy answer.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Temporary(err)
		},
	})
	return b
}

// State returns the breaker's current state name
func (b *BreakerClient) State() string {
	return b.cb.State().String()
}

func execute[T any](b *BreakerClient, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
			b.log.Debug("Circuit breaker rejected request", "error", err)
			return zero, errors.Unavailable(err)
		}
		return zero, err
	}
	typed, _ := res.(T)
	return typed, nil
}

func executeVoid(b *BreakerClient, fn func() error) error {
	_, err := execute(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *BreakerClient) Login(ctx context.Context, email, password string) (*models.User, error) {
	return execute(b, func() (*models.User, error) { return b.next.Login(ctx, email, password) })
}

func (b *BreakerClient) Signup(ctx context.Context, name, email, password string) (*models.User, error) {
	return execute(b, func() (*models.User, error) { return b.next.Signup(ctx, name, email, password) })
}

func (b *BreakerClient) Logout(ctx context.Context) error {
	return executeVoid(b, func() error { return b.next.Logout(ctx) })
}

func (b *BreakerClient) CurrentUser(ctx context.Context) (*models.User, error) {
	return execute(b, func() (*models.User, error) { return b.next.CurrentUser(ctx) })
}

func (b *BreakerClient) SessionToken() string         { return b.next.SessionToken() }
func (b *BreakerClient) SetSessionToken(token string) { b.next.SetSessionToken(token) }
func (b *BreakerClient) BaseURL() string              { return b.next.BaseURL() }

func (b *BreakerClient) ListMovies(ctx context.Context) ([]models.Movie, error) {
	return execute(b, func() ([]models.Movie, error) { return b.next.ListMovies(ctx) })
}

func (b *BreakerClient) GetMovie(ctx context.Context, id string) (*models.Movie, error) {
	return execute(b, func() (*models.Movie, error) { return b.next.GetMovie(ctx, id) })
}

func (b *BreakerClient) GetUserVote(ctx context.Context, movieID string) (votes.Direction, error) {
	return execute(b, func() (votes.Direction, error) { return b.next.GetUserVote(ctx, movieID) })
}

func (b *BreakerClient) Vote(ctx context.Context, movieID string, intent votes.Intent, key string) (*votes.Result, error) {
	return execute(b, func() (*votes.Result, error) { return b.next.Vote(ctx, movieID, intent, key) })
}

func (b *BreakerClient) ListComments(ctx context.Context, movieID string) ([]models.Comment, error) {
	return execute(b, func() ([]models.Comment, error) { return b.next.ListComments(ctx, movieID) })
}

func (b *BreakerClient) AddComment(ctx context.Context, movieID, body string) (*models.Comment, error) {
	return execute(b, func() (*models.Comment, error) { return b.next.AddComment(ctx, movieID, body) })
}

func (b *BreakerClient) DeleteComment(ctx context.Context, commentID string) error {
	return executeVoid(b, func() error { return b.next.DeleteComment(ctx, commentID) })
}

func (b *BreakerClient) AddMovie(ctx context.Context, movie models.NewMovie, image *models.Image) (*models.Movie, error) {
	return execute(b, func() (*models.Movie, error) { return b.next.AddMovie(ctx, movie, image) })
}

func (b *BreakerClient) TopMovies(ctx context.Context) ([]models.Movie, error) {
	return execute(b, func() ([]models.Movie, error) { return b.next.TopMovies(ctx) })
}

func (b *BreakerClient) DeleteMovie(ctx context.Context, id string) error {
	return executeVoid(b, func() error { return b.next.DeleteMovie(ctx, id) })
}

var _ Client = (*BreakerClient)(nil)
