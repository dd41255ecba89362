package services

import (
	"context"
	"time"

	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/votes"
)

// VotingServicer defines the interface for vote state operations
type VotingServicer interface {
	Hydrate(snapshots []models.VoteSnapshot)
	State(id string) (votes.State, bool)
	Movie(id string) (MovieVote, bool)
	Board() []MovieVote
	Vote(ctx context.Context, viewer models.Viewer, id string, action votes.Action) (*VoteOutcome, error)
	Reconcile(id string, snapshot votes.State)
	Forget(id string)
	Refresh(ctx context.Context, viewer models.Viewer) error
	LoadCached(ctx context.Context) error
	LastRefresh(ctx context.Context) (time.Time, error)
	ViewerChanged(ctx context.Context, v models.Viewer) error
	StartRefresh(ctx context.Context, interval time.Duration, viewer func() models.Viewer)
	SetBroadcaster(b Broadcaster)
	Policy() FailurePolicy
	Offline() bool
}

// MovieServicer defines the interface for movie details and moderation
type MovieServicer interface {
	Details(ctx context.Context, viewer models.Viewer, id string) (*MovieDetails, error)
	Comments(ctx context.Context, movieID string) ([]models.Comment, error)
	AddComment(ctx context.Context, viewer models.Viewer, movieID, body string) (*models.Comment, error)
	DeleteComment(ctx context.Context, viewer models.Viewer, commentID string) error
	AddMovie(ctx context.Context, viewer models.Viewer, movie models.NewMovie, image *models.Image) (*models.Movie, error)
	TopMovies(ctx context.Context, viewer models.Viewer) ([]models.Movie, error)
	DeleteMovie(ctx context.Context, viewer models.Viewer, id string) error
}

// ShareServicer defines the interface for share links
type ShareServicer interface {
	MovieURL(movieID string) string
	MovieQR(ctx context.Context, movieID string, size int) ([]byte, error)
}

// Ensure concrete types implement interfaces
var (
	_ VotingServicer = (*VotingService)(nil)
	_ MovieServicer  = (*MovieService)(nil)
	_ ShareServicer  = (*ShareService)(nil)
)
