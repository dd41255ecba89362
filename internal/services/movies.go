package services

import (
	"context"
	stderrors "errors"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/repository"
	"github.com/abrezinsky/movievote/pkg/moviesapi"
)

const maxCommentLength = 1000

// MovieDetails is a movie with its local vote state
type MovieDetails struct {
	models.Movie
	Vote MovieVote `json:"vote"`
}

// MovieService handles movie details, comments and moderation
type MovieService struct {
	log      logger.Logger
	repo     repository.SnapshotRepository
	client   moviesapi.Client
	voting   *VotingService
	validate *validator.Validate
}

// NewMovieService creates a new MovieService
func NewMovieService(log logger.Logger, repo repository.SnapshotRepository, client moviesapi.Client, voting *VotingService) *MovieService {
	return &MovieService{
		log:      log,
		repo:     repo,
		client:   client,
		voting:   voting,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Details fetches a movie and reconciles its vote state. The movie itself
// carries counts only, so the viewer's own vote is fetched separately. While
// a vote on it is in flight the local state is left alone.
func (s *MovieService) Details(ctx context.Context, viewer models.Viewer, id string) (*MovieDetails, error) {
	epoch := s.voting.sessionEpoch()
	movie, err := s.client.GetMovie(ctx, id)
	if err != nil {
		return nil, err
	}

	snapshot := movie.Snapshot()
	current, known := s.voting.Movie(id)
	if dir, ok := s.voting.viewerVote(ctx, viewer, id); ok {
		snapshot.Viewer = dir
	} else if known {
		snapshot.Viewer = current.Viewer
	}

	if !known || !current.Pending {
		s.voting.reconcileMovie(movie.ID, movie.Title, snapshot, epoch)
	}
	vote, _ := s.voting.Movie(id)
	return &MovieDetails{Movie: *movie, Vote: vote}, nil
}

// Comments lists a movie's comments
func (s *MovieService) Comments(ctx context.Context, movieID string) ([]models.Comment, error) {
	comments, err := s.client.ListComments(ctx, movieID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments, nil
}

// AddComment posts a comment as the viewer
func (s *MovieService) AddComment(ctx context.Context, viewer models.Viewer, movieID, body string) (*models.Comment, error) {
	if !viewer.Authenticated() {
		return nil, ErrNotSignedIn
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyComment
	}
	if utf8.RuneCountInString(body) > maxCommentLength {
		return nil, ErrCommentTooLong
	}

	comment, err := s.client.AddComment(ctx, movieID, body)
	if err != nil {
		return nil, err
	}
	s.log.Info("Comment added", "movie", movieID, "comment", comment.ID)
	return comment, nil
}

// DeleteComment removes a comment; the backend enforces ownership
func (s *MovieService) DeleteComment(ctx context.Context, viewer models.Viewer, commentID string) error {
	if !viewer.Authenticated() {
		return ErrNotSignedIn
	}
	if err := s.client.DeleteComment(ctx, commentID); err != nil {
		return err
	}
	s.log.Info("Comment deleted", "comment", commentID, "by", viewer.UserID())
	return nil
}

// AddMovie recommends a movie and puts it on the board
func (s *MovieService) AddMovie(ctx context.Context, viewer models.Viewer, movie models.NewMovie, image *models.Image) (*models.Movie, error) {
	if !viewer.Authenticated() {
		return nil, ErrNotSignedIn
	}
	movie.Title = strings.TrimSpace(movie.Title)
	movie.Description = strings.TrimSpace(movie.Description)
	if err := s.validate.Struct(movie); err != nil {
		return nil, validationError(err)
	}

	created, err := s.client.AddMovie(ctx, movie, image)
	if err != nil {
		return nil, err
	}
	s.voting.reconcileMovie(created.ID, created.Title, created.Snapshot(), s.voting.sessionEpoch())
	s.log.Info("Movie added", "movie", created.ID, "title", created.Title)
	return created, nil
}

// TopMovies returns the admin leaderboard
func (s *MovieService) TopMovies(ctx context.Context, viewer models.Viewer) ([]models.Movie, error) {
	if !viewer.IsAdmin() {
		return nil, ErrAdminRequired
	}
	return s.client.TopMovies(ctx)
}

// DeleteMovie removes a movie from the backend and from the board
func (s *MovieService) DeleteMovie(ctx context.Context, viewer models.Viewer, id string) error {
	if !viewer.IsAdmin() {
		return ErrAdminRequired
	}
	if err := s.client.DeleteMovie(ctx, id); err != nil {
		return err
	}
	s.voting.Forget(id)
	if err := s.repo.DeleteSnapshot(ctx, id); err != nil {
		s.log.Warn("Failed to drop cached snapshot", "movie", id, "error", err)
	}
	s.log.Info("Movie deleted", "movie", id, "by", viewer.UserID())
	return nil
}

// validationError turns validator output into a single Validation error
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) || len(verrs) == 0 {
		return errors.Wrap(err, errors.ErrValidation, "invalid movie")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
	}
	return errors.Validationf("invalid movie: %s", strings.Join(fields, ", "))
}
