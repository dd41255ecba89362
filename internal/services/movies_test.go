package services_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/services"
	"github.com/abrezinsky/movievote/internal/testutil"
	"github.com/abrezinsky/movievote/internal/votes"
	"github.com/abrezinsky/movievote/pkg/moviesapi"
)

var (
	pat       = models.User{ID: "u5", Name: "Pat", Email: "pat@example.com", Role: models.RoleUser}
	patViewer = models.Viewer{User: &pat, Token: "token-u5"}
)

func newMovieService(t *testing.T, client *moviesapi.MockClient) (*services.MovieService, *services.VotingService) {
	t.Helper()
	repo := testutil.NewTestRepository(t)
	voting := services.NewVotingService(logger.Discard(), repo, client, services.VotingOptions{})
	if err := voting.Refresh(context.Background(), signedIn); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	return services.NewMovieService(logger.Discard(), repo, client, voting), voting
}

func TestMovieService_Details(t *testing.T) {
	client := moviesapi.NewMockClient(moviesapi.WithSignedIn(dana))
	svc, voting := newMovieService(t, client)

	client.SetCounts("m2", 9, 4)
	details, err := svc.Details(context.Background(), signedIn, "m2")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if details.Title != "Paddington 2" {
		t.Errorf("unexpected title %q", details.Title)
	}
	if details.Vote.Net != 5 {
		t.Errorf("expected details to reconcile to net 5, got %d", details.Vote.Net)
	}
	if s, _ := voting.State("m2"); s.Upvotes != 9 {
		t.Errorf("expected board reconciled, got %+v", s)
	}
}

func TestMovieService_DetailsKeepsViewerVote(t *testing.T) {
	client := moviesapi.NewMockClient(moviesapi.WithSignedIn(dana))
	client.Vote(context.Background(), "m1", votes.IntentUpvote, "")
	svc, voting := newMovieService(t, client)
	if s, _ := voting.State("m1"); s.Viewer != votes.Positive {
		t.Fatalf("expected hydrated upvote, got %v", s.Viewer)
	}

	details, err := svc.Details(context.Background(), signedIn, "m1")
	if err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if details.Vote.Viewer != votes.Positive {
		t.Errorf("expected details to keep the viewer's upvote, got %v", details.Vote.Viewer)
	}

	client.Logout(context.Background())
	if _, err := svc.Details(context.Background(), signedIn, "m1"); err != nil {
		t.Fatalf("Details failed: %v", err)
	}
	if s, _ := voting.State("m1"); s != (votes.State{Upvotes: 11, Downvotes: 2, Viewer: votes.Positive}) {
		t.Errorf("expected local upvote kept when the vote lookup fails, got %+v", s)
	}
}

func TestMovieService_DetailsNotFound(t *testing.T) {
	svc, _ := newMovieService(t, moviesapi.NewMockClient())
	if _, err := svc.Details(context.Background(), models.Anonymous, "zzz"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMovieService_Comments(t *testing.T) {
	client := moviesapi.NewMockClient(moviesapi.WithSignedIn(dana))
	svc, _ := newMovieService(t, client)
	ctx := context.Background()

	list, err := svc.Comments(ctx, "m1")
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", list, err)
	}

	if _, err := svc.AddComment(ctx, models.Anonymous, "m1", "hi"); err != services.ErrNotSignedIn {
		t.Errorf("expected ErrNotSignedIn, got %v", err)
	}
	if _, err := svc.AddComment(ctx, signedIn, "m1", "   "); err != services.ErrEmptyComment {
		t.Errorf("expected ErrEmptyComment, got %v", err)
	}
	if _, err := svc.AddComment(ctx, signedIn, "m1", strings.Repeat("a", 1001)); err != services.ErrCommentTooLong {
		t.Errorf("expected ErrCommentTooLong, got %v", err)
	}

	c, err := svc.AddComment(ctx, signedIn, "m1", "  loved it ")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	if c.Body != "loved it" {
		t.Errorf("expected trimmed body, got %q", c.Body)
	}

	if err := svc.DeleteComment(ctx, models.Anonymous, c.ID); err != services.ErrNotSignedIn {
		t.Errorf("expected ErrNotSignedIn, got %v", err)
	}
	if err := svc.DeleteComment(ctx, signedIn, c.ID); err != nil {
		t.Errorf("DeleteComment failed: %v", err)
	}
}

func TestMovieService_AddMovie(t *testing.T) {
	client := moviesapi.NewMockClient(moviesapi.WithSignedIn(dana))
	svc, voting := newMovieService(t, client)
	ctx := context.Background()

	_, err := svc.AddMovie(ctx, signedIn, models.NewMovie{Title: "  ", Description: "x"}, nil)
	if !errors.Is(err, errors.ErrValidation) || !strings.Contains(err.Error(), "title") {
		t.Errorf("expected title validation error, got %v", err)
	}
	_, err = svc.AddMovie(ctx, signedIn, models.NewMovie{Title: "Old", Description: "x", Year: 1700}, nil)
	if !errors.Is(err, errors.ErrValidation) {
		t.Errorf("expected year validation error, got %v", err)
	}
	if _, err := svc.AddMovie(ctx, models.Anonymous, models.NewMovie{Title: "A", Description: "B"}, nil); err != services.ErrNotSignedIn {
		t.Errorf("expected ErrNotSignedIn, got %v", err)
	}

	created, err := svc.AddMovie(ctx, signedIn, models.NewMovie{Title: "Heat", Description: "Cops and robbers.", Year: 1995, Genres: []string{"crime"}},
		&models.Image{Filename: "heat.png", Data: []byte{1}})
	if err != nil {
		t.Fatalf("AddMovie failed: %v", err)
	}
	if s, ok := voting.State(created.ID); !ok || s != (votes.State{}) {
		t.Errorf("expected new movie on the board at zero, got %+v %v", s, ok)
	}
}

func TestMovieService_AdminOnly(t *testing.T) {
	client := moviesapi.NewMockClient(moviesapi.WithSignedIn(pat))
	svc, _ := newMovieService(t, client)
	ctx := context.Background()

	if _, err := svc.TopMovies(ctx, patViewer); err != services.ErrAdminRequired {
		t.Errorf("expected ErrAdminRequired, got %v", err)
	}
	if err := svc.DeleteMovie(ctx, patViewer, "m1"); err != services.ErrAdminRequired {
		t.Errorf("expected ErrAdminRequired, got %v", err)
	}
	if !errors.Is(services.ErrAdminRequired, errors.ErrForbidden) {
		t.Error("expected admin error to be forbidden")
	}
}

func TestMovieService_AdminDeleteMovie(t *testing.T) {
	client := moviesapi.NewMockClient(moviesapi.WithSignedIn(dana))
	svc, voting := newMovieService(t, client)
	ctx := context.Background()

	top, err := svc.TopMovies(ctx, signedIn)
	if err != nil || len(top) != 3 {
		t.Fatalf("TopMovies: %d %v", len(top), err)
	}

	if err := svc.DeleteMovie(ctx, signedIn, "m3"); err != nil {
		t.Fatalf("DeleteMovie failed: %v", err)
	}
	if _, ok := voting.State("m3"); ok {
		t.Error("expected deleted movie to leave the board")
	}
}

func TestShareService_MovieQR(t *testing.T) {
	svc := services.NewShareService(logger.Discard(), "https://movies.example.com/")

	if got := svc.MovieURL("m 1"); got != "https://movies.example.com/movies/m%201" {
		t.Errorf("unexpected URL %q", got)
	}

	png, err := svc.MovieQR(context.Background(), "m1", 0)
	if err != nil {
		t.Fatalf("MovieQR failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected PNG data")
	}

	if _, err := svc.MovieQR(context.Background(), "m1", 32); err != services.ErrInvalidQRSize {
		t.Errorf("expected ErrInvalidQRSize, got %v", err)
	}
}
