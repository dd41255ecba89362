package handlers_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/handlers"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/services"
	"github.com/abrezinsky/movievote/internal/session"
	"github.com/abrezinsky/movievote/internal/testutil"
	"github.com/abrezinsky/movievote/internal/votes"
	"github.com/abrezinsky/movievote/pkg/moviesapi"
)

type testEnv struct {
	client  *moviesapi.MockClient
	voting  *services.VotingService
	session *session.Manager
	handler http.Handler
}

// setupTestEnv wires real services against the in-memory backend. When
// signedIn is true the default admin is logged in.
func setupTestEnv(t *testing.T, signedIn bool, opts ...moviesapi.MockOption) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := logger.Discard()
	repo := testutil.NewTestRepository(t)

	opts = append([]moviesapi.MockOption{moviesapi.WithUser(moviesapi.DefaultMockUser(), "secret")}, opts...)
	client := moviesapi.NewMockClient(opts...)
	sess := session.NewManager(log, client, repo)
	if signedIn {
		if _, err := sess.Login(ctx, "dana@example.com", "secret"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
	}

	voting := services.NewVotingService(log, repo, client, services.VotingOptions{})
	if err := voting.Refresh(ctx, sess.Viewer()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	movies := services.NewMovieService(log, repo, client, voting)
	share := services.NewShareService(log, "https://movies.example.com")

	h := handlers.NewForTesting(voting, movies, share, sess)
	return &testEnv{client: client, voting: voting, session: sess, handler: h.Router()}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var apiErr handlers.APIError
	decodeBody(t, w, &apiErr)
	return apiErr.Code
}

func TestHandleBoard(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/movies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var board []map[string]interface{}
	decodeBody(t, w, &board)
	if len(board) != 3 {
		t.Fatalf("expected 3 movies, got %d", len(board))
	}
	first := board[0]
	if first["id"] != "m1" || first["score_label"] != "+8" || first["net"] != float64(8) {
		t.Errorf("unexpected first row %v", first)
	}
	if first["viewer_vote"] != nil {
		t.Errorf("expected null viewer_vote for anonymous, got %v", first["viewer_vote"])
	}
}

func TestHandleVote_SignedIn(t *testing.T) {
	env := setupTestEnv(t, true)

	w := env.do(http.MethodPost, "/api/movies/m1/vote", `{"action":"upvote"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp handlers.VoteResponse
	decodeBody(t, w, &resp)
	if !resp.Applied || resp.Intent != votes.IntentUpvote {
		t.Errorf("expected applied upvote, got %+v", resp)
	}
	if resp.State != (votes.State{Upvotes: 11, Downvotes: 2, Viewer: votes.Positive}) || resp.ScoreLabel != "+9" {
		t.Errorf("unexpected state %+v %q", resp.State, resp.ScoreLabel)
	}

	// Second click on the same control removes the vote
	w = env.do(http.MethodPost, "/api/movies/m1/vote", `{"action":"up"}`)
	decodeBody(t, w, &resp)
	if resp.Intent != votes.IntentRemove || resp.State.Upvotes != 10 {
		t.Errorf("expected remove back to 10 upvotes, got %+v", resp)
	}
}

func TestHandleVote_AnonymousNotApplied(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodPost, "/api/movies/m2/vote", `{"action":"downvote"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp handlers.VoteResponse
	decodeBody(t, w, &resp)
	if resp.Applied {
		t.Error("expected applied=false for anonymous viewer")
	}
	if resp.State != (votes.State{Upvotes: 7}) {
		t.Errorf("expected untouched state, got %+v", resp.State)
	}
	if env.client.VoteCalls() != 0 {
		t.Error("expected no backend call")
	}
}

func TestHandleVote_BadRequests(t *testing.T) {
	env := setupTestEnv(t, true)

	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"empty body", "/api/movies/m1/vote", "", http.StatusBadRequest, handlers.ErrCodeBadRequest},
		{"invalid json", "/api/movies/m1/vote", "{", http.StatusBadRequest, handlers.ErrCodeBadRequest},
		{"missing action", "/api/movies/m1/vote", `{}`, http.StatusBadRequest, handlers.ErrCodeValidation},
		{"unknown action", "/api/movies/m1/vote", `{"action":"sideways"}`, http.StatusBadRequest, handlers.ErrCodeValidation},
		{"unknown movie", "/api/movies/zzz/vote", `{"action":"upvote"}`, http.StatusNotFound, handlers.ErrCodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, code)
			}
		})
	}
}

func TestHandleVote_InFlightConflict(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan error)
	env := setupTestEnv(t, true, moviesapi.WithVoteHook(func(ctx context.Context, id string, intent votes.Intent) error {
		entered <- struct{}{}
		return <-release
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.do(http.MethodPost, "/api/movies/m1/vote", `{"action":"upvote"}`)
	}()
	<-entered

	w := env.do(http.MethodPost, "/api/movies/m1/vote", `{"action":"downvote"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if code := errorCode(t, w); code != handlers.ErrCodeVoteInFlight {
		t.Errorf("expected %s, got %s", handlers.ErrCodeVoteInFlight, code)
	}

	release <- nil
	wg.Wait()
}

func TestHandleVote_BackendDownRollsBack(t *testing.T) {
	env := setupTestEnv(t, true, moviesapi.WithVoteError(errors.Unavailable(stderrors.New("dial tcp: refused"))))

	w := env.do(http.MethodPost, "/api/movies/m3/vote", `{"action":"upvote"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if s, _ := env.voting.State("m3"); s != (votes.State{Upvotes: 1, Downvotes: 6}) {
		t.Errorf("expected rollback, got %+v", s)
	}
}

func TestHandleMovieDetails(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/movies/m2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var details map[string]interface{}
	decodeBody(t, w, &details)
	if details["title"] != "Paddington 2" {
		t.Errorf("unexpected title %v", details["title"])
	}
	vote, ok := details["vote"].(map[string]interface{})
	if !ok || vote["score_label"] != "+7" {
		t.Errorf("expected merged vote state, got %v", details["vote"])
	}

	w = env.do(http.MethodGet, "/api/movies/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandleRefreshAndStatus(t *testing.T) {
	env := setupTestEnv(t, false)
	env.client.SetCounts("m3", 30, 0)

	w := env.do(http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if s, _ := env.voting.State("m3"); s.Upvotes != 30 {
		t.Errorf("expected refreshed counts, got %+v", s)
	}

	w = env.do(http.MethodGet, "/api/status", "")
	var status handlers.StatusResponse
	decodeBody(t, w, &status)
	if status.Offline || status.Policy != "rollback" || status.Movies != 3 || status.LastRefresh == "" {
		t.Errorf("unexpected status %+v", status)
	}

	env.client.SetListError(errors.Unavailable(stderrors.New("timeout")))
	w = env.do(http.MethodPost, "/api/refresh", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
	if code := errorCode(t, w); code != handlers.ErrCodeUnavailable {
		t.Errorf("expected %s, got %s", handlers.ErrCodeUnavailable, code)
	}
}

func TestHandleComments(t *testing.T) {
	env := setupTestEnv(t, true)

	w := env.do(http.MethodGet, "/api/movies/m1/comments", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %d %s", w.Code, w.Body.String())
	}

	w = env.do(http.MethodPost, "/api/movies/m1/comments", `{"body":"Great film"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]interface{}
	decodeBody(t, w, &created)
	id, _ := created["_id"].(string)
	if id == "" {
		t.Fatalf("expected comment id, got %v", created)
	}

	w = env.do(http.MethodPost, "/api/movies/m1/comments", `{"body":"   "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for blank comment, got %d", w.Code)
	}

	w = env.do(http.MethodDelete, "/api/comments/"+id, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	w = env.do(http.MethodDelete, "/api/comments/"+id, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for deleted comment, got %d", w.Code)
	}
}

func TestHandleComments_Anonymous(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodPost, "/api/movies/m1/comments", `{"body":"hi"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestHandleAddMovie_JSON(t *testing.T) {
	env := setupTestEnv(t, true)

	w := env.do(http.MethodPost, "/api/movies", `{"title":"Heat","description":"Cops and robbers.","year":1995}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.voting.Board()) != 4 {
		t.Error("expected new movie on the board")
	}

	w = env.do(http.MethodPost, "/api/movies", `{"title":"Heat"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without description, got %d", w.Code)
	}
}

func TestHandleAddMovie_Multipart(t *testing.T) {
	env := setupTestEnv(t, true)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("title", "Alien")
	mw.WriteField("description", "In space no one can hear you scream.")
	mw.WriteField("year", "1979")
	mw.WriteField("genres", `["horror","sci-fi"]`)
	part, _ := mw.CreateFormFile("image", "alien.png")
	part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/movies", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created map[string]interface{}
	decodeBody(t, w, &created)
	if created["year"] != float64(1979) {
		t.Errorf("expected year 1979, got %v", created["year"])
	}
	images, _ := created["images"].([]interface{})
	if len(images) != 1 {
		t.Errorf("expected uploaded image, got %v", created["images"])
	}
	genres, _ := created["genres"].([]interface{})
	if len(genres) != 2 {
		t.Errorf("expected 2 genres, got %v", created["genres"])
	}
}

func TestHandleShareAndQR(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/movies/m1/share", "")
	var share handlers.ShareResponse
	decodeBody(t, w, &share)
	if share.URL != "https://movies.example.com/movies/m1" {
		t.Errorf("unexpected share URL %q", share.URL)
	}

	w = env.do(http.MethodGet, "/api/movies/m1/qr?size=128", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected PNG, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected PNG signature")
	}

	if w = env.do(http.MethodGet, "/api/movies/m1/qr?size=9000", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for oversize QR, got %d", w.Code)
	}
	if w = env.do(http.MethodGet, "/api/movies/m1/qr?size=big", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad size, got %d", w.Code)
	}
}

func TestHandleSession(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodGet, "/api/session", "")
	var sess handlers.SessionResponse
	decodeBody(t, w, &sess)
	if sess.Authenticated || sess.User != nil {
		t.Errorf("expected anonymous session, got %+v", sess)
	}

	w = env.do(http.MethodPost, "/api/session/login", `{"email":"dana@example.com","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", w.Code)
	}
	w = env.do(http.MethodPost, "/api/session/login", `{"email":"not-an-email","password":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid email, got %d", w.Code)
	}

	w = env.do(http.MethodPost, "/api/session/login", `{"email":"dana@example.com","password":"secret"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &sess)
	if !sess.Authenticated || !sess.Admin || sess.User.Name != "Dana" {
		t.Errorf("expected signed-in admin, got %+v", sess)
	}

	w = env.do(http.MethodPost, "/api/session/logout", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if env.session.Viewer().Authenticated() {
		t.Error("expected anonymous after logout")
	}
}

func TestHandleSignup(t *testing.T) {
	env := setupTestEnv(t, false)

	w := env.do(http.MethodPost, "/api/session/signup", `{"name":"Pat","email":"pat@example.com","password":"hunter22"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sess handlers.SessionResponse
	decodeBody(t, w, &sess)
	if !sess.Authenticated || sess.Admin {
		t.Errorf("expected signed-in non-admin, got %+v", sess)
	}

	w = env.do(http.MethodPost, "/api/session/signup", `{"name":"Pat","email":"pat2@example.com","password":"123"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for short password, got %d", w.Code)
	}
}

func TestHandleAdmin(t *testing.T) {
	env := setupTestEnv(t, false)

	if w := env.do(http.MethodGet, "/api/admin/top-movies", ""); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for anonymous, got %d", w.Code)
	}

	env.session.Login(context.Background(), "dana@example.com", "secret")
	w := env.do(http.MethodGet, "/api/admin/top-movies", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	if w := env.do(http.MethodDelete, "/api/admin/movies/m3", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := env.voting.State("m3"); ok {
		t.Error("expected deleted movie off the board")
	}
	if w := env.do(http.MethodDelete, "/api/admin/movies/m3", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing movie, got %d", w.Code)
	}
}

func TestRouter_CORS(t *testing.T) {
	env := setupTestEnv(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/movies", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("expected local origin allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/movies", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected foreign origin rejected, got %q", got)
	}
}
