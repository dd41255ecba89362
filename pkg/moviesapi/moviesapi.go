// Package moviesapi provides a client for the movie recommendation backend's REST API.
package moviesapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/votes"
)

// DefaultSessionCookie is the cookie the backend issues on login
const DefaultSessionCookie = "token"

// IdempotencyHeader carries the key that lets the backend drop a retried vote
const IdempotencyHeader = "Idempotency-Key"

const tooManyRequests = "Too many requests. Please try again later."

// Client defines the interface for movie backend operations
type Client interface {
	// Login authenticates with email and password; the session cookie is kept by the client
	Login(ctx context.Context, email, password string) (*models.User, error)
	// Signup registers a new account and signs it in
	Signup(ctx context.Context, name, email, password string) (*models.User, error)
	// Logout ends the backend session and drops the local cookie
	Logout(ctx context.Context) error
	// CurrentUser returns the signed-in user, or an Unauthorized error
	CurrentUser(ctx context.Context) (*models.User, error)
	// SessionToken returns the current session cookie value ("" when signed out)
	SessionToken() string
	// SetSessionToken installs a previously saved session cookie
	SetSessionToken(token string)

	// ListMovies returns every movie sorted by score
	ListMovies(ctx context.Context) ([]models.Movie, error)
	// GetMovie returns one movie
	GetMovie(ctx context.Context, id string) (*models.Movie, error)
	// GetUserVote returns the signed-in user's vote on a movie
	GetUserVote(ctx context.Context, movieID string) (votes.Direction, error)
	// Vote sends a vote intent and returns the backend's counts after applying it
	Vote(ctx context.Context, movieID string, intent votes.Intent, idempotencyKey string) (*votes.Result, error)

	// ListComments returns a movie's comments
	ListComments(ctx context.Context, movieID string) ([]models.Comment, error)
	// AddComment posts a comment on a movie
	AddComment(ctx context.Context, movieID, body string) (*models.Comment, error)
	// DeleteComment removes a comment
	DeleteComment(ctx context.Context, commentID string) error
	// AddMovie recommends a movie with an optional poster image
	AddMovie(ctx context.Context, movie models.NewMovie, image *models.Image) (*models.Movie, error)

	// TopMovies returns the admin leaderboard
	TopMovies(ctx context.Context) ([]models.Movie, error)
	// DeleteMovie removes a movie (admin only)
	DeleteMovie(ctx context.Context, id string) error

	// BaseURL returns the configured backend base URL
	BaseURL() string
}

// HTTPClient is a real HTTP client for the movie backend
type HTTPClient struct {
	baseURL       string
	httpClient    *http.Client
	log           logger.Logger
	sessionCookie string
	limiter       *rate.Limiter
	maxRetries    uint64
	retryBase     time.Duration
}

// Option configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client. It must carry a cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst
func WithRateLimit(rps float64, burst int) Option {
	return func(c *HTTPClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetries retries transient failures of idempotent requests
func WithRetries(max uint64, base time.Duration) Option {
	return func(c *HTTPClient) {
		c.maxRetries = max
		c.retryBase = base
	}
}

// WithSessionCookie sets the name of the backend's session cookie
func WithSessionCookie(name string) Option {
	return func(c *HTTPClient) {
		if name != "" {
			c.sessionCookie = name
		}
	}
}

// NewHTTPClient creates a new backend client with cookie support
func NewHTTPClient(baseURL string, log logger.Logger, opts ...Option) *HTTPClient {
	jar, _ := cookiejar.New(nil)
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		log:           log,
		sessionCookie: DefaultSessionCookie,
		retryBase:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// SessionToken returns the session cookie the backend last issued
func (c *HTTPClient) SessionToken() string {
	u, err := url.Parse(c.baseURL)
	if err != nil || c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(u) {
		if cookie.Name == c.sessionCookie {
			return cookie.Value
		}
	}
	return ""
}

// SetSessionToken installs a saved session cookie. An empty token clears it.
func (c *HTTPClient) SetSessionToken(token string) {
	u, err := url.Parse(c.baseURL)
	if err != nil || c.httpClient.Jar == nil {
		return
	}
	cookie := &http.Cookie{Name: c.sessionCookie, Value: token, Path: "/"}
	if token == "" {
		cookie.MaxAge = -1
	}
	c.httpClient.Jar.SetCookies(u, []*http.Cookie{cookie})
}

// request describes one call to the backend
type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	headers     map[string]string
	idempotent  bool
}

// do executes a request and decodes the JSON response into out (when non-nil).
// Idempotent requests are retried on transient failures.
func (c *HTTPClient) do(ctx context.Context, req request, out interface{}) error {
	var payload []byte
	if req.body != nil {
		b, err := io.ReadAll(req.body)
		if err != nil {
			return errors.Wrap(err, errors.ErrInternal, "failed to buffer request body")
		}
		payload = b
	}

	attempt := func(ctx context.Context) error {
		return c.once(ctx, req, payload, out)
	}

	if !req.idempotent || c.maxRetries == 0 {
		return attempt(ctx)
	}

	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := attempt(ctx)
		if errors.Temporary(err) {
			c.log.Debug("Retrying backend request", "method", req.method, "path", req.path, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *HTTPClient) once(ctx context.Context, req request, payload []byte, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, errors.ErrUnavailable, "request throttled")
		}
	}

	apiURL := c.baseURL + req.path
	c.log.Debug("Backend request", "method", req.method, "url", apiURL)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, apiURL, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, "failed to create request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	for k, v := range req.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Unavailable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Unavailable(fmt.Errorf("failed to read response: %w", err))
	}

	c.log.Debug("Backend response", "status", resp.StatusCode, "path", req.path, "bytes", len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := decodeEnvelope(respBody, out); err != nil {
		return errors.Wrap(err, errors.ErrRemote, "failed to parse response")
	}
	return nil
}

// statusError maps a non-2xx response to a classified error
func statusError(status int, body []byte) error {
	var msgBody struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(body, &msgBody)
	msg := msgBody.Message
	if msg == "" {
		msg = msgBody.Error
	}

	switch {
	case status == http.StatusTooManyRequests:
		e := errors.RateLimited(tooManyRequests)
		e.Status = status
		return e
	case status == http.StatusUnauthorized:
		e := errors.Unauthorized(orDefault(msg, "Unauthorized"))
		e.Status = status
		return e
	case status == http.StatusForbidden:
		e := errors.Forbidden(orDefault(msg, "Forbidden"))
		e.Status = status
		return e
	case status == http.StatusNotFound:
		e := errors.NotFound(orDefault(msg, "Not found"))
		e.Status = status
		return e
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		e := errors.Validation(orDefault(msg, "Request failed"))
		e.Status = status
		return e
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		e := errors.Unavailable(fmt.Errorf("backend returned status %d", status))
		e.Status = status
		return e
	default:
		return errors.Remote(status, msg)
	}
}

// decodeEnvelope accepts both {"data": ...} envelopes and bare payloads,
// since the backend is not consistent about wrapping.
func decodeEnvelope(body []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
			return json.Unmarshal(env.Data, out)
		}
	}
	return json.Unmarshal(trimmed, out)
}

func jsonRequest(method, path string, in interface{}) (request, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return request{}, errors.Wrap(err, errors.ErrInternal, "failed to encode request")
	}
	return request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(payload),
		contentType: "application/json",
	}, nil
}

// Login authenticates and keeps the issued session cookie
func (c *HTTPClient) Login(ctx context.Context, email, password string) (*models.User, error) {
	req, err := jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}

	c.log.Info("Backend login successful", "user", user.Email)
	return &user, nil
}

// Signup registers a new account
func (c *HTTPClient) Signup(ctx context.Context, name, email, password string) (*models.User, error) {
	req, err := jsonRequest(http.MethodPost, "/api/auth/signup", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := c.do(ctx, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout ends the backend session. The local cookie is dropped even when
// the backend call fails.
func (c *HTTPClient) Logout(ctx context.Context) error {
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/auth/logout"}, nil)
	c.SetSessionToken("")
	return err
}

// CurrentUser returns the user behind the session cookie
func (c *HTTPClient) CurrentUser(ctx context.Context) (*models.User, error) {
	var user *models.User
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/me", idempotent: true}, &user); err != nil {
		return nil, err
	}
	if user == nil || user.ID == "" {
		return nil, errors.Unauthorized("not signed in")
	}
	return user, nil
}

// ListMovies retrieves all movies
func (c *HTTPClient) ListMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/movies", idempotent: true}, &movies); err != nil {
		return nil, err
	}
	for i := range movies {
		normalizeMovie(&movies[i])
	}
	return movies, nil
}

// GetMovie retrieves one movie
func (c *HTTPClient) GetMovie(ctx context.Context, id string) (*models.Movie, error) {
	var movie *models.Movie
	path := "/api/movies/" + url.PathEscape(id)
	if err := c.do(ctx, request{method: http.MethodGet, path: path, idempotent: true}, &movie); err != nil {
		return nil, err
	}
	if movie == nil {
		return nil, errors.NotFoundf("movie %s not found", id)
	}
	normalizeMovie(movie)
	return movie, nil
}

// normalizeMovie fills the defaults the backend may leave out
func normalizeMovie(m *models.Movie) {
	if m.AddedBy.Name == "" {
		m.AddedBy.Name = "Unknown"
	}
	if m.Upvotes < 0 {
		m.Upvotes = 0
	}
	if m.Downvotes < 0 {
		m.Downvotes = 0
	}
	if m.Score == 0 {
		m.Score = m.Upvotes - m.Downvotes
	}
}

// GetUserVote retrieves the signed-in user's vote on a movie
func (c *HTTPClient) GetUserVote(ctx context.Context, movieID string) (votes.Direction, error) {
	var resp struct {
		Vote votes.Direction `json:"vote"`
	}
	path := "/api/votes/" + url.PathEscape(movieID)
	if err := c.do(ctx, request{method: http.MethodGet, path: path, idempotent: true}, &resp); err != nil {
		return votes.None, err
	}
	return resp.Vote, nil
}

// Vote sends a vote intent. The idempotency key makes the request safe to retry.
func (c *HTTPClient) Vote(ctx context.Context, movieID string, intent votes.Intent, idempotencyKey string) (*votes.Result, error) {
	if !intent.Valid() {
		return nil, errors.InvalidInputf("invalid vote type %q", intent)
	}
	req, err := jsonRequest(http.MethodPost, "/api/votes/"+url.PathEscape(movieID), map[string]string{
		"voteType": string(intent),
	})
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		req.headers = map[string]string{IdempotencyHeader: idempotencyKey}
		req.idempotent = true
	}

	var result votes.Result
	if err := c.do(ctx, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListComments retrieves a movie's comments
func (c *HTTPClient) ListComments(ctx context.Context, movieID string) ([]models.Comment, error) {
	var comments []models.Comment
	path := "/api/comments/movie/" + url.PathEscape(movieID)
	if err := c.do(ctx, request{method: http.MethodGet, path: path, idempotent: true}, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// AddComment posts a comment
func (c *HTTPClient) AddComment(ctx context.Context, movieID, body string) (*models.Comment, error) {
	req, err := jsonRequest(http.MethodPost, "/api/comments", map[string]string{
		"movieId": movieID,
		"body":    body,
	})
	if err != nil {
		return nil, err
	}

	var comment models.Comment
	if err := c.do(ctx, req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// DeleteComment removes a comment
func (c *HTTPClient) DeleteComment(ctx context.Context, commentID string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/comments/" + url.PathEscape(commentID)}, nil)
}

// AddMovie uploads a new recommendation as multipart form data
func (c *HTTPClient) AddMovie(ctx context.Context, movie models.NewMovie, image *models.Image) (*models.Movie, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{{"title", movie.Title}, {"description", movie.Description}}
	if movie.Year > 0 {
		fields = append(fields, [2]string{"year", strconv.Itoa(movie.Year)})
	}
	if len(movie.Genres) > 0 {
		genres, err := json.Marshal(movie.Genres)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to encode genres")
		}
		fields = append(fields, [2]string{"genres", string(genres)})
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to write form field")
		}
	}

	if image != nil && len(image.Data) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, image.Filename))
		contentType := image.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(image.Data)
		}
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to create image part")
		}
		if _, err := part.Write(image.Data); err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal, "failed to write image")
		}
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to finish form")
	}

	var created models.Movie
	req := request{method: http.MethodPost, path: "/api/movies", body: &buf, contentType: w.FormDataContentType()}
	if err := c.do(ctx, req, &created); err != nil {
		return nil, err
	}
	normalizeMovie(&created)
	return &created, nil
}

// TopMovies retrieves the admin leaderboard
func (c *HTTPClient) TopMovies(ctx context.Context) ([]models.Movie, error) {
	var movies []models.Movie
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/admin/top-movies", idempotent: true}, &movies); err != nil {
		return nil, err
	}
	for i := range movies {
		normalizeMovie(&movies[i])
	}
	return movies, nil
}

// DeleteMovie removes a movie
func (c *HTTPClient) DeleteMovie(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/admin/movies/" + url.PathEscape(id)}, nil)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Ensure HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)
