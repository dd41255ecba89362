package moviesapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/votes"
)

// MockClient is an in-memory movie backend for testing. Votes follow the
// backend's toggle rules and are tracked per signed-in user.
type MockClient struct {
	mu sync.Mutex

	baseURL  string
	movies   []models.Movie
	comments map[string][]models.Comment
	users    map[string]mockAccount // email -> account
	votes    map[string]map[string]votes.Direction
	keys     map[string]*votes.Result // idempotency key -> first result
	token    string
	current  *models.User

	loginErr    error
	listErr     error
	voteErr     error
	commentsErr error
	voteHook    func(ctx context.Context, movieID string, intent votes.Intent) error

	nextID    int
	voteCalls int
}

type mockAccount struct {
	user     models.User
	password string
}

// MockOption configures the mock client
type MockOption func(*MockClient)

// WithMovies sets the movies the mock serves
func WithMovies(movies []models.Movie) MockOption {
	return func(m *MockClient) {
		m.movies = append([]models.Movie(nil), movies...)
	}
}

// WithUser registers an account that can log in
func WithUser(user models.User, password string) MockOption {
	return func(m *MockClient) {
		m.users[user.Email] = mockAccount{user: user, password: password}
	}
}

// WithSignedIn starts the mock with user already signed in
func WithSignedIn(user models.User) MockOption {
	return func(m *MockClient) {
		u := user
		m.current = &u
		m.token = "token-" + user.ID
		if _, ok := m.users[user.Email]; !ok {
			m.users[user.Email] = mockAccount{user: user}
		}
	}
}

// WithLoginError sets an error to return from Login
func WithLoginError(err error) MockOption {
	return func(m *MockClient) {
		m.loginErr = err
	}
}

// WithListError sets an error to return from ListMovies and GetMovie
func WithListError(err error) MockOption {
	return func(m *MockClient) {
		m.listErr = err
	}
}

// WithVoteError sets an error to return from Vote
func WithVoteError(err error) MockOption {
	return func(m *MockClient) {
		m.voteErr = err
	}
}

// WithCommentsError sets an error to return from the comment calls
func WithCommentsError(err error) MockOption {
	return func(m *MockClient) {
		m.commentsErr = err
	}
}

// WithVoteHook runs fn before every vote is applied. A non-nil error fails the vote.
func WithVoteHook(fn func(ctx context.Context, movieID string, intent votes.Intent) error) MockOption {
	return func(m *MockClient) {
		m.voteHook = fn
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(url string) MockOption {
	return func(m *MockClient) {
		m.baseURL = url
	}
}

// NewMockClient creates a new mock backend
func NewMockClient(opts ...MockOption) *MockClient {
	m := &MockClient{
		baseURL:  "http://mock-movies.local",
		movies:   DefaultMockMovies(),
		comments: make(map[string][]models.Comment),
		users:    make(map[string]mockAccount),
		votes:    make(map[string]map[string]votes.Direction),
		keys:     make(map[string]*votes.Result),
		nextID:   100,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BaseURL returns the configured base URL
func (m *MockClient) BaseURL() string {
	return m.baseURL
}

// SetVoteError changes the error returned from Vote
func (m *MockClient) SetVoteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voteErr = err
}

// SetListError changes the error returned from ListMovies and GetMovie
func (m *MockClient) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// VoteCalls returns how many votes reached the backend, retries included
func (m *MockClient) VoteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voteCalls
}

// SetCounts overwrites a movie's counters, simulating other users voting
func (m *MockClient) SetCounts(movieID string, up, down int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mv := m.findLocked(movieID); mv != nil {
		mv.Upvotes, mv.Downvotes, mv.Score = up, down, up-down
	}
}

func (m *MockClient) Login(ctx context.Context, email, password string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	acct, ok := m.users[email]
	if !ok || acct.password != password {
		return nil, errors.Unauthorized("Invalid credentials")
	}
	u := acct.user
	m.current = &u
	m.token = "token-" + u.ID
	return &u, nil
}

func (m *MockClient) Signup(ctx context.Context, name, email, password string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[email]; exists {
		return nil, errors.Validation("User already exists")
	}
	m.nextID++
	u := models.User{ID: fmt.Sprintf("u%d", m.nextID), Name: name, Email: email, Role: models.RoleUser}
	m.users[email] = mockAccount{user: u, password: password}
	m.current = &u
	m.token = "token-" + u.ID
	return &u, nil
}

func (m *MockClient) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	m.token = ""
	return nil
}

func (m *MockClient) CurrentUser(ctx context.Context) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.token == "" {
		return nil, errors.Unauthorized("not signed in")
	}
	u := *m.current
	return &u, nil
}

func (m *MockClient) SessionToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// SetSessionToken accepts tokens of the form "token-<userID>" for known users.
func (m *MockClient) SetSessionToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.current = nil
	for _, acct := range m.users {
		if token == "token-"+acct.user.ID {
			u := acct.user
			m.current = &u
		}
	}
}

func (m *MockClient) ListMovies(ctx context.Context) ([]models.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Movie, len(m.movies))
	copy(out, m.movies)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (m *MockClient) GetMovie(ctx context.Context, id string) (*models.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	mv := m.findLocked(id)
	if mv == nil {
		return nil, errors.NotFound("Movie not found")
	}
	view := *mv
	return &view, nil
}

func (m *MockClient) GetUserVote(ctx context.Context, movieID string) (votes.Direction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return votes.None, errors.Unauthorized("Not authorized")
	}
	return m.votes[movieID][m.current.ID], nil
}

// Vote applies the intent the way the backend does: the same direction
// twice is a no-op and remove clears whatever the user had.
func (m *MockClient) Vote(ctx context.Context, movieID string, intent votes.Intent, idempotencyKey string) (*votes.Result, error) {
	m.mu.Lock()
	m.voteCalls++
	hook := m.voteHook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, movieID, intent); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.voteErr != nil {
		return nil, m.voteErr
	}
	if m.current == nil {
		return nil, errors.Unauthorized("Not authorized")
	}
	if !intent.Valid() {
		return nil, errors.Validation("Invalid vote type")
	}
	if idempotencyKey != "" {
		if prev, ok := m.keys[idempotencyKey]; ok {
			r := *prev
			return &r, nil
		}
	}
	mv := m.findLocked(movieID)
	if mv == nil {
		return nil, errors.NotFound("Movie not found")
	}

	if m.votes[movieID] == nil {
		m.votes[movieID] = make(map[string]votes.Direction)
	}
	prev := m.votes[movieID][m.current.ID]
	next := intent.Direction()
	if prev != next {
		switch prev {
		case votes.Positive:
			mv.Upvotes--
		case votes.Negative:
			mv.Downvotes--
		}
		switch next {
		case votes.Positive:
			mv.Upvotes++
		case votes.Negative:
			mv.Downvotes++
		}
	}
	if next == votes.None {
		delete(m.votes[movieID], m.current.ID)
	} else {
		m.votes[movieID][m.current.ID] = next
	}
	mv.Score = mv.Upvotes - mv.Downvotes

	result := &votes.Result{Upvotes: mv.Upvotes, Downvotes: mv.Downvotes, Score: mv.Score}
	if idempotencyKey != "" {
		r := *result
		m.keys[idempotencyKey] = &r
	}
	return result, nil
}

func (m *MockClient) ListComments(ctx context.Context, movieID string) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commentsErr != nil {
		return nil, m.commentsErr
	}
	return append([]models.Comment(nil), m.comments[movieID]...), nil
}

func (m *MockClient) AddComment(ctx context.Context, movieID, body string) (*models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commentsErr != nil {
		return nil, m.commentsErr
	}
	if m.current == nil {
		return nil, errors.Unauthorized("Not authorized")
	}
	if m.findLocked(movieID) == nil {
		return nil, errors.NotFound("Movie not found")
	}
	m.nextID++
	c := models.Comment{
		ID:        fmt.Sprintf("c%d", m.nextID),
		Body:      body,
		User:      models.Author{ID: m.current.ID, Name: m.current.Name},
		Movie:     movieID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	m.comments[movieID] = append([]models.Comment{c}, m.comments[movieID]...)
	return &c, nil
}

func (m *MockClient) DeleteComment(ctx context.Context, commentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commentsErr != nil {
		return m.commentsErr
	}
	if m.current == nil {
		return errors.Unauthorized("Not authorized")
	}
	for movieID, list := range m.comments {
		for i, c := range list {
			if c.ID != commentID {
				continue
			}
			if c.User.ID != m.current.ID && m.current.Role != models.RoleAdmin {
				return errors.Forbidden("Not authorized")
			}
			m.comments[movieID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("Comment not found")
}

func (m *MockClient) AddMovie(ctx context.Context, movie models.NewMovie, image *models.Image) (*models.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, errors.Unauthorized("Not authorized")
	}
	m.nextID++
	created := models.Movie{
		ID:          fmt.Sprintf("m%d", m.nextID),
		Title:       movie.Title,
		Description: movie.Description,
		Year:        movie.Year,
		Genres:      movie.Genres,
		AddedBy:     models.Author{ID: m.current.ID, Name: m.current.Name},
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if image != nil && image.Filename != "" {
		created.Images = []string{"/uploads/" + image.Filename}
	}
	m.movies = append(m.movies, created)
	return &created, nil
}

func (m *MockClient) TopMovies(ctx context.Context) ([]models.Movie, error) {
	m.mu.Lock()
	isAdmin := m.current != nil && m.current.Role == models.RoleAdmin
	m.mu.Unlock()
	if !isAdmin {
		return nil, errors.Forbidden("Admin access required")
	}
	movies, err := m.ListMovies(ctx)
	if err != nil {
		return nil, err
	}
	if len(movies) > 10 {
		movies = movies[:10]
	}
	return movies, nil
}

func (m *MockClient) DeleteMovie(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil || m.current.Role != models.RoleAdmin {
		return errors.Forbidden("Admin access required")
	}
	for i, mv := range m.movies {
		if mv.ID == id {
			m.movies = append(m.movies[:i], m.movies[i+1:]...)
			delete(m.comments, id)
			delete(m.votes, id)
			return nil
		}
	}
	return errors.NotFound("Movie not found")
}

func (m *MockClient) findLocked(id string) *models.Movie {
	for i := range m.movies {
		if m.movies[i].ID == id {
			return &m.movies[i]
		}
	}
	return nil
}

// DefaultMockMovies returns a small board for tests and demo mode
func DefaultMockMovies() []models.Movie {
	return []models.Movie{
		{ID: "m1", Title: "Arrival", Description: "Linguist meets heptapods.", Year: 2016, Genres: []string{"sci-fi"},
			AddedBy: models.Author{ID: "u1", Name: "Dana"}, Upvotes: 10, Downvotes: 2, Score: 8},
		{ID: "m2", Title: "Paddington 2", Description: "A bear in prison.", Year: 2017, Genres: []string{"family"},
			AddedBy: models.Author{ID: "u2", Name: "Sam"}, Upvotes: 7, Downvotes: 0, Score: 7},
		{ID: "m3", Title: "The Room", Description: "You're tearing me apart.", Year: 2003, Genres: []string{"drama"},
			AddedBy: models.Author{ID: "u1", Name: "Dana"}, Upvotes: 1, Downvotes: 6, Score: -5},
	}
}

// DefaultMockUser is the account demo mode signs in with
func DefaultMockUser() models.User {
	return models.User{ID: "u1", Name: "Dana", Email: "dana@example.com", Role: models.RoleAdmin}
}

// Ensure MockClient implements Client
var _ Client = (*MockClient)(nil)
