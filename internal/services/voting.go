package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/repository"
	"github.com/abrezinsky/movievote/internal/votes"
	"github.com/abrezinsky/movievote/pkg/moviesapi"
)

// FailurePolicy decides what happens to an optimistic vote the backend rejected
type FailurePolicy string

const (
	// PolicyRollback restores the state from before the click, unless a
	// fresher snapshot arrived while the request was in flight.
	PolicyRollback FailurePolicy = "rollback"
	// PolicyKeep leaves the optimistic state until the next refresh.
	PolicyKeep FailurePolicy = "keep"
)

// ParseFailurePolicy parses "rollback" or "keep". An empty string means rollback.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRollback:
		return PolicyRollback, nil
	case PolicyKeep:
		return PolicyKeep, nil
	}
	return "", ErrInvalidPolicy
}

const lastRefreshSetting = "last_refresh"

// VotingServiceRepository defines the repository methods needed by VotingService
type VotingServiceRepository interface {
	repository.SnapshotRepository
	repository.SettingsRepository
}

// VotingOptions configures a VotingService
type VotingOptions struct {
	Policy FailurePolicy
	// VoteTimeout bounds a single remote vote, retries included
	VoteTimeout time.Duration
}

// MovieVote is one row of the board
type MovieVote struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	votes.State
	Net        int    `json:"net"`
	ScoreLabel string `json:"score_label"`
	Pending    bool   `json:"pending"`
}

// VoteOutcome is the result of a click
type VoteOutcome struct {
	State   votes.State  `json:"state"`
	Applied bool         `json:"applied"`
	Intent  votes.Intent `json:"intent,omitempty"`
}

// Broadcaster defines the interface for pushing vote state to clients
type Broadcaster interface {
	BroadcastVoteState(update MovieVote)
	BroadcastBoard(board []MovieVote)
}

// entry is the local state of one movie
type entry struct {
	title     string
	state     votes.State
	inflight  bool
	gen       uint64
	fetchedAt time.Time
}

// VotingService keeps the optimistic vote state of every movie on the board
// and reconciles it with the backend.
type VotingService struct {
	log    logger.Logger
	repo   VotingServiceRepository
	client moviesapi.Client
	opts   VotingOptions
	newKey func() string

	mu          sync.Mutex
	entries     map[string]*entry
	epoch       uint64 // bumped whenever the signed-in viewer changes
	offline     bool
	broadcaster Broadcaster
}

// NewVotingService creates a new VotingService
func NewVotingService(log logger.Logger, repo VotingServiceRepository, client moviesapi.Client, opts VotingOptions) *VotingService {
	if opts.Policy == "" {
		opts.Policy = PolicyRollback
	}
	if opts.VoteTimeout <= 0 {
		opts.VoteTimeout = 15 * time.Second
	}
	return &VotingService{
		log:     log,
		repo:    repo,
		client:  client,
		opts:    opts,
		newKey:  uuid.NewString,
		entries: make(map[string]*entry),
	}
}

// SetBroadcaster sets the broadcaster for sending updates to clients
func (s *VotingService) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	s.broadcaster = b
	s.mu.Unlock()
}

// Policy returns the configured failure policy
func (s *VotingService) Policy() FailurePolicy {
	return s.opts.Policy
}

// Offline reports whether the board is being served from the local cache
func (s *VotingService) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Hydrate replaces the state of every given movie with its snapshot
func (s *VotingService) Hydrate(snapshots []models.VoteSnapshot) {
	s.mu.Lock()
	for _, snap := range snapshots {
		s.reconcileLocked(snap.MovieID, snap.Title, snap.State, snap.FetchedAt)
	}
	board := s.boardLocked()
	b := s.broadcaster
	s.mu.Unlock()

	if b != nil {
		b.BroadcastBoard(board)
	}
}

// State returns the current local state of a movie
func (s *VotingService) State(id string) (votes.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return votes.State{}, false
	}
	return e.state, true
}

// Movie returns the board row of one movie
func (s *VotingService) Movie(id string) (MovieVote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return MovieVote{}, false
	}
	return row(id, e), true
}

// Board returns every movie, highest net score first
func (s *VotingService) Board() []MovieVote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boardLocked()
}

func (s *VotingService) boardLocked() []MovieVote {
	board := make([]MovieVote, 0, len(s.entries))
	for id, e := range s.entries {
		board = append(board, row(id, e))
	}
	sort.Slice(board, func(i, j int) bool {
		if board[i].Net != board[j].Net {
			return board[i].Net > board[j].Net
		}
		if board[i].Title != board[j].Title {
			return board[i].Title < board[j].Title
		}
		return board[i].ID < board[j].ID
	})
	return board
}

func row(id string, e *entry) MovieVote {
	return MovieVote{
		ID:         id,
		Title:      e.title,
		State:      e.state,
		Net:        e.state.Net(),
		ScoreLabel: e.state.Label(),
		Pending:    e.inflight,
	}
}

// Vote applies a click optimistically and sends the resulting intent to the
// backend. An unauthenticated viewer gets the current state back with
// Applied false. A second click while the first is still in flight is
// rejected with ErrVoteInFlight.
func (s *VotingService) Vote(ctx context.Context, viewer models.Viewer, id string, action votes.Action) (*VoteOutcome, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return nil, &UnknownMovieError{MovieID: id}
	}

	next, intent, applied := votes.ApplyFor(viewer, &e.state, action)
	if !applied {
		current := e.state
		s.mu.Unlock()
		s.log.Debug("Ignoring vote from anonymous viewer", "movie", id)
		return &VoteOutcome{State: current}, nil
	}
	if e.inflight {
		s.mu.Unlock()
		return nil, ErrVoteInFlight
	}

	previous := e.state
	startGen := e.gen
	startEpoch := s.epoch
	e.state = *next
	e.inflight = true
	optimistic := row(id, e)
	b := s.broadcaster
	s.mu.Unlock()

	if b != nil {
		b.BroadcastVoteState(optimistic)
	}

	key := s.newKey()
	s.log.Debug("Sending vote", "movie", id, "intent", intent, "key", key)

	reqCtx, cancel := context.WithTimeout(ctx, s.opts.VoteTimeout)
	result, err := s.client.Vote(reqCtx, id, intent, key)
	cancel()

	s.mu.Lock()
	e, ok = s.entries[id]
	if !ok {
		// Forgotten while the request was in flight
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return &VoteOutcome{State: result.Snapshot(intent), Applied: true, Intent: intent}, nil
	}
	e.inflight = false

	if err != nil {
		switch {
		case s.opts.Policy == PolicyKeep:
			s.log.Warn("Vote failed, keeping optimistic state", "movie", id, "intent", intent, "error", err)
		case e.gen != startGen:
			s.log.Warn("Vote failed, newer snapshot already applied", "movie", id, "intent", intent, "error", err)
		default:
			e.state = previous
			s.log.Warn("Vote failed, rolled back", "movie", id, "intent", intent, "error", err)
		}
		settled := row(id, e)
		s.mu.Unlock()
		if b != nil {
			b.BroadcastVoteState(settled)
		}
		return nil, err
	}

	authoritative := result.Snapshot(intent)
	if s.epoch != startEpoch {
		// The session changed mid-flight: the acknowledged direction belongs
		// to the previous viewer.
		authoritative.Viewer = e.state.Viewer
	}
	e.state = votes.Reconcile(e.state, authoritative)
	e.gen++
	e.fetchedAt = time.Now().UTC()
	settled := row(id, e)
	snap := models.VoteSnapshot{MovieID: id, Title: e.title, State: e.state, FetchedAt: e.fetchedAt}
	s.mu.Unlock()

	if err := s.repo.SaveSnapshots(ctx, []models.VoteSnapshot{snap}); err != nil {
		s.log.Warn("Failed to cache vote snapshot", "movie", id, "error", err)
	}
	if b != nil {
		b.BroadcastVoteState(settled)
	}

	s.log.Info("Vote recorded", "movie", id, "intent", intent, "net", settled.Net)
	return &VoteOutcome{State: settled.State, Applied: true, Intent: intent}, nil
}

// Reconcile overwrites a movie's local state with an authoritative snapshot
func (s *VotingService) Reconcile(id string, snapshot votes.State) {
	s.reconcileMovie(id, "", snapshot, s.sessionEpoch())
}

// reconcileMovie applies snapshot. When the viewer changed since epoch was
// read, the snapshot's viewer direction is stale and the local one is kept.
func (s *VotingService) reconcileMovie(id, title string, snapshot votes.State, epoch uint64) {
	s.mu.Lock()
	if e, ok := s.entries[id]; ok && s.epoch != epoch {
		snapshot.Viewer = e.state.Viewer
	}
	s.reconcileLocked(id, title, snapshot, time.Now().UTC())
	e := s.entries[id]
	update := row(id, e)
	b := s.broadcaster
	s.mu.Unlock()

	if b != nil {
		b.BroadcastVoteState(update)
	}
}

// reconcileLocked overwrites or creates an entry. An empty title keeps the known one.
func (s *VotingService) reconcileLocked(id, title string, snapshot votes.State, fetchedAt time.Time) {
	e, ok := s.entries[id]
	if !ok {
		e = &entry{}
		s.entries[id] = e
	}
	if title != "" {
		e.title = title
	}
	e.state = votes.Reconcile(e.state, snapshot)
	e.gen++
	e.fetchedAt = fetchedAt
}

// Forget discards a movie that left the board
func (s *VotingService) Forget(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	board := s.boardLocked()
	b := s.broadcaster
	s.mu.Unlock()

	if b != nil {
		b.BroadcastBoard(board)
	}
}

// Refresh refetches the board and reconciles every movie. The list carries
// counts only, so an authenticated viewer's own votes are fetched per movie.
// When the backend cannot be reached and nothing is loaded yet, the cached
// board is used.
func (s *VotingService) Refresh(ctx context.Context, viewer models.Viewer) error {
	epoch := s.sessionEpoch()
	movies, err := s.client.ListMovies(ctx)
	if err != nil {
		s.log.Warn("Refresh failed", "error", err)
		if errors.Temporary(err) {
			s.loadCached(ctx)
		}
		return err
	}

	now := time.Now().UTC()
	snapshots := make([]models.VoteSnapshot, 0, len(movies))
	unresolved := make(map[string]bool)
	for _, m := range movies {
		state := m.Snapshot()
		if dir, ok := s.viewerVote(ctx, viewer, m.ID); ok {
			state.Viewer = dir
		} else {
			unresolved[m.ID] = true
		}
		snapshots = append(snapshots, models.VoteSnapshot{MovieID: m.ID, Title: m.Title, State: state, FetchedAt: now})
	}

	s.mu.Lock()
	stale := s.epoch != epoch
	seen := make(map[string]bool, len(snapshots))
	for i := range snapshots {
		snap := &snapshots[i]
		seen[snap.MovieID] = true
		if e, ok := s.entries[snap.MovieID]; ok && (stale || unresolved[snap.MovieID]) {
			snap.State.Viewer = e.state.Viewer
		}
		s.reconcileLocked(snap.MovieID, snap.Title, snap.State, snap.FetchedAt)
	}
	for id, e := range s.entries {
		if !seen[id] && !e.inflight {
			delete(s.entries, id)
		}
	}
	s.offline = false
	board := s.boardLocked()
	b := s.broadcaster
	s.mu.Unlock()

	if err := s.repo.ClearSnapshots(ctx); err != nil {
		s.log.Warn("Failed to clear snapshot cache", "error", err)
	}
	if err := s.repo.SaveSnapshots(ctx, snapshots); err != nil {
		s.log.Warn("Failed to cache snapshots", "error", err)
	}
	if err := s.repo.SetSetting(ctx, lastRefreshSetting, now.Format(time.RFC3339)); err != nil {
		s.log.Warn("Failed to record refresh time", "error", err)
	}

	if b != nil {
		b.BroadcastBoard(board)
	}
	s.log.Debug("Board refreshed", "movies", len(snapshots))
	return nil
}

// viewerVote asks the backend for the viewer's own vote on a movie. ok is
// false when the direction could not be fetched and the local one should stand.
func (s *VotingService) viewerVote(ctx context.Context, viewer models.Viewer, id string) (votes.Direction, bool) {
	if !viewer.Authenticated() {
		return votes.None, true
	}
	dir, err := s.client.GetUserVote(ctx, id)
	if err != nil {
		s.log.Warn("Failed to fetch viewer vote", "movie", id, "error", err)
		return votes.None, false
	}
	return dir, true
}

func (s *VotingService) sessionEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// loadCached fills an empty board from the snapshot cache
func (s *VotingService) loadCached(ctx context.Context) {
	s.mu.Lock()
	empty := len(s.entries) == 0
	s.mu.Unlock()
	if !empty {
		return
	}

	if err := s.LoadCached(ctx); err != nil {
		s.log.Warn("No cached board available", "error", err)
		return
	}
	s.log.Info("Serving cached board", "movies", len(s.Board()))
}

// LoadCached hydrates the board from the snapshot cache and marks it offline
func (s *VotingService) LoadCached(ctx context.Context) error {
	cached, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(cached) == 0 {
		return ErrNoSnapshotsCached
	}
	s.mu.Lock()
	s.offline = true
	s.mu.Unlock()
	s.Hydrate(cached)
	return nil
}

// LastRefresh returns when the board was last fetched from the backend
func (s *VotingService) LastRefresh(ctx context.Context) (time.Time, error) {
	v, err := s.repo.GetSetting(ctx, lastRefreshSetting)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

// ViewerChanged drops every cached viewer vote and refetches the board for v
func (s *VotingService) ViewerChanged(ctx context.Context, v models.Viewer) error {
	s.mu.Lock()
	s.epoch++
	for _, e := range s.entries {
		e.state.Viewer = votes.None
		e.gen++
	}
	s.mu.Unlock()

	if err := s.repo.ClearSnapshots(ctx); err != nil {
		s.log.Warn("Failed to clear snapshot cache", "error", err)
	}
	return s.Refresh(ctx, v)
}

// StartRefresh polls the backend every interval until ctx is done. viewer is
// called on every tick so sign-in changes are picked up.
func (s *VotingService) StartRefresh(ctx context.Context, interval time.Duration, viewer func() models.Viewer) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Refresh(ctx, viewer()); err != nil && ctx.Err() == nil {
					s.log.Debug("Periodic refresh failed", "error", err)
				}
			}
		}
	}()
}
