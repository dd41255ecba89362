package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/votes"
)

// Repository is the local sqlite store: the saved backend session and the
// last authoritative vote snapshot of every movie on the board.
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			base_url TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			user_json TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			movie_id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			upvotes INTEGER NOT NULL DEFAULT 0,
			downvotes INTEGER NOT NULL DEFAULT 0,
			viewer_vote INTEGER NOT NULL DEFAULT 0,
			fetched_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots(fetched_at)`,
	}

	// Columns added after the first release; errors mean the column exists
	additionalMigrations := []string{
		`ALTER TABLE snapshots ADD COLUMN title TEXT NOT NULL DEFAULT ''`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return err
		}
	}

	for _, migration := range additionalMigrations {
		r.db.Exec(migration)
	}

	return nil
}

// ==================== Session Methods ====================

// SaveSession stores the session cookie for a backend, replacing any earlier one
func (r *Repository) SaveSession(ctx context.Context, s models.StoredSession) error {
	var userJSON []byte
	if s.User != nil {
		b, err := json.Marshal(s.User)
		if err != nil {
			return err
		}
		userJSON = b
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (base_url, token, user_json, updated_at)
		VALUES (?, ?, ?, ?)
	`, s.BaseURL, s.Token, nullableString(userJSON), s.UpdatedAt)
	return err
}

// LoadSession returns the saved session for a backend, or ErrNotFound
func (r *Repository) LoadSession(ctx context.Context, baseURL string) (*models.StoredSession, error) {
	var (
		s        models.StoredSession
		userJSON sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT base_url, token, user_json, updated_at FROM sessions WHERE base_url = ?
	`, baseURL).Scan(&s.BaseURL, &s.Token, &userJSON, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if userJSON.Valid && userJSON.String != "" {
		var u models.User
		if err := json.Unmarshal([]byte(userJSON.String), &u); err != nil {
			return nil, err
		}
		s.User = &u
	}
	return &s, nil
}

// DeleteSession forgets the saved session for a backend
func (r *Repository) DeleteSession(ctx context.Context, baseURL string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE base_url = ?`, baseURL)
	return err
}

// ==================== Snapshot Methods ====================

// SaveSnapshots upserts authoritative vote states in one transaction
func (r *Repository) SaveSnapshots(ctx context.Context, snapshots []models.VoteSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO snapshots (movie_id, title, upvotes, downvotes, viewer_vote, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(movie_id) DO UPDATE SET
			title = CASE WHEN excluded.title = '' THEN snapshots.title ELSE excluded.title END,
			upvotes = excluded.upvotes,
			downvotes = excluded.downvotes,
			viewer_vote = excluded.viewer_vote,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range snapshots {
		fetched := s.FetchedAt
		if fetched.IsZero() {
			fetched = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, s.MovieID, s.Title, s.State.Upvotes, s.State.Downvotes, int(s.State.Viewer), fetched); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetSnapshot returns the cached state of one movie, or ErrNotFound
func (r *Repository) GetSnapshot(ctx context.Context, movieID string) (*models.VoteSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT movie_id, title, upvotes, downvotes, viewer_vote, fetched_at
		FROM snapshots WHERE movie_id = ?
	`, movieID)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// ListSnapshots returns every cached state, highest net score first
func (r *Repository) ListSnapshots(ctx context.Context) ([]models.VoteSnapshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT movie_id, title, upvotes, downvotes, viewer_vote, fetched_at
		FROM snapshots
		ORDER BY (upvotes - downvotes) DESC, title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []models.VoteSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *s)
	}
	return snapshots, rows.Err()
}

// DeleteSnapshot drops one movie from the cache
func (r *Repository) DeleteSnapshot(ctx context.Context, movieID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE movie_id = ?`, movieID)
	return err
}

// ClearSnapshots empties the cache, used when the viewer changes
func (r *Repository) ClearSnapshots(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM snapshots`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.VoteSnapshot, error) {
	var (
		s      models.VoteSnapshot
		viewer int
	)
	if err := row.Scan(&s.MovieID, &s.Title, &s.State.Upvotes, &s.State.Downvotes, &viewer, &s.FetchedAt); err != nil {
		return nil, err
	}
	switch votes.Direction(viewer) {
	case votes.Positive, votes.Negative:
		s.State.Viewer = votes.Direction(viewer)
	}
	return &s, nil
}

// ==================== Settings Methods ====================

// GetSetting retrieves a setting value
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting updates a setting value
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value)
	return err
}

func nullableString(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
