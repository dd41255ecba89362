package repository

import (
	"context"

	"github.com/abrezinsky/movievote/internal/models"
)

// SessionRepository persists backend session cookies
type SessionRepository interface {
	SaveSession(ctx context.Context, s models.StoredSession) error
	LoadSession(ctx context.Context, baseURL string) (*models.StoredSession, error)
	DeleteSession(ctx context.Context, baseURL string) error
}

// SnapshotRepository caches authoritative vote states for offline use
type SnapshotRepository interface {
	SaveSnapshots(ctx context.Context, snapshots []models.VoteSnapshot) error
	GetSnapshot(ctx context.Context, movieID string) (*models.VoteSnapshot, error)
	ListSnapshots(ctx context.Context) ([]models.VoteSnapshot, error)
	DeleteSnapshot(ctx context.Context, movieID string) error
	ClearSnapshots(ctx context.Context) error
}

// SettingsRepository defines settings data operations
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// FullRepository combines all repository interfaces
// Use this when a service needs access to multiple domains
type FullRepository interface {
	SessionRepository
	SnapshotRepository
	SettingsRepository
}

// Ensure Repository implements all interfaces
var _ FullRepository = (*Repository)(nil)
