package mock

import (
	"context"

	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/repository"
)

// Repository wraps a real repository and allows injecting errors for testing.
//
// Usage:
//
//	realRepo := testutil.NewTestRepository(t)
//	mockRepo := mock.NewRepository(realRepo)
//	mockRepo.SaveSnapshotsError = errors.New("disk full")
//	svc := services.NewVotingService(log, mockRepo, client, opts)
type Repository struct {
	repository.FullRepository

	// ===== Session Errors =====
	SaveSessionError   error
	LoadSessionError   error
	DeleteSessionError error

	// ===== Snapshot Errors =====
	SaveSnapshotsError  error
	GetSnapshotError    error
	ListSnapshotsError  error
	DeleteSnapshotError error
	ClearSnapshotsError error

	// ===== Settings Errors =====
	GetSettingError error
	SetSettingError error
}

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.FullRepository) *Repository {
	return &Repository{
		FullRepository: real,
	}
}

// ===== Session Methods =====

func (m *Repository) SaveSession(ctx context.Context, s models.StoredSession) error {
	if m.SaveSessionError != nil {
		return m.SaveSessionError
	}
	return m.FullRepository.SaveSession(ctx, s)
}

func (m *Repository) LoadSession(ctx context.Context, baseURL string) (*models.StoredSession, error) {
	if m.LoadSessionError != nil {
		return nil, m.LoadSessionError
	}
	return m.FullRepository.LoadSession(ctx, baseURL)
}

func (m *Repository) DeleteSession(ctx context.Context, baseURL string) error {
	if m.DeleteSessionError != nil {
		return m.DeleteSessionError
	}
	return m.FullRepository.DeleteSession(ctx, baseURL)
}

// ===== Snapshot Methods =====

func (m *Repository) SaveSnapshots(ctx context.Context, snapshots []models.VoteSnapshot) error {
	if m.SaveSnapshotsError != nil {
		return m.SaveSnapshotsError
	}
	return m.FullRepository.SaveSnapshots(ctx, snapshots)
}

func (m *Repository) GetSnapshot(ctx context.Context, movieID string) (*models.VoteSnapshot, error) {
	if m.GetSnapshotError != nil {
		return nil, m.GetSnapshotError
	}
	return m.FullRepository.GetSnapshot(ctx, movieID)
}

func (m *Repository) ListSnapshots(ctx context.Context) ([]models.VoteSnapshot, error) {
	if m.ListSnapshotsError != nil {
		return nil, m.ListSnapshotsError
	}
	return m.FullRepository.ListSnapshots(ctx)
}

func (m *Repository) DeleteSnapshot(ctx context.Context, movieID string) error {
	if m.DeleteSnapshotError != nil {
		return m.DeleteSnapshotError
	}
	return m.FullRepository.DeleteSnapshot(ctx, movieID)
}

func (m *Repository) ClearSnapshots(ctx context.Context) error {
	if m.ClearSnapshotsError != nil {
		return m.ClearSnapshotsError
	}
	return m.FullRepository.ClearSnapshots(ctx)
}

// ===== Settings Methods =====

func (m *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	if m.GetSettingError != nil {
		return "", m.GetSettingError
	}
	return m.FullRepository.GetSetting(ctx, key)
}

func (m *Repository) SetSetting(ctx context.Context, key, value string) error {
	if m.SetSettingError != nil {
		return m.SetSettingError
	}
	return m.FullRepository.SetSetting(ctx, key, value)
}
