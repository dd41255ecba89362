// Package session owns the viewer's sign-in state against the movie backend.
// The backend issues the cookie; this package keeps it, persists it between
// runs and turns it into the explicit Viewer the rest of the app is handed.
package session

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/abrezinsky/movievote/internal/errors"
	"github.com/abrezinsky/movievote/internal/logger"
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/repository"
	"github.com/abrezinsky/movievote/pkg/moviesapi"
)

// ErrMissingCredentials is returned when email or password is empty
var ErrMissingCredentials = errors.InvalidInput("email and password are required")

// Manager tracks the current viewer
type Manager struct {
	log    logger.Logger
	client moviesapi.Client
	repo   repository.SessionRepository

	mu       sync.RWMutex
	viewer   models.Viewer
	onChange []func(models.Viewer)
}

// NewManager creates a Manager that starts out anonymous
func NewManager(log logger.Logger, client moviesapi.Client, repo repository.SessionRepository) *Manager {
	return &Manager{
		log:    log,
		client: client,
		repo:   repo,
		viewer: models.Anonymous,
	}
}

// Viewer returns the current viewer
func (m *Manager) Viewer() models.Viewer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.viewer
}

// OnChange registers fn to run after every sign-in or sign-out
func (m *Manager) OnChange(fn func(models.Viewer)) {
	m.mu.Lock()
	m.onChange = append(m.onChange, fn)
	m.mu.Unlock()
}

// Login signs in with the backend and persists the issued cookie
func (m *Manager) Login(ctx context.Context, email, password string) (models.Viewer, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.Anonymous, ErrMissingCredentials
	}

	user, err := m.client.Login(ctx, email, password)
	if err != nil {
		m.log.Warn("Login failed", "email", email, "error", err)
		return models.Anonymous, err
	}
	return m.establish(ctx, user)
}

// Signup registers a new account and signs it in
func (m *Manager) Signup(ctx context.Context, name, email, password string) (models.Viewer, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Anonymous, errors.InvalidInput("name is required")
	}
	if email == "" || password == "" {
		return models.Anonymous, ErrMissingCredentials
	}

	user, err := m.client.Signup(ctx, name, email, password)
	if err != nil {
		m.log.Warn("Signup failed", "email", email, "error", err)
		return models.Anonymous, err
	}
	return m.establish(ctx, user)
}

func (m *Manager) establish(ctx context.Context, user *models.User) (models.Viewer, error) {
	token := m.client.SessionToken()
	if token == "" {
		return models.Anonymous, errors.Remote(0, "backend did not issue a session cookie")
	}

	viewer := models.Viewer{User: user, Token: token}
	err := m.repo.SaveSession(ctx, models.StoredSession{
		BaseURL:   m.client.BaseURL(),
		Token:     token,
		User:      user,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		// Signed in for this run only
		m.log.Error("Failed to persist session", "error", err)
	}

	m.set(viewer)
	m.log.Info("Signed in", "user", user.Email, "role", user.Role)
	return viewer, nil
}

// Logout ends the session locally even when the backend call fails
func (m *Manager) Logout(ctx context.Context) error {
	remoteErr := m.client.Logout(ctx)
	if remoteErr != nil {
		m.log.Warn("Backend logout failed", "error", remoteErr)
	}
	if err := m.repo.DeleteSession(ctx, m.client.BaseURL()); err != nil {
		m.log.Error("Failed to delete saved session", "error", err)
		return err
	}
	m.set(models.Anonymous)
	m.log.Info("Signed out")
	return nil
}

// Restore loads the saved cookie for the configured backend and verifies
// it. A cookie the backend rejects is discarded. When the backend cannot be
// reached the saved user is trusted until the next verification.
func (m *Manager) Restore(ctx context.Context) (models.Viewer, error) {
	stored, err := m.repo.LoadSession(ctx, m.client.BaseURL())
	if stderrors.Is(err, repository.ErrNotFound) {
		return models.Anonymous, nil
	}
	if err != nil {
		return models.Anonymous, err
	}

	m.client.SetSessionToken(stored.Token)
	user, err := m.client.CurrentUser(ctx)
	switch {
	case err == nil:
		viewer := models.Viewer{User: user, Token: stored.Token}
		stored.User = user
		stored.UpdatedAt = time.Now().UTC()
		if err := m.repo.SaveSession(ctx, *stored); err != nil {
			m.log.Warn("Failed to refresh saved session", "error", err)
		}
		m.set(viewer)
		m.log.Info("Session restored", "user", user.Email)
		return viewer, nil

	case errors.Is(err, errors.ErrUnauthorized):
		m.log.Info("Saved session expired")
		m.client.SetSessionToken("")
		if err := m.repo.DeleteSession(ctx, m.client.BaseURL()); err != nil {
			m.log.Warn("Failed to delete expired session", "error", err)
		}
		m.set(models.Anonymous)
		return models.Anonymous, nil

	case errors.Temporary(err) && stored.User != nil:
		m.log.Warn("Backend unreachable, using saved session", "user", stored.User.Email, "error", err)
		viewer := models.Viewer{User: stored.User, Token: stored.Token}
		m.set(viewer)
		return viewer, nil
	}

	return models.Anonymous, err
}

func (m *Manager) set(v models.Viewer) {
	m.mu.Lock()
	m.viewer = v
	listeners := append([]func(models.Viewer){}, m.onChange...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
}
