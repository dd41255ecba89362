package handlers

import (
	"github.com/abrezinsky/movievote/internal/models"
	"github.com/abrezinsky/movievote/internal/votes"
)

// VoteResponse is the response for a click
type VoteResponse struct {
	MovieID    string       `json:"movie_id"`
	State      votes.State  `json:"state"`
	Applied    bool         `json:"applied"`
	Intent     votes.Intent `json:"intent,omitempty"`
	Net        int          `json:"net"`
	ScoreLabel string       `json:"score_label"`
}

// StatusResponse describes the gateway's view of the backend
type StatusResponse struct {
	Offline     bool   `json:"offline"`
	Policy      string `json:"failure_policy"`
	Movies      int    `json:"movies"`
	LastRefresh string `json:"last_refresh,omitempty"`
}

// RefreshResponse is the response for a manual refresh
type RefreshResponse struct {
	Movies int `json:"movies"`
}

// SessionResponse is the response for session operations
type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	Admin         bool         `json:"admin"`
	User          *models.User `json:"user"`
}

// ShareResponse is the response for a share link
type ShareResponse struct {
	URL   string `json:"url"`
	QRURL string `json:"qr_url"`
}

func sessionResponse(v models.Viewer) SessionResponse {
	return SessionResponse{Authenticated: v.Authenticated(), Admin: v.IsAdmin(), User: v.User}
}
