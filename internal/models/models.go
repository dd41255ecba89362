package models

import (
	"time"

	"github.com/abrezinsky/movievote/internal/votes"
)

// Roles reported by the backend
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account on the movie backend
type User struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Viewer is the person driving the vote controls. A zero Viewer is an
// anonymous visitor; it is passed explicitly to every operation that needs it.
type Viewer struct {
	User  *User
	Token string
}

// Anonymous is the viewer used when nobody is signed in.
var Anonymous = Viewer{}

// Authenticated reports whether the viewer holds a verified session.
func (v Viewer) Authenticated() bool {
	return v.User != nil && v.Token != ""
}

// IsAdmin reports whether the viewer may moderate content.
func (v Viewer) IsAdmin() bool {
	return v.Authenticated() && v.User.Role == RoleAdmin
}

// UserID returns the viewer's user id, or "" when anonymous.
func (v Viewer) UserID() string {
	if v.User == nil {
		return ""
	}
	return v.User.ID
}

// Author is the short user reference embedded in movies and comments
type Author struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Movie is a recommended movie as the backend returns it
type Movie struct {
	ID          string   `json:"_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Year        int      `json:"year,omitempty"`
	AddedBy     Author   `json:"addedBy"`
	CreatedAt   string   `json:"createdAt"`
	Upvotes     int      `json:"upvotes"`
	Downvotes   int      `json:"downvotes"`
	Score       int      `json:"score"`
}

// Snapshot is the movie's vote counts as the backend reports them. The
// viewer's own vote is not part of a movie and stays None.
func (m Movie) Snapshot() votes.State {
	return votes.State{Upvotes: m.Upvotes, Downvotes: m.Downvotes}
}

// NewMovie is the payload for recommending a movie
type NewMovie struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=5000"`
	Year        int      `json:"year,omitempty" validate:"omitempty,gte=1878,lte=2100"`
	Genres      []string `json:"genres,omitempty" validate:"max=10,dive,required,max=40"`
}

// Image is an optional poster uploaded with a new movie
type Image struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Comment is a comment on a movie
type Comment struct {
	ID        string `json:"_id"`
	Body      string `json:"body"`
	User      Author `json:"user"`
	Movie     string `json:"movie"`
	CreatedAt string `json:"createdAt"`
}

// VoteSnapshot is a cached authoritative vote state for one movie
type VoteSnapshot struct {
	MovieID   string      `json:"movie_id"`
	Title     string      `json:"title"`
	State     votes.State `json:"state"`
	FetchedAt time.Time   `json:"fetched_at"`
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StoredSession is a backend session cookie persisted between runs
type StoredSession struct {
	BaseURL   string    `json:"base_url"`
	Token     string    `json:"-"`
	User      *User     `json:"user"`
	UpdatedAt time.Time `json:"updated_at"`
}
