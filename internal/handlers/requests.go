package handlers

// VoteRequest represents a click on one of a movie's vote controls
type VoteRequest struct {
	Action string `json:"action" validate:"required,oneof=upvote downvote up down"`
}

// UnlockRequest carries the gateway access key
type UnlockRequest struct {
	Key string `json:"key" validate:"required"`
}

// LoginRequest represents a request to sign in to the movie backend
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupRequest represents a request to create a backend account
type SignupRequest struct {
	Name     string `json:"name" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// CommentRequest represents a request to post a comment
type CommentRequest struct {
	Body string `json:"body" validate:"required"`
}

// MovieCreateRequest represents a JSON request to recommend a movie
type MovieCreateRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Year        int      `json:"year"`
	Genres      []string `json:"genres"`
}
