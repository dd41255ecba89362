package services

import (
	"fmt"

	"github.com/abrezinsky/movievote/internal/errors"
)

// Service errors
var (
	ErrVoteInFlight      = errors.Conflict("a vote on this movie is still being sent")
	ErrNotSignedIn       = errors.Unauthorized("sign in to do that")
	ErrAdminRequired     = errors.Forbidden("admin access required")
	ErrEmptyComment      = errors.Validation("comment cannot be empty")
	ErrCommentTooLong    = errors.Validation("comment must be at most 1000 characters")
	ErrInvalidPolicy     = &ServiceError{Message: "failure policy must be rollback or keep"}
	ErrInvalidQRSize     = &ServiceError{Message: "size must be between 64 and 1024"}
	ErrNoSnapshotsCached = &ServiceError{Message: "backend unreachable and no cached board"}
)

// ServiceError represents a service-level error
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// UnknownMovieError is returned when a movie is not on the local board
type UnknownMovieError struct {
	MovieID string
}

func (e *UnknownMovieError) Error() string {
	return fmt.Sprintf("movie %s is not on the board", e.MovieID)
}
