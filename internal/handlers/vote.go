package handlers

import (
	"net/http"
	"time"

	"github.com/abrezinsky/movievote/internal/votes"
)

// handleBoard returns every movie with its local vote state
func (h *Handlers) handleBoard(w http.ResponseWriter, r *http.Request) {
	respondOK(w, h.Voting.Board())
}

// handleMovieDetails returns a movie merged with its local vote state
func (h *Handlers) handleMovieDetails(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	details, err := h.Movies.Details(r.Context(), h.Session.Viewer(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, details)
}

// handleVote applies a click for the signed-in viewer
func (h *Handlers) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := movieIDParam(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req VoteRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}
	action, err := votes.ParseAction(req.Action)
	if err != nil {
		respondError(w, BadRequest("Invalid action"))
		return
	}

	outcome, err := h.Voting.Vote(r.Context(), h.Session.Viewer(), id, action)
	if err != nil {
		respondError(w, err)
		return
	}

	respondOK(w, VoteResponse{
		MovieID:    id,
		State:      outcome.State,
		Applied:    outcome.Applied,
		Intent:     outcome.Intent,
		Net:        outcome.State.Net(),
		ScoreLabel: outcome.State.Label(),
	})
}

// handleRefresh reconciles every movie with the backend
func (h *Handlers) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Voting.Refresh(r.Context(), h.Session.Viewer()); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, RefreshResponse{Movies: len(h.Voting.Board())})
}

// handleStatus reports whether the board is live or cached
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Offline: h.Voting.Offline(),
		Policy:  string(h.Voting.Policy()),
		Movies:  len(h.Voting.Board()),
	}
	if last, err := h.Voting.LastRefresh(r.Context()); err == nil {
		resp.LastRefresh = last.Format(time.RFC3339)
	}
	respondOK(w, resp)
}
