package handlers

import (
	"net/http"
)

// handleGetSession reports who is driving the vote controls
func (h *Handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	respondOK(w, sessionResponse(h.Session.Viewer()))
}

// handleLogin signs in to the movie backend
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	viewer, err := h.Session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, sessionResponse(viewer))
}

// handleSignup creates a backend account and signs in
func (h *Handlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	viewer, err := h.Session.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		respondError(w, err)
		return
	}
	respondCreated(w, sessionResponse(viewer))
}

// handleLogout ends the backend session
func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Session.Logout(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	respondSuccess(w, "Signed out")
}
