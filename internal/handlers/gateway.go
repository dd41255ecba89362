package handlers

import (
	"net/http"

	"github.com/abrezinsky/movievote/internal/auth"
)

// handleUnlock exchanges the access key for a session cookie
func (h *Handlers) handleUnlock(w http.ResponseWriter, r *http.Request) {
	if h.opts.Gate == nil {
		respondSuccess(w, "Gateway is open")
		return
	}

	var req UnlockRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		respondError(w, err)
		return
	}

	token, ok := h.opts.Gate.Unlock(req.Key)
	if !ok {
		respondError(w, Unauthorized("Invalid access key"))
		return
	}
	auth.SetSessionCookie(w, token)
	respondSuccess(w, "Gateway unlocked")
}

// handleLock ends the caller's gateway session
func (h *Handlers) handleLock(w http.ResponseWriter, r *http.Request) {
	if h.opts.Gate != nil {
		if cookie, err := r.Cookie(auth.CookieName); err == nil {
			h.opts.Gate.Lock(cookie.Value)
		}
	}
	auth.ClearSessionCookie(w)
	respondSuccess(w, "Gateway locked")
}
