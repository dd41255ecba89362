// Package auth guards the gateway with an access key. The gateway holds the
// viewer's backend session, so anyone who can reach it can vote as them.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	CookieName    = "movievote_gateway"
	HeaderName    = "X-Gateway-Key"
	QueryParam    = "key"
	SessionExpiry = 24 * time.Hour
)

// Words for generated access keys
var keyWords = []string{
	"popcorn", "matinee", "premiere", "reel", "trailer",
	"encore", "montage", "cameo", "sequel", "marquee",
	"usher", "balcony", "credits", "fade", "spotlight",
	"director", "script", "studio", "ticket",
}

// Gate checks requests for the access key or a session cookie issued on unlock
type Gate struct {
	key      string
	sessions map[string]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

// New creates a Gate for key
func New(key string) *Gate {
	return &Gate{
		key:      key,
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

// GenerateKey creates a random 3-word access key
func GenerateKey() string {
	words := make([]string, 3)
	for i := range words {
		words[i] = keyWords[randomInt(len(keyWords))]
	}
	return strings.Join(words, "-")
}

// Key returns the access key
func (g *Gate) Key() string {
	return g.key
}

// Matches reports whether candidate is the access key
func (g *Gate) Matches(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(g.key)) == 1
}

// Unlock validates the key and returns a session token if valid
func (g *Gate) Unlock(key string) (string, bool) {
	if !g.Matches(key) {
		return "", false
	}

	token := generateToken()
	g.mu.Lock()
	g.sessions[token] = g.now().Add(SessionExpiry)
	g.mu.Unlock()

	return token, true
}

// Lock invalidates a session token
func (g *Gate) Lock(token string) {
	g.mu.Lock()
	delete(g.sessions, token)
	g.mu.Unlock()
}

// ValidateSession checks if a session token is valid
func (g *Gate) ValidateSession(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	expiry, exists := g.sessions[token]
	if !exists {
		return false
	}
	if g.now().After(expiry) {
		delete(g.sessions, token)
		return false
	}
	return true
}

// Allowed reports whether r carries the key in the header or query, or a
// valid session cookie.
func (g *Gate) Allowed(r *http.Request) bool {
	if key := r.Header.Get(HeaderName); key != "" {
		return g.Matches(key)
	}
	if key := r.URL.Query().Get(QueryParam); key != "" {
		return g.Matches(key)
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return g.ValidateSession(cookie.Value)
}

// Require rejects requests that fail Allowed with a JSON 401
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.Allowed(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"GATEWAY_LOCKED","error":"Gateway is locked - unlock with the access key"}`))
	})
}

// SetSessionCookie sets the session cookie on the response
func SetSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionExpiry.Seconds()),
	})
}

// ClearSessionCookie removes the session cookie
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func generateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// randomInt returns a uniform random int in [0, max)
func randomInt(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
