// Package session provides the cookie-keyed session maps injected into
// component script calls. The pipeline passes the map through opaquely;
// scripts own its contents.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
)

// CookieName is the session cookie the server sets.
const CookieName = "glaze_session"

// Store is an in-memory session store. Sessions are plain maps handed to
// scripts by reference, so script mutations persist without a write-back
// step.
type Store struct {
	mu       sync.Mutex
	sessions map[string]map[string]interface{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]map[string]interface{})}
}

// Acquire returns the session map for the request, creating the session
// and setting its cookie when the request carries none.
func (s *Store) Acquire(w http.ResponseWriter, r *http.Request) map[string]interface{} {
	var id string
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		id = c.Value
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok {
			return sess
		}
	}

	id = newID()
	sess := make(map[string]interface{})
	s.sessions[id] = sess

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// Get returns the session for an id without creating one. Test helper and
// diagnostic surface.
func (s *Store) Get(id string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in serious trouble;
		// an all-zero id at least keeps the request alive.
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(buf)
}
