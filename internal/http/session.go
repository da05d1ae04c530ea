package http

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

const sessionCookie = "bilancio_session"

// sessionStore is the key-value session boundary: a per-visitor string
// map keyed by an opaque cookie. It carries the user id and the pending
// import batch ids between requests.
type sessionStore struct {
	mu     sync.Mutex
	values map[string]map[string]string
}

func newSessionStore() *sessionStore {
	return &sessionStore{values: make(map[string]map[string]string)}
}

// sessionID returns the visitor's session id, minting a new cookie when
// none is present.
func (s *sessionStore) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	// Make the new cookie visible to handlers in this same request.
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: id})
	return id
}

func (s *sessionStore) Get(r *http.Request, key string) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[c.Value][key]
	return value, ok
}

func (s *sessionStore) Set(w http.ResponseWriter, r *http.Request, key, value string) {
	id := s.sessionID(w, r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values[id] == nil {
		s.values[id] = make(map[string]string)
	}
	s.values[id][key] = value
}

func (s *sessionStore) Delete(r *http.Request, key string) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values[c.Value], key)
}
