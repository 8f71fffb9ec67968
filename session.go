package main

import (
	"net/http"
	"sync"
	"time"

	. "github.com/elijahnyp/casa_inteligente/util"

	"github.com/elijahnyp/casa_inteligente/state"
)

const (
	sessionCookie      = "casa_session"
	defaultMaxSessions = 1024
)

type session struct {
	home     *state.Home
	lastSeen time.Time
}

// SessionStore hands every browser session its own Home. In shared mode all
// sessions control the same Home.
type SessionStore struct {
	mu         sync.Mutex
	sessions   map[string]*session
	shared     *state.Home
	validation state.Validation
	ttl        time.Duration
	limit      int
	onExpire   func(*state.Home)
	now        func() time.Time
}

func NewSessionStore(shared bool, v state.Validation, ttl time.Duration) *SessionStore {
	s := &SessionStore{
		sessions:   make(map[string]*session),
		validation: v,
		ttl:        ttl,
		limit:      defaultMaxSessions,
		now:        time.Now,
	}
	if shared {
		s.shared = state.NewHome(v)
	}
	return s
}

// Shared returns the process-wide Home, or nil when sessions are isolated.
func (s *SessionStore) Shared() *state.Home {
	return s.shared
}

// SetLimit caps the number of live sessions. When full, the least recently
// seen session makes room for a new one.
func (s *SessionStore) SetLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.limit = n
	}
}

// OnExpire registers fn to run with the Home of every session that ends.
func (s *SessionStore) OnExpire(fn func(*state.Home)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// Lookup returns the Home of the request's existing session, or nil. It never
// creates a session.
func (s *SessionStore) Lookup(r *http.Request) *state.Home {
	if s.shared != nil {
		return s.shared
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expire(now)
	if sess, ok := s.sessions[sessionID(r)]; ok {
		sess.lastSeen = now
		return sess.home
	}
	return nil
}

// Home returns the Home for the request's session, creating the session and
// setting its cookie when needed.
func (s *SessionStore) Home(w http.ResponseWriter, r *http.Request) *state.Home {
	if s.shared != nil {
		return s.shared
	}
	id := sessionID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.expire(now)
	if sess, ok := s.sessions[id]; ok {
		sess.lastSeen = now
		return sess.home
	}

	if len(s.sessions) >= s.limit {
		s.evictOldest()
	}
	id = GetRandString(24)
	sess := &session{home: state.NewHome(s.validation), lastSeen: now}
	s.sessions[id] = sess
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	Logger.Debug().Msgf("new session, %d active", len(s.sessions))
	return sess.home
}

// caller holds mu
func (s *SessionStore) expire(now time.Time) {
	if s.ttl <= 0 {
		return
	}
	for id, sess := range s.sessions {
		if now.Sub(sess.lastSeen) > s.ttl {
			s.drop(id)
		}
	}
}

// caller holds mu
func (s *SessionStore) evictOldest() {
	oldest := ""
	for id, sess := range s.sessions {
		if oldest == "" || sess.lastSeen.Before(s.sessions[oldest].lastSeen) {
			oldest = id
		}
	}
	if oldest != "" {
		Logger.Debug().Msg("session limit reached, dropping the least recently seen")
		s.drop(oldest)
	}
}

// caller holds mu
func (s *SessionStore) drop(id string) {
	sess := s.sessions[id]
	delete(s.sessions, id)
	if sess != nil && s.onExpire != nil {
		s.onExpire(sess.home)
	}
}

func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
