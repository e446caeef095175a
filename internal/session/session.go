// Package session resolves login credentials to a Viewer and tracks the live views
// bound to each session so logout can tear them down.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobline/internal/directory"
	"jobline/internal/domain"
)

// ErrAuthentication matches any AuthenticationError through errors.Is.
var ErrAuthentication = errors.New("invalid credentials")

// AuthenticationError reports that no owner or worker matched the credentials.
type AuthenticationError struct {
	Identifier string
}

func (e AuthenticationError) Error() string { return ErrAuthentication.Error() }

func (e AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// Credentials is the fixed owner identifier and secret.
type Credentials struct {
	Email    string
	Password string
}

type Resolver struct {
	Owner     Credentials
	Directory directory.Directory
	Logger    *slog.Logger
}

// Login checks the owner pair first, then runs one worker lookup. Comparison is exact
// and case-sensitive.
func (r Resolver) Login(ctx context.Context, identifier, secret string) (domain.Viewer, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if identifier == "" || secret == "" {
		return domain.Viewer{}, AuthenticationError{Identifier: identifier}
	}
	if r.Owner.Email != "" && identifier == r.Owner.Email && secret == r.Owner.Password {
		logger.Info("login succeeded", "role", domain.RoleOwner)
		return domain.OwnerViewer(), nil
	}
	w, ok, err := r.Directory.FindByCredentials(ctx, identifier, secret)
	if err != nil {
		return domain.Viewer{}, err
	}
	if !ok {
		logger.Warn("login failed", "identifier", identifier)
		return domain.Viewer{}, AuthenticationError{Identifier: identifier}
	}
	logger.Info("login succeeded", "role", domain.RoleWorker, "worker_id", w.ID)
	return domain.WorkerViewer(w), nil
}

// Closer is a live view bound to a session.
type Closer interface {
	Close()
}

// Session is one logged-in viewer and the live views it opened.
type Session struct {
	ID        string
	Viewer    domain.Viewer
	StartedAt time.Time
	// ExpiresAt is zero for sessions that never expire.
	ExpiresAt time.Time

	mu      sync.Mutex
	ended   bool
	tracked []Closer
	done    chan struct{}
}

func newSession(v domain.Viewer, now time.Time, ttl time.Duration) *Session {
	s := &Session{ID: uuid.New().String(), Viewer: v, StartedAt: now, done: make(chan struct{})}
	if ttl > 0 {
		s.ExpiresAt = now.Add(ttl)
	}
	return s
}

// Expired reports whether the session has an expiry at or before now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Track binds c to the session. Tracking after logout closes c immediately and
// returns false.
func (s *Session) Track(c Closer) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		c.Close()
		return false
	}
	s.tracked = append(s.tracked, c)
	s.mu.Unlock()
	return true
}

// Untrack forgets c without closing it.
func (s *Session) Untrack(c Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tracked {
		if t == c {
			s.tracked = append(s.tracked[:i], s.tracked[i+1:]...)
			return
		}
	}
}

// Logout closes every tracked view before returning. It is idempotent.
func (s *Session) Logout() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	tracked := s.tracked
	s.tracked = nil
	close(s.done)
	s.mu.Unlock()
	for _, c := range tracked {
		c.Close()
	}
}

// Done is closed by Logout.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Registry holds the live sessions of a process.
type Registry struct {
	Now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{Now: time.Now, sessions: make(map[string]*Session)}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Start registers a session for v. A ttl of zero never expires.
func (r *Registry) Start(v domain.Viewer, ttl time.Duration) *Session {
	s := newSession(v, r.now(), ttl)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns a live session. An expired session is ended and reported missing.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.Expired(r.now()) {
		delete(r.sessions, id)
		r.mu.Unlock()
		s.Logout()
		return nil, false
	}
	r.mu.Unlock()
	return s, ok
}

// Sweep ends every expired session and returns how many it ended.
func (r *Registry) Sweep() int {
	now := r.now()
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.Expired(now) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		s.Logout()
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Info("expired sessions ended", "count", n)
			}
		}
	}
}

// End logs the session out and forgets it. It reports whether the session existed.
func (r *Registry) End(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Logout()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll ends every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.Logout()
	}
}
