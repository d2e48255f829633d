package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/bobarin/xvoice/internal/form"
	"github.com/bobarin/xvoice/internal/models"
	"github.com/google/uuid"
)

const (
	sessionCookie = "xvoice_session"
	toastLimit    = 5
)

// Session is one browser's form instance.
type Session struct {
	ID     uuid.UUID
	Form   *form.Controller
	Toasts *form.Toaster

	mu          sync.Mutex
	status      models.SubmissionStatus
	changedAt   time.Time
	lastSeen    time.Time
	unsubscribe func()
}

// StatusChangedAt is when the submission status last changed. The label
// animation frame is derived from it.
func (s *Session) StatusChangedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changedAt
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// Sessions maps session cookies to form controllers.
type Sessions struct {
	action  form.Action
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	items map[uuid.UUID]*Session
}

func NewSessions(action form.Action, idleTTL time.Duration) *Sessions {
	return &Sessions{
		action:  action,
		idleTTL: idleTTL,
		now:     time.Now,
		items:   make(map[uuid.UUID]*Session),
	}
}

// Lookup returns the session named by the request cookie, if it exists.
func (s *Sessions) Lookup(r *http.Request) (*Session, bool) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return nil, false
	}

	s.mu.Lock()
	sess, ok := s.items[id]
	s.mu.Unlock()
	if ok {
		sess.touch(s.now())
	}
	return sess, ok
}

// Ensure returns the caller's session, creating one and setting the cookie
// when needed.
func (s *Sessions) Ensure(w http.ResponseWriter, r *http.Request) *Session {
	if sess, ok := s.Lookup(r); ok {
		return sess
	}

	sess := s.create()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID.String(),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

func (s *Sessions) create() *Session {
	now := s.now()
	toasts := form.NewToaster(toastLimit)
	sess := &Session{
		ID:        uuid.New(),
		Form:      form.NewController(s.action, toasts),
		Toasts:    toasts,
		status:    models.SubmissionStatusIdle,
		changedAt: now,
		lastSeen:  now,
	}
	sess.unsubscribe = sess.Form.Subscribe(func(snap form.Snapshot) {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		if snap.Status != sess.status {
			sess.status = snap.Status
			sess.changedAt = s.now()
		}
	})

	s.mu.Lock()
	s.items[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Sweep drops sessions idle longer than the TTL. Sessions with a submission
// in flight are kept.
func (s *Sessions) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.items {
		if sess.idleSince(now) < s.idleTTL || sess.Form.Status() == models.SubmissionStatusExecuting {
			continue
		}
		sess.unsubscribe()
		delete(s.items, id)
		removed++
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Sessions) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("[Sessions] Swept %d idle sessions (%d active)", n, s.Len())
			}
		}
	}
}
