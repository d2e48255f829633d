package form

import (
	"sync"
	"time"
)

type Level string

const (
	LevelError   Level = "error"
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
)

// Notification is a transient message rendered outside the form layout.
type Notification struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier receives notifications emitted by a controller.
type Notifier interface {
	Notify(n Notification)
}

// Toaster buffers notifications until the next render drains them.
type Toaster struct {
	mu      sync.Mutex
	pending []Notification
	limit   int
}

// NewToaster keeps at most limit undelivered notifications, dropping the
// oldest. A limit <= 0 means unbounded.
func NewToaster(limit int) *Toaster {
	return &Toaster{limit: limit}
}

func (t *Toaster) Notify(n Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, n)
	if t.limit > 0 && len(t.pending) > t.limit {
		t.pending = t.pending[len(t.pending)-t.limit:]
	}
}

// Drain returns and clears pending notifications.
func (t *Toaster) Drain() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.pending
	t.pending = nil
	return out
}

// Len returns the number of undelivered notifications.
func (t *Toaster) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

type discard struct{}

func (discard) Notify(Notification) {}
