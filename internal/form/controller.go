package form

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"unicode/utf16"

	"github.com/bobarin/xvoice/internal/models"
)

// MinHandleLength is the shortest handle the form will submit (exclusive).
const MinHandleLength = 1

// ErrSubmitDisabled is returned by Submit when the trigger is disabled.
var ErrSubmitDisabled = errors.New("form: submit is disabled")

// Action is the remote operation the form invokes. A returned error means the
// call itself failed (transport); server-side failures arrive as
// ActionResult.ServerError.
type Action interface {
	Execute(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error)
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error)

func (f ActionFunc) Execute(ctx context.Context, req models.ActionRequest) (*models.ActionResult, error) {
	return f(ctx, req)
}

// Snapshot is a point-in-time copy of the controller state handed to
// subscribers. Result is the pointer the controller stores (a new pointer
// marks a new result), so subscribers must treat it as read-only.
type Snapshot struct {
	Handle    string
	Status    models.SubmissionStatus
	Result    *models.ActionResult
	CanSubmit bool
}

// Controller owns the handle, submission status and last action result of one
// form instance.
type Controller struct {
	action   Action
	notifier Notifier

	mu     sync.Mutex
	handle string
	status models.SubmissionStatus
	result *models.ActionResult
	subs   map[int]func(Snapshot)
	nextID int
}

// NewController creates a controller in the idle state.
func NewController(action Action, notifier Notifier) *Controller {
	if notifier == nil {
		notifier = discard{}
	}
	return &Controller{
		action:   action,
		notifier: notifier,
		status:   models.SubmissionStatusIdle,
		subs:     make(map[int]func(Snapshot)),
	}
}

// SetHandle replaces the handle unconditionally.
func (c *Controller) SetHandle(v string) {
	c.mu.Lock()
	c.handle = v
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

// Handle returns the current handle.
func (c *Controller) Handle() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Status returns the current submission status.
func (c *Controller) Status() models.SubmissionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns the last action result, or nil.
func (c *Controller) Result() *models.ActionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// CanSubmit reports whether the submit trigger is enabled.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canSubmitLocked()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to be called with a snapshot after every mutation.
// The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Submit invokes the action with the current handle and blocks until it
// resolves. It returns ErrSubmitDisabled without side effects when the trigger
// is disabled. Action failures are reported through the notifier, never
// returned.
func (c *Controller) Submit(ctx context.Context) error {
	handle, err := c.begin()
	if err != nil {
		return err
	}
	c.run(ctx, handle)
	return nil
}

// SubmitAsync is Submit with the action running on its own goroutine. The
// guard is evaluated before returning, so the caller sees ErrSubmitDisabled
// synchronously and the status is already executing on success.
func (c *Controller) SubmitAsync(ctx context.Context) (<-chan struct{}, error) {
	handle, err := c.begin()
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.run(ctx, handle)
	}()
	return done, nil
}

// begin checks the guard and flips to executing under one lock.
func (c *Controller) begin() (string, error) {
	c.mu.Lock()
	if !c.canSubmitLocked() {
		c.mu.Unlock()
		return "", ErrSubmitDisabled
	}
	c.status = models.SubmissionStatusExecuting
	handle := c.handle
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
	return handle, nil
}

func (c *Controller) run(ctx context.Context, handle string) {
	result, err := c.execute(ctx, handle)
	if err != nil {
		log.Printf("[Form] action failed for %q: %v", handle, err)
		c.finish(models.SubmissionStatusFailed, nil, false)
		c.notifier.Notify(Notification{
			Level:   LevelError,
			Message: fmt.Sprintf("An unexpected error occurred: %v", err),
		})
		return
	}

	status := models.SubmissionStatusSucceeded
	if result.Failed() {
		status = models.SubmissionStatusFailed
	}
	c.finish(status, result, true)
}

// execute shields the controller from a panicking action; a panic is treated
// like a thrown transport error.
func (c *Controller) execute(ctx context.Context, handle string) (result *models.ActionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	result, err = c.action.Execute(ctx, models.ActionRequest{Handle: handle})
	if err == nil && result == nil {
		err = errors.New("action returned no result")
	}
	return result, err
}

// finish leaves the executing state. When setResult is true the result
// replaces the stored one and, if it carries a server error, that error is
// notified once.
func (c *Controller) finish(status models.SubmissionStatus, result *models.ActionResult, setResult bool) {
	c.mu.Lock()
	c.status = status
	changed := false
	if setResult && result != c.result {
		c.result = result
		changed = true
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if changed && result.Failed() {
		c.notifier.Notify(Notification{Level: LevelError, Message: result.ServerError})
	}
	c.publish(snap)
}

func (c *Controller) canSubmitLocked() bool {
	return handleLength(c.handle) > MinHandleLength && c.status.Interactive()
}

// handleLength counts UTF-16 code units, the unit browsers use for input
// length, so a single non-ASCII character never enables submission.
func handleLength(h string) int {
	return len(utf16.Encode([]rune(h)))
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Handle:    c.handle,
		Status:    c.status,
		Result:    c.result,
		CanSubmit: c.canSubmitLocked(),
	}
}

func (c *Controller) publish(snap Snapshot) {
	c.mu.Lock()
	subs := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
