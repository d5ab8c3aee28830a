// Package autosave coalesces bursts of edits into debounced,
// serialized saves. A controller owns one document's save pipeline:
// edits call Touch, and after a quiet period the save callback runs
// with whatever state the document has accumulated by then.
package autosave

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the save pipeline's observable position.
type State uint8

const (
	// StateIdle means nothing has been edited yet.
	StateIdle State = iota
	// StatePendingSave means an edit landed and the debounce window is
	// open.
	StatePendingSave
	// StateSaving means a save is in flight.
	StateSaving
	// StateSaved means the last save succeeded and nothing changed
	// since.
	StateSaved
	// StateError means the last save failed. The edits stay put; the
	// next Touch or SaveNow retries them.
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePendingSave:
		return "pending"
	case StateSaving:
		return "saving"
	case StateSaved:
		return "saved"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultDelay matches a human pausing between edits.
const DefaultDelay = 2 * time.Second

// Config tunes a Controller.
type Config struct {
	// Delay is the debounce window between the last edit and the save.
	Delay time.Duration
	// OnChange observes every state transition, typically to drive a
	// status indicator. It runs with the controller's lock held, so it
	// must return quickly and must not call back into the controller.
	OnChange func(State)
}

// Controller debounces Touch calls into one save per quiet period.
// Saves are serialized: edits arriving while a save is in flight are
// picked up by the next save, never by a second concurrent one.
type Controller struct {
	save     func(context.Context) error
	delay    time.Duration
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Uint32

	// saveMu serializes the save callback itself.
	saveMu sync.Mutex

	mu        sync.Mutex
	timer     *time.Timer
	dirty     bool
	closed    bool
	lastSaved time.Time
	lastErr   error
}

// New builds a Controller around save. The controller owns a base
// context that Close cancels, which interrupts an in-flight auto-save
// during teardown.
func New(cfg Config, save func(context.Context) error) *Controller {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	c := &Controller{
		save:     save,
		delay:    cfg.Delay,
		onChange: cfg.OnChange,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// Touch records that the document changed. The debounce timer restarts
// on every call, so a burst of edits produces a single save once the
// burst goes quiet. Touch during an in-flight save marks the document
// dirty; the controller re-enters PendingSave as soon as that save
// finishes.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.State() == StateSaving {
		c.dirty = true
		return
	}
	c.rearmLocked()
}

// SaveNow flushes immediately, bypassing the debounce window. After
// Close it is a no-op.
func (c *Controller) SaveNow(ctx context.Context) error {
	return c.runSave(ctx)
}

// State reports the pipeline's current state.
func (c *Controller) State() State { return State(c.state.Load()) }

// LastSaved is the completion time of the last successful save.
func (c *Controller) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// LastError is the error from the most recent save attempt, nil after
// a success.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close stops the debounce timer and cancels the in-flight save's
// context. Unsaved edits are abandoned; no save fires after Close
// returns.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.cancel()
}

func (c *Controller) rearmLocked() {
	c.setStateLocked(StatePendingSave)
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, c.timerFired)
}

func (c *Controller) timerFired() {
	c.mu.Lock()
	if c.closed || c.State() != StatePendingSave {
		// A SaveNow or Close got there first.
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	c.mu.Unlock()
	_ = c.runSave(ctx)
}

// runSave is the single choke point every save goes through.
func (c *Controller) runSave(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.setStateLocked(StateSaving)
	c.mu.Unlock()

	err := c.save(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return err
	}
	switch {
	case c.dirty:
		// Edits landed mid-save. Their save is still owed.
		c.dirty = false
		c.lastErr = err
		c.rearmLocked()
	case err != nil:
		c.lastErr = err
		c.setStateLocked(StateError)
	default:
		c.lastErr = nil
		c.lastSaved = time.Now()
		c.setStateLocked(StateSaved)
	}
	return err
}

func (c *Controller) setStateLocked(s State) {
	if State(c.state.Swap(uint32(s))) == s {
		return
	}
	if c.onChange != nil {
		c.onChange(s)
	}
}
