// Package process supervises a single OS child process end to end: spawn,
// stream its stdout/stderr, and reap it — either because it exited on its
// own or because a paired Controller asked for it to be killed.
//
// A Process is single-shot: New returns a (Process, Controller) pair, Run
// may be called at most once on the Process, and Cancel may be attempted
// at most once on the Controller. There is no restart and no pool; callers
// needing either compose multiple Process instances themselves.
package process

import (
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// sharedState is the single source of truth for a Process's lifecycle. It
// is held behind a readers-writer lock so Controller.Status can read while
// Process.Run writes.
type sharedState struct {
	mu     sync.RWMutex
	status Status

	// controllerAlive is cleared by Controller.Close (and by the
	// finalizer backing it) so that Run can tell, without a race, whether
	// a response it is about to deliver still has a live recipient.
	controllerAlive atomic.Bool
}

func (s *sharedState) get() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *sharedState) set(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

// Process is the supervisor half of the pair. It owns the child's exec.Cmd
// from spawn until reap and is not safe to use after Run returns.
type Process struct {
	id   string
	name string
	log  *zap.Logger

	state *sharedState

	ranOnce atomic.Bool

	cancelReq  chan struct{}          // Controller -> Process, buffered(1)
	cancelResp chan *KillAndWaitError // Process -> Controller, buffered(1)
}

// Controller is the sibling handle exposing Cancel and Status. It is safe
// for concurrent use by multiple goroutines (Status is a lock-protected
// read; Cancel is guarded so only the first caller across all goroutines
// performs the rendezvous).
type Controller struct {
	id   string
	name string

	state *sharedState

	cancelReq  chan struct{}
	cancelResp chan *KillAndWaitError

	// attemptOnce guarantees at most one terminal action — an explicit
	// Cancel, or Close/finalizer — ever acts on cancelReq.
	attemptOnce sync.Once
	attempted   atomic.Bool
}

// New constructs a Process/Controller pair in the Created phase. It does
// not spawn anything.
//
// id is the caller-meaningful identifier threaded through every log line
// (e.g. an installation or job id); name is a short component label (e.g.
// "install_venv_process"). Neither is required to be unique by this
// package.
func New(id, name string, log *zap.Logger) (*Process, *Controller) {
	if log == nil {
		log = zap.NewNop()
	}

	state := &sharedState{status: Created()}
	state.controllerAlive.Store(true)

	cancelReq := make(chan struct{}, 1)
	cancelResp := make(chan *KillAndWaitError, 1)

	p := &Process{
		id:         id,
		name:       name,
		log:        log.With(zap.String("id", id), zap.String("name", name)),
		state:      state,
		cancelReq:  cancelReq,
		cancelResp: cancelResp,
	}
	c := &Controller{
		id:         id,
		name:       name,
		state:      state,
		cancelReq:  cancelReq,
		cancelResp: cancelResp,
	}

	// Backstop for a Controller that is simply garbage collected without
	// Cancel or Close ever being called: still deliver
	// KilledByDroppingController rather than leaving the child running
	// forever. Mirrors how *os.File finalizes its underlying fd.
	runtime.SetFinalizer(c, func(c *Controller) { c.Close() })

	return p, c
}

// Status returns the Process's current lifecycle status. Non-blocking and
// safe to call from any phase.
func (c *Controller) Status() Status { return c.state.get() }

// Close closes the cancellation-request channel without sending on it,
// which Process.Run observes as "the Controller was dropped without
// calling Cancel". It is idempotent and safe to call even after a
// successful Cancel (a no-op in that case).
//
// Callers that want KilledByDroppingController semantics deterministically
// (rather than relying on GC timing) should defer Close() instead of
// letting the Controller become unreachable.
func (c *Controller) Close() error {
	c.attemptOnce.Do(func() {
		c.state.controllerAlive.Store(false)
		close(c.cancelReq)
	})
	return nil
}

// Cancel requests that the supervised child be killed and blocks until the
// Process has reaped it, returning the kill/wait outcome.
//
// Cancel may be attempted at most once per Controller. A later call returns
// CancelErrProcessTerminated once the Process has terminated (always the
// case after a successful Cancel), and CancelErrAlreadyTriedToCancel
// otherwise.
func (c *Controller) Cancel() (*KillAndWaitError, error) {
	switch c.state.get().Phase {
	case PhaseCreated:
		return nil, &CancelError{Kind: CancelErrProcessNotRunning}
	case PhaseTerminated:
		return nil, &CancelError{Kind: CancelErrProcessTerminated}
	}

	if c.attempted.Load() {
		return nil, &CancelError{Kind: CancelErrAlreadyTriedToCancel}
	}

	sent := false
	c.attemptOnce.Do(func() {
		c.attempted.Store(true)
		c.cancelReq <- struct{}{}
		sent = true
	})
	if !sent {
		return nil, &CancelError{Kind: CancelErrAlreadyTriedToCancel}
	}

	resp, ok := <-c.cancelResp
	if !ok {
		return nil, &CancelError{Kind: CancelErrProcessTerminated}
	}
	return resp, nil
}
