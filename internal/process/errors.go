package process

import "fmt"

// KillAndWaitErrorKind enumerates the ways the kill-and-wait sequence
// (issue a signal, then reap) can fail.
type KillAndWaitErrorKind uint8

const (
	// CouldNotCheckStatus is reserved for a failed non-blocking liveness
	// probe. Our reap is channel-based (see run.go), so this step cannot
	// itself surface an OS-level error; the kind is kept for parity with
	// the kill-and-wait sequence described in the spec and is otherwise
	// unreachable.
	CouldNotCheckStatus KillAndWaitErrorKind = iota
	CouldNotKillProcess
	CouldNotWaitForProcess
)

func (k KillAndWaitErrorKind) String() string {
	switch k {
	case CouldNotCheckStatus:
		return "could_not_check_status"
	case CouldNotKillProcess:
		return "could_not_kill_process"
	case CouldNotWaitForProcess:
		return "could_not_wait_for_process"
	default:
		return "unknown"
	}
}

// KillAndWaitError is returned by the internal kill-and-wait sequence and
// surfaces either through Controller.Cancel's return value (cancel path) or
// wrapped in a RunError (dropped-controller path).
type KillAndWaitError struct {
	Kind KillAndWaitErrorKind
	Err  error
}

func (e *KillAndWaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *KillAndWaitError) Unwrap() error { return e.Err }

// RunErrorKind enumerates why Process.Run failed to produce a terminal
// Status.
type RunErrorKind uint8

const (
	RunErrAlreadyTriedToRun RunErrorKind = iota
	RunErrCouldNotSpawnOsProcess
	// RunErrCouldNotWaitForOsProcess is reserved for a Wait failure that
	// is not itself an exit classification (e.g. *exec.ExitError); this
	// implementation folds such failures into
	// Termination{Kind: TerminationError, ErrorKind: ErrorKindUnknownCode}
	// instead (see classify.go), so the kind is kept for taxonomy parity
	// with the spec and is otherwise unreachable.
	RunErrCouldNotWaitForOsProcess
	RunErrControllerDropped
	RunErrKillAndWait
)

func (k RunErrorKind) String() string {
	switch k {
	case RunErrAlreadyTriedToRun:
		return "already_tried_to_run"
	case RunErrCouldNotSpawnOsProcess:
		return "could_not_spawn_os_process"
	case RunErrCouldNotWaitForOsProcess:
		return "could_not_wait_for_os_process"
	case RunErrControllerDropped:
		return "controller_dropped"
	case RunErrKillAndWait:
		return "kill_and_wait_error"
	default:
		return "unknown"
	}
}

// RunError is returned by Process.Run when it cannot produce a terminal
// Status at all (as opposed to producing one that classifies as an error
// exit, which is a successful Run returning a Status).
type RunError struct {
	Kind RunErrorKind
	// Err carries the underlying I/O error for CouldNotSpawnOsProcess and
	// CouldNotWaitForOsProcess. For an absent binary this preserves
	// errors.Is(..., exec.ErrNotFound) distinguishability.
	Err error
	// KillAndWait carries the embedded kill/wait failure for
	// RunErrKillAndWait.
	KillAndWait *KillAndWaitError
}

func (e *RunError) Error() string {
	switch e.Kind {
	case RunErrCouldNotSpawnOsProcess, RunErrCouldNotWaitForOsProcess:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case RunErrKillAndWait:
		return fmt.Sprintf("%s: %v", e.Kind, e.KillAndWait)
	default:
		return e.Kind.String()
	}
}

func (e *RunError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if e.KillAndWait != nil {
		return e.KillAndWait
	}
	return nil
}

// CancelErrorKind enumerates why Controller.Cancel could not be honoured.
type CancelErrorKind uint8

const (
	CancelErrProcessNotRunning CancelErrorKind = iota
	CancelErrAlreadyTriedToCancel
	CancelErrProcessTerminated
)

func (k CancelErrorKind) String() string {
	switch k {
	case CancelErrProcessNotRunning:
		return "process_not_running"
	case CancelErrAlreadyTriedToCancel:
		return "already_tried_to_cancel"
	case CancelErrProcessTerminated:
		return "process_terminated"
	default:
		return "unknown"
	}
}

// CancelError is returned by Controller.Cancel whenever no cancellation
// rendezvous was (or could be) performed.
type CancelError struct {
	Kind CancelErrorKind
}

func (e *CancelError) Error() string { return e.Kind.String() }
