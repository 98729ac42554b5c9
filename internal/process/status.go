package process

import "fmt"

// Phase identifies where a Process sits in its one-shot lifecycle.
//
// Created -> Running -> Terminated. No other transitions are possible.
type Phase uint8

const (
	// PhaseCreated means the Process has been constructed but Run has not
	// yet been attempted.
	PhaseCreated Phase = iota
	// PhaseRunning means the child has been spawned and has not yet been
	// reaped.
	PhaseRunning
	// PhaseTerminated means the child has been reaped; Termination carries
	// the classification.
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseRunning:
		return "running"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TerminationKind classifies a reaped child into success, error exit, or
// killed-by-this-library.
type TerminationKind uint8

const (
	TerminationSuccess TerminationKind = iota
	TerminationError
	TerminationKilled
)

func (k TerminationKind) String() string {
	switch k {
	case TerminationSuccess:
		return "succeeded"
	case TerminationError:
		return "terminated_with_error"
	case TerminationKilled:
		return "killed"
	default:
		return "unknown"
	}
}

// ErrorKind distinguishes a concrete exit code from a platform-dependent
// unknown one (e.g. a signal death observed on a platform where we don't
// classify it as Killed).
type ErrorKind uint8

const (
	ErrorKindCode ErrorKind = iota
	ErrorKindUnknownCode
)

// KilledKind records whether the kill was driven by an explicit
// Controller.Cancel call or by the Controller being dropped (closed)
// without ever calling Cancel.
type KilledKind uint8

const (
	KilledByCancellationSignal KilledKind = iota
	KilledByDroppingController
)

func (k KilledKind) String() string {
	switch k {
	case KilledByCancellationSignal:
		return "killed_by_cancellation_signal"
	case KilledByDroppingController:
		return "killed_by_dropping_controller"
	default:
		return "unknown"
	}
}

// Termination is the payload of a PhaseTerminated Status. Only the fields
// relevant to Kind are meaningful; callers should only inspect it when
// Status.Phase == PhaseTerminated.
type Termination struct {
	Kind TerminationKind

	// ExitCode is meaningful when Kind == TerminationError and
	// ErrorKind == ErrorKindCode.
	ExitCode int
	// ErrorKind is meaningful when Kind == TerminationError.
	ErrorKind ErrorKind
	// Killed is meaningful when Kind == TerminationKilled.
	Killed KilledKind
}

func success() Termination { return Termination{Kind: TerminationSuccess} }

func errCode(code int) Termination {
	return Termination{Kind: TerminationError, ErrorKind: ErrorKindCode, ExitCode: code}
}

func errUnknownCode() Termination {
	return Termination{Kind: TerminationError, ErrorKind: ErrorKindUnknownCode}
}

func killed(k KilledKind) Termination {
	return Termination{Kind: TerminationKilled, Killed: k}
}

func (t Termination) String() string {
	switch t.Kind {
	case TerminationSuccess:
		return "succeeded"
	case TerminationError:
		if t.ErrorKind == ErrorKindCode {
			return fmt.Sprintf("terminated_with_error(code=%d)", t.ExitCode)
		}
		return "terminated_with_error(unknown_code)"
	case TerminationKilled:
		return t.Killed.String()
	default:
		return "unknown"
	}
}

// IsSuccess reports whether the termination represents a zero exit code.
func (t Termination) IsSuccess() bool { return t.Kind == TerminationSuccess }

// Status is the single source of truth for a Process's lifecycle, read
// concurrently via Controller.Status and written only from within Run.
type Status struct {
	Phase       Phase
	Termination Termination
}

func (s Status) String() string {
	if s.Phase != PhaseTerminated {
		return s.Phase.String()
	}
	return fmt.Sprintf("terminated(%s)", s.Termination)
}

// Created constructs the initial Status of a fresh Process.
func Created() Status { return Status{Phase: PhaseCreated} }
