package installer

import (
	"errors"
	"fmt"

	"github.com/JadKHaddad/ptaas-installer/internal/process"
)

// CheckCategory groups the leaf variants of CheckError.
type CheckCategory uint8

const (
	CategoryProjectDir CheckCategory = iota
	CategoryRequirements
	CategoryLocustDir
)

// CheckErrorKind enumerates every way project validation (Installer.Check)
// can fail. Each is tagged with its Category.
type CheckErrorKind uint8

const (
	ProjectDirIOError CheckErrorKind = iota
	ProjectDirDoesNotExist
	ProjectDirIsEmpty

	RequirementsIOError
	RequirementsTxtDoesNotExist
	LocustIsNotInRequirementsTxt

	LocustDirIOError
	LocustDirDoesNotExist
	LocustDirIsEmpty
	LocustDirHasNoPythonFiles
)

func (k CheckErrorKind) Category() CheckCategory {
	switch k {
	case ProjectDirIOError, ProjectDirDoesNotExist, ProjectDirIsEmpty:
		return CategoryProjectDir
	case RequirementsIOError, RequirementsTxtDoesNotExist, LocustIsNotInRequirementsTxt:
		return CategoryRequirements
	default:
		return CategoryLocustDir
	}
}

func (k CheckErrorKind) String() string {
	switch k {
	case ProjectDirIOError:
		return "project_dir_io_error"
	case ProjectDirDoesNotExist:
		return "project_dir_does_not_exist"
	case ProjectDirIsEmpty:
		return "project_dir_is_empty"
	case RequirementsIOError:
		return "requirements_io_error"
	case RequirementsTxtDoesNotExist:
		return "requirements_txt_does_not_exist"
	case LocustIsNotInRequirementsTxt:
		return "locust_is_not_in_requirements_txt"
	case LocustDirIOError:
		return "locust_dir_io_error"
	case LocustDirDoesNotExist:
		return "locust_dir_does_not_exist"
	case LocustDirIsEmpty:
		return "locust_dir_is_empty"
	case LocustDirHasNoPythonFiles:
		return "locust_dir_has_no_python_files"
	default:
		return "unknown"
	}
}

// CheckError is returned by Installer.Check. Variants ending in "IOError"
// carry the underlying I/O failure in Err; the rest are clean semantic
// rejections with Err == nil.
type CheckError struct {
	Kind CheckErrorKind
	Err  error
}

func (e *CheckError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *CheckError) Unwrap() error { return e.Err }

// StartError is returned when a phase could not even be started (the
// phase-output files could not be created). No child was spawned and no
// clean-up is triggered.
type StartError struct {
	Path string
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("create file %q: %v", e.Path, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

// PhaseErrorKind enumerates why a phase (venv or requirements) did not
// terminate successfully.
type PhaseErrorKind uint8

const (
	PhaseRunError PhaseErrorKind = iota
	PhaseKilled
	PhaseTerminatedWithError
	PhaseUnexpectedStatus
)

// PhaseError classifies a non-successful phase outcome. Exactly one of the
// fields matching Kind is meaningful.
type PhaseError struct {
	Kind PhaseErrorKind

	RunErr   *process.RunError   // PhaseRunError
	Killed   process.KilledKind // PhaseKilled
	ErrKind  process.ErrorKind  // PhaseTerminatedWithError
	ExitCode int                // PhaseTerminatedWithError, when ErrKind == ErrorKindCode
	Status   process.Status     // PhaseUnexpectedStatus
}

func (e *PhaseError) Error() string {
	switch e.Kind {
	case PhaseRunError:
		return fmt.Sprintf("run error: %v", e.RunErr)
	case PhaseKilled:
		return fmt.Sprintf("killed: %s", e.Killed)
	case PhaseTerminatedWithError:
		if e.ErrKind == process.ErrorKindCode {
			return fmt.Sprintf("terminated with error code %d", e.ExitCode)
		}
		return "terminated with unknown error code"
	case PhaseUnexpectedStatus:
		return fmt.Sprintf("unexpected status: %s", e.Status)
	default:
		return "unknown phase error"
	}
}

func (e *PhaseError) Unwrap() error {
	if e.RunErr != nil {
		return e.RunErr
	}
	return nil
}

// phaseResult classifies a (Status, error) pair returned by a
// process.Process.Run call per §4.2 step 7/8. Returns nil if the phase
// succeeded.
func phaseResult(status process.Status, err error) *PhaseError {
	if err != nil {
		var runErr *process.RunError
		if errors.As(err, &runErr) {
			return &PhaseError{Kind: PhaseRunError, RunErr: runErr}
		}
		return &PhaseError{Kind: PhaseRunError, RunErr: &process.RunError{Err: err}}
	}

	switch status.Phase {
	case process.PhaseTerminated:
		switch status.Termination.Kind {
		case process.TerminationSuccess:
			return nil
		case process.TerminationKilled:
			return &PhaseError{Kind: PhaseKilled, Killed: status.Termination.Killed}
		case process.TerminationError:
			return &PhaseError{
				Kind:     PhaseTerminatedWithError,
				ErrKind:  status.Termination.ErrorKind,
				ExitCode: status.Termination.ExitCode,
			}
		}
	}
	return &PhaseError{Kind: PhaseUnexpectedStatus, Status: status}
}

// InstallErrorKind enumerates the top-level ways check_and_install/install
// can fail.
type InstallErrorKind uint8

const (
	FailedToConvertPathToString InstallErrorKind = iota
	VenvStartError
	RequirementsStartError
	VenvInstallError
	RequirementsInstallError
)

func (k InstallErrorKind) String() string {
	switch k {
	case FailedToConvertPathToString:
		return "failed_to_convert_path_to_string"
	case VenvStartError:
		return "venv_start_error"
	case RequirementsStartError:
		return "requirements_start_error"
	case VenvInstallError:
		return "venv_install_error"
	case RequirementsInstallError:
		return "requirements_install_error"
	default:
		return "unknown"
	}
}

// InstallError is returned by Installer.Install (and therefore
// CheckAndInstall). VenvInstallError/RequirementsInstallError always
// trigger the clean-up policy; if clean-up also fails, CleanupErr is set
// and both errors are surfaced together (InstallError.Error reports both).
type InstallError struct {
	Kind InstallErrorKind

	Path  string      // FailedToConvertPathToString
	Start *StartError // VenvStartError, RequirementsStartError
	Phase *PhaseError // VenvInstallError, RequirementsInstallError

	// CleanupErr is non-nil only when Kind is VenvInstallError or
	// RequirementsInstallError and the subsequent environment-directory
	// clean-up also failed.
	CleanupErr *CleanupError
}

func (e *InstallError) Error() string {
	switch e.Kind {
	case FailedToConvertPathToString:
		return fmt.Sprintf("path %q is not valid UTF-8", e.Path)
	case VenvStartError, RequirementsStartError:
		return fmt.Sprintf("%s: %v", e.Kind, e.Start)
	case VenvInstallError, RequirementsInstallError:
		if e.CleanupErr != nil {
			return fmt.Sprintf("%s: %v (clean-up also failed: %v)", e.Kind, e.Phase, e.CleanupErr)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Phase)
	default:
		return e.Kind.String()
	}
}

func (e *InstallError) Unwrap() error {
	switch e.Kind {
	case VenvStartError, RequirementsStartError:
		return e.Start
	case VenvInstallError, RequirementsInstallError:
		return e.Phase
	default:
		return nil
	}
}

// CleanupErrorKind enumerates why best-effort clean-up of the environment
// directory did not complete.
type CleanupErrorKind uint8

const (
	MaxAttemptsExceeded CleanupErrorKind = iota
)

// CleanupError wraps every error observed across the bounded clean-up
// retry loop.
type CleanupError struct {
	Kind CleanupErrorKind
	Errs []error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("clean-up failed after %d attempts: %v", len(e.Errs), e.Errs)
}
