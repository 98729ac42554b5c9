// Package installer composes two process.Process instances into a
// two-phase project installer: create an isolated Python virtual
// environment, then install the project's pip requirements into it,
// capturing each phase's stdout/stderr to both a file and an optional
// caller-supplied relay sink.
package installer

import (
	"bufio"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/JadKHaddad/ptaas-installer/internal/process"
)

// lineChanCapacity is the suggested bound for each phase's stdout/stderr
// forwarding channel (spec §4.2 step 4).
const lineChanCapacity = 100

// cleanupAttempts and cleanupSpacing bound the best-effort removal of the
// environment directory on a failed installation (spec §4.2, §7).
const (
	cleanupAttempts = 5
	cleanupSpacing  = 2 * time.Second
)

const (
	venvOutFile = "venv_out.txt"
	venvErrFile = "venv_err.txt"
	reqOutFile  = "req_out.txt"
	reqErrFile  = "req_err.txt"
)

// Installer orchestrates a single installation. It is constructed by New,
// which also returns its paired Controller, and is consumed by
// CheckAndInstall (or Check + Install individually); it is not re-runnable.
type Installer struct {
	id string

	uploadedDir  string
	installedDir string
	envDir       string

	stdoutSink chan<- string
	stderrSink chan<- string

	venvProcess *process.Process
	reqProcess  *process.Process

	log *zap.Logger
}

// New constructs an Installer and its paired Controller. installedDir is
// reserved for future use and is not written to by this package (spec §9
// Open Question).
func New(id, uploadedDir, installedDir, envDir string, stdoutSink, stderrSink chan<- string, log *zap.Logger) (*Installer, *Controller) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("id", id))

	venvProc, venvCtl := process.New(id, "install_venv_process", log)
	reqProc, reqCtl := process.New(id, "install_req_process", log)

	inst := &Installer{
		id:           id,
		uploadedDir:  uploadedDir,
		installedDir: installedDir,
		envDir:       envDir,
		stdoutSink:   stdoutSink,
		stderrSink:   stderrSink,
		venvProcess:  venvProc,
		reqProcess:   reqProc,
		log:          log,
	}
	ctl := &Controller{id: id, venvCtl: venvCtl, reqCtl: reqCtl}
	return inst, ctl
}

// CheckAndInstall validates the uploaded project layout and, if valid,
// runs the installation. See Check and Install.
func (i *Installer) CheckAndInstall() error {
	if err := i.Check(); err != nil {
		return err
	}
	return i.Install()
}

// pipPath returns the platform-specific path to pip3 inside the target
// virtual environment.
func pipPath(envDir string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(envDir, "Scripts", "pip3")
	}
	return filepath.Join(envDir, "bin", "pip3")
}

// Install runs the two-phase installation: `python3 -m venv <envDir>`
// followed by `<pip> install -r requirements.txt`, both with uploadedDir
// as the working directory. On any phase failure the environment
// directory is best-effort removed before the error is returned.
func (i *Installer) Install() error {
	pip := pipPath(i.envDir)

	venvOutPath := filepath.Join(i.uploadedDir, venvOutFile)
	venvErrPath := filepath.Join(i.uploadedDir, venvErrFile)
	reqOutPath := filepath.Join(i.uploadedDir, reqOutFile)
	reqErrPath := filepath.Join(i.uploadedDir, reqErrFile)

	// Step 3: create all four phase-output files up front; any failure
	// here is a start-phase error with no clean-up triggered yet.
	venvOutF, err := os.Create(venvOutPath)
	if err != nil {
		return &InstallError{Kind: VenvStartError, Start: &StartError{Path: venvOutPath, Err: err}}
	}
	venvErrF, err := os.Create(venvErrPath)
	if err != nil {
		venvOutF.Close()
		return &InstallError{Kind: VenvStartError, Start: &StartError{Path: venvErrPath, Err: err}}
	}
	reqOutF, err := os.Create(reqOutPath)
	if err != nil {
		venvOutF.Close()
		venvErrF.Close()
		return &InstallError{Kind: RequirementsStartError, Start: &StartError{Path: reqOutPath, Err: err}}
	}
	reqErrF, err := os.Create(reqErrPath)
	if err != nil {
		venvOutF.Close()
		venvErrF.Close()
		reqOutF.Close()
		return &InstallError{Kind: RequirementsStartError, Start: &StartError{Path: reqErrPath, Err: err}}
	}

	// Phase 1: venv.
	venvOutCh := make(chan string, lineChanCapacity)
	venvErrCh := make(chan string, lineChanCapacity)
	venvOutDone := i.relay(venvOutF, venvOutCh, i.stdoutSink)
	venvErrDone := i.relay(venvErrF, venvErrCh, i.stderrSink)

	status, runErr := i.venvProcess.Run(process.RunArgs{
		Program: "python3",
		Args:    []string{"-m", "venv", i.envDir},
		Dir:     i.uploadedDir,
		Stdout:  venvOutCh,
		Stderr:  venvErrCh,
	})
	close(venvOutCh)
	close(venvErrCh)
	<-venvOutDone
	<-venvErrDone

	if phaseErr := phaseResult(status, runErr); phaseErr != nil {
		cleanupErr := i.cleanup()
		// The requirements-phase files were already created above, so the
		// on-disk contract (all four files exist) holds even on this early
		// failure; close them unused.
		reqOutF.Close()
		reqErrF.Close()
		ie := &InstallError{Kind: VenvInstallError, Phase: phaseErr}
		if cleanupErr != nil {
			ie.CleanupErr = cleanupErr
		}
		return ie
	}

	// Phase 2: requirements.
	reqOutCh := make(chan string, lineChanCapacity)
	reqErrCh := make(chan string, lineChanCapacity)
	reqOutDone := i.relay(reqOutF, reqOutCh, i.stdoutSink)
	reqErrDone := i.relay(reqErrF, reqErrCh, i.stderrSink)

	status, runErr = i.reqProcess.Run(process.RunArgs{
		Program: pip,
		Args:    []string{"install", "-r", "requirements.txt"},
		Dir:     i.uploadedDir,
		Stdout:  reqOutCh,
		Stderr:  reqErrCh,
	})
	close(reqOutCh)
	close(reqErrCh)
	<-reqOutDone
	<-reqErrDone

	if phaseErr := phaseResult(status, runErr); phaseErr != nil {
		cleanupErr := i.cleanup()
		ie := &InstallError{Kind: RequirementsInstallError, Phase: phaseErr}
		if cleanupErr != nil {
			ie.CleanupErr = cleanupErr
		}
		return ie
	}

	return nil
}

// relay owns f from this call onward: it copies every line received on in
// to f (newline-terminated, flushed after each line) and, if out is
// non-nil, forwards the same line onward. A failed flush is logged and
// stops the loop without draining the rest of in. It returns a channel
// closed once the loop has ended (in closed and drained, or a flush
// failed) and f has been closed.
func (i *Installer) relay(f *os.File, in <-chan string, out chan<- string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer f.Close()

		w := bufio.NewWriter(f)
		for line := range in {
			if _, err := w.WriteString(line); err == nil {
				w.WriteByte('\n')
			}
			if err := w.Flush(); err != nil {
				i.log.Warn("failed to flush phase output", zap.String("file", f.Name()), zap.Error(err))
				break
			}

			if out != nil {
				out <- line
			}
		}
	}()
	return done
}

// cleanup best-effort removes the environment directory, retrying up to
// cleanupAttempts times with cleanupSpacing between attempts.
func (i *Installer) cleanup() *CleanupError {
	var errs []error
	for attempt := 0; attempt < cleanupAttempts; attempt++ {
		if err := os.RemoveAll(i.envDir); err == nil {
			return nil
		} else {
			errs = append(errs, err)
		}
		if attempt < cleanupAttempts-1 {
			time.Sleep(cleanupSpacing)
		}
	}
	return &CleanupError{Kind: MaxAttemptsExceeded, Errs: errs}
}

// VenvStdout returns the captured venv-phase stdout, for callers that did
// not attach a relay sink. Reads the phase's output file directly, so it
// only sees what has already been flushed to disk.
func (i *Installer) VenvStdout() string { return i.fileContents(filepath.Join(i.uploadedDir, venvOutFile)) }

// VenvStderr returns the captured venv-phase stderr.
func (i *Installer) VenvStderr() string { return i.fileContents(filepath.Join(i.uploadedDir, venvErrFile)) }

// RequirementsStdout returns the captured requirements-phase stdout.
func (i *Installer) RequirementsStdout() string {
	return i.fileContents(filepath.Join(i.uploadedDir, reqOutFile))
}

// RequirementsStderr returns the captured requirements-phase stderr.
func (i *Installer) RequirementsStderr() string {
	return i.fileContents(filepath.Join(i.uploadedDir, reqErrFile))
}

func (i *Installer) fileContents(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
