package process

import (
	"bufio"
	"io"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// gracePeriod is how long Run waits for a terminated-gracefully exit after
// requestStop before escalating to forceStop.
const gracePeriod = 3 * time.Second

// RunArgs describes the child to spawn and where its output should go.
type RunArgs struct {
	// Program is the executable path or name (resolved via exec.LookPath
	// semantics, same as exec.Command).
	Program string
	Args    []string
	// Dir is the child's working directory. Empty means inherit ours.
	Dir string

	// Stdout and Stderr, if non-nil, receive every line written by the
	// child, in the order the child emitted it. No ordering is
	// guaranteed across the two. Each is a bounded channel owned by the
	// caller; Run never closes them.
	Stdout chan<- string
	Stderr chan<- string
}

// Run spawns the child described by args and blocks until it is reaped,
// either because it exited on its own or because the paired Controller's
// Cancel (or Close, or finalizer-driven drop) asked for it to be killed.
//
// Run may be called at most once per Process; subsequent calls return
// RunErrAlreadyTriedToRun.
func (p *Process) Run(args RunArgs) (Status, error) {
	if !p.ranOnce.CompareAndSwap(false, true) {
		return Status{}, &RunError{Kind: RunErrAlreadyTriedToRun}
	}

	cmd := exec.Command(args.Program, args.Args...)
	cmd.Dir = args.Dir
	cmd.Stdin = nil
	setPlatformAttrs(cmd)

	var stdoutPipe, stderrPipe io.ReadCloser
	var err error
	if args.Stdout != nil {
		if stdoutPipe, err = cmd.StdoutPipe(); err != nil {
			p.log.Error("stdout pipe setup failed", zap.Error(err))
			return Status{}, &RunError{Kind: RunErrCouldNotSpawnOsProcess, Err: err}
		}
	}
	if args.Stderr != nil {
		if stderrPipe, err = cmd.StderrPipe(); err != nil {
			p.log.Error("stderr pipe setup failed", zap.Error(err))
			return Status{}, &RunError{Kind: RunErrCouldNotSpawnOsProcess, Err: err}
		}
	}

	if err := cmd.Start(); err != nil {
		p.log.Error("failed to spawn child", zap.Error(err))
		return Status{}, &RunError{Kind: RunErrCouldNotSpawnOsProcess, Err: err}
	}

	p.log.Info("process spawned", zap.Int("pid", cmd.Process.Pid))
	p.state.set(Status{Phase: PhaseRunning})

	// stop is closed once the child has been reaped, unblocking any
	// forwarder still waiting on a full sink.
	stop := make(chan struct{})
	var fwd errgroup.Group
	if stdoutPipe != nil {
		fwd.Go(func() error {
			forwardLines(stdoutPipe, args.Stdout, stop)
			return nil
		})
	}
	if stderrPipe != nil {
		fwd.Go(func() error {
			forwardLines(stderrPipe, args.Stderr, stop)
			return nil
		})
	}

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- cmd.Wait()
	}()

	status, runErr := p.raceCancelAndExit(cmd, waitCh)

	close(stop)
	fwd.Wait() //nolint:errcheck // forwarders never return a non-nil error

	p.state.set(status)
	p.log.Info("process terminated", zap.String("status", status.String()))

	return status, runErr
}

// raceCancelAndExit implements steps 6-9 of the supervised run: wait for
// either the child to reap itself or a cancellation rendezvous to occur,
// whichever happens first, and always close p.cancelResp exactly once
// before returning so a concurrently-blocked Controller.Cancel observes
// either the real response or ProcessTerminated.
//
// p.state is published (via set) strictly before any response reaches the
// Controller, so a successful Cancel always observes the Terminated status
// it unblocked on — the happens-after ordering guarantee in §5.
func (p *Process) raceCancelAndExit(cmd *exec.Cmd, waitCh chan error) (Status, error) {
	defer close(p.cancelResp)

	select {
	case waitErr := <-waitCh:
		status := Status{Phase: PhaseTerminated, Termination: classify(waitErr, false, false)}
		p.state.set(status)
		return status, nil

	case _, ok := <-p.cancelReq:
		if ok {
			// Explicit Controller.Cancel.
			kwErr, waitErr, weKilled := p.killAndWait(cmd, waitCh)
			if kwErr != nil {
				// The signal itself could not be delivered; the child was
				// never reaped, so Status stays Running.
				if !p.state.controllerAlive.Load() {
					return Status{Phase: PhaseRunning}, &RunError{Kind: RunErrControllerDropped}
				}
				p.cancelResp <- kwErr
				return Status{Phase: PhaseRunning}, nil
			}

			status := Status{Phase: PhaseTerminated, Termination: classify(waitErr, weKilled, false)}
			p.state.set(status)
			if !p.state.controllerAlive.Load() {
				// The Controller vanished between sending the request and
				// us trying to answer it.
				return status, &RunError{Kind: RunErrControllerDropped}
			}
			p.cancelResp <- nil
			return status, nil
		}

		// Controller was dropped (Close/finalizer) without ever calling
		// Cancel: kill-and-wait still runs, but there is no recipient for
		// the outcome, so any error bubbles up as this Run's return
		// value instead.
		kwErr, waitErr, weKilled := p.killAndWait(cmd, waitCh)
		if kwErr != nil {
			return Status{Phase: PhaseRunning}, &RunError{Kind: RunErrKillAndWait, KillAndWait: kwErr}
		}
		status := Status{Phase: PhaseTerminated, Termination: classify(waitErr, weKilled, true)}
		p.state.set(status)
		return status, nil
	}
}

// killAndWait performs the kill-and-wait sequence: a non-blocking check for
// a reap that raced in concurrently, then a graceful stop with an
// escalation to a forceful one after gracePeriod. The returned weKilled bit
// is false only when the child had already reaped itself before any signal
// was issued — this is the bit classify needs to tell a self-inflicted exit
// from one this library actually drove (spec §3, §9).
func (p *Process) killAndWait(cmd *exec.Cmd, waitCh chan error) (kwErr *KillAndWaitError, waitErr error, weKilled bool) {
	select {
	case waitErr := <-waitCh:
		return nil, waitErr, false
	default:
	}

	graceful, err := requestStop(cmd)
	if err != nil {
		p.log.Warn("failed to signal process", zap.Error(err))
		return &KillAndWaitError{Kind: CouldNotKillProcess, Err: err}, nil, false
	}

	if !graceful {
		waitErr := <-waitCh
		return nil, waitErr, true
	}

	timer := time.NewTimer(gracePeriod)
	defer timer.Stop()

	select {
	case waitErr := <-waitCh:
		return nil, waitErr, true
	case <-timer.C:
		p.log.Warn("grace period expired, escalating")
		if err := forceStop(cmd); err != nil {
			p.log.Error("failed to force-stop process", zap.Error(err))
			return &KillAndWaitError{Kind: CouldNotKillProcess, Err: err}, nil, false
		}
		waitErr := <-waitCh
		return nil, waitErr, true
	}
}

// forwardLines scans r line by line and forwards each line to sink, in
// order, until end of stream or stop is closed (meaning the Process has
// finished and further blocking on a full sink would be pointless).
func forwardLines(r io.Reader, sink chan<- string, stop <-chan struct{}) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		if sink == nil {
			continue
		}
		select {
		case sink <- sc.Text():
		case <-stop:
			return
		}
	}
}
