package process

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func drain(t *testing.T, ch <-chan string) []string {
	t.Helper()
	var lines []string
	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return lines
			}
			lines = append(lines, line)
		case <-time.After(50 * time.Millisecond):
			return lines
		}
	}
}

func TestRun_NonExistentProgram(t *testing.T) {
	p, _ := New("t1", "test", zaptest.NewLogger(t))

	_, err := p.Run(RunArgs{Program: "non_existing_process_xyz"})
	if err == nil {
		t.Fatal("expected an error")
	}

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected *RunError, got %T", err)
	}
	if runErr.Kind != RunErrCouldNotSpawnOsProcess {
		t.Fatalf("expected RunErrCouldNotSpawnOsProcess, got %v", runErr.Kind)
	}
	if !errors.Is(runErr.Err, exec.ErrNotFound) {
		t.Fatalf("expected a NotFound-classified error, got %v", runErr.Err)
	}
}

func TestRun_KillBeforeTermination(t *testing.T) {
	p, ctl := New("t2", "test", zaptest.NewLogger(t))
	stdout := make(chan string, 100)

	resultCh := make(chan Status, 1)
	errCh := make(chan error, 1)
	go func() {
		status, err := p.Run(RunArgs{
			Program: "sh",
			Args:    []string{"-c", "echo 1; sleep 1; echo 2; sleep 1; echo 3"},
			Stdout:  stdout,
		})
		resultCh <- status
		errCh <- err
	}()

	time.Sleep(2 * time.Second)

	kwErr, cancelErr := ctl.Cancel()
	if cancelErr != nil {
		t.Fatalf("unexpected cancel error: %v", cancelErr)
	}
	if kwErr != nil {
		t.Fatalf("unexpected kill/wait error: %v", kwErr)
	}

	status := <-resultCh
	if err := <-errCh; err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if status.Phase != PhaseTerminated || status.Termination.Kind != TerminationKilled ||
		status.Termination.Killed != KilledByCancellationSignal {
		t.Fatalf("expected Terminated(Killed(KilledByCancellationSignal)), got %v", status)
	}

	lines := drain(t, stdout)
	if len(lines) < 2 || lines[0] != "1" || lines[1] != "2" {
		t.Fatalf("expected lines to start with [1 2], got %v", lines)
	}
}

func TestRun_TerminationBeforeCancel(t *testing.T) {
	p, ctl := New("t3", "test", zaptest.NewLogger(t))

	resultCh := make(chan Status, 1)
	go func() {
		status, _ := p.Run(RunArgs{
			Program: "sh",
			Args:    []string{"-c", "echo 1; sleep 1; echo 2; sleep 1; echo 3"},
		})
		resultCh <- status
	}()

	time.Sleep(5 * time.Second)

	_, cancelErr := ctl.Cancel()
	var ce *CancelError
	if !errors.As(cancelErr, &ce) || ce.Kind != CancelErrProcessTerminated {
		t.Fatalf("expected CancelErrProcessTerminated, got %v", cancelErr)
	}

	status := <-resultCh
	if status.Phase != PhaseTerminated || status.Termination.Kind != TerminationSuccess {
		t.Fatalf("expected Terminated(Success), got %v", status)
	}
}

func TestRun_ExitCodePropagation(t *testing.T) {
	p, _ := New("t4", "test", zaptest.NewLogger(t))
	stderr := make(chan string, 100)

	status, err := p.Run(RunArgs{
		Program: "sh",
		Args:    []string{"-c", "echo 'Error message' 1>&2; exit 1"},
		Stderr:  stderr,
	})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	if status.Phase != PhaseTerminated || status.Termination.Kind != TerminationError ||
		status.Termination.ErrorKind != ErrorKindCode || status.Termination.ExitCode != 1 {
		t.Fatalf("expected Terminated(Error(code=1)), got %v", status)
	}

	lines := drain(t, stderr)
	if len(lines) == 0 || !strings.Contains(lines[0], "Error message") {
		t.Fatalf("expected stderr to contain 'Error message', got %v", lines)
	}
}

func TestRun_DoubleCancel(t *testing.T) {
	p, ctl := New("t5", "test", zaptest.NewLogger(t))

	go p.Run(RunArgs{Program: "sh", Args: []string{"-c", "sleep 5"}})
	time.Sleep(200 * time.Millisecond)

	if _, err := ctl.Cancel(); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}

	_, err := ctl.Cancel()
	var ce *CancelError
	if !errors.As(err, &ce) || ce.Kind != CancelErrProcessTerminated {
		t.Fatalf("expected CancelErrProcessTerminated on second cancel, got %v", err)
	}
}

func TestCancel_OnCreatedProcess(t *testing.T) {
	_, ctl := New("t6", "test", zaptest.NewLogger(t))

	_, err := ctl.Cancel()
	var ce *CancelError
	if !errors.As(err, &ce) || ce.Kind != CancelErrProcessNotRunning {
		t.Fatalf("expected CancelErrProcessNotRunning, got %v", err)
	}
}

func TestControllerDroppedWithoutCancel(t *testing.T) {
	p, ctl := New("t7", "test", zaptest.NewLogger(t))

	resultCh := make(chan Status, 1)
	go func() {
		status, _ := p.Run(RunArgs{Program: "sh", Args: []string{"-c", "sleep 5"}})
		resultCh <- status
	}()

	time.Sleep(200 * time.Millisecond)
	ctl.Close()

	select {
	case status := <-resultCh:
		if status.Phase != PhaseTerminated || status.Termination.Kind != TerminationKilled ||
			status.Termination.Killed != KilledByDroppingController {
			t.Fatalf("expected Terminated(Killed(KilledByDroppingController)), got %v", status)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("process was not reaped after Controller.Close")
	}
}
