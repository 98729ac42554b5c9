package installer

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// fakeVenvTree sets up a valid project layout (requirements.txt naming
// locust, and locust/locustfile.py) and returns it together with a path for
// an environment directory that does not exist yet. The python3/pip3
// stand-ins are shell scripts written by the individual tests;
// pipExitCode and pipSleep are not used.
func fakeVenvTree(t *testing.T, pipExitCode int, pipSleep time.Duration) (uploadedDir, envDir string) {
	t.Helper()
	uploadedDir = t.TempDir()
	envDir = filepath.Join(t.TempDir(), "env")

	if err := os.WriteFile(filepath.Join(uploadedDir, "requirements.txt"), []byte("locust==2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(uploadedDir, "locust"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(uploadedDir, "locust", "locustfile.py"), []byte("# locustfile\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return uploadedDir, envDir
}

func TestCheck_ValidLayout(t *testing.T) {
	uploadedDir, envDir := fakeVenvTree(t, 0, 0)
	inst, ctl := New("id1", uploadedDir, t.TempDir(), envDir, nil, nil, zaptest.NewLogger(t))
	defer ctl.Close()

	if err := inst.Check(); err != nil {
		t.Fatalf("unexpected check error: %v", err)
	}
}

func TestCheck_MissingRequirements(t *testing.T) {
	uploadedDir, envDir := fakeVenvTree(t, 0, 0)
	if err := os.Remove(filepath.Join(uploadedDir, "requirements.txt")); err != nil {
		t.Fatal(err)
	}
	inst, ctl := New("id2", uploadedDir, t.TempDir(), envDir, nil, nil, zaptest.NewLogger(t))
	defer ctl.Close()

	err := inst.Check()
	var ce *CheckError
	if err == nil {
		t.Fatal("expected an error")
	}
	if ce, _ = err.(*CheckError); ce == nil || ce.Kind != RequirementsTxtDoesNotExist {
		t.Fatalf("expected RequirementsTxtDoesNotExist, got %v", err)
	}
}

func TestCheck_LocustNotInRequirements(t *testing.T) {
	uploadedDir, envDir := fakeVenvTree(t, 0, 0)
	if err := os.WriteFile(filepath.Join(uploadedDir, "requirements.txt"), []byte("requests==2.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	inst, ctl := New("id3", uploadedDir, t.TempDir(), envDir, nil, nil, zaptest.NewLogger(t))
	defer ctl.Close()

	err := inst.Check()
	ce, ok := err.(*CheckError)
	if !ok || ce.Kind != LocustIsNotInRequirementsTxt {
		t.Fatalf("expected LocustIsNotInRequirementsTxt, got %v", err)
	}
}

func TestCheck_LocustDirHasNoPythonFiles(t *testing.T) {
	uploadedDir, envDir := fakeVenvTree(t, 0, 0)
	if err := os.Remove(filepath.Join(uploadedDir, "locust", "locustfile.py")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(uploadedDir, "locust", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	inst, ctl := New("id4", uploadedDir, t.TempDir(), envDir, nil, nil, zaptest.NewLogger(t))
	defer ctl.Close()

	err := inst.Check()
	ce, ok := err.(*CheckError)
	if !ok || ce.Kind != LocustDirHasNoPythonFiles {
		t.Fatalf("expected LocustDirHasNoPythonFiles, got %v", err)
	}
}

func TestInstall_HappyPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/sh")
	}
	uploadedDir, envDir := fakeVenvTree(t, 0, 0)

	// Stand in for python3/pip3: a shell script directory prepended to PATH
	// so "python3 -m venv <dir>" and "<envDir>/bin/pip3 install ..." both
	// succeed without needing a real interpreter.
	binDir := t.TempDir()
	writeScript(t, filepath.Join(binDir, "python3"), "#!/bin/sh\nmkdir -p \"$3/bin\"\ncat > \"$3/bin/pip3\" <<'EOF'\n#!/bin/sh\necho installing \"$@\"\nEOF\nchmod +x \"$3/bin/pip3\"\necho venv created\n")
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	stdout := make(chan string, 100)
	stderr := make(chan string, 100)
	inst, ctl := New("id5", uploadedDir, t.TempDir(), envDir, stdout, stderr, zaptest.NewLogger(t))
	defer ctl.Close()

	done := make(chan error, 1)
	go func() { done <- inst.CheckAndInstall() }()

	var lines []string
	installDone := false
	for !installDone {
		select {
		case l := <-stdout:
			lines = append(lines, l)
		case err := <-done:
			if err != nil {
				t.Fatalf("unexpected install error: %v", err)
			}
			installDone = true
		case <-time.After(10 * time.Second):
			t.Fatal("install did not complete in time")
		}
	}

	// Drain any lines buffered after CheckAndInstall returned.
	for more := true; more; {
		select {
		case l := <-stdout:
			lines = append(lines, l)
		default:
			more = false
		}
	}

	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "venv created") {
		t.Fatalf("expected venv phase output, got %v", lines)
	}

	if got := inst.VenvStdout(); !strings.Contains(got, "venv created") {
		t.Fatalf("VenvStdout missing phase output: %q", got)
	}
}

func TestInstall_VenvFailureTriggersCleanup(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on /bin/sh")
	}
	uploadedDir, envDir := fakeVenvTree(t, 0, 0)

	binDir := t.TempDir()
	writeScript(t, filepath.Join(binDir, "python3"), "#!/bin/sh\necho 'boom' 1>&2\nexit 1\n")
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	inst, ctl := New("id6", uploadedDir, t.TempDir(), envDir, nil, nil, zaptest.NewLogger(t))
	defer ctl.Close()

	err := inst.CheckAndInstall()
	var ie *InstallError
	if err == nil {
		t.Fatal("expected an error")
	}
	if ie, _ = err.(*InstallError); ie == nil || ie.Kind != VenvInstallError {
		t.Fatalf("expected VenvInstallError, got %v", err)
	}
	if !strings.Contains(inst.VenvStderr(), "boom") {
		t.Fatalf("expected captured stderr to contain 'boom', got %q", inst.VenvStderr())
	}
	if _, statErr := os.Stat(envDir); !os.IsNotExist(statErr) {
		t.Fatalf("expected envDir to be removed by clean-up, stat error: %v", statErr)
	}
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}
}
