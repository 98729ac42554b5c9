//go:build !windows

package process

import (
	"os/exec"
	"syscall"
)

// setPlatformAttrs isolates the child into its own process group so a
// single signal to -pid reaches every descendant it spawns, and arranges
// for the child to be killed if this process dies first — the same two
// SysProcAttr fields the teacher sets for its ffmpeg children.
func setPlatformAttrs(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, sig)
}

// requestStop sends SIGTERM to the process group and reports that a grace
// window should be awaited before escalating.
func requestStop(cmd *exec.Cmd) (graceful bool, err error) {
	return true, signalGroup(cmd, syscall.SIGTERM)
}

// forceStop sends SIGKILL to the process group.
func forceStop(cmd *exec.Cmd) error {
	return signalGroup(cmd, syscall.SIGKILL)
}
