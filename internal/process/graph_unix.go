//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func defaultShell() []string {
	return []string{"/bin/sh", "-c"}
}

func configureCmdSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killStage sends SIGKILL to the stage's process group.
func killStage(cmd *exec.Cmd) error {
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	// Fall back to the leader alone, e.g. when the group is gone but the
	// process has not been reaped yet.
	if killErr := cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return err
	}
	return nil
}
