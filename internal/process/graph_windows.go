//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
)

func defaultShell() []string {
	comspec := os.Getenv("COMSPEC")
	if comspec == "" {
		comspec = "cmd.exe"
	}
	return []string{comspec, "/C"}
}

func configureCmdSysProcAttr(_ *exec.Cmd) {}

// killStage terminates the stage's direct child only.
func killStage(cmd *exec.Cmd) error {
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
