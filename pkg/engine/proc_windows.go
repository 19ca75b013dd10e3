//go:build windows

package engine

import (
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

func setProcessGroup(cmd *exec.Cmd) {}

// signalGroup has no graceful variant on Windows; both steps of the ladder
// kill the process outright.
func signalGroup(cmd *exec.Cmd, kill bool) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}

	return nil
}
