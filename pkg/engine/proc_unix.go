//go:build unix

package engine

import (
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
)

// setProcessGroup puts the engine in its own process group so signals reach
// any helpers it forks.
func setProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup delivers SIGTERM, or SIGKILL when kill is set, to the whole
// process group. A group that is already gone is not an error.
func signalGroup(cmd *exec.Cmd, kill bool) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	sig := syscall.SIGTERM
	if kill {
		sig = syscall.SIGKILL
	}

	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return err
	}

	if err := syscall.Kill(-pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}

	return nil
}
