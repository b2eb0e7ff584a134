//go:build !windows
// +build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// setProcAttr puts the daemon in its own process group so signals reach its children
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// signalGroup sends SIGTERM, or SIGKILL when force is set, to the process group of p
func signalGroup(p *os.Process, force bool) error {
	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}

	err := syscall.Kill(-p.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	if err != nil {
		// fall back to the leader alone
		if serr := p.Signal(sig); serr != nil && !errors.Is(serr, os.ErrProcessDone) {
			return errors.Join(err, serr)
		}
	}
	return nil
}
