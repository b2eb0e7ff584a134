//go:build !windows
// +build !windows

package daemon

import (
	"os/exec"
	"syscall"

	"github.com/apps78/cotune-bridge/internal/logger"
)

// setPlatformProcAttr detaches the background daemon into its own process group
func setPlatformProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

// setSocketUmask sets the umask for socket creation and returns a function to restore it
func setSocketUmask(log logger.Logger) func() {
	oldMask := syscall.Umask(0o117)
	log.Debugf("Set umask %04o (was %04o)", 0o117, oldMask)

	return func() {
		syscall.Umask(oldMask)
		log.Debugf("Restored umask %04o", oldMask)
	}
}
