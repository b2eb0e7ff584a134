//go:build windows
// +build windows

package daemon

import (
	"os/exec"
	"syscall"

	"github.com/apps78/cotune-bridge/internal/logger"
)

// setPlatformProcAttr sets platform-specific process attributes for Windows
func setPlatformProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{}
}

// setSocketUmask is a no-op on Windows as umask is not supported
func setSocketUmask(log logger.Logger) func() {
	log.Debug("Umask operations not applicable on Windows")
	return func() {}
}
