package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/readiness"
	"github.com/spf13/cobra"
)

// NewStartCmd creates a command to run the daemon
func NewStartCmd(opts CmdOptions) *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bridge daemon",
		Long:  `Starts the bridge daemon that owns the node and listens for commands on a Unix socket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.Logger.WithField("socket", opts.SocketPath)
			t := opts.ThemeMgr.GetCurrentTheme()

			if foreground {
				if opts.Serve == nil {
					return errors.New("foreground mode is not available")
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()
				return opts.Serve(ctx)
			}

			if IsDaemonRunning(cmd.Context(), opts.SocketPath, log) {
				t.Info().Println("Daemon is already running")
				return nil
			}

			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to get executable path: %w", err)
			}

			daemonCmd := exec.Command(execPath, opts.ServeArgs...)
			daemonCmd.Stdin = nil
			daemonCmd.Stdout = nil
			daemonCmd.Stderr = nil
			setPlatformProcAttr(daemonCmd)

			if err := daemonCmd.Start(); err != nil {
				log.WithField(logger.ErrorKey, err.Error()).Error("Failed to start daemon process in background")
				t.Error().Printf("Failed to start daemon process: %v\n", err)
				return fmt.Errorf("failed to start daemon process: %w", err)
			}
			pid := daemonCmd.Process.Pid
			_ = daemonCmd.Process.Release()

			if err := waitForDaemon(cmd.Context(), opts.SocketPath, opts.Wait); err != nil {
				log.WithFields(map[string]interface{}{
					logger.PIDKey:   pid,
					logger.ErrorKey: err.Error(),
				}).Error("Daemon did not come up")
				t.Error().Printf("Daemon (PID %d) did not answer on %s: %v\n", pid, opts.SocketPath, err)
				return err
			}

			log.WithField(logger.PIDKey, pid).Info("Daemon started in background")
			t.Success().Printf("Daemon running in background (PID: %d). Listening on %s\n", pid, opts.SocketPath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run daemon in foreground (don't detach)")

	return cmd
}

// waitForDaemon polls the socket with ping until it answers or wait elapses
func waitForDaemon(ctx context.Context, socketPath string, wait time.Duration) error {
	client := NewClient(socketPath)
	poller := &readiness.Poller{
		Interval: 200 * time.Millisecond,
		Timeout:  wait,
	}

	_, err := poller.Poll(ctx, func(ctx context.Context) (control.NodeStatus, error) {
		running, detail := client.IsRunning(ctx)
		if !running {
			return control.NodeStatus{}, errors.New(detail)
		}
		return control.NodeStatus{Running: true, ObservedAt: time.Now(), Source: control.SourceLiveness}, nil
	})
	return err
}
