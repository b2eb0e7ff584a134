package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/spf13/cobra"
)

// NewStopCmd creates a command to stop the running daemon
func NewStopCmd(opts CmdOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running bridge daemon",
		Long:  `Sends a shutdown command to the running bridge daemon and waits for it to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := opts.Logger.WithField("socket", opts.SocketPath)
			t := opts.ThemeMgr.GetCurrentTheme()

			if !IsDaemonRunning(cmd.Context(), opts.SocketPath, log) {
				t.Info().Println("Daemon is not running")
				return nil
			}

			if err := NewClient(opts.SocketPath).Shutdown(cmd.Context()); err != nil {
				log.WithField(logger.ErrorKey, err.Error()).Error("Failed to send shutdown command")
				t.Error().Printf("Failed to stop daemon: %v\n", err)
				return err
			}

			if err := waitForSocketGone(cmd.Context(), opts.SocketPath, opts.Wait); err != nil {
				t.Warning().Printf("Shutdown requested, but %v\n", err)
				return err
			}

			log.Info("Daemon stopped")
			t.Success().Println("Daemon stopped successfully")
			return nil
		},
	}
}

func waitForSocketGone(ctx context.Context, socketPath string, wait time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if _, err := os.Stat(socketPath); errors.Is(err, os.ErrNotExist) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("socket %s still present after %s", socketPath, wait)
		case <-ticker.C:
		}
	}
}
