package cmd

import (
	"context"

	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/apps78/cotune-bridge/internal/daemon"
	"github.com/spf13/cobra"
)

// NewDaemonCmd wires the daemon command group to the container
func NewDaemonCmd(container *cli.Container) *cobra.Command {
	opts := daemon.CmdOptions{
		SocketPath: container.SocketPath(),
		Logger:     container.Logger.WithField("command", "daemon"),
		ThemeMgr:   container.ThemeMgr,
		Serve: func(ctx context.Context) error {
			return Serve(ctx, container)
		},
		ServeArgs: []string{"serve"},
	}
	if container.Settings.Server.HTTPEnabled {
		opts.HTTPAddr = container.Settings.Server.HTTPAddr
	}
	return daemon.NewCmd(opts)
}
