package daemon

import (
	"context"
	"time"

	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/theme"
	"github.com/spf13/cobra"
)

// CmdOptions carries what the daemon subcommands need from the composition root
type CmdOptions struct {
	SocketPath string
	// HTTPAddr is empty when the HTTP surface is disabled
	HTTPAddr string
	Logger   logger.Logger
	ThemeMgr *theme.Manager
	// Serve runs the bridge in the foreground until ctx is done
	Serve func(ctx context.Context) error
	// ServeArgs re-executes this binary as a background server
	ServeArgs []string
	// Wait bounds how long start and stop wait for the daemon to come up or go away
	Wait time.Duration
}

func (o CmdOptions) withDefaults() CmdOptions {
	o.Logger = logger.OrDiscard(o.Logger)
	if o.Wait <= 0 {
		o.Wait = 10 * time.Second
	}
	if len(o.ServeArgs) == 0 {
		o.ServeArgs = []string{"serve"}
	}
	return o
}

// NewCmd creates the daemon command group
func NewCmd(opts CmdOptions) *cobra.Command {
	opts = opts.withDefaults()

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background bridge daemon",
		Long:  `Start, stop and inspect the background process that owns the node and serves the local socket and HTTP API.`,
	}

	cmd.AddCommand(NewStartCmd(opts))
	cmd.AddCommand(NewStopCmd(opts))
	cmd.AddCommand(NewStatusCmd(opts))
	return cmd
}
