package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/apps78/cotune-bridge/internal/daemon"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/apps78/cotune-bridge/internal/webserver"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds the teardown of the surfaces and the node
const shutdownTimeout = 30 * time.Second

// NewServeCmd runs the bridge in the foreground. daemon start re-executes the binary with it.
func NewServeCmd(container *cli.Container) *cobra.Command {
	return &cobra.Command{
		Use:    "serve",
		Short:  "Serve the bridge socket and HTTP API in the foreground",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, container)
		},
	}
}

// Serve starts the daemon socket and, when enabled, the HTTP API on top of one router.
// It returns after ctx is done or a client asked the daemon to shut down.
func Serve(ctx context.Context, container *cli.Container) error {
	log := container.Logger.WithField("component", "serve")
	settings := container.Settings
	_, r := container.Node()

	// a start with the configured readiness timeout must fit in one command
	startBudget := settings.Readiness.Timeout + router.StartSlack

	d := daemon.NewDaemon(daemon.Config{
		SocketPath:         container.SocketPath(),
		CommandExecTimeout: max(daemon.DefaultCommandExecTimeout, startBudget),
		Logger:             container.Logger.WithField("component", "daemon"),
	}, r)
	if err := d.Start(); err != nil {
		return errors.Join(fmt.Errorf("failed to start daemon: %w", err), closeContainer(container))
	}

	var ws *webserver.WebServer
	if settings.Server.HTTPEnabled {
		ws = webserver.NewWebServer(webserver.Config{
			Addr:           settings.Server.HTTPAddr,
			RequestTimeout: max(webserver.DefaultRequestTimeout, startBudget),
			Logger:         container.Logger.WithField("component", "webserver"),
		}, r)
		if err := ws.Start(); err != nil {
			d.Stop()
			return errors.Join(fmt.Errorf("failed to start webserver: %w", err), closeContainer(container))
		}
	}

	log.WithFields(map[string]interface{}{
		"socket": container.SocketPath(),
		"http":   settings.Server.HTTPEnabled,
	}).Info("Bridge is serving")

	select {
	case <-ctx.Done():
		log.Info("Received stop signal")
	case <-d.Done():
		log.Info("Daemon shut down on request")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if ws != nil {
		if err := ws.Stop(shutdownCtx); err != nil {
			log.WithField(logger.ErrorKey, err.Error()).Error("Failed to stop webserver")
			errs = append(errs, err)
		}
	}
	d.Stop()

	if err := container.Close(shutdownCtx); err != nil {
		log.WithField(logger.ErrorKey, err.Error()).Error("Failed to close the node bridge")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func closeContainer(container *cli.Container) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return container.Close(ctx)
}
