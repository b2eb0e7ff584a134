package main

import (
	"fmt"
	"os"

	"github.com/apps78/cotune-bridge/cmd"
	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/apps78/cotune-bridge/internal/theme"
)

var version = "0.0.1"
var commit = "none"
var date = "unknown"

func main() {
	container, err := cli.NewContainer(cli.InitOptions{
		Version: version,
		Commit:  commit,
		Date:    date,
		Theme:   theme.NewDefaultTheme(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during initialization: %v\n", err)
		os.Exit(1)
	}

	log := container.Logger
	log.Debugf("%s started", container.Config.Name)

	rootCmd := cmd.NewRootCmd(container)
	rootCmd.AddCommand(
		cmd.NewConfigCmd(container),
		cmd.NewDaemonCmd(container),
		cmd.NewServeCmd(container),
		cmd.NewNodeCmd(container),
		cmd.NewUpdateCmd(container),
		cmd.NewVersionCmd(container),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%s exited with error: %v", container.Config.Name, err)
		_ = log.Sync()
		os.Exit(1)
	}

	log.Debugf("%s exited successfully", container.Config.Name)
	_ = log.Sync()
}
