package cmd

import (
	"fmt"

	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/spf13/cobra"
)

// NewRootCmd creates and returns the root command
func NewRootCmd(container *cli.Container) *cobra.Command {
	rootCmd := &cobra.Command{
		Version: container.Config.Version.VersionText(),
		Use:     "cotune-bridge",
		Short:   "Run and control a local Cotune node",
		Long: `cotune-bridge supervises the Cotune node binary and exposes its lifecycle
to front ends over a local socket and an optional HTTP API.`,
		SilenceUsage: true,
		RunE: func(cm *cobra.Command, args []string) error {
			themeManager := container.ThemeMgr
			themeManager.DisplayBanner(fmt.Sprintf("Welcome to %s", container.Config.Name), 40, "Cotune node bridge")
			fmt.Println("")

			if !container.ConfigManager.ConfigExists() {
				themeManager.GetCurrentTheme().Warning().Println("Please run 'cotune-bridge config init' to configure the node.")
				return nil
			}
			themeManager.GetCurrentTheme().Info().Println("Run 'cotune-bridge daemon start' to start the bridge, then 'cotune-bridge node start'.")
			return nil
		},
	}

	return rootCmd
}
