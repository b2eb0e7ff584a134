package cmd

import (
	"fmt"
	"os"

	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/apps78/cotune-bridge/internal/initializer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd creates a config command
func NewConfigCmd(container *cli.Container) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage cotune-bridge configuration",
		Long:  `Commands to create and view the bridge configuration.`,
	}

	wizard := initializer.NewInitializer(container.Logger, container.ThemeMgr, container.ConfigManager)
	cfgCmd.AddCommand(
		initializer.NewCmd(container.Logger, container.ThemeMgr, wizard),
		NewConfigPreviewCmd(container),
	)
	return cfgCmd
}

// NewConfigPreviewCmd creates a command to preview the config file
func NewConfigPreviewCmd(container *cli.Container) *cobra.Command {
	var effective bool

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Preview the current configuration file",
		Long:  `Display the content of the configuration file, or the effective settings with --effective.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := container.ConfigManager.Path()

			var data []byte
			var err error
			if effective {
				data, err = yaml.Marshal(container.Settings)
			} else {
				data, err = os.ReadFile(configPath)
			}
			if err != nil {
				color.Red("Error reading config: %v", err)
				return err
			}

			color.New(color.FgHiCyan, color.Bold).Println("\nConfiguration File")
			color.New(color.FgHiWhite).Printf("Located at: %s\n\n", configPath)

			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().BoolVar(&effective, "effective", false, "Show settings after defaults and path resolution")
	return cmd
}
