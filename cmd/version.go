package cmd

import (
	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/spf13/cobra"
)

// NewVersionCmd prints the build information
func NewVersionCmd(container *cli.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(container.Config.Name, container.Config.Version.VersionText())
		},
	}
}
