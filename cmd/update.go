package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/apps78/cotune-bridge/internal/cli"
	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/theme"
	"github.com/rhysd/go-github-selfupdate/selfupdate"
	"github.com/spf13/cobra"
)

// NewUpdateCmd creates a new update command
func NewUpdateCmd(c *cli.Container) *cobra.Command {
	var yes bool

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Check for updates and update the CLI",
		Long:  "Check for updates and if a new version is available, download and install it",
		RunE: func(cmd *cobra.Command, args []string) error {
			confirm := func(msg string) bool {
				if yes {
					return true
				}
				ok := false
				if err := survey.AskOne(&survey.Confirm{Message: msg}, &ok); err != nil {
					return false
				}
				return ok
			}
			return runUpdate(c.ThemeMgr.GetCurrentTheme(), c.Config.Repository, c.Config.Version.Version, confirm)
		},
	}

	updateCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Install without asking")
	return updateCmd
}

func runUpdate(theme theme.Theme, repository config.Repository, currentAppVersion string, confirm func(string) bool) error {
	theme.Info().Printf("Checking for updates for %s... [Current version: %s]\n", repository.Slug(), currentAppVersion)

	latest, found, err := selfupdate.DetectLatest(repository.Slug())
	if err != nil {
		return fmt.Errorf("error detecting version: %w", err)
	}

	if !found || latest == nil {
		theme.Warning().Println("No updates found")
		return nil
	}

	currentVersionNoV := strings.TrimPrefix(currentAppVersion, "v")
	latestVersionNoV := strings.TrimPrefix(latest.Version.String(), "v")
	if latestVersionNoV == currentVersionNoV {
		theme.Success().Printf("Current version (%s) is the latest\n", currentAppVersion)
		return nil
	}

	theme.Info().Printf("New version available: %s (current: %s)\n", latest.Version, currentAppVersion)
	fmt.Printf("Release notes:\n%s\n", latest.ReleaseNotes)

	if !confirm("Do you want to update?") {
		theme.Subtle().Println("Update cancelled")
		return nil
	}

	theme.Info().Println("Downloading and installing update...")
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	if err := selfupdate.UpdateTo(latest.AssetURL, exe); err != nil {
		return fmt.Errorf("error updating binary: %w", err)
	}

	theme.Success().Printf("Successfully updated to version %s\n", latest.Version)
	return nil
}
