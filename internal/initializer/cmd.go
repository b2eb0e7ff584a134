package initializer

import (
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/theme"
	"github.com/spf13/cobra"
)

// NewCmd creates the interactive "config init" command
func NewCmd(log logger.Logger, themeManager *theme.Manager, initializer *Initializer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Configure cotune-bridge with a guided setup",
		Long:  `Start an interactive wizard that writes the bridge configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info("Starting configuration wizard")
			defer log.Sync()

			if err := initializer.Run(); err != nil {
				log.WithField(logger.ErrorKey, err).Error("configuration wizard failed")
				themeManager.GetCurrentTheme().Error().Printf("Configuration failed: %v\n", err)
				return err
			}

			themeManager.GetCurrentTheme().Info().Println("Run 'cotune-bridge daemon start' to start the bridge.")
			return nil
		},
	}

	return cmd
}
