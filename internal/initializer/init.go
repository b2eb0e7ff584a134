package initializer

import (
	"fmt"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/theme"
)

// Prompter asks a single survey question. survey.AskOne satisfies it.
type Prompter func(p survey.Prompt, response interface{}, opts ...survey.AskOpt) error

// Initializer handles the interactive setup process
type Initializer struct {
	Config        config.Config
	IsUpdateMode  bool
	configManager ConfigManager
	log           logger.Logger
	cliTheme      *theme.Manager
	ask           Prompter
}

// NewInitializer creates a new initializer with default dependencies
func NewInitializer(log logger.Logger, themeMgr *theme.Manager, configManager ConfigManager) *Initializer {
	return &Initializer{
		log:           logger.OrDiscard(log),
		configManager: configManager,
		cliTheme:      themeMgr,
		ask:           survey.AskOne,
	}
}

// WithPrompter replaces the interactive prompt function (useful for testing)
func (i *Initializer) WithPrompter(p Prompter) *Initializer {
	i.ask = p
	return i
}

// Run starts the interactive configuration process
func (i *Initializer) Run() error {
	i.log.Debug("Starting configuration process")

	var err error
	i.IsUpdateMode = i.configManager.ConfigExists()

	if i.IsUpdateMode {
		i.Config, err = i.configManager.LoadConfig()
		if err != nil {
			i.log.WithField(logger.ErrorKey, err).Error("error loading configuration")
			return fmt.Errorf("error loading configuration: %w", err)
		}
		i.cliTheme.GetCurrentTheme().Primary().Println("Configuration update")
		i.cliTheme.GetCurrentTheme().Warning().Println("Press Enter to keep current values, or provide new ones.")
	} else {
		i.Config = config.Config{}.Default()
		i.cliTheme.GetCurrentTheme().Primary().Println("Initial configuration")
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"node", i.ConfigureNode},
		{"readiness", i.ConfigureReadiness},
		{"server", i.ConfigureServer},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			i.log.WithFields(map[string]interface{}{
				logger.ErrorKey: err,
				"step":          step.name,
			}).Error("configuration step failed")
			return fmt.Errorf("error configuring %s: %w", step.name, err)
		}
	}

	if err := i.Config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := i.configManager.SaveConfig(i.Config); err != nil {
		i.log.WithField(logger.ErrorKey, err).Error("error saving configuration")
		return fmt.Errorf("error saving configuration: %w", err)
	}

	i.log.Debug("Configuration process complete")
	i.cliTheme.GetCurrentTheme().Success().Printf("Configuration saved to %s\n", i.configManager.Path())
	return nil
}

// ConfigureNode asks where the daemon binary lives and how it is addressed
func (i *Initializer) ConfigureNode() error {
	node := &i.Config.Node

	if err := i.ask(&survey.Input{
		Message: "Daemon binary directory (empty = next to cotune-bridge):",
		Default: node.BinaryDir,
	}, &node.BinaryDir); err != nil {
		return err
	}

	if err := i.ask(&survey.Input{
		Message: "Control channel address (host:port, /path.sock or http://host:port):",
		Default: node.ProtoAddr,
	}, &node.ProtoAddr, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	if err := i.ask(&survey.Input{
		Message: "Peer listen multiaddress:",
		Default: node.ListenAddr,
	}, &node.ListenAddr, survey.WithValidator(survey.Required)); err != nil {
		return err
	}

	var relays string
	if err := i.ask(&survey.Input{
		Message: "Extra relay/bootstrap multiaddresses (comma separated, optional):",
		Default: strings.Join(node.Relays, ","),
	}, &relays); err != nil {
		return err
	}
	node.Relays = splitList(relays)

	return i.ask(&survey.Confirm{
		Message: "Enable the relay service on this node?",
		Default: node.EnableRelay,
	}, &node.EnableRelay)
}

// ConfigureReadiness asks how long start waits for the daemon to report ready
func (i *Initializer) ConfigureReadiness() error {
	timeout := i.Config.Readiness.Timeout.String()
	if err := i.ask(&survey.Input{
		Message: "Readiness timeout:",
		Default: timeout,
	}, &timeout, survey.WithValidator(durationValidator)); err != nil {
		return err
	}
	d, _ := time.ParseDuration(timeout)
	i.Config.Readiness.Timeout = d

	return i.ask(&survey.Confirm{
		Message: "Fail start when the daemon never reports ready (strict mode)?",
		Default: i.Config.Readiness.Strict,
	}, &i.Config.Readiness.Strict)
}

// ConfigureServer asks about the host-facing HTTP API
func (i *Initializer) ConfigureServer() error {
	if err := i.ask(&survey.Confirm{
		Message: "Expose the loopback HTTP API?",
		Default: i.Config.Server.HTTPEnabled,
	}, &i.Config.Server.HTTPEnabled); err != nil {
		return err
	}
	if !i.Config.Server.HTTPEnabled {
		return nil
	}
	return i.ask(&survey.Input{
		Message: "HTTP API address:",
		Default: i.Config.Server.HTTPAddr,
	}, &i.Config.Server.HTTPAddr, survey.WithValidator(survey.Required))
}

func durationValidator(ans interface{}) error {
	s, _ := ans.(string)
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("not a duration: %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	return nil
}

func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
