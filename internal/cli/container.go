package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apps78/cotune-bridge/internal/bridge"
	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/filesystem"
	"github.com/apps78/cotune-bridge/internal/initializer"
	"github.com/apps78/cotune-bridge/internal/keepalive"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/apps78/cotune-bridge/internal/supervisor"
	"github.com/apps78/cotune-bridge/internal/theme"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.AppConfig
	Settings      config.Config
	Filesystem    *filesystem.Filesystem
	Paths         map[filesystem.PathType]string
	Logger        logger.Logger
	ThemeMgr      *theme.Manager
	ConfigManager initializer.ConfigManager

	nodeOnce sync.Once
	bridge   *bridge.Bridge
	router   *router.Router
}

// InitOptions contains options for initialization
type InitOptions struct {
	Version string
	Commit  string
	Date    string
	// LogLevel overrides the level from the config file when set
	LogLevel logger.LogLevel
	Theme    theme.Theme
	// BaseDir replaces the home directory as the parent of the app directory
	BaseDir string
	// ConfigFile replaces the default config file location
	ConfigFile string
}

// NewContainer creates and initializes all application dependencies
func NewContainer(opts InitOptions) (*Container, error) {
	container := &Container{}
	var err error

	if opts.Version == "" {
		return nil, fmt.Errorf("version is required")
	}

	if opts.Commit == "" {
		return nil, fmt.Errorf("commit is required")
	}

	if opts.Date == "" {
		return nil, fmt.Errorf("date is required")
	}

	if opts.Theme == nil {
		return nil, fmt.Errorf("theme is required")
	}

	container.Config = config.NewDefaultConfig(config.WithVersion(config.Version{
		Version: opts.Version,
		Commit:  opts.Commit,
		Date:    opts.Date,
	}))

	container.ThemeMgr = theme.NewManager(opts.Theme)

	var fsOpts []filesystem.Option
	if opts.BaseDir != "" {
		fsOpts = append(fsOpts, filesystem.WithBaseDir(opts.BaseDir))
	}
	container.Filesystem = filesystem.NewAppFilesystem(container.Config, fsOpts...)

	container.Paths, err = container.Filesystem.EnsureAllPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to ensure all application paths: %w", err)
	}

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = container.Paths[filesystem.ConfigFilePath]
	}
	if configFile == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	container.ConfigManager = initializer.NewDefaultConfigManager(configFile)
	container.Settings, err = container.ConfigManager.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	container.Settings = container.applyPathDefaults(container.Settings)

	level := opts.LogLevel
	if level == "" {
		level = logger.ParseLevel(container.Settings.Log.Level)
	}

	container.Logger, err = logger.NewZapLogger(logger.Config{
		FilePath:   container.Paths[filesystem.LogsFilePath],
		LogLevel:   level,
		UseConsole: container.Settings.Log.Console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	container.Logger.Debug("Logger initialized successfully")

	return container, nil
}

// applyPathDefaults points unset file locations into the app directory
func (c *Container) applyPathDefaults(s config.Config) config.Config {
	if s.Node.LogFile == "" {
		s.Node.LogFile = c.Paths[filesystem.NodeLogFilePath]
	}
	if s.Server.SocketPath == "" {
		s.Server.SocketPath = c.Paths[filesystem.SocketFilePath]
	}
	return s
}

// SocketPath is where the host daemon listens
func (c *Container) SocketPath() string {
	return c.Settings.Server.SocketPath
}

// Node returns the bridge instance and its router, building them on first use
func (c *Container) Node() (*bridge.Bridge, *router.Router) {
	c.nodeOnce.Do(func() {
		s := c.Settings

		proc := supervisor.New(supervisor.Options{
			BinaryPath:  s.Node.BinaryPath,
			BinaryDir:   s.Node.BinaryDir,
			GracePeriod: s.Supervisor.GracePeriod,
			StopTimeout: s.Supervisor.StopTimeout,
			OutputFile:  s.Node.LogFile,
			Logger:      c.Logger.WithField("component", "supervisor"),
		})

		c.bridge = bridge.New(bridge.Options{
			Process:   proc,
			Resolver:  endpoint.NewResolver(s.Node, s.Readiness.Timeout, c.Paths[filesystem.DataDirectory]),
			KeepAlive: keepalive.New(s.KeepAlive, c.Logger.WithField("component", "keepalive")),
			Control: control.Options{
				CallTimeout: s.Control.CallTimeout,
				Contract:    s.Control.Contract,
				Logger:      c.Logger.WithField("component", "control"),
			},
			Readiness:  s.Readiness,
			StopOnExit: s.Server.StopNodeOnExit,
			Logger:     c.Logger.WithField("component", "bridge"),
		})

		c.router = router.New(c.bridge, router.Options{
			Workers: s.Server.Workers,
			Logger:  c.Logger.WithField("component", "router"),
		})
	})
	return c.bridge, c.router
}

// Close drains the router and closes the bridge, if they were built
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.router != nil {
		c.router.Close()
	}
	if c.bridge != nil {
		if err := c.bridge.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close bridge: %w", err))
		}
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
	return errors.Join(errs...)
}
