// Package filesystem resolves and creates the application's local directories.
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apps78/cotune-bridge/internal/config"
)

type PathType string

const (
	configYamlFileName = "config.yaml"
	socketFileName     = "bridge.sock"

	AppDirectory    PathType = "app"
	ConfigDirectory PathType = "config"
	ConfigFilePath  PathType = "config_file"
	LogsDirectory   PathType = "logs"
	LogsFilePath    PathType = "log_file"
	NodeLogFilePath PathType = "node_log_file"
	DataDirectory   PathType = "data"
	RunDirectory    PathType = "run"
	SocketFilePath  PathType = "socket"
)

// Filesystem is a struct that contains the methods to interact with local storage.
type Filesystem struct {
	appCfg  *config.AppConfig
	baseDir string
}

// Option configures a Filesystem
type Option func(*Filesystem)

// WithBaseDir places the app directory under dir instead of the user's home
func WithBaseDir(dir string) Option {
	return func(s *Filesystem) {
		s.baseDir = dir
	}
}

// NewAppFilesystem creates a new Filesystem instance.
func NewAppFilesystem(appCfg *config.AppConfig, opts ...Option) *Filesystem {
	s := &Filesystem{appCfg: appCfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureAllPaths creates the app directory tree and returns every known path
func (s *Filesystem) EnsureAllPaths() (map[PathType]string, error) {
	paths := map[PathType]string{}

	appDirectory, err := s.ensureAppDirectory()
	if err != nil {
		return paths, err
	}
	paths[AppDirectory] = appDirectory

	dirs := []struct {
		pathType PathType
		name     string
		perm     os.FileMode
	}{
		{ConfigDirectory, "config", 0o755},
		{LogsDirectory, "logs", 0o755},
		{DataDirectory, "data", 0o700},
		{RunDirectory, "run", 0o700},
	}
	for _, d := range dirs {
		dir := filepath.Join(appDirectory, d.name)
		if err := ensureDir(dir, d.perm); err != nil {
			return paths, err
		}
		paths[d.pathType] = dir
	}

	configFilePath := filepath.Join(paths[ConfigDirectory], configYamlFileName)
	if err := ensureFile(configFilePath); err != nil {
		return paths, err
	}
	paths[ConfigFilePath] = configFilePath

	name := strings.ToLower(s.appCfg.Name)
	logFilePath := filepath.Join(paths[LogsDirectory], fmt.Sprintf("%s.log", name))
	if err := ensureFile(logFilePath); err != nil {
		return paths, err
	}
	paths[LogsFilePath] = logFilePath

	// written by the node's rotating writer on first start
	paths[NodeLogFilePath] = filepath.Join(paths[LogsDirectory], "node.log")
	paths[SocketFilePath] = filepath.Join(paths[RunDirectory], socketFileName)

	return paths, nil
}

func (s *Filesystem) ensureAppDirectory() (string, error) {
	base := s.baseDir
	if base == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = homeDir
	}

	appDir := filepath.Join(base, fmt.Sprintf(".%s", strings.ToLower(s.appCfg.Name)))
	if err := ensureDir(appDir, 0o755); err != nil {
		return "", err
	}
	return appDir, nil
}

func ensureDir(dir string, perm os.FileMode) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, perm); err != nil {
			return err
		}
	}
	return nil
}

func ensureFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		return f.Close()
	}
	return nil
}
