package config

import (
	"fmt"
)

// Repository represents a GitHub repository
type Repository struct {
	Owner string
	Repo  string
}

// Slug returns the owner/repo form used by release lookups
func (r Repository) Slug() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Repo)
}

// AppConfig represents the build-time identity of the application
type AppConfig struct {
	Name       string
	Repository Repository
	Version    Version
}

// Version represents the version information for the application
type Version struct {
	Version string
	Commit  string
	Date    string
}

// VersionText returns the version information as a string
func (v *Version) VersionText() string {
	return fmt.Sprintf("v%s : %s (%s)", v.Version, v.Commit, v.Date)
}

// Option is a function that configures an AppConfig
type Option func(*AppConfig)

// WithVersion sets the build version information
func WithVersion(v Version) Option {
	return func(c *AppConfig) {
		c.Version = v
	}
}

// WithName overrides the application name, which also names the app directory
func WithName(name string) Option {
	return func(c *AppConfig) {
		c.Name = name
	}
}

// NewDefaultConfig returns the AppConfig for cotune-bridge with the given options applied
func NewDefaultConfig(opts ...Option) *AppConfig {
	c := &AppConfig{
		Name: "cotune-bridge",
		Repository: Repository{
			Owner: "apps78",
			Repo:  "cotune-bridge",
		},
		Version: Version{
			Version: "0.0.1",
			Commit:  "none",
			Date:    "unknown",
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
