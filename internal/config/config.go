package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultBootstrapPeers are the seed peers every node is started with.
var DefaultBootstrapPeers = []string{
	"/ip4/84.201.172.91/udp/4001/quic-v1/p2p/12D3KooWPg8PavCBcMzooYYHbnoEN5YttQng3YGABvVwkbM5gvPb",
	"/ip4/84.201.172.91/tcp/4001/p2p/12D3KooWPg8PavCBcMzooYYHbnoEN5YttQng3YGABvVwkbM5gvPb",
}

// Contract selection values for ControlConfig.Contract
const (
	ContractAuto     = "auto"
	ContractRich     = "rich"
	ContractLiveness = "liveness"
)

// Keep-alive modes for KeepAliveConfig.Mode
const (
	KeepAliveNone    = "none"
	KeepAliveInhibit = "inhibit"
)

// NodeConfig describes how the daemon binary is located and launched
type NodeConfig struct {
	BinaryPath  string   `yaml:"binary_path,omitempty"`
	BinaryDir   string   `yaml:"binary_dir,omitempty"`
	ProtoAddr   string   `yaml:"proto_addr"`
	ListenAddr  string   `yaml:"listen_addr"`
	DataDir     string   `yaml:"data_dir,omitempty"`
	Bootstrap   []string `yaml:"bootstrap"`
	Relays      []string `yaml:"relays,omitempty"`
	EnableRelay bool     `yaml:"enable_relay"`
	LogFile     string   `yaml:"log_file,omitempty"`
}

// SupervisorConfig holds process lifecycle timings
type SupervisorConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ReadinessConfig holds readiness polling settings
type ReadinessConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	Interval time.Duration `yaml:"interval"`
	Strict   bool          `yaml:"strict"`
}

// ControlConfig holds control channel settings
type ControlConfig struct {
	CallTimeout time.Duration `yaml:"call_timeout"`
	Contract    string        `yaml:"contract"`
}

// KeepAliveConfig selects the host keep-alive obligation
type KeepAliveConfig struct {
	Mode    string   `yaml:"mode"`
	Command []string `yaml:"command,omitempty"`
}

// ServerConfig holds the host-facing surfaces
type ServerConfig struct {
	SocketPath     string `yaml:"socket_path,omitempty"`
	HTTPEnabled    bool   `yaml:"http_enabled"`
	HTTPAddr       string `yaml:"http_addr"`
	Workers        int    `yaml:"workers"`
	StopNodeOnExit bool   `yaml:"stop_node_on_exit"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Config represents the main configuration file
type Config struct {
	Node       NodeConfig       `yaml:"node"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Readiness  ReadinessConfig  `yaml:"readiness"`
	Control    ControlConfig    `yaml:"control"`
	KeepAlive  KeepAliveConfig  `yaml:"keep_alive"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a configuration populated with default values
func (c Config) Default() Config {
	return Config{
		Node: NodeConfig{
			ProtoAddr:  "127.0.0.1:7777",
			ListenAddr: "/ip4/0.0.0.0/tcp/0",
			Bootstrap:  append([]string(nil), DefaultBootstrapPeers...),
		},
		Supervisor: SupervisorConfig{
			GracePeriod: 2 * time.Second,
			StopTimeout: 5 * time.Second,
		},
		Readiness: ReadinessConfig{
			Timeout:  5 * time.Second,
			Interval: time.Second,
		},
		Control: ControlConfig{
			CallTimeout: 3 * time.Second,
			Contract:    ContractAuto,
		},
		KeepAlive: KeepAliveConfig{
			Mode: KeepAliveNone,
		},
		Server: ServerConfig{
			HTTPEnabled:    true,
			HTTPAddr:       "127.0.0.1:10333",
			Workers:        4,
			StopNodeOnExit: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// FillDefaults sets zero-valued fields to their defaults and returns the result
func (c Config) FillDefaults() Config {
	d := c.Default()

	if c.Node.ProtoAddr == "" {
		c.Node.ProtoAddr = d.Node.ProtoAddr
	}
	if c.Node.ListenAddr == "" {
		c.Node.ListenAddr = d.Node.ListenAddr
	}
	if c.Node.Bootstrap == nil {
		c.Node.Bootstrap = d.Node.Bootstrap
	}
	if c.Supervisor.GracePeriod <= 0 {
		c.Supervisor.GracePeriod = d.Supervisor.GracePeriod
	}
	if c.Supervisor.StopTimeout <= 0 {
		c.Supervisor.StopTimeout = d.Supervisor.StopTimeout
	}
	if c.Readiness.Timeout <= 0 {
		c.Readiness.Timeout = d.Readiness.Timeout
	}
	if c.Readiness.Interval <= 0 {
		c.Readiness.Interval = d.Readiness.Interval
	}
	if c.Control.CallTimeout <= 0 {
		c.Control.CallTimeout = d.Control.CallTimeout
	}
	if c.Control.Contract == "" {
		c.Control.Contract = d.Control.Contract
	}
	if c.KeepAlive.Mode == "" {
		c.KeepAlive.Mode = d.KeepAlive.Mode
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = d.Server.HTTPAddr
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = d.Server.Workers
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	return c
}

// Validate reports configuration values that cannot be used
func (c Config) Validate() error {
	var errs []error

	switch c.Control.Contract {
	case ContractAuto, ContractRich, ContractLiveness:
	default:
		errs = append(errs, fmt.Errorf("control.contract must be one of %q, %q, %q, got %q",
			ContractAuto, ContractRich, ContractLiveness, c.Control.Contract))
	}

	switch c.KeepAlive.Mode {
	case KeepAliveNone, KeepAliveInhibit:
	default:
		errs = append(errs, fmt.Errorf("keep_alive.mode must be %q or %q, got %q",
			KeepAliveNone, KeepAliveInhibit, c.KeepAlive.Mode))
	}

	if c.Readiness.Interval > c.Readiness.Timeout {
		errs = append(errs, fmt.Errorf("readiness.interval (%s) exceeds readiness.timeout (%s)",
			c.Readiness.Interval, c.Readiness.Timeout))
	}

	if c.Server.Workers < 1 {
		errs = append(errs, errors.New("server.workers must be at least 1"))
	}

	return errors.Join(errs...)
}
