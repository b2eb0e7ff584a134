package endpoint

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
)

// Args are the optional, host-supplied overrides for one start.
// Zero values mean "use the configured default".
type Args struct {
	Proto       string
	HTTP        string
	Listen      string
	Relays      []string
	BasePath    string
	Timeout     time.Duration
	EnableRelay *bool
}

// Request is the fully resolved, immutable description of a daemon start
type Request struct {
	Endpoint         Endpoint      `json:"endpoint"`
	ListenAddr       string        `json:"listen"`
	Bootstrap        []string      `json:"bootstrap"`
	DataDir          string        `json:"data_dir"`
	ReadinessTimeout time.Duration `json:"readiness_timeout"`
	EnableRelay      bool          `json:"enable_relay"`
	// ViaHTTPAlias is set when the address came from the deprecated "http" argument
	ViaHTTPAlias bool `json:"-"`
}

// Resolver fills start arguments from configuration defaults
type Resolver struct {
	node           config.NodeConfig
	readiness      time.Duration
	defaultDataDir string
}

// NewResolver creates a Resolver. fallbackDataDir is used when neither the request nor
// the node configuration names a data directory.
func NewResolver(node config.NodeConfig, readinessTimeout time.Duration, fallbackDataDir string) *Resolver {
	return &Resolver{
		node:           node,
		readiness:      readinessTimeout,
		defaultDataDir: fallbackDataDir,
	}
}

// Resolve merges args over the defaults
func (r *Resolver) Resolve(args Args) (Request, error) {
	addr, alias := firstNonEmpty(args.Proto, args.HTTP, r.node.ProtoAddr)
	ep, err := Parse(addr)
	if err != nil {
		return Request{}, err
	}

	listen, _ := firstNonEmpty(args.Listen, r.node.ListenAddr)
	if listen == "" {
		return Request{}, errors.New("empty listen address")
	}

	dataDir, _ := firstNonEmpty(args.BasePath, r.node.DataDir, r.defaultDataDir)
	if dataDir == "" {
		return Request{}, errors.New("no data directory configured")
	}
	dataDir, err = filepath.Abs(dataDir)
	if err != nil {
		return Request{}, fmt.Errorf("resolve data directory: %w", err)
	}

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = r.readiness
	}

	relay := r.node.EnableRelay
	if args.EnableRelay != nil {
		relay = *args.EnableRelay
	}

	return Request{
		Endpoint:         ep,
		ListenAddr:       listen,
		Bootstrap:        dedupe(r.node.Bootstrap, r.node.Relays, args.Relays),
		DataDir:          dataDir,
		ReadinessTimeout: timeout,
		EnableRelay:      relay,
		ViaHTTPAlias:     alias == 1,
	}, nil
}

// Default resolves a request with no overrides
func (r *Resolver) Default() (Request, error) {
	return r.Resolve(Args{})
}

// SplitRelays splits a comma or whitespace separated relay list
func SplitRelays(s string) []string {
	return strings.FieldsFunc(s, func(c rune) bool {
		return c == ',' || c == ' ' || c == '\t' || c == '\n' || c == ';'
	})
}

// firstNonEmpty returns the first non-blank value and its index
func firstNonEmpty(values ...string) (string, int) {
	for i, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v, i
		}
	}
	return "", -1
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, v := range list {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
