// Package router maps host command names to bridge operations and packages every outcome
// as a Result.
package router

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/apps78/cotune-bridge/internal/bridge"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/logger"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Command names
const (
	CmdStartNode    = "startNode"
	CmdStopNode     = "stopNode"
	CmdStatus       = "status"
	CmdPeerInfoJSON = "getPeerInfoJson"
	CmdPeerInfoQR   = "getPeerInfoQrNative"
	CmdKnownPeers   = "getKnownPeers"
	CmdNodeInfo     = "nodeInfo"
)

// DefaultWorkers bounds concurrent Submit calls when Options.Workers is unset
const DefaultWorkers = 4

// StartSlack is added to a start's readiness timeout when bounding the whole command, to
// cover the final probe and the reply
const StartSlack = 5 * time.Second

// ExecTimeout returns how long a surface lets cmd run. A startNode that asks for a
// readiness timeout gets at least that timeout plus StartSlack.
func ExecTimeout(cmd Command, base time.Duration) time.Duration {
	if cmd.Name != CmdStartNode {
		return base
	}
	ms, ok, err := cmd.Args.Int("timeoutMs")
	if err != nil || !ok || ms <= 0 {
		return base
	}
	return max(base, time.Duration(ms)*time.Millisecond+StartSlack)
}

// Backend is the node instance the router drives
type Backend interface {
	Resolve(args endpoint.Args) (endpoint.Request, error)
	StartNode(ctx context.Context, req endpoint.Request) (bridge.StartOutcome, error)
	StopNode(ctx context.Context) error
	Status(ctx context.Context) (control.NodeStatus, error)
	PeerInfo(ctx context.Context) control.PeerInfo
	KnownPeers(ctx context.Context) ([]control.PeerInfo, error)
	Info() bridge.Info
}

var _ Backend = (*bridge.Bridge)(nil)

// Command is one host request
type Command struct {
	Name string `json:"command"`
	Args Args   `json:"args,omitempty"`
}

// Handler executes one command
type Handler func(ctx context.Context, args Args) Result

// Options configures a Router
type Options struct {
	Workers int
	Logger  logger.Logger
}

// Router dispatches commands to handlers
type Router struct {
	backend  Backend
	handlers map[string]Handler
	sem      *semaphore.Weighted
	flight   singleflight.Group
	log      logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates a Router over backend
func New(backend Backend, opts Options) *Router {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	r := &Router{
		backend: backend,
		sem:     semaphore.NewWeighted(int64(opts.Workers)),
		log:     logger.OrDiscard(opts.Logger),
		now:     time.Now,
	}
	r.handlers = map[string]Handler{
		CmdStartNode:    r.startNode,
		CmdStopNode:     r.stopNode,
		CmdStatus:       r.status,
		CmdPeerInfoJSON: r.peerInfoJSON,
		CmdPeerInfoQR:   r.peerInfoQR,
		CmdKnownPeers:   r.knownPeers,
		CmdNodeInfo:     r.nodeInfo,
	}
	return r
}

// Commands lists the supported command names
func (r *Router) Commands() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// enter registers in-flight work unless the router is closed
func (r *Router) enter() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	r.inflight.Add(1)
	return true
}

// Dispatch runs cmd on the calling goroutine
func (r *Router) Dispatch(ctx context.Context, cmd Command) Result {
	if !r.enter() {
		return Failure(KindUnavailable, "router is closed")
	}
	defer r.inflight.Done()
	return r.run(ctx, cmd)
}

// Submit runs cmd on the worker pool. The channel receives exactly one Result.
func (r *Router) Submit(ctx context.Context, cmd Command) <-chan Result {
	out := make(chan Result, 1)
	if !r.enter() {
		out <- Failure(KindUnavailable, "router is closed")
		return out
	}

	go func() {
		defer r.inflight.Done()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			out <- Failure(KindUnavailable, "no worker available: %v", err)
			return
		}
		defer r.sem.Release(1)
		out <- r.run(ctx, cmd)
	}()
	return out
}

// Close rejects new commands and waits for in-flight ones
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.inflight.Wait()
}

func (r *Router) run(ctx context.Context, cmd Command) Result {
	log := r.log.WithField(logger.CommandKey, cmd.Name)

	h, ok := r.handlers[cmd.Name]
	if !ok {
		log.Warn("Unknown command")
		return Failure(KindUnknownCommand, "unknown command %q", cmd.Name)
	}

	start := time.Now()
	res := h(ctx, cmd.Args)

	fields := map[string]interface{}{logger.DurationKey: time.Since(start).String()}
	if res.OK {
		log.WithFields(fields).Debug("Command succeeded")
	} else {
		fields["kind"] = string(res.Kind)
		fields[logger.ErrorKey] = res.Message
		log.WithFields(fields).Warn("Command failed")
	}
	return res
}
