// Package bridge ties the daemon process, its control channel and the readiness poll into
// the single node instance a host talks to.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/keepalive"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/readiness"
	"github.com/apps78/cotune-bridge/internal/supervisor"
)

var (
	// ErrClosed is returned by lifecycle calls after Close
	ErrClosed = errors.New("bridge closed")

	// ErrStoppedDuringStart is returned when a stop wins the race against a pending start
	ErrStoppedDuringStart = errors.New("node stopped while waiting for readiness")
)

// Process is the supervisor as seen by the bridge
type Process interface {
	Start(ctx context.Context, spec supervisor.Spec) error
	Stop(ctx context.Context) error
	IsAlive() bool
	Done() <-chan struct{}
	Snapshot() supervisor.Info
}

// ClientFactory builds a control client for an endpoint
type ClientFactory func(ep endpoint.Endpoint, opts control.Options) control.Client

// Options configures a Bridge
type Options struct {
	Process    Process
	Resolver   *endpoint.Resolver
	KeepAlive  keepalive.Holder
	Control    control.Options
	Readiness  config.ReadinessConfig
	StopOnExit bool
	NewClient  ClientFactory
	Logger     logger.Logger
}

// StartOutcome reports how a start ended
type StartOutcome struct {
	// Ready is false when the node runs but did not report ready in time
	Ready    bool
	Status   control.NodeStatus
	Attempts int
	Request  endpoint.Request
}

// Info describes the bridge for status surfaces
type Info struct {
	Process    supervisor.Info    `json:"process"`
	Endpoint   *endpoint.Endpoint `json:"endpoint,omitempty"`
	Capability control.Capability `json:"capability"`
	Generation uint64             `json:"generation"`
	KeepAlive  bool               `json:"keep_alive"`
	Polling    bool               `json:"polling"`
}

// binding is the control channel of one run
type binding struct {
	client control.Client
	ep     endpoint.Endpoint
	gen    uint64
	// req is the request the process was spawned with, nil for a lazily bound channel
	req *endpoint.Request
}

// Bridge is the node instance of one host. StartNode and StopNode are serialized; queries
// run concurrently against the current binding.
type Bridge struct {
	proc       Process
	resolver   *endpoint.Resolver
	keep       keepalive.Holder
	ctlOpts    control.Options
	readiness  config.ReadinessConfig
	stopOnExit bool
	newClient  ClientFactory
	log        logger.Logger

	lifecycle sync.Mutex

	mu      sync.Mutex
	bind    *binding
	last    *endpoint.Request
	gen     uint64
	polls   map[uint64]context.CancelCauseFunc
	pollSeq uint64
	closed  bool
}

// New creates a Bridge
func New(opts Options) *Bridge {
	if opts.KeepAlive == nil {
		opts.KeepAlive = &keepalive.Noop{}
	}
	if opts.NewClient == nil {
		opts.NewClient = control.New
	}
	log := logger.OrDiscard(opts.Logger)
	opts.Control.Logger = log

	return &Bridge{
		proc:       opts.Process,
		resolver:   opts.Resolver,
		keep:       opts.KeepAlive,
		ctlOpts:    opts.Control,
		readiness:  opts.Readiness,
		stopOnExit: opts.StopOnExit,
		newClient:  opts.NewClient,
		log:        log,
		polls:      make(map[uint64]context.CancelCauseFunc),
	}
}

// Resolve fills start arguments from the configured defaults
func (b *Bridge) Resolve(args endpoint.Args) (endpoint.Request, error) {
	return b.resolver.Resolve(args)
}

// Strict reports whether only a daemon-reported status counts as ready
func (b *Bridge) Strict() bool {
	return b.readiness.Strict
}

// StartNode starts the daemon for req and waits for readiness within req.ReadinessTimeout,
// which includes the supervisor's grace period. In lenient mode a live node that never
// reported ready yields Ready=false and no error. While a process is already running,
// StartNode spawns nothing and waits on the running process and its endpoint instead.
func (b *Bridge) StartNode(ctx context.Context, req endpoint.Request) (StartOutcome, error) {
	deadline := time.Now().Add(req.ReadinessTimeout)
	log := b.log.WithField(logger.EndpointKey, req.Endpoint.String())
	if req.ViaHTTPAlias {
		log.Warn("The http start argument is deprecated, use proto")
	}

	pollCtx, run, err := b.launch(ctx, req, log)
	if err != nil {
		return StartOutcome{Request: req}, err
	}
	defer run.release()
	req = run.req

	poller := &readiness.Poller{
		Interval: b.readiness.Interval,
		Timeout:  max(time.Until(deadline), time.Millisecond),
		Accept:   readiness.AcceptRunning,
		OnProbe: func(attempt int, st control.NodeStatus, err error) {
			fields := map[string]interface{}{"attempt": attempt, "running": st.Running}
			if err != nil {
				fields[logger.ErrorKey] = err
			}
			log.WithFields(fields).Debug("Readiness probe")
		},
	}
	if b.readiness.Strict {
		poller.Accept = readiness.AcceptRPC
	}

	out, err := poller.Poll(pollCtx, func(pctx context.Context) (control.NodeStatus, error) {
		c := run.client
		if err := c.Connect(pctx); err != nil {
			return control.NodeStatus{}, err
		}
		return c.Status(pctx)
	})

	result := StartOutcome{Ready: err == nil, Status: out.Status, Attempts: out.Attempts, Request: req}
	if err == nil {
		log.WithField("attempts", out.Attempts).Info("Node ready")
		return result, nil
	}

	switch cause := context.Cause(pollCtx); {
	case errors.As(cause, new(*supervisor.DiedError)):
		b.reapDead(run.gen)
		return result, cause
	case errors.Is(cause, ErrStoppedDuringStart):
		return result, cause
	}

	if readiness.IsTimeout(err) && !b.readiness.Strict && b.proc.IsAlive() {
		log.WithField("attempts", out.Attempts).Warn("Node started but did not report ready in time")
		return result, nil
	}
	return result, err
}

// run is the in-flight part of one StartNode
type run struct {
	client  control.Client
	gen     uint64
	req     endpoint.Request
	release func()
}

// launch spawns the process and installs a fresh binding under the lifecycle lock, or joins
// the run that is already alive. The returned context ends when the caller gives up, the
// process dies or StopNode runs.
func (b *Bridge) launch(ctx context.Context, req endpoint.Request, log logger.Logger) (context.Context, *run, error) {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.isClosed() {
		return nil, nil, ErrClosed
	}

	if cur := b.runningBinding(); cur != nil {
		if cur.req.Endpoint.Raw != req.Endpoint.Raw || cur.req.DataDir != req.DataDir {
			log.WithFields(map[string]interface{}{
				"running_endpoint": cur.req.Endpoint.String(),
				"running_data_dir": cur.req.DataDir,
			}).Warn("Node already running, start arguments ignored")
		} else {
			log.Debug("Node already running")
		}
		pollCtx, r := b.track(ctx, cur.client, cur.gen, *cur.req)
		return pollCtx, r, nil
	}

	if err := b.proc.Start(ctx, specFor(req)); err != nil {
		log.WithField(logger.ErrorKey, err).Error("Daemon start failed")
		return nil, nil, err
	}

	client := b.newClient(req.Endpoint, b.ctlOpts)
	reqCopy := req

	b.mu.Lock()
	b.cancelPollsLocked(ErrStoppedDuringStart)
	old := b.bind
	b.gen++
	gen := b.gen
	b.bind = &binding{client: client, ep: req.Endpoint, gen: gen, req: &reqCopy}
	b.last = &reqCopy
	b.mu.Unlock()

	if old != nil {
		_ = old.client.Disconnect()
	}

	if err := b.keep.Acquire(ctx); err != nil {
		log.WithField(logger.ErrorKey, err).Warn("Keep-alive could not be acquired")
	}

	pollCtx, r := b.track(ctx, client, gen, req)
	return pollCtx, r, nil
}

// runningBinding returns the binding of a live spawned run, or nil
func (b *Bridge) runningBinding() *binding {
	b.mu.Lock()
	bind := b.bind
	b.mu.Unlock()
	if bind == nil || bind.req == nil || !b.proc.IsAlive() {
		return nil
	}
	return bind
}

// track registers a pending readiness wait so StopNode and Close can cancel it, and ends it
// with a *supervisor.DiedError if the process exits first
func (b *Bridge) track(ctx context.Context, client control.Client, gen uint64, req endpoint.Request) (context.Context, *run) {
	pollCtx, cancel := context.WithCancelCause(ctx)

	b.mu.Lock()
	b.pollSeq++
	id := b.pollSeq
	b.polls[id] = cancel
	b.mu.Unlock()

	if done := b.proc.Done(); done != nil {
		go func() {
			select {
			case <-done:
				code := -1
				if last := b.proc.Snapshot().LastExitCode; last != nil {
					code = *last
				}
				cancel(&supervisor.DiedError{ExitCode: code})
			case <-pollCtx.Done():
			}
		}()
	}

	return pollCtx, &run{
		client: client,
		gen:    gen,
		req:    req,
		release: func() {
			cancel(nil)
			b.mu.Lock()
			delete(b.polls, id)
			b.mu.Unlock()
		},
	}
}

// reapDead cleans up after a process that died while its start was pending
func (b *Bridge) reapDead(gen uint64) {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return
	}
	bind := b.bind
	b.bind = nil
	b.mu.Unlock()

	if bind != nil {
		_ = bind.client.Disconnect()
	}
	if err := b.proc.Stop(context.Background()); err != nil {
		b.log.WithField(logger.ErrorKey, err).Warn("Cleaning up dead daemon")
	}
	if err := b.keep.Release(); err != nil {
		b.log.WithField(logger.ErrorKey, err).Warn("Keep-alive release failed")
	}
}

func (b *Bridge) cancelPollsLocked(cause error) {
	for id, cancel := range b.polls {
		cancel(cause)
		delete(b.polls, id)
	}
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// StopNode cancels a pending start, drops the binding and stops the daemon. It fails only
// when the process could not be confirmed stopped.
func (b *Bridge) StopNode(ctx context.Context) error {
	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()
	return b.stopLocked(ctx)
}

func (b *Bridge) stopLocked(ctx context.Context) error {
	b.mu.Lock()
	b.cancelPollsLocked(ErrStoppedDuringStart)
	bind := b.bind
	b.bind = nil
	b.mu.Unlock()

	if bind != nil {
		if err := bind.client.Disconnect(); err != nil {
			b.log.WithField(logger.ErrorKey, err).Debug("Disconnecting control channel")
		}
	}

	err := b.proc.Stop(ctx)

	if rerr := b.keep.Release(); rerr != nil {
		b.log.WithField(logger.ErrorKey, rerr).Warn("Keep-alive release failed")
	}

	var warn *supervisor.StopWarning
	if errors.As(err, &warn) {
		b.log.WithField(logger.ErrorKey, err).Warn("Node stopped with warnings")
		return nil
	}
	return err
}

// client returns the current binding, lazily binding to the last or default endpoint
func (b *Bridge) client(ctx context.Context) (control.Client, error) {
	b.mu.Lock()
	if b.bind == nil {
		var req endpoint.Request
		if b.last != nil {
			req = *b.last
		} else {
			def, err := b.resolver.Default()
			if err != nil {
				b.mu.Unlock()
				return nil, fmt.Errorf("resolve default endpoint: %w", err)
			}
			req = def
		}
		b.bind = &binding{client: b.newClient(req.Endpoint, b.ctlOpts), ep: req.Endpoint, gen: b.gen}
	}
	c := b.bind.client
	b.mu.Unlock()

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Status queries the daemon. An unreachable daemon is reported as not running.
func (b *Bridge) Status(ctx context.Context) (control.NodeStatus, error) {
	c, err := b.client(ctx)
	var unavailable *control.UnavailableError
	if errors.As(err, &unavailable) {
		return unreachableStatus(), nil
	}
	if err != nil {
		return control.NodeStatus{}, err
	}
	return c.Status(ctx)
}

func unreachableStatus() control.NodeStatus {
	raw, _ := json.Marshal(map[string]interface{}{"running": false, "reachable": false})
	return control.NodeStatus{
		Running:    false,
		Raw:        raw,
		ObservedAt: time.Now(),
		Source:     control.SourceLiveness,
	}
}

// PeerInfo returns the daemon identity, or an empty PeerInfo when it cannot be obtained
func (b *Bridge) PeerInfo(ctx context.Context) control.PeerInfo {
	c, err := b.client(ctx)
	if err != nil {
		b.log.WithField(logger.ErrorKey, err).Debug("PeerInfo without control channel")
		return control.PeerInfo{}
	}
	return c.PeerInfo(ctx)
}

// KnownPeers lists peers known to the daemon
func (b *Bridge) KnownPeers(ctx context.Context) ([]control.PeerInfo, error) {
	c, err := b.client(ctx)
	if err != nil {
		return nil, err
	}
	return c.KnownPeers(ctx)
}

// Info returns a snapshot of the bridge
func (b *Bridge) Info() Info {
	b.mu.Lock()
	info := Info{
		Generation: b.gen,
		Polling:    len(b.polls) > 0,
	}
	bind := b.bind
	b.mu.Unlock()

	if bind != nil {
		ep := bind.ep
		info.Endpoint = &ep
		info.Capability = bind.client.Capability()
	}
	info.Process = b.proc.Snapshot()
	info.KeepAlive = b.keep.Held()
	return info
}

// Close rejects further starts and, when configured, stops the node
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancelPollsLocked(ErrClosed)
	b.mu.Unlock()

	b.lifecycle.Lock()
	defer b.lifecycle.Unlock()

	if b.stopOnExit {
		return b.stopLocked(ctx)
	}

	b.mu.Lock()
	bind := b.bind
	b.bind = nil
	b.mu.Unlock()
	if bind != nil {
		return bind.client.Disconnect()
	}
	return nil
}

// specFor builds the launch spec. The grace period is capped at the readiness timeout so
// the whole start stays within it.
func specFor(req endpoint.Request) supervisor.Spec {
	return supervisor.Spec{
		MaxGrace:    req.ReadinessTimeout,
		ProtoAddr:   req.Endpoint.Raw,
		ListenAddr:  req.ListenAddr,
		DataDir:     req.DataDir,
		Bootstrap:   req.Bootstrap,
		EnableRelay: req.EnableRelay,
	}
}
