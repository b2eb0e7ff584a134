package bridge

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/control/controltest"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/keepalive"
	"github.com/apps78/cotune-bridge/internal/readiness"
	"github.com/apps78/cotune-bridge/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProcess stands in for the supervisor
type fakeProcess struct {
	mu       sync.Mutex
	startErr error
	starts   int
	stops    int
	alive    bool
	done     chan struct{}
	lastExit *int
	lastSpec supervisor.Spec
}

func (f *fakeProcess) Start(_ context.Context, spec supervisor.Spec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.lastSpec = spec
	if f.alive {
		return nil
	}
	f.starts++
	f.alive = true
	f.done = make(chan struct{})
	return nil
}

func (f *fakeProcess) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.alive {
		f.alive = false
		close(f.done)
	}
	f.done = nil
	return nil
}

func (f *fakeProcess) die(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alive = false
	f.lastExit = &code
	close(f.done)
}

func (f *fakeProcess) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeProcess) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *fakeProcess) Snapshot() supervisor.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := supervisor.StateStopped
	if f.alive {
		st = supervisor.StateRunning
	}
	return supervisor.Info{State: st, Alive: f.alive, LastExitCode: f.lastExit}
}

func (f *fakeProcess) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

// countingKeep counts lease acquisitions
type countingKeep struct {
	keepalive.Noop
	mu       sync.Mutex
	acquires int
}

func (c *countingKeep) Acquire(ctx context.Context) error {
	c.mu.Lock()
	c.acquires++
	c.mu.Unlock()
	return c.Noop.Acquire(ctx)
}

func (c *countingKeep) acquired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires
}

type fixture struct {
	bridge *Bridge
	proc   *fakeProcess
	keep   *countingKeep
	req    endpoint.Request
}

func newFixture(t *testing.T, protoAddr string, rc config.ReadinessConfig) *fixture {
	t.Helper()

	if rc.Interval == 0 {
		rc.Interval = 25 * time.Millisecond
	}
	if rc.Timeout == 0 {
		rc.Timeout = 300 * time.Millisecond
	}

	resolver := endpoint.NewResolver(config.NodeConfig{
		ProtoAddr:  protoAddr,
		ListenAddr: "/ip4/0.0.0.0/tcp/0",
	}, rc.Timeout, t.TempDir())

	proc := &fakeProcess{}
	keep := &countingKeep{}
	b := New(Options{
		Process:    proc,
		Resolver:   resolver,
		KeepAlive:  keep,
		Control:    control.Options{CallTimeout: 200 * time.Millisecond},
		Readiness:  rc,
		StopOnExit: true,
	})
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	req, err := b.Resolve(endpoint.Args{})
	require.NoError(t, err)
	return &fixture{bridge: b, proc: proc, keep: keep, req: req}
}

func closedAddr(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func TestStartNode_Ready(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	out, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)
	assert.True(t, out.Ready)
	assert.True(t, out.Status.Running)
	assert.Equal(t, control.SourceRPC, out.Status.Source)
	assert.JSONEq(t, `{"running":true,"version":"test"}`, string(out.Status.Raw))

	assert.True(t, f.keep.Held())
	assert.Equal(t, srv.Addr(), f.proc.lastSpec.ProtoAddr)
	assert.Empty(t, f.proc.lastSpec.Bootstrap)

	info := f.bridge.Info()
	assert.Equal(t, uint64(1), info.Generation)
	require.NotNil(t, info.Endpoint)
	assert.Equal(t, control.CapabilityRich, info.Capability)
	assert.False(t, info.Polling)
}

func TestStartNode_IdempotentWhileRunning(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	_, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)
	_, err = f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)

	starts, _ := f.proc.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, uint64(1), f.bridge.Info().Generation, "a start while running keeps the run's channel")
	assert.Equal(t, 1, f.keep.acquired())
}

func TestStartNode_WhileRunningKeepsEndpoint(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	_, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)

	other, err := f.bridge.Resolve(endpoint.Args{Proto: closedAddr(t), BasePath: t.TempDir()})
	require.NoError(t, err)
	out, err := f.bridge.StartNode(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, out.Ready)
	assert.Equal(t, srv.Addr(), out.Request.Endpoint.Raw, "outcome reports the running endpoint")

	starts, _ := f.proc.counts()
	assert.Equal(t, 1, starts)
	assert.Equal(t, srv.Addr(), f.proc.lastSpec.ProtoAddr)

	info := f.bridge.Info()
	require.NotNil(t, info.Endpoint)
	assert.Equal(t, srv.Addr(), info.Endpoint.Raw)

	st, err := f.bridge.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.Equal(t, control.SourceRPC, st.Source)
}

func TestConcurrentStartsBothSucceed(t *testing.T) {
	f := newFixture(t, closedAddr(t), config.ReadinessConfig{Timeout: 600 * time.Millisecond})

	firstErr := make(chan error, 1)
	go func() {
		_, err := f.bridge.StartNode(context.Background(), f.req)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return f.bridge.Info().Polling }, time.Second, 5*time.Millisecond)

	out, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)
	assert.False(t, out.Ready)

	select {
	case err := <-firstErr:
		assert.NoError(t, err, "a second start must not fail the first")
	case <-time.After(3 * time.Second):
		t.Fatal("first start did not return")
	}

	starts, _ := f.proc.counts()
	assert.Equal(t, 1, starts)
	assert.True(t, f.proc.IsAlive())
	assert.Equal(t, 1, f.keep.acquired())
}

func TestStartNode_LenientTimeout(t *testing.T) {
	d := controltest.NewDaemon()
	d.SetRunning(false)
	srv := controltest.NewServer(t, d)
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	start := time.Now()
	out, err := f.bridge.StartNode(context.Background(), f.req)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, out.Ready)
	assert.Greater(t, out.Attempts, 1)
	assert.Less(t, elapsed, 300*time.Millisecond+25*time.Millisecond+200*time.Millisecond)
	assert.True(t, f.proc.IsAlive())
}

func TestStartNode_StrictTimeout(t *testing.T) {
	d := controltest.NewDaemon()
	d.SetRunning(false)
	srv := controltest.NewServer(t, d)
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{Strict: true})

	_, err := f.bridge.StartNode(context.Background(), f.req)
	assert.True(t, readiness.IsTimeout(err))
}

func TestStartNode_LivenessOnlyDaemon(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon(), controltest.WithoutContract())

	lenient := newFixture(t, srv.Addr(), config.ReadinessConfig{})
	out, err := lenient.bridge.StartNode(context.Background(), lenient.req)
	require.NoError(t, err)
	assert.True(t, out.Ready)
	assert.Equal(t, control.SourceLiveness, out.Status.Source)

	strict := newFixture(t, srv.Addr(), config.ReadinessConfig{Strict: true})
	_, err = strict.bridge.StartNode(context.Background(), strict.req)
	assert.True(t, readiness.IsTimeout(err), "liveness never counts as ready in strict mode")
}

func TestStartNode_UnreachableLenient(t *testing.T) {
	f := newFixture(t, closedAddr(t), config.ReadinessConfig{})

	out, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)
	assert.False(t, out.Ready)
}

func TestStartNode_SpawnError(t *testing.T) {
	f := newFixture(t, closedAddr(t), config.ReadinessConfig{})
	f.proc.startErr = &supervisor.SpawnError{Reason: supervisor.ReasonNoBinary, Err: supervisor.ErrNoBinary}

	_, err := f.bridge.StartNode(context.Background(), f.req)
	var spawnErr *supervisor.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Nil(t, f.bridge.Info().Endpoint)
	assert.False(t, f.keep.Held())
}

func TestStartNode_ProcessDiesWhilePolling(t *testing.T) {
	d := controltest.NewDaemon()
	d.SetRunning(false)
	srv := controltest.NewServer(t, d)
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{Timeout: 5 * time.Second})

	go func() {
		time.Sleep(100 * time.Millisecond)
		f.proc.die(7)
	}()

	start := time.Now()
	_, err := f.bridge.StartNode(context.Background(), f.req)
	var died *supervisor.DiedError
	require.ErrorAs(t, err, &died)
	assert.Equal(t, 7, died.ExitCode)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.False(t, f.keep.Held())
	assert.Nil(t, f.bridge.Info().Endpoint)
}

func TestStopNode_DuringPendingStart(t *testing.T) {
	d := controltest.NewDaemon()
	d.SetRunning(false)
	srv := controltest.NewServer(t, d)
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{Timeout: 5 * time.Second})

	errCh := make(chan error, 1)
	go func() {
		_, err := f.bridge.StartNode(context.Background(), f.req)
		errCh <- err
	}()

	require.Eventually(t, func() bool { return f.bridge.Info().Polling }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.bridge.StopNode(context.Background()))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStoppedDuringStart)
	case <-time.After(2 * time.Second):
		t.Fatal("pending start did not return after stop")
	}
	assert.False(t, f.proc.IsAlive())
	assert.False(t, f.keep.Held())
}

func TestStartNode_CallerCancelled(t *testing.T) {
	d := controltest.NewDaemon()
	d.SetRunning(false)
	srv := controltest.NewServer(t, d)
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{Timeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := f.bridge.StartNode(ctx, f.req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, f.proc.IsAlive(), "the node keeps running after the caller gives up")
}

func TestStopNode_WithoutProcess(t *testing.T) {
	f := newFixture(t, closedAddr(t), config.ReadinessConfig{})
	require.NoError(t, f.bridge.StopNode(context.Background()))
	require.NoError(t, f.bridge.StopNode(context.Background()))
}

func TestStopNode_DisconnectsBinding(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	_, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)
	require.NoError(t, f.bridge.StopNode(context.Background()))

	info := f.bridge.Info()
	assert.Nil(t, info.Endpoint)
	assert.False(t, info.Process.Alive)
	assert.False(t, f.keep.Held())
}

func TestQueries_LazilyBind(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})
	ctx := context.Background()

	st, err := f.bridge.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Running)

	assert.Equal(t, "12D3KooWTestPeer", f.bridge.PeerInfo(ctx).PeerID)

	peers, err := f.bridge.KnownPeers(ctx)
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

func TestQueries_Unreachable(t *testing.T) {
	f := newFixture(t, closedAddr(t), config.ReadinessConfig{})
	ctx := context.Background()

	st, err := f.bridge.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, control.SourceLiveness, st.Source)

	assert.True(t, f.bridge.PeerInfo(ctx).Empty())

	_, err = f.bridge.KnownPeers(ctx)
	var unavailable *control.UnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestClose(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	_, err := f.bridge.StartNode(context.Background(), f.req)
	require.NoError(t, err)

	require.NoError(t, f.bridge.Close(context.Background()))
	assert.False(t, f.proc.IsAlive(), "stop_node_on_exit stops the node")

	_, err = f.bridge.StartNode(context.Background(), f.req)
	assert.ErrorIs(t, err, ErrClosed)
	require.NoError(t, f.bridge.Close(context.Background()))
}

func TestConcurrentStartStopConverge(t *testing.T) {
	srv := controltest.NewServer(t, controltest.NewDaemon())
	f := newFixture(t, srv.Addr(), config.ReadinessConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.bridge.StartNode(context.Background(), f.req)
			if err != nil {
				assert.True(t, errors.Is(err, ErrStoppedDuringStart), "unexpected start error: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.bridge.StopNode(context.Background()))
		}()
	}
	wg.Wait()

	info := f.bridge.Info()
	assert.Equal(t, f.proc.IsAlive(), info.Endpoint != nil, "binding exists exactly when the node runs")
	assert.Equal(t, f.proc.IsAlive(), f.keep.Held())
}

func TestStartNode_BoundedByTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake daemon is a shell script")
	}

	binary := filepath.Join(t.TempDir(), supervisor.BinaryNames[0])
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))

	proc := supervisor.New(supervisor.Options{
		BinaryPath:  binary,
		GracePeriod: 2 * time.Second,
		StopTimeout: 300 * time.Millisecond,
		OutputFile:  filepath.Join(t.TempDir(), "daemon.log"),
	})

	const (
		timeout  = 200 * time.Millisecond
		interval = 50 * time.Millisecond
	)
	resolver := endpoint.NewResolver(config.NodeConfig{
		ProtoAddr:  closedAddr(t),
		ListenAddr: "/ip4/0.0.0.0/tcp/0",
	}, timeout, t.TempDir())

	b := New(Options{
		Process:    proc,
		Resolver:   resolver,
		Control:    control.Options{CallTimeout: 100 * time.Millisecond},
		Readiness:  config.ReadinessConfig{Timeout: timeout, Interval: interval},
		StopOnExit: true,
	})
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	req, err := b.Resolve(endpoint.Args{})
	require.NoError(t, err)

	start := time.Now()
	out, err := b.StartNode(context.Background(), req)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, out.Ready)
	assert.True(t, proc.IsAlive())
	assert.Less(t, elapsed, timeout+interval+300*time.Millisecond, "grace period counts inside the timeout")
}
