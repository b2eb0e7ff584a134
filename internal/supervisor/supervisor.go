// Package supervisor launches, watches and terminates the cotune daemon process.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apps78/cotune-bridge/internal/logger"
)

const (
	// DefaultGracePeriod is how long a fresh process must survive before it counts as running
	DefaultGracePeriod = 2 * time.Second

	// DefaultStopTimeout is how long Stop waits after SIGTERM before escalating
	DefaultStopTimeout = 5 * time.Second

	killWait      = 2 * time.Second
	outputMaxSize = 10
)

// State is the lifecycle state of the supervised process
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateStarting: "starting",
	StateRunning:  "running",
	StateStopping: "stopping",
	StateStopped:  "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Spec describes one daemon launch
type Spec struct {
	ProtoAddr   string
	ListenAddr  string
	DataDir     string
	Bootstrap   []string
	EnableRelay bool
	// MaxGrace caps Options.GracePeriod for this launch when positive
	MaxGrace time.Duration
}

// grace returns the grace period for spec
func (s *Supervisor) grace(spec Spec) time.Duration {
	if spec.MaxGrace > 0 && spec.MaxGrace < s.opts.GracePeriod {
		return spec.MaxGrace
	}
	return s.opts.GracePeriod
}

// Args renders the daemon command line
func (s Spec) Args() []string {
	args := []string{"-proto", s.ProtoAddr, "-listen", s.ListenAddr, "-data", s.DataDir}
	for _, b := range s.Bootstrap {
		args = append(args, "-bootstrap", b)
	}
	if s.EnableRelay {
		args = append(args, "-relay")
	}
	return args
}

// Options configures a Supervisor
type Options struct {
	// BinaryPath is an explicit binary file or directory, tried first
	BinaryPath string
	// BinaryDir is searched after BinaryPath
	BinaryDir   string
	GracePeriod time.Duration
	StopTimeout time.Duration
	// OutputFile receives the daemon's stdout and stderr; empty discards them
	OutputFile string
	Logger     logger.Logger
}

// Info is a point-in-time view of the supervisor
type Info struct {
	State        State      `json:"state"`
	Alive        bool       `json:"alive"`
	PID          int        `json:"pid,omitempty"`
	Binary       string     `json:"binary,omitempty"`
	DataDir      string     `json:"data_dir,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastExitCode *int       `json:"last_exit_code,omitempty"`
}

// handle is one spawned process. It is replaced on every start, never reused.
type handle struct {
	cmd       *exec.Cmd
	pid       int
	binary    string
	dir       string
	startedAt time.Time
	output    io.Closer

	done     chan struct{}
	exitCode int
}

func (h *handle) alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Supervisor owns at most one daemon process. Lifecycle calls are serialized; State,
// IsAlive and Snapshot never block on them.
type Supervisor struct {
	opts Options
	log  logger.Logger

	mu       sync.Mutex
	state    atomic.Int32
	cur      atomic.Pointer[handle]
	lastExit atomic.Pointer[int]

	executable func() (string, error)
}

// New creates a Supervisor
func New(opts Options) *Supervisor {
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	return &Supervisor{
		opts:       opts,
		log:        logger.OrDiscard(opts.Logger),
		executable: os.Executable,
	}
}

// State returns the current lifecycle state
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	s.state.Store(int32(st))
}

// IsAlive reports whether a spawned process is still running
func (s *Supervisor) IsAlive() bool {
	h := s.cur.Load()
	return h != nil && h.alive()
}

// Done returns a channel closed when the current process exits, or nil with no process
func (s *Supervisor) Done() <-chan struct{} {
	if h := s.cur.Load(); h != nil {
		return h.done
	}
	return nil
}

// Snapshot returns the current supervisor info
func (s *Supervisor) Snapshot() Info {
	info := Info{State: s.State(), LastExitCode: s.lastExit.Load()}
	if h := s.cur.Load(); h != nil {
		started := h.startedAt
		info.Alive = h.alive()
		info.PID = h.pid
		info.Binary = h.binary
		info.DataDir = h.dir
		info.StartedAt = &started
	}
	return info
}

// Start launches the daemon unless one is already running. It returns once the process has
// survived the grace period, or with a *SpawnError or *DiedError.
func (s *Supervisor) Start(ctx context.Context, spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h := s.cur.Load(); h != nil {
		if h.alive() && s.State() == StateRunning {
			s.log.WithField(logger.PIDKey, h.pid).Debug("Daemon already running")
			return nil
		}
		s.release(h)
	}

	prev := s.State()
	fail := func(err error) error {
		if prev == StateIdle {
			s.setState(StateIdle)
		} else {
			s.setState(StateStopped)
		}
		return err
	}
	s.setState(StateStarting)

	if err := os.MkdirAll(spec.DataDir, 0o755); err != nil {
		return fail(&SpawnError{Reason: ReasonSpawnFailed, Err: fmt.Errorf("create data directory: %w", err)})
	}

	binary, err := FindBinary(s.opts.BinaryPath, s.candidateDirs(spec.DataDir)...)
	if err != nil {
		return fail(&SpawnError{Reason: ReasonNoBinary, Err: err})
	}

	h, err := s.spawn(binary, spec)
	if err != nil {
		return fail(&SpawnError{Reason: ReasonSpawnFailed, Path: binary, Err: err})
	}
	s.cur.Store(h)

	log := s.log.WithFields(map[string]interface{}{
		logger.PIDKey: h.pid,
		"binary":      binary,
	})
	log.Info("Daemon process spawned")

	grace := time.NewTimer(s.grace(spec))
	defer grace.Stop()

	select {
	case <-h.done:
		s.release(h)
		log.WithField("exit_code", h.exitCode).Warn("Daemon exited during grace period")
		return fail(&DiedError{ExitCode: h.exitCode})
	case <-ctx.Done():
		if werr := s.terminate(context.Background(), h); werr != nil {
			log.WithField(logger.ErrorKey, werr).Warn("Terminating daemon after cancelled start")
		}
		s.release(h)
		return fail(fmt.Errorf("start cancelled during grace period: %w", ctx.Err()))
	case <-grace.C:
	}

	s.setState(StateRunning)
	log.Info("Daemon process running")
	return nil
}

// Stop terminates the daemon: SIGTERM to its process group, SIGKILL after the stop timeout.
// The handle is always released. A *StopWarning means the process is gone but signalling
// misbehaved; an error wrapping ErrNotStopped means it may still be running.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.cur.Load()
	if h == nil {
		if s.State() != StateIdle {
			s.setState(StateStopped)
		}
		return nil
	}

	s.setState(StateStopping)
	err := s.terminate(ctx, h)
	s.release(h)
	s.setState(StateStopped)

	if err != nil {
		s.log.WithFields(map[string]interface{}{
			logger.PIDKey:   h.pid,
			logger.ErrorKey: err,
		}).Warn("Daemon stop reported a problem")
		return err
	}
	s.log.WithField(logger.PIDKey, h.pid).Info("Daemon process stopped")
	return nil
}

func (s *Supervisor) candidateDirs(dataDir string) []string {
	dirs := []string{s.opts.BinaryDir}
	if exe, err := s.executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return append(dirs, dataDir)
}

func (s *Supervisor) spawn(binary string, spec Spec) (*handle, error) {
	cmd := exec.Command(binary, spec.Args()...)
	cmd.Dir = spec.DataDir
	cmd.Env = os.Environ()
	cmd.WaitDelay = time.Second
	setProcAttr(cmd)

	var output io.WriteCloser
	if s.opts.OutputFile != "" {
		w, err := logger.NewRotatingWriter(s.opts.OutputFile, outputMaxSize)
		if err != nil {
			return nil, fmt.Errorf("open daemon output: %w", err)
		}
		output = w
		cmd.Stdout = w
		cmd.Stderr = w
	}

	if err := cmd.Start(); err != nil {
		if output != nil {
			_ = output.Close()
		}
		return nil, err
	}

	h := &handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		binary:    binary,
		dir:       spec.DataDir,
		startedAt: time.Now(),
		output:    output,
		done:      make(chan struct{}),
	}
	go s.reap(h)
	return h, nil
}

// reap waits for the process, records its exit code and closes done
func (s *Supervisor) reap(h *handle) {
	err := h.cmd.Wait()
	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	h.exitCode = code
	s.lastExit.Store(&code)
	if h.output != nil {
		_ = h.output.Close()
	}
	close(h.done)

	fields := map[string]interface{}{logger.PIDKey: h.pid, "exit_code": code}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fields[logger.ErrorKey] = err
	}
	s.log.WithFields(fields).Debug("Daemon process reaped")
}

func (s *Supervisor) terminate(ctx context.Context, h *handle) error {
	if !h.alive() {
		return nil
	}

	var warn error
	if err := signalGroup(h.cmd.Process, false); err != nil {
		warn = err
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return stopWarning(h, warn)
	case <-timer.C:
		s.log.WithField(logger.PIDKey, h.pid).Warn("Daemon ignored SIGTERM, sending SIGKILL")
	case <-ctx.Done():
	}

	if err := signalGroup(h.cmd.Process, true); err != nil {
		warn = errors.Join(warn, err)
	}

	select {
	case <-h.done:
		return stopWarning(h, warn)
	case <-time.After(killWait):
		return fmt.Errorf("pid %d: %w", h.pid, ErrNotStopped)
	}
}

func stopWarning(h *handle, err error) error {
	if err == nil {
		return nil
	}
	return &StopWarning{PID: h.pid, Err: err}
}

// release forgets h. The reaper still owns its output and done channel.
func (s *Supervisor) release(h *handle) {
	s.cur.CompareAndSwap(h, nil)
}
