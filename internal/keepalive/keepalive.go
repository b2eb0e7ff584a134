// Package keepalive holds the host-level obligation to keep the node's process group alive
// while it runs.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/apps78/cotune-bridge/internal/config"
	"github.com/apps78/cotune-bridge/internal/logger"
)

// Holder is a lease acquired when the node starts and released when it stops.
// Acquire and Release are idempotent.
type Holder interface {
	Acquire(ctx context.Context) error
	Release() error
	Held() bool
}

// DefaultInhibitCommand blocks sleep and idle for as long as it runs
var DefaultInhibitCommand = []string{
	"systemd-inhibit",
	"--what=sleep:idle",
	"--who=cotune-bridge",
	"--why=cotune node running",
	"sleep", "infinity",
}

// New returns the Holder selected by cfg
func New(cfg config.KeepAliveConfig, log logger.Logger) Holder {
	if cfg.Mode == config.KeepAliveInhibit {
		return NewInhibitor(cfg.Command, log)
	}
	return &Noop{}
}

// Noop tracks the lease without touching the host
type Noop struct {
	mu   sync.Mutex
	held bool
}

func (n *Noop) Acquire(context.Context) error {
	n.mu.Lock()
	n.held = true
	n.mu.Unlock()
	return nil
}

func (n *Noop) Release() error {
	n.mu.Lock()
	n.held = false
	n.mu.Unlock()
	return nil
}

func (n *Noop) Held() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.held
}

// Inhibitor holds the lease as a long-running child process
type Inhibitor struct {
	command []string
	log     logger.Logger
	// settle is how long the child must survive before Acquire succeeds
	settle time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewInhibitor creates an Inhibitor running command, or DefaultInhibitCommand when empty
func NewInhibitor(command []string, log logger.Logger) *Inhibitor {
	if len(command) == 0 {
		command = DefaultInhibitCommand
	}
	return &Inhibitor{
		command: append([]string(nil), command...),
		log:     logger.OrDiscard(log),
		settle:  200 * time.Millisecond,
	}
}

func (i *Inhibitor) heldLocked() bool {
	if i.done == nil {
		return false
	}
	select {
	case <-i.done:
		return false
	default:
		return true
	}
}

// Acquire starts the inhibitor process unless it is already running
func (i *Inhibitor) Acquire(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.heldLocked() {
		return nil
	}

	cmd := exec.Command(i.command[0], i.command[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start keep-alive %s: %w", i.command[0], err)
	}

	done := make(chan struct{})
	var waitErr error
	go func() {
		waitErr = cmd.Wait()
		close(done)
	}()

	timer := time.NewTimer(i.settle)
	defer timer.Stop()

	select {
	case <-done:
		return fmt.Errorf("keep-alive %s exited immediately: %v", i.command[0], waitErr)
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	case <-timer.C:
	}

	i.cmd = cmd
	i.done = done
	i.log.WithField(logger.PIDKey, cmd.Process.Pid).Info("Keep-alive acquired")
	return nil
}

// Release stops the inhibitor process
func (i *Inhibitor) Release() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.heldLocked() {
		i.cmd, i.done = nil, nil
		return nil
	}

	err := i.cmd.Process.Kill()
	<-i.done
	pid := i.cmd.Process.Pid
	i.cmd, i.done = nil, nil

	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("release keep-alive: %w", err)
	}
	i.log.WithField(logger.PIDKey, pid).Info("Keep-alive released")
	return nil
}

// Held reports whether the inhibitor process is running
func (i *Inhibitor) Held() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.heldLocked()
}
