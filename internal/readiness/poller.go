// Package readiness turns "the daemon process is running" into "the daemon is ready".
package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apps78/cotune-bridge/internal/control"
)

const (
	DefaultInterval = time.Second
	DefaultTimeout  = 5 * time.Second
)

// Phase is a state of a single poll
type Phase int

const (
	PhaseProbing Phase = iota
	PhaseWaiting
	PhaseReady
	PhaseTimedOut
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseProbing:
		return "probing"
	case PhaseWaiting:
		return "waiting"
	case PhaseReady:
		return "ready"
	case PhaseTimedOut:
		return "timed_out"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StatusFunc performs one probe
type StatusFunc func(ctx context.Context) (control.NodeStatus, error)

// Ticker is the subset of time.Ticker the poller needs
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

// NewTimeTicker is the default Ticker factory
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{time.NewTicker(d)}
}

// Accept decides whether a status counts as ready
type Accept func(control.NodeStatus) bool

// AcceptRunning accepts any status reporting running
func AcceptRunning(st control.NodeStatus) bool {
	return st.Running
}

// AcceptRPC accepts only a running status reported by the daemon itself
func AcceptRPC(st control.NodeStatus) bool {
	return st.Running && st.Source == control.SourceRPC
}

// Outcome describes a finished poll
type Outcome struct {
	Phase    Phase
	Status   control.NodeStatus
	Attempts int
	Elapsed  time.Duration
}

// TimeoutError is returned when the deadline passes before readiness
type TimeoutError struct {
	Timeout    time.Duration
	Attempts   int
	LastStatus control.NodeStatus
	LastErr    error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("daemon not ready after %s (%d attempts): %v", e.Timeout, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("daemon not ready after %s (%d attempts)", e.Timeout, e.Attempts)
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// Poller probes at a fixed interval until ready, the deadline or cancellation
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
	Accept   Accept
	// NewTicker defaults to NewTimeTicker
	NewTicker func(time.Duration) Ticker
	// OnProbe, when set, observes every probe result
	OnProbe func(attempt int, st control.NodeStatus, err error)
}

func (p *Poller) normalized() Poller {
	q := *p
	if q.Interval <= 0 {
		q.Interval = DefaultInterval
	}
	if q.Timeout <= 0 {
		q.Timeout = DefaultTimeout
	}
	if q.Accept == nil {
		q.Accept = AcceptRunning
	}
	if q.NewTicker == nil {
		q.NewTicker = NewTimeTicker
	}
	return q
}

// MaxAttempts is the upper bound on probes for one Poll
func (p *Poller) MaxAttempts() int {
	q := p.normalized()
	return int(q.Timeout/q.Interval) + 1
}

// Poll probes immediately, then on every tick. It returns an Outcome in PhaseReady, a
// *TimeoutError, or the wrapped context error.
func (p *Poller) Poll(ctx context.Context, probe StatusFunc) (Outcome, error) {
	q := p.normalized()
	started := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, q.Timeout)
	defer cancel()

	deadline := time.NewTimer(q.Timeout)
	defer deadline.Stop()

	var (
		ticker   Ticker
		out      Outcome
		lastErr  error
		maxTries = q.MaxAttempts()
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	phase := PhaseProbing
	for {
		switch phase {
		case PhaseProbing:
			if err := ctx.Err(); err != nil {
				phase = PhaseCancelled
				continue
			}
			out.Attempts++
			st, err := probe(probeCtx)
			if q.OnProbe != nil {
				q.OnProbe(out.Attempts, st, err)
			}
			lastErr = err
			if err == nil {
				out.Status = st
				if q.Accept(st) {
					phase = PhaseReady
					continue
				}
			}
			if out.Attempts >= maxTries {
				phase = PhaseTimedOut
				continue
			}
			if ticker == nil {
				ticker = q.NewTicker(q.Interval)
			}
			phase = PhaseWaiting

		case PhaseWaiting:
			select {
			case <-ctx.Done():
				phase = PhaseCancelled
			case <-deadline.C:
				phase = PhaseTimedOut
			case <-ticker.C():
				phase = PhaseProbing
			}

		case PhaseReady:
			out.Phase = PhaseReady
			out.Elapsed = time.Since(started)
			return out, nil

		case PhaseTimedOut:
			out.Phase = PhaseTimedOut
			out.Elapsed = time.Since(started)
			return out, &TimeoutError{
				Timeout:    q.Timeout,
				Attempts:   out.Attempts,
				LastStatus: out.Status,
				LastErr:    lastErr,
			}

		case PhaseCancelled:
			out.Phase = PhaseCancelled
			out.Elapsed = time.Since(started)
			return out, fmt.Errorf("readiness poll cancelled: %w", ctx.Err())
		}
	}
}

// IsTimeout reports whether err is a readiness timeout
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
