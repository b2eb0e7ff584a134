// Package daemon serves the command router to local front ends over a unix socket
// speaking newline-delimited JSON.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/google/uuid"
)

// Defaults for zero-valued Config fields
const (
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultReadTimeout        = 5 * time.Minute
	DefaultWriteTimeout       = 10 * time.Second
	DefaultCommandExecTimeout = 30 * time.Second
)

const maxLineBytes = 1 << 20

// ErrAlreadyRunning is returned by Start when another daemon answers on the socket
var ErrAlreadyRunning = errors.New("daemon already running")

// Dispatcher runs router commands. *router.Router implements it.
type Dispatcher interface {
	Submit(ctx context.Context, cmd router.Command) <-chan router.Result
}

// Config holds socket server settings
type Config struct {
	SocketPath      string
	ShutdownTimeout time.Duration
	// ReadTimeout closes connections that send nothing for this long
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CommandExecTimeout time.Duration
	// MaxConnections of zero means unlimited
	MaxConnections int
	Logger         logger.Logger
}

// Daemon is the unix socket server
type Daemon struct {
	config      Config
	dispatcher  Dispatcher
	listener    net.Listener
	stopOnce    sync.Once
	stopChan    chan struct{}
	done        chan struct{}
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	connections map[net.Conn]struct{}
	connMu      sync.RWMutex
	logger      logger.Logger
}

// NewDaemon creates a Daemon that forwards commands to dispatcher
func NewDaemon(cfg Config, dispatcher Dispatcher) *Daemon {
	cfg.Logger = logger.OrDiscard(cfg.Logger)
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.CommandExecTimeout == 0 {
		cfg.CommandExecTimeout = DefaultCommandExecTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		config:      cfg,
		dispatcher:  dispatcher,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
		baseCtx:     ctx,
		cancel:      cancel,
		connections: make(map[net.Conn]struct{}),
		logger:      cfg.Logger.WithField("socket", cfg.SocketPath),
	}
}

// SocketPath returns the path the daemon listens on
func (d *Daemon) SocketPath() string {
	return d.config.SocketPath
}

// Done is closed once Stop has finished
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Start listens on the socket and serves connections in the background
func (d *Daemon) Start() error {
	select {
	case <-d.stopChan:
		return errors.New("daemon is stopped or stopping")
	default:
	}

	if err := os.MkdirAll(filepath.Dir(d.config.SocketPath), 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := removeStaleSocket(d.config.SocketPath, d.logger); err != nil {
		return err
	}

	restoreUmask := setSocketUmask(d.logger)
	listener, err := net.Listen("unix", d.config.SocketPath)
	restoreUmask()
	if err != nil {
		d.logger.WithField(logger.ErrorKey, err.Error()).Error("Failed to listen on socket")
		return fmt.Errorf("failed to listen on socket %s: %w", d.config.SocketPath, err)
	}

	if err = os.Chmod(d.config.SocketPath, 0o660); err != nil {
		listener.Close()
		os.Remove(d.config.SocketPath)
		return fmt.Errorf("failed to set socket permissions for %s: %w", d.config.SocketPath, err)
	}
	d.listener = listener

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.acceptConnections()
	}()

	d.logger.Info("Daemon listening")
	return nil
}

// Stop closes the listener and every connection, then removes the socket file.
// It is safe to call more than once.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		defer close(d.done)
		d.logger.Info("Initiating daemon shutdown")
		close(d.stopChan)

		if d.listener != nil {
			if err := d.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				d.logger.WithField(logger.ErrorKey, err.Error()).Error("Error closing listener")
			}
		}

		d.cancel()
		d.closeConnections()

		finished := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(finished)
		}()

		select {
		case <-finished:
		case <-time.After(d.config.ShutdownTimeout):
			d.logger.Warn("Shutdown timeout exceeded waiting for active connections")
		}

		if d.listener != nil {
			if err := os.Remove(d.config.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				d.logger.WithField(logger.ErrorKey, err.Error()).Error("Failed to remove socket file")
			}
		}
		d.logger.Info("Daemon stopped")
	})
}

func (d *Daemon) closeConnections() {
	d.connMu.Lock()
	conns := make([]net.Conn, 0, len(d.connections))
	for conn := range d.connections {
		conns = append(conns, conn)
	}
	d.connections = make(map[net.Conn]struct{})
	d.connMu.Unlock()

	if len(conns) > 0 {
		d.logger.Infof("Closing %d active client connections", len(conns))
	}
	for _, c := range conns {
		c.Close()
	}
}

func (d *Daemon) track(conn net.Conn) bool {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	if d.config.MaxConnections > 0 && len(d.connections) >= d.config.MaxConnections {
		return false
	}
	d.connections[conn] = struct{}{}
	return true
}

func (d *Daemon) untrack(conn net.Conn) {
	d.connMu.Lock()
	delete(d.connections, conn)
	d.connMu.Unlock()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.stopChan:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.WithField(logger.ErrorKey, err.Error()).Error("Daemon accept error")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		select {
		case <-d.stopChan:
			conn.Close()
			continue
		default:
		}

		if !d.track(conn) {
			d.logger.Warn("Connection limit reached, rejecting client")
			d.writeResponse(conn, newResponse("", router.Failure(router.KindUnavailable,
				"connection limit of %d reached", d.config.MaxConnections)))
			conn.Close()
			continue
		}

		d.wg.Add(1)
		go func(c net.Conn) {
			defer d.wg.Done()
			d.handleConnection(c)
		}(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer func() {
		conn.Close()
		d.untrack(conn)
	}()

	reader := bufio.NewReaderSize(conn, 64*1024)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(d.config.ReadTimeout)); err != nil {
			return
		}
		line, err := readLine(reader)
		_ = conn.SetReadDeadline(time.Time{})

		if err != nil {
			var netErr net.Error
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.As(err, &netErr) && netErr.Timeout():
				d.logger.Debug("Idle client connection timed out")
			default:
				d.logger.WithField(logger.ErrorKey, err.Error()).Warn("Error reading from client")
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		resp, stop := d.handleLine(line)
		if err := d.writeResponse(conn, resp); err != nil {
			return
		}
		if stop {
			go d.Stop()
			return
		}
	}
}

// handleLine answers one request line. stop reports a shutdown request.
func (d *Daemon) handleLine(line string) (resp Response, stop bool) {
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		d.logger.WithField("line", sanitize(truncate(line, 120))).Warn("Malformed request")
		return newResponse("", router.Failure(router.KindBadArgs, "malformed request: %v", err)), false
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	log := d.logger.WithFields(map[string]interface{}{
		logger.RequestIDKey: req.ID,
		logger.CommandKey:   sanitize(req.Command),
	})

	switch req.Command {
	case CmdPing:
		return newResponse(req.ID, router.Success(PongPayload)), false
	case CmdShutdown:
		log.Info("Shutdown requested by client")
		return newResponse(req.ID, router.Success(ShutdownPayload)), true
	}

	cmd := router.Command{Name: req.Command, Args: req.Args}
	ctx, cancel := context.WithTimeout(d.baseCtx, router.ExecTimeout(cmd, d.config.CommandExecTimeout))
	defer cancel()

	start := time.Now()
	res := <-d.dispatcher.Submit(ctx, cmd)
	log.WithField(logger.DurationKey, time.Since(start).String()).Debug("Request handled")
	return newResponse(req.ID, res), false
}

func (d *Daemon) writeResponse(conn net.Conn, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	if err := conn.SetWriteDeadline(time.Now().Add(d.config.WriteTimeout)); err != nil {
		return err
	}
	defer func() {
		_ = conn.SetWriteDeadline(time.Time{})
	}()

	if _, err := conn.Write(b); err != nil {
		if !errors.Is(err, net.ErrClosed) {
			d.logger.WithFields(map[string]interface{}{
				logger.RequestIDKey: resp.ID,
				logger.ErrorKey:     err.Error(),
			}).Warn("Failed to write response")
		}
		return err
	}
	return nil
}

// readLine reads one newline-terminated line of at most maxLineBytes
func readLine(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		chunk, err := r.ReadSlice('\n')
		sb.Write(chunk)
		if sb.Len() > maxLineBytes {
			return "", fmt.Errorf("request line exceeds %d bytes", maxLineBytes)
		}
		switch {
		case err == nil:
			return sb.String(), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && sb.Len() > 0:
			return sb.String(), nil
		default:
			return "", err
		}
	}
}
