package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/google/uuid"
)

// Commander defines an interface for sending commands to the daemon
type Commander interface {
	// Execute sends a command to the daemon and returns the response
	Execute(ctx context.Context, command string, args router.Args) (*Response, error)
	// IsRunning checks if the daemon is running and responsive
	IsRunning(ctx context.Context) (bool, string)
}

// ConnectionProvider defines an interface for creating connections to the daemon
type ConnectionProvider interface {
	// Connect establishes a connection to the daemon
	Connect(ctx context.Context) (net.Conn, error)
}

// UnixSocketProvider provides connections to a Unix socket
type UnixSocketProvider struct {
	SocketPath string
	Timeout    time.Duration
}

// Connect implements ConnectionProvider.Connect
func (p *UnixSocketProvider) Connect(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: p.Timeout}
	return d.DialContext(ctx, "unix", p.SocketPath)
}

// DaemonClient implements Commander using a ConnectionProvider
type DaemonClient struct {
	Provider     ConnectionProvider
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

var _ Commander = (*DaemonClient)(nil)

// NewClient creates a DaemonClient with a UnixSocketProvider. The read timeout covers a
// full node start; a context deadline, when set, takes precedence.
func NewClient(socketPath string) *DaemonClient {
	return &DaemonClient{
		Provider: &UnixSocketProvider{
			SocketPath: socketPath,
			Timeout:    2 * time.Second,
		},
		ReadTimeout:  DefaultCommandExecTimeout + 5*time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

func deadline(ctx context.Context, d time.Duration) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	if d <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d)
}

// Execute implements Commander.Execute
func (c *DaemonClient) Execute(ctx context.Context, command string, args router.Args) (*Response, error) {
	conn, err := c.Provider.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := Request{ID: uuid.NewString(), Command: command, Args: args}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	if err := conn.SetWriteDeadline(deadline(ctx, c.WriteTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	if err := conn.SetReadDeadline(deadline(ctx, c.ReadTimeout)); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	raw, err := readLine(bufio.NewReader(conn))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	return &resp, nil
}

// Call executes command and folds transport errors into an UNAVAILABLE result
func (c *DaemonClient) Call(ctx context.Context, command string, args router.Args) router.Result {
	resp, err := c.Execute(ctx, command, args)
	if err != nil {
		return router.Failure(router.KindUnavailable, "%v", err)
	}
	return resp.Result()
}

// IsRunning implements Commander.IsRunning
func (c *DaemonClient) IsRunning(ctx context.Context) (bool, string) {
	resp, err := c.Execute(ctx, CmdPing, nil)
	if err != nil {
		return false, "not running: " + err.Error()
	}

	var pong string
	if err := resp.Decode(&pong); err != nil || pong != PongPayload {
		return false, fmt.Sprintf("unexpected response: %s", resp.Payload)
	}
	return true, "running"
}

// Shutdown asks the daemon to stop
func (c *DaemonClient) Shutdown(ctx context.Context) error {
	resp, err := c.Execute(ctx, CmdShutdown, nil)
	if err != nil {
		return err
	}
	return resp.Result().Err()
}
