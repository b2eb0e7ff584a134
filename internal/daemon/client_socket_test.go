package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeProvider answers each connection with reply(request) over net.Pipe
type pipeProvider struct {
	reply      func(req Request) string
	connectErr error
}

func (p *pipeProvider) Connect(ctx context.Context) (net.Conn, error) {
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	client, server := net.Pipe()
	go func() {
		defer server.Close()
		line, err := bufio.NewReader(server).ReadBytes('\n')
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			return
		}
		out := p.reply(req)
		if out == "" {
			return
		}
		_, _ = server.Write([]byte(out + "\n"))
	}()
	return client, nil
}

func testClient(p ConnectionProvider) *DaemonClient {
	return &DaemonClient{Provider: p, ReadTimeout: time.Second, WriteTimeout: time.Second}
}

func TestDaemonClient_Execute(t *testing.T) {
	tests := []struct {
		name    string
		reply   func(req Request) string
		connect error
		wantErr string
		check   func(t *testing.T, resp *Response)
	}{
		{
			name: "success",
			reply: func(req Request) string {
				return `{"id":"` + req.ID + `","ok":true,"payload":"pong"}`
			},
			check: func(t *testing.T, resp *Response) {
				assert.True(t, resp.OK)
				assert.JSONEq(t, `"pong"`, string(resp.Payload))
			},
		},
		{
			name: "failure result is not a transport error",
			reply: func(req Request) string {
				return `{"id":"` + req.ID + `","ok":false,"error":{"kind":"NO_BINARY","message":"missing"}}`
			},
			check: func(t *testing.T, resp *Response) {
				res := resp.Result()
				assert.False(t, res.OK)
				assert.Equal(t, router.KindNoBinary, res.Kind)
				assert.Equal(t, "missing", res.Message)
			},
		},
		{
			name:    "connect error",
			connect: errors.New("connection refused"),
			wantErr: "failed to connect to daemon",
		},
		{
			name:    "mismatched id",
			reply:   func(Request) string { return `{"id":"other","ok":true}` },
			wantErr: "does not match",
		},
		{
			name:    "garbage response",
			reply:   func(Request) string { return `not json` },
			wantErr: "failed to decode response",
		},
		{
			name:    "connection closed without reply",
			reply:   func(Request) string { return "" },
			wantErr: "failed to read response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testClient(&pipeProvider{reply: tt.reply, connectErr: tt.connect})
			resp, err := c.Execute(context.Background(), CmdPing, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, resp)
		})
	}
}

func TestDaemonClient_ContextCancelled(t *testing.T) {
	c := testClient(&pipeProvider{reply: func(Request) string {
		time.Sleep(500 * time.Millisecond)
		return ""
	}})
	c.ReadTimeout = 0

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Execute(ctx, router.CmdStartNode, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDaemonClient_Call(t *testing.T) {
	c := testClient(&pipeProvider{connectErr: errors.New("no socket")})
	res := c.Call(context.Background(), router.CmdStatus, nil)
	assert.Equal(t, router.KindUnavailable, res.Kind)
}

func TestDaemonClient_IsRunning(t *testing.T) {
	tests := []struct {
		name   string
		reply  func(req Request) string
		want   bool
		detail string
	}{
		{
			name:   "pong",
			reply:  func(req Request) string { return `{"id":"` + req.ID + `","ok":true,"payload":"pong"}` },
			want:   true,
			detail: "running",
		},
		{
			name:   "unexpected payload",
			reply:  func(req Request) string { return `{"id":"` + req.ID + `","ok":true,"payload":"hello"}` },
			detail: "unexpected response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			running, detail := testClient(&pipeProvider{reply: tt.reply}).IsRunning(context.Background())
			assert.Equal(t, tt.want, running)
			assert.Contains(t, detail, tt.detail)
		})
	}
}

func TestResponse_Decode(t *testing.T) {
	ok := &Response{ID: "1", OK: true, Payload: json.RawMessage(`{"process":{"state":"running","alive":true,"pid":7},"capability":"rich"}`)}
	var sum NodeSummary
	require.NoError(t, ok.Decode(&sum))
	assert.Equal(t, "running", sum.Process.State)
	assert.Equal(t, 7, sum.Process.PID)
	assert.Equal(t, "rich", sum.Capability)

	failed := &Response{ID: "2", Error: &ErrorBody{Kind: router.KindStatusError, Message: "boom"}}
	var cmdErr *router.Error
	require.ErrorAs(t, failed.Decode(&sum), &cmdErr)
	assert.Equal(t, router.KindStatusError, cmdErr.Kind)

	empty := &Response{ID: "3", OK: true}
	assert.Error(t, empty.Decode(&sum))
}

func TestNewResponse(t *testing.T) {
	resp := newResponse("x", router.Success(func() {}))
	assert.False(t, resp.OK)
	assert.Equal(t, KindEncodeError, resp.Error.Kind)

	resp = newResponse("y", router.Success(nil))
	assert.True(t, resp.OK)
	assert.Empty(t, resp.Payload)
}
