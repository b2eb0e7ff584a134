package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/apps78/cotune-bridge/internal/bridge"
	"github.com/apps78/cotune-bridge/internal/control"
	"github.com/apps78/cotune-bridge/internal/endpoint"
	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/qr"
	"github.com/apps78/cotune-bridge/internal/readiness"
	"github.com/apps78/cotune-bridge/internal/supervisor"
)

// Payloads of the lifecycle commands
const (
	PayloadStarted = "started"
	PayloadStopped = "stopped"
)

// PeerInfoPayload is the JSON shape returned by getPeerInfoJson
type PeerInfoPayload struct {
	PeerID string   `json:"peerId"`
	Addrs  []string `json:"addrs"`
	TS     int64    `json:"ts"`
}

func startArgs(a Args) (endpoint.Args, error) {
	var (
		out  endpoint.Args
		errs []error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	out.Proto, err = a.String("proto")
	collect(err)
	out.HTTP, err = a.String("http")
	collect(err)
	out.Listen, err = a.String("listen")
	collect(err)
	out.BasePath, err = a.String("basePath")
	collect(err)
	out.Relays, err = a.StringList("relays")
	collect(err)
	out.EnableRelay, err = a.Bool("enableRelay")
	collect(err)

	ms, ok, err := a.Int("timeoutMs")
	collect(err)
	if ok && err == nil {
		if ms < 0 {
			errs = append(errs, errors.New(`argument "timeoutMs" must not be negative`))
		}
		out.Timeout = time.Duration(ms) * time.Millisecond
	}

	return out, errors.Join(errs...)
}

func (r *Router) startNode(ctx context.Context, a Args) Result {
	args, err := startArgs(a)
	if err != nil {
		return Failure(KindBadArgs, "%v", err)
	}
	req, err := r.backend.Resolve(args)
	if err != nil {
		return Failure(KindBadArgs, "%v", err)
	}

	out, err := r.backend.StartNode(ctx, req)
	if err != nil {
		return startFailure(err)
	}
	if out.Ready && len(out.Status.Raw) > 0 {
		return Success(json.RawMessage(out.Status.Raw))
	}
	return Success(PayloadStarted)
}

func startFailure(err error) Result {
	var (
		spawnErr *supervisor.SpawnError
		diedErr  *supervisor.DiedError
	)
	switch {
	case errors.As(err, &spawnErr) && spawnErr.Reason == supervisor.ReasonNoBinary:
		return Failure(KindNoBinary, "%v", err)
	case errors.As(err, &spawnErr):
		return Failure(KindStartFailed, "%v", err)
	case errors.As(err, &diedErr):
		return Failure(KindProcessDied, "%v", err)
	case readiness.IsTimeout(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return Failure(KindStartTimeout, "%v", err)
	case errors.Is(err, bridge.ErrClosed):
		return Failure(KindUnavailable, "%v", err)
	default:
		return Failure(KindStartFailed, "%v", err)
	}
}

func (r *Router) stopNode(ctx context.Context, _ Args) Result {
	if err := r.backend.StopNode(ctx); err != nil {
		return Failure(KindStopError, "%v", err)
	}
	return Success(PayloadStopped)
}

// status coalesces identical concurrent queries into one control call
func (r *Router) status(ctx context.Context, _ Args) Result {
	ch := r.flight.DoChan(CmdStatus, func() (interface{}, error) {
		return r.backend.Status(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return Failure(KindStatusError, "%v", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Failure(KindStatusError, "%v", res.Err)
		}
		st := res.Val.(control.NodeStatus)
		if len(st.Raw) == 0 {
			raw, err := json.Marshal(map[string]bool{"running": st.Running})
			if err != nil {
				return Failure(KindStatusError, "%v", err)
			}
			return Success(json.RawMessage(raw))
		}
		return Success(json.RawMessage(st.Raw))
	}
}

func (r *Router) peerInfoPayload(ctx context.Context) ([]byte, error) {
	info := r.backend.PeerInfo(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	addrs := info.Addresses
	if addrs == nil {
		addrs = []string{}
	}
	return json.Marshal(PeerInfoPayload{
		PeerID: info.PeerID,
		Addrs:  addrs,
		TS:     r.now().UnixMilli(),
	})
}

func (r *Router) peerInfoJSON(ctx context.Context, _ Args) Result {
	b, err := r.peerInfoPayload(ctx)
	if err != nil {
		return Failure(KindPeerInfoError, "%v", err)
	}
	return Success(json.RawMessage(b))
}

func (r *Router) peerInfoQR(_ context.Context, a Args) Result {
	payload, ok := a.Text("peerInfo")
	if !ok {
		return Failure(KindQRError, "peerInfo is required")
	}

	size, _, err := a.Int("size")
	if err != nil {
		return Failure(KindQRError, "%v", err)
	}

	png, err := qr.Render(payload, size)
	if err != nil {
		return Failure(KindQRError, "%v", err)
	}
	return Success(png)
}

func (r *Router) knownPeers(ctx context.Context, _ Args) Result {
	peers, err := r.backend.KnownPeers(ctx)
	if err != nil {
		return Failure(KindPeersError, "%v", err)
	}
	b, err := json.Marshal(peers)
	if err != nil {
		return Failure(KindPeersError, "%v", err)
	}
	return Success(json.RawMessage(b))
}

func (r *Router) nodeInfo(_ context.Context, _ Args) Result {
	info := r.backend.Info()
	r.log.WithField(logger.StateKey, info.Process.State.String()).Debug("Node info requested")
	return Success(info)
}

// PeerInfoQR renders the current peer info as a QR PNG. It backs the HTTP QR endpoint,
// which has no peerInfo argument of its own.
func (r *Router) PeerInfoQR(ctx context.Context, size int) Result {
	b, err := r.peerInfoPayload(ctx)
	if err != nil {
		return Failure(KindPeerInfoError, "%v", err)
	}
	return r.Dispatch(ctx, Command{Name: CmdPeerInfoQR, Args: Args{"peerInfo": string(b), "size": size}})
}
