package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// StatusFor maps a failed command kind to an HTTP status code
func StatusFor(kind router.Kind) int {
	switch kind {
	case router.KindBadArgs, router.KindQRError:
		return http.StatusBadRequest
	case router.KindUnknownCommand:
		return http.StatusNotFound
	case router.KindStartTimeout:
		return http.StatusGatewayTimeout
	case router.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, res router.Result) {
	status := http.StatusOK
	if !res.OK {
		status = StatusFor(res.Kind)
	}

	body, err := json.Marshal(res)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// decodeArgs reads an optional JSON object body
func decodeArgs(r *http.Request) (router.Args, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, errors.New("request body too large")
	}
	if len(body) == 0 {
		return nil, nil
	}

	var args router.Args
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return args, nil
}

// run submits one command. The write deadline follows the command's own timeout so a long
// start is not cut off by the server's WriteTimeout.
func (ws *WebServer) run(w http.ResponseWriter, r *http.Request, name string, args router.Args) router.Result {
	cmd := router.Command{Name: name, Args: args}
	timeout := router.ExecTimeout(cmd, ws.config.RequestTimeout)
	if timeout > ws.config.RequestTimeout {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(timeout + 5*time.Second))
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	return <-ws.commands.Submit(ctx, cmd)
}

// handleCommand runs any router command named in the path
func (ws *WebServer) handleCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		args, err := decodeArgs(r)
		if err != nil {
			writeResult(w, router.Failure(router.KindBadArgs, "%v", err))
			return
		}
		writeResult(w, ws.run(w, r, chi.URLParam(r, "command"), args))
	}
}

func (ws *WebServer) handleNamed(name string, withArgs bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var args router.Args
		if withArgs {
			var err error
			if args, err = decodeArgs(r); err != nil {
				writeResult(w, router.Failure(router.KindBadArgs, "%v", err))
				return
			}
		}
		writeResult(w, ws.run(w, r, name, args))
	}
}

// handlePeerInfoQR renders the node's current peer info as image/png
func (ws *WebServer) handlePeerInfoQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := 0
		if raw := r.URL.Query().Get("size"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeResult(w, router.Failure(router.KindBadArgs, "size must be an integer: %v", err))
				return
			}
			size = n
		}

		ctx, cancel := context.WithTimeout(r.Context(), ws.config.RequestTimeout)
		defer cancel()

		res := ws.commands.PeerInfoQR(ctx, size)
		png, isPNG := res.Payload.([]byte)
		if !res.OK || !isPNG {
			writeResult(w, res)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}
