// Package webserver exposes the command router over loopback HTTP
package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/apps78/cotune-bridge/internal/logger"
	"github.com/apps78/cotune-bridge/internal/router"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Defaults for zero-valued Config fields
const (
	DefaultAddr            = "127.0.0.1:10333"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Commander runs router commands. *router.Router implements it.
type Commander interface {
	Submit(ctx context.Context, cmd router.Command) <-chan router.Result
	PeerInfoQR(ctx context.Context, size int) router.Result
}

var _ Commander = (*router.Router)(nil)

// Config holds HTTP server settings
type Config struct {
	Addr string
	// RequestTimeout bounds one command, including a full node start
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// WebServer represents the loopback HTTP API
type WebServer struct {
	config   Config
	commands Commander
	server   *http.Server
	router   *chi.Mux
	listener net.Listener
	log      logger.Logger
}

// NewWebServer creates a WebServer serving commands
func NewWebServer(cfg Config, commands Commander) *WebServer {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	log := logger.OrDiscard(cfg.Logger)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	ws := &WebServer{
		config:   cfg,
		commands: commands,
		router:   r,
		log:      log,
	}
	ws.setupRoutes()
	return ws
}

// Router returns the chi router to allow adding routes from outside
func (ws *WebServer) Router() *chi.Mux {
	return ws.router
}

func (ws *WebServer) setupRoutes() {
	ws.router.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})

	ws.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/commands/{command}", ws.handleCommand())

		r.Route("/node", func(r chi.Router) {
			r.Post("/start", ws.handleNamed(router.CmdStartNode, true))
			r.Post("/stop", ws.handleNamed(router.CmdStopNode, false))
			r.Get("/status", ws.handleNamed(router.CmdStatus, false))
			r.Get("/info", ws.handleNamed(router.CmdNodeInfo, false))
			r.Get("/peerinfo", ws.handleNamed(router.CmdPeerInfoJSON, false))
			r.Get("/peers", ws.handleNamed(router.CmdKnownPeers, false))
			r.Get("/peerinfo/qr", ws.handlePeerInfoQR())
		})
	})
}

// Addr returns the bound address once started, else the configured one
func (ws *WebServer) Addr() string {
	if ws.listener != nil {
		return ws.listener.Addr().String()
	}
	return ws.config.Addr
}

// Start binds the listener and serves in the background
func (ws *WebServer) Start() error {
	listener, err := net.Listen("tcp", ws.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.config.Addr, err)
	}
	ws.listener = listener

	ws.server = &http.Server{
		Handler:           ws.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      ws.config.RequestTimeout + 5*time.Second,
		IdleTimeout:       time.Minute,
	}

	go func() {
		if err := ws.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ws.log.WithField(logger.ErrorKey, err.Error()).Error("HTTP server failed")
		}
	}()

	ws.log.WithField(logger.EndpointKey, ws.Addr()).Info("HTTP API listening")
	return nil
}

// Stop gracefully shuts down the server with a timeout
func (ws *WebServer) Stop(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ws.config.ShutdownTimeout)
	defer cancel()

	return ws.server.Shutdown(ctx)
}
