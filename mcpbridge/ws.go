package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	loggerv2 "rhinobridge/logger/v2"
)

// WSConfig holds the listen settings for the WebSocket front-end.
type WSConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DefaultWSConfig returns the default bind address.
func DefaultWSConfig() WSConfig {
	return WSConfig{Host: "127.0.0.1", Port: 5000}
}

// Addr returns the host:port string to bind.
func (c WSConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// WSServer is the WebSocket front-end: one JSON-RPC message per text
// frame, one goroutine per client connection. Within a connection requests
// are handled strictly in arrival order; the shared backend client
// serializes access across connections.
type WSServer struct {
	cfg        WSConfig
	translator *Translator
	logger     loggerv2.Logger
	upgrader   websocket.Upgrader
}

// NewWSServer creates a WebSocket adapter for the given translator.
func NewWSServer(cfg WSConfig, translator *Translator, logger loggerv2.Logger) *WSServer {
	if cfg.Host == "" {
		cfg.Host = DefaultWSConfig().Host
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultWSConfig().Port
	}
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &WSServer{
		cfg:        cfg,
		translator: translator,
		logger:     logger,
		upgrader: websocket.Upgrader{
			// The bridge binds to loopback by default and carries no
			// credentials; browser origin checks don't apply to the
			// desktop tooling that connects here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler that upgrades connections. Exposed so
// the server can be mounted on an existing mux and driven by httptest.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	return mux
}

// ListenAndServe runs the server until the context is cancelled. A bind
// failure is returned immediately: it is the one unrecoverable startup
// error. The backend connection is released on shutdown.
func (s *WSServer) ListenAndServe(ctx context.Context) error {
	defer s.translator.Close()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.cfg.Addr(), err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("MCP server started", loggerv2.String("addr", "ws://"+s.cfg.Addr()))
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", err, loggerv2.String("remote", r.RemoteAddr))
		return
	}

	connLogger := s.logger.With(
		loggerv2.String("conn", uuid.NewString()[:8]),
		loggerv2.String("remote", r.RemoteAddr))
	connLogger.Info("Client connected")

	// Warm up the backend for this connection. A failure is not fatal:
	// each invocation re-attempts and reports InternalError on its own.
	if err := s.translator.EnsureConnected(r.Context()); err != nil {
		connLogger.Warn("Backend not reachable on connect", loggerv2.Error(err))
	}

	defer func() {
		_ = conn.Close()
		connLogger.Info("Client disconnected")
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				connLogger.Warn("Connection error", loggerv2.Error(err))
			}
			return
		}

		resp, done := s.handleFrame(r.Context(), raw, connLogger)
		if resp != nil {
			encoded, err := json.Marshal(resp)
			if err != nil {
				connLogger.Error("Failed to encode response", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
				connLogger.Error("Failed to write response", err)
				return
			}
		}
		if done {
			return
		}
	}
}

// handleFrame processes one frame. Failures are scoped to the frame: a
// parse error yields a -32700 response, a panic a -32603 response, and in
// both cases the connection stays open.
func (s *WSServer) handleFrame(ctx context.Context, raw []byte, connLogger loggerv2.Logger) (resp *Response, done bool) {
	var req Request

	defer func() {
		if r := recover(); r != nil {
			connLogger.Error("Panic while handling frame", fmt.Errorf("%v", r),
				loggerv2.String("method", req.Method))
			done = false
			if req.IsNotification() {
				resp = nil
				return
			}
			resp = NewErrorResponse(req.ID, NewError(CodeInternalError, "internal error: %v", r))
		}
	}()

	if err := json.Unmarshal(raw, &req); err != nil {
		connLogger.Warn("Malformed JSON frame", loggerv2.Error(err))
		return NewErrorResponse(nil, NewError(CodeParseError, "Parse error")), false
	}
	if req.Method == "" {
		return NewErrorResponse(req.ID, NewError(CodeInvalidRequest, "Invalid request: no method")), false
	}

	connLogger.Debug("Received request", loggerv2.String("method", req.Method))

	resp, err := s.translator.HandleRequest(ctx, &req)
	if errors.Is(err, ErrSessionEnd) {
		// Exit is scoped to the requesting connection; the server keeps
		// serving other clients.
		return nil, true
	}
	return resp, false
}
