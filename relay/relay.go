// Package relay implements the stdio↔WebSocket forwarder used by clients
// that speak the line protocol but cannot open WebSocket connections
// themselves. It inspects nothing: bytes in, frames out, and back.
package relay

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/gorilla/websocket"

	loggerv2 "rhinobridge/logger/v2"
)

// Config holds the relay target.
type Config struct {
	// URL of the WebSocket front-end to forward to.
	URL string `json:"url"`
}

// DefaultConfig returns the default front-end location.
func DefaultConfig() Config {
	return Config{URL: "ws://127.0.0.1:5000"}
}

// Run connects to the WebSocket front-end and forwards until either
// direction ends: stdin lines become text frames, frames become stdout
// lines. The first EOF or error on either side cancels both loops.
func Run(ctx context.Context, cfg Config, in io.Reader, out io.Writer, logger loggerv2.Logger) error {
	if cfg.URL == "" {
		cfg.URL = DefaultConfig().URL
	}
	if logger == nil {
		logger = loggerv2.NewNoop()
	}

	logger.Info("Connecting to MCP server", loggerv2.String("url", cfg.URL))
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	logger.Info("Connected to MCP server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Closing the connection is the only way to unblock a pending
	// ReadMessage, so cancellation funnels through it.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	errCh := make(chan error, 2)

	go func() {
		errCh <- forwardStdinToSocket(in, conn, logger)
	}()
	go func() {
		errCh <- forwardSocketToStdout(conn, out, logger)
	}()

	err = <-errCh
	cancel()

	if err == nil || err == io.EOF {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		logger.Info("WebSocket connection closed")
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func forwardStdinToSocket(in io.Reader, conn *websocket.Conn, logger loggerv2.Logger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		logger.Debug("Forwarding to socket", loggerv2.Int("bytes", len(line)))
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	logger.Info("End of stdin, closing connection")
	return io.EOF
}

func forwardSocketToStdout(conn *websocket.Conn, out io.Writer, logger loggerv2.Logger) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		logger.Debug("Forwarding to stdout", loggerv2.Int("bytes", len(message)))
		if _, err := out.Write(append(message, '\n')); err != nil {
			return err
		}
	}
}
