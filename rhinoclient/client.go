// Package rhinoclient implements the TCP client side of the Rhino bridge
// protocol. Each command is one JSON document of the form {"type": ...,
// "data": ...}; the bridge answers with exactly one JSON reply. The protocol
// has no request ids, so a connection supports one in-flight command at a
// time and Send serializes the full send+receive cycle.
package rhinoclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	loggerv2 "rhinobridge/logger/v2"
)

// State describes the backend connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Config holds the connection settings for the Rhino bridge server.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// Timeout bounds each Send cycle (write plus reply read). The wire
	// protocol has no heartbeats, so without a bound a dead peer would
	// block a call forever. Expiry surfaces as a TransportError.
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns the default bridge location used by the Rhino plugin.
func DefaultConfig() Config {
	return Config{
		Host:    "127.0.0.1",
		Port:    8888,
		Timeout: 30 * time.Second,
	}
}

// Addr returns the host:port string of the bridge server.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// Command is one framed request to the bridge server.
type Command struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Reply is the bridge server's answer to a single command.
type Reply struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Traceback string         `json:"traceback,omitempty"`
}

// IsSuccess reports whether the bridge accepted the command. A missing or
// unrecognized status counts as failure.
func (r *Reply) IsSuccess() bool {
	return r != nil && r.Status == "success"
}

// Point3D is a point in Rhino model space.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Client is a TCP client for the Rhino bridge server. One TCP stream per
// instance, no pooling: the host application under control is
// single-instance. The zero value is not usable; use New.
type Client struct {
	cfg    Config
	logger loggerv2.Logger

	mu    sync.Mutex
	conn  net.Conn
	dec   *json.Decoder
	state State
}

// New creates a client for the given bridge location. No connection is
// opened until Connect is called.
func New(cfg Config, logger loggerv2.Logger) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultConfig().Host
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if logger == nil {
		logger = loggerv2.NewNoop()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
	}
}

// Addr returns the configured bridge address.
func (c *Client) Addr() string { return c.cfg.Addr() }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the bridge server. Calling Connect while connected is a
// no-op. A failed attempt leaves the client disconnected and returns a
// *ConnectError naming the target address.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected {
		return nil
	}
	c.state = StateConnecting

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr())
	if err != nil {
		c.state = StateDisconnected
		return &ConnectError{Addr: c.cfg.Addr(), Err: err}
	}

	c.conn = conn
	// The decoder persists across calls: it reads a full JSON document per
	// Decode regardless of how the kernel chunks the stream, which closes
	// the partial-read gap a single recv would have.
	c.dec = json.NewDecoder(conn)
	c.state = StateConnected
	c.logger.Info("Connected to Rhino bridge", loggerv2.String("addr", c.cfg.Addr()))
	return nil
}

// Disconnect closes the connection. Safe to call at any time, in any state,
// any number of times.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.dec = nil
		c.logger.Info("Disconnected from Rhino bridge", loggerv2.String("addr", c.cfg.Addr()))
	}
	c.state = StateDisconnected
}

// Send writes one command and blocks for its reply. Concurrent callers are
// serialized: the wire protocol has no way to pair interleaved replies.
//
// Error taxonomy: ErrNotConnected when no connection is established,
// *TransportError when the connection dies mid-call (including timeout),
// *ProtocolError when the reply is not valid JSON. Every failure severs the
// connection and resets state to disconnected; the caller decides whether
// to Connect again.
func (c *Client) Send(ctx context.Context, cmdType string, data map[string]any) (*Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		return nil, ErrNotConnected
	}
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(Command{Type: cmdType, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q command: %w", cmdType, err)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.closeLocked()
		return nil, &TransportError{Op: "send", Err: err}
	}

	c.logger.Debug("Sending command",
		loggerv2.String("type", cmdType),
		loggerv2.Int("bytes", len(payload)))

	if _, err := c.conn.Write(payload); err != nil {
		c.closeLocked()
		return nil, &TransportError{Op: "send", Err: err}
	}

	var reply Reply
	if err := c.dec.Decode(&reply); err != nil {
		c.closeLocked()
		if errors.Is(err, io.EOF) {
			return nil, &TransportError{Op: "receive", Err: errors.New("connection closed by peer before any reply")}
		}
		var netErr net.Error
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &netErr) || IsSeveredConnection(err) {
			return nil, &TransportError{Op: "receive", Err: err}
		}
		return nil, &ProtocolError{Err: err}
	}
	_ = c.conn.SetDeadline(time.Time{})

	c.logger.Debug("Received reply",
		loggerv2.String("type", cmdType),
		loggerv2.String("status", reply.Status))
	return &reply, nil
}

// Ping checks that the bridge is alive and returns its info block.
func (c *Client) Ping(ctx context.Context) (*Reply, error) {
	return c.Send(ctx, "ping", nil)
}

// CreateCurve creates a NURBS curve through the given points.
func (c *Client) CreateCurve(ctx context.Context, points []Point3D) (*Reply, error) {
	if len(points) < 2 {
		return nil, errors.New("at least 2 points are required to create a curve")
	}
	pts := make([]any, 0, len(points))
	for _, p := range points {
		pts = append(pts, map[string]any{"x": p.X, "y": p.Y, "z": p.Z})
	}
	return c.Send(ctx, "create_curve", map[string]any{"points": pts})
}

// RefreshView redraws the Rhino viewport.
func (c *Client) RefreshView(ctx context.Context) (*Reply, error) {
	return c.Send(ctx, "refresh_view", nil)
}

// RunScript runs a script inside Rhino's scripting context.
func (c *Client) RunScript(ctx context.Context, script string) (*Reply, error) {
	if script == "" {
		return nil, errors.New("script cannot be empty")
	}
	return c.Send(ctx, "run_script", map[string]any{"script": script})
}
