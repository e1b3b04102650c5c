package rhinoclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"rhinobridge/rhinoclient"
)

// fakeBridge is an in-process stand-in for the Rhino plugin's socket
// server: one JSON command in, one JSON reply out, per connection.
type fakeBridge struct {
	ln net.Listener

	mu      sync.Mutex
	accepts int
}

// replyFunc maps one decoded command to the raw bytes to write back.
// Returning nil closes the connection without replying; returning an empty
// slice keeps the connection open without replying.
type replyFunc func(cmd rhinoclient.Command) []byte

func successReply(message string, data map[string]any) []byte {
	b, _ := json.Marshal(map[string]any{"status": "success", "message": message, "data": data})
	return b
}

func startFakeBridge(t *testing.T, handle replyFunc) *fakeBridge {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	fb := &fakeBridge{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fb.mu.Lock()
			fb.accepts++
			fb.mu.Unlock()
			go func(conn net.Conn) {
				defer conn.Close()
				dec := json.NewDecoder(conn)
				for {
					var cmd rhinoclient.Command
					if err := dec.Decode(&cmd); err != nil {
						return
					}
					out := handle(cmd)
					if out == nil {
						return
					}
					if len(out) == 0 {
						continue
					}
					if _, err := conn.Write(out); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return fb
}

func (fb *fakeBridge) config() rhinoclient.Config {
	addr := fb.ln.Addr().(*net.TCPAddr)
	return rhinoclient.Config{Host: "127.0.0.1", Port: addr.Port, Timeout: 2 * time.Second}
}

func (fb *fakeBridge) acceptCount() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.accepts
}

func TestConnectAndPing(t *testing.T) {
	fb := startFakeBridge(t, func(cmd rhinoclient.Command) []byte {
		if cmd.Type != "ping" {
			t.Errorf("unexpected command type %q", cmd.Type)
		}
		return successReply("pong", map[string]any{"version": "8.0"})
	})

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := client.State(); got != rhinoclient.StateConnected {
		t.Fatalf("state = %q, want connected", got)
	}

	reply, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if !reply.IsSuccess() {
		t.Fatalf("expected success reply, got status %q", reply.Status)
	}
	if reply.Data["version"] != "8.0" {
		t.Errorf("data.version = %v, want 8.0", reply.Data["version"])
	}

	client.Disconnect()
	if got := client.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state after disconnect = %q, want disconnected", got)
	}
}

func TestSendRequiresConnection(t *testing.T) {
	client := rhinoclient.New(rhinoclient.Config{Host: "127.0.0.1", Port: 1}, nil)
	_, err := client.Send(context.Background(), "ping", nil)
	if !errors.Is(err, rhinoclient.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	fb := startFakeBridge(t, func(rhinoclient.Command) []byte { return successReply("", nil) })

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	client.Disconnect()
	client.Disconnect()
	if got := client.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}

	// Also safe on a client that never connected.
	fresh := rhinoclient.New(fb.config(), nil)
	fresh.Disconnect()
	fresh.Disconnect()
	if got := fresh.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestConnectRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	cfg := rhinoclient.Config{Host: "127.0.0.1", Port: port, Timeout: time.Second}
	client := rhinoclient.New(cfg, nil)

	err = client.Connect(context.Background())
	if err == nil {
		t.Fatal("expected connect error")
	}
	var connErr *rhinoclient.ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %T, want *ConnectError", err)
	}
	if !strings.Contains(err.Error(), cfg.Addr()) {
		t.Errorf("error %q does not name target address %s", err, cfg.Addr())
	}
	if got := client.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestPeerClosesWithoutReply(t *testing.T) {
	fb := startFakeBridge(t, func(rhinoclient.Command) []byte { return nil })

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := client.Ping(context.Background())
	var transportErr *rhinoclient.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v (%T), want *TransportError", err, err)
	}
	if got := client.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestUnparseableReply(t *testing.T) {
	fb := startFakeBridge(t, func(rhinoclient.Command) []byte { return []byte("!!!") })

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	_, err := client.Ping(context.Background())
	var protoErr *rhinoclient.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("err = %v (%T), want *ProtocolError", err, err)
	}
	if got := client.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestCallTimeout(t *testing.T) {
	// Reply never comes; the bounded call timeout must fire.
	fb := startFakeBridge(t, func(rhinoclient.Command) []byte { return []byte{} })

	cfg := fb.config()
	cfg.Timeout = 200 * time.Millisecond
	client := rhinoclient.New(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	start := time.Now()
	_, err := client.Ping(context.Background())
	var transportErr *rhinoclient.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("err = %v (%T), want *TransportError", err, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v, expected ~200ms", elapsed)
	}
	if got := client.State(); got != rhinoclient.StateDisconnected {
		t.Fatalf("state = %q, want disconnected", got)
	}
}

func TestCreateCurveValidation(t *testing.T) {
	client := rhinoclient.New(rhinoclient.Config{}, nil)
	if _, err := client.CreateCurve(context.Background(), []rhinoclient.Point3D{{X: 1}}); err == nil {
		t.Fatal("expected validation error for fewer than 2 points")
	}
	if _, err := client.RunScript(context.Background(), ""); err == nil {
		t.Fatal("expected validation error for empty script")
	}
}

func TestCreateCurveRoundTrip(t *testing.T) {
	fb := startFakeBridge(t, func(cmd rhinoclient.Command) []byte {
		if cmd.Type != "create_curve" {
			t.Errorf("unexpected command type %q", cmd.Type)
		}
		points, _ := cmd.Data["points"].([]any)
		return successReply("Curve created", map[string]any{
			"id":          "abc",
			"point_count": len(points),
		})
	})

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	reply, err := client.CreateCurve(context.Background(), []rhinoclient.Point3D{
		{X: 0, Y: 0, Z: 0},
		{X: 10, Y: 10, Z: 0},
		{X: 20, Y: 0, Z: 0},
	})
	if err != nil {
		t.Fatalf("CreateCurve failed: %v", err)
	}
	if !reply.IsSuccess() {
		t.Fatalf("status = %q, want success", reply.Status)
	}
	if reply.Data["id"] != "abc" {
		t.Errorf("data.id = %v, want abc", reply.Data["id"])
	}
	if reply.Data["point_count"] != float64(3) {
		t.Errorf("data.point_count = %v, want 3", reply.Data["point_count"])
	}
}

func TestConcurrentSendsStaySerialized(t *testing.T) {
	// The wire protocol has no request ids: pairing relies entirely on the
	// client serializing send+receive. Echo the payload back and check
	// every caller got its own reply.
	fb := startFakeBridge(t, func(cmd rhinoclient.Command) []byte {
		return successReply("echo", cmd.Data)
	})

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reply, err := client.Send(context.Background(), "echo", map[string]any{"i": i})
			if err != nil {
				t.Errorf("Send %d failed: %v", i, err)
				return
			}
			if reply.Data["i"] != float64(i) {
				t.Errorf("reply %d carries data %v: replies got crossed", i, reply.Data["i"])
			}
		}(i)
	}
	wg.Wait()

	if fb.acceptCount() != 1 {
		t.Errorf("backend saw %d connections, want 1", fb.acceptCount())
	}
}

func TestUnknownStatusIsFailure(t *testing.T) {
	fb := startFakeBridge(t, func(rhinoclient.Command) []byte {
		b, _ := json.Marshal(map[string]any{"message": "no status here"})
		return b
	})

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	reply, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if reply.IsSuccess() {
		t.Fatal("reply with missing status must not count as success")
	}
}

func TestLargeReplySpanningReads(t *testing.T) {
	// Replies bigger than one socket read must still decode as a single
	// document.
	big := strings.Repeat("x", 512*1024)
	fb := startFakeBridge(t, func(rhinoclient.Command) []byte {
		return successReply("big", map[string]any{"blob": big})
	})

	client := rhinoclient.New(fb.config(), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	reply, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if got, _ := reply.Data["blob"].(string); len(got) != len(big) {
		t.Fatalf("blob length = %d, want %d", len(got), len(big))
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := rhinoclient.DefaultConfig()
	if got, want := cfg.Addr(), "127.0.0.1:8888"; got != want {
		t.Errorf("default addr = %q, want %q", got, want)
	}
	client := rhinoclient.New(rhinoclient.Config{}, nil)
	if got, want := client.Addr(), "127.0.0.1:8888"; got != want {
		t.Errorf("zero-config addr = %q, want %q", got, want)
	}
	if got, want := fmt.Sprintf("%v", client.State()), "disconnected"; got != want {
		t.Errorf("initial state = %q, want %q", got, want)
	}
}
