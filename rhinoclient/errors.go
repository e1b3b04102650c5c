package rhinoclient

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConnected is returned by Send when no connection is established.
// Callers must Connect explicitly; the client never reconnects on its own,
// so failure attribution stays with the call that hit the dead connection.
var ErrNotConnected = errors.New("not connected to Rhino bridge")

// ConnectError reports a failed connection attempt to the bridge server.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to Rhino bridge at %s: %v (make sure Rhino is running and the bridge server is started)", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportError reports a connection severed mid-call: a write failure,
// a peer close before any reply bytes, or a call timeout.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rhino bridge transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that arrived but was not parseable JSON.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("rhino bridge sent an unparseable reply: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsSeveredConnection checks if an error indicates the peer went away.
// Used to distinguish transport failures from protocol failures when the
// underlying error comes from the net package as free-form text.
func IsSeveredConnection(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "EOF")
}
