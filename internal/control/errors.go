// ABOUTME: Control channel error taxonomy
// ABOUTME: Connect, write and protocol failures with address context
package control

import (
	"errors"
	"fmt"
)

// ErrSilence is returned by Run when the server stayed quiet too long
var ErrSilence = errors.New("control channel silent")

// ConnectError means the server could not be reached or did not complete
// the handshake
type ConnectError struct {
	Op   string // "dial" or "handshake"
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("control %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError means a frame could not be sent
type WriteError struct {
	Tag  string
	Addr string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("control write %s to %s: %v", e.Tag, e.Addr, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// ProtocolError means the server sent bytes that cannot be framed
type ProtocolError struct {
	Addr string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("control protocol error from %s: %v", e.Addr, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is a *ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
