// ABOUTME: Data channel error type
// ABOUTME: Carries the failing step, address, session and HTTP status
package stream

import (
	"errors"
	"fmt"
)

// ErrBadStatus is wrapped when the server answers with a non-2xx status
var ErrBadStatus = errors.New("stream: bad response status")

// DataChannelError reports a failed data connection for one session
type DataChannelError struct {
	Op      string // dial, request, response, read
	Addr    string
	Session uint64
	Status  int
	Err     error
}

func (e *DataChannelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("data channel %s %s (session %d, status %d): %v", e.Op, e.Addr, e.Session, e.Status, e.Err)
	}
	return fmt.Sprintf("data channel %s %s (session %d): %v", e.Op, e.Addr, e.Session, e.Err)
}

func (e *DataChannelError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a network timeout
func (e *DataChannelError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}
