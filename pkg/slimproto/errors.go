// ABOUTME: Codec error values
// ABOUTME: Distinguishes incomplete input from corrupt input
package slimproto

import (
	"errors"
	"fmt"
)

// ErrNeedMoreData means the input holds only a prefix of a frame
var ErrNeedMoreData = errors.New("slimproto: need more data")

// ErrShortPayload is returned when a command payload is shorter than its fixed layout
var ErrShortPayload = errors.New("slimproto: payload too short")

// MalformedError reports a frame that can never become valid
type MalformedError struct {
	Tag    string
	Length int
	Reason string
}

func (e *MalformedError) Error() string {
	s := "slimproto: malformed frame"
	if e.Tag != "" {
		s += " " + e.Tag
	}
	if e.Length != 0 {
		s += fmt.Sprintf(" (length %d)", e.Length)
	}
	return s + ": " + e.Reason
}

// IsMalformed reports whether err is a *MalformedError
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}
