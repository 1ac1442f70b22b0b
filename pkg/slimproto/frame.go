// ABOUTME: Length-prefixed tagged frame codec for the control channel
// ABOUTME: Supports partial reads so callers can feed bytes as they arrive
package slimproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// TagSize is the width of every frame tag
	TagSize = 4

	// ServerHeaderSize is the width of the length prefix on server frames
	ServerHeaderSize = 2

	// ClientHeaderSize is tag + u32 length on client frames
	ClientHeaderSize = TagSize + 4

	// MaxFrameLength bounds the declared length (tag + payload) of a server frame
	MaxFrameLength = 8192
)

// Frame is a decoded control-channel message
type Frame struct {
	Tag     string
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("%s(%d bytes)", f.Tag, len(f.Payload))
}

// Encode builds a server-direction frame: u16 BE length, tag, payload.
// The length counts the tag and payload.
func Encode(tag string, payload []byte) ([]byte, error) {
	if err := validTag(tag); err != nil {
		return nil, err
	}
	length := TagSize + len(payload)
	if length > MaxFrameLength {
		return nil, &MalformedError{Tag: tag, Length: length, Reason: "frame too long"}
	}

	buf := make([]byte, ServerHeaderSize+length)
	binary.BigEndian.PutUint16(buf[0:2], uint16(length))
	copy(buf[2:6], tag)
	copy(buf[6:], payload)
	return buf, nil
}

// Decode parses one server frame from the front of buf.
//
// It returns the frame and the number of bytes consumed. When buf holds only
// a prefix of a frame the error is ErrNeedMoreData and nothing is consumed.
// A *MalformedError means the stream cannot be resynchronised.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < ServerHeaderSize {
		return Frame{}, 0, ErrNeedMoreData
	}

	length := int(binary.BigEndian.Uint16(buf[0:2]))
	if length > MaxFrameLength {
		return Frame{}, 0, &MalformedError{Length: length, Reason: "declared length exceeds maximum"}
	}
	if length < TagSize {
		return Frame{}, 0, &MalformedError{Length: length, Reason: "declared length shorter than tag"}
	}

	// The tag can be checked as soon as it has arrived.
	tagEnd := ServerHeaderSize + TagSize
	if len(buf) >= tagEnd {
		if err := validTag(string(buf[ServerHeaderSize:tagEnd])); err != nil {
			return Frame{}, 0, err
		}
	}

	total := ServerHeaderSize + length
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMoreData
	}

	payload := make([]byte, length-TagSize)
	copy(payload, buf[tagEnd:total])

	return Frame{
		Tag:     string(buf[ServerHeaderSize:tagEnd]),
		Payload: payload,
	}, total, nil
}

// EncodeClient builds a client-direction frame: tag, u32 BE length, payload
func EncodeClient(tag string, payload []byte) ([]byte, error) {
	if err := validTag(tag); err != nil {
		return nil, err
	}

	buf := make([]byte, ClientHeaderSize+len(payload))
	copy(buf[0:4], tag)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf, nil
}

// DecodeClient parses one client frame from the front of buf. Used by test
// servers and tooling that sit on the other end of the connection.
func DecodeClient(buf []byte) (Frame, int, error) {
	if len(buf) < ClientHeaderSize {
		return Frame{}, 0, ErrNeedMoreData
	}
	if err := validTag(string(buf[0:4])); err != nil {
		return Frame{}, 0, err
	}

	length := int(binary.BigEndian.Uint32(buf[4:8]))
	if length > MaxFrameLength {
		return Frame{}, 0, &MalformedError{Tag: string(buf[0:4]), Length: length, Reason: "declared length exceeds maximum"}
	}

	total := ClientHeaderSize + length
	if len(buf) < total {
		return Frame{}, 0, ErrNeedMoreData
	}

	payload := make([]byte, length)
	copy(payload, buf[ClientHeaderSize:total])
	return Frame{Tag: string(buf[0:4]), Payload: payload}, total, nil
}

func validTag(tag string) error {
	if len(tag) != TagSize {
		return &MalformedError{Tag: tag, Reason: "tag must be 4 bytes"}
	}
	for i := 0; i < TagSize; i++ {
		if tag[i] < 0x20 || tag[i] > 0x7e {
			return &MalformedError{Tag: fmt.Sprintf("%q", tag), Reason: "tag contains non-printable bytes"}
		}
	}
	return nil
}

// decodeFunc is Decode or DecodeClient
type decodeFunc func([]byte) (Frame, int, error)

// Reader accumulates bytes from an io.Reader and yields complete frames
type Reader struct {
	r      io.Reader
	decode decodeFunc
	buf    []byte
	chunk  []byte
}

// NewReader reads server-direction frames from r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, decode: Decode, chunk: make([]byte, 4096)}
}

// NewClientReader reads client-direction frames from r
func NewClientReader(r io.Reader) *Reader {
	return &Reader{r: r, decode: DecodeClient, chunk: make([]byte, 4096)}
}

// Next blocks until a full frame is available, the reader fails, or a
// malformed frame is seen.
func (r *Reader) Next() (Frame, error) {
	for {
		frame, n, err := r.decode(r.buf)
		if err == nil {
			r.buf = r.buf[n:]
			return frame, nil
		}
		if !errors.Is(err, ErrNeedMoreData) {
			return Frame{}, err
		}

		n, err = r.r.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
		}
		if err != nil {
			if n > 0 {
				// Try to complete a frame with what arrived before the error.
				if frame, m, derr := r.decode(r.buf); derr == nil {
					r.buf = r.buf[m:]
					return frame, nil
				}
			}
			return Frame{}, err
		}
	}
}

// Buffered returns the number of bytes held that do not yet form a frame
func (r *Reader) Buffered() int {
	return len(r.buf)
}
