// ABOUTME: Control channel: TCP connection to the server carrying SlimProto frames
// ABOUTME: Handles dial, HELO handshake, guarded writes and the read loop
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/slimproto"
)

// Config holds control channel settings
type Config struct {
	Address          string
	Helo             slimproto.Helo
	Name             string
	HandshakeTimeout time.Duration
	SilenceTimeout   time.Duration
	WriteTimeout     time.Duration
	Debug            bool
}

// Conn is one live control connection
type Conn struct {
	config Config
	conn   net.Conn
	reader *slimproto.Reader

	mu      sync.Mutex // serialises writes
	pending []slimproto.Frame

	lastActivity atomic.Int64
	closeOnce    sync.Once
	writeFailed  atomic.Pointer[WriteError] // first failed write, ends Run
}

// Dial connects, sends HELO and the player name, and waits for the server's
// first frame. That frame is held and delivered first by Run.
func Dial(ctx context.Context, config Config) (*Conn, error) {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.SilenceTimeout <= 0 {
		config.SilenceTimeout = 35 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	log.Printf("Connecting to %s", config.Address)

	dialer := net.Dialer{Timeout: config.HandshakeTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, &ConnectError{Op: "dial", Addr: config.Address, Err: err}
	}

	c := &Conn{
		config: config,
		conn:   nc,
		reader: slimproto.NewReader(nc),
	}
	c.touch()

	if err := c.handshake(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) handshake(ctx context.Context) error {
	helo, err := c.config.Helo.Frame()
	if err != nil {
		return &ConnectError{Op: "handshake", Addr: c.config.Address, Err: err}
	}
	if err := c.write(slimproto.TagHelo, helo); err != nil {
		return &ConnectError{Op: "handshake", Addr: c.config.Address, Err: err}
	}
	log.Printf("Sent HELO: %s", c.config.Helo.Capabilities)

	if c.config.Name != "" {
		setd, err := slimproto.SetdNameFrame(c.config.Name)
		if err != nil {
			return &ConnectError{Op: "handshake", Addr: c.config.Address, Err: err}
		}
		if err := c.write(slimproto.TagSetd, setd); err != nil {
			return &ConnectError{Op: "handshake", Addr: c.config.Address, Err: err}
		}
	}

	stop := context.AfterFunc(ctx, func() { c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	c.conn.SetReadDeadline(time.Now().Add(c.config.HandshakeTimeout))
	frame, err := c.reader.Next()
	if err != nil {
		if slimproto.IsMalformed(err) {
			return &ProtocolError{Addr: c.config.Address, Err: err}
		}
		return &ConnectError{Op: "handshake", Addr: c.config.Address, Err: err}
	}
	c.conn.SetReadDeadline(time.Time{})

	c.pending = append(c.pending, frame)
	c.touch()
	log.Printf("Handshake complete with %s (first frame %s)", c.config.Address, frame.Tag)
	return nil
}

// Run delivers frames to handle until the connection fails, the server is
// silent for SilenceTimeout, or ctx is cancelled. A malformed frame closes
// the connection and returns a *ProtocolError. A failed Send closes the
// connection too and Run returns that *WriteError.
func (c *Conn) Run(ctx context.Context, handle func(slimproto.Frame)) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for _, frame := range c.pending {
		c.trace(frame)
		handle(frame)
	}
	c.pending = nil

	for {
		c.conn.SetReadDeadline(time.Now().Add(c.config.SilenceTimeout))
		frame, err := c.reader.Next()
		if err != nil {
			c.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if we := c.writeFailed.Load(); we != nil {
				log.Printf("Control: write failed, dropping connection: %v", we)
				return we
			}
			if slimproto.IsMalformed(err) {
				log.Printf("Control: malformed frame, dropping connection: %v", err)
				return &ProtocolError{Addr: c.config.Address, Err: err}
			}
			if errors.Is(err, os.ErrDeadlineExceeded) {
				log.Printf("Control: no frames for %v", c.config.SilenceTimeout)
				return ErrSilence
			}
			return fmt.Errorf("control read: %w", err)
		}

		c.touch()
		c.trace(frame)
		handle(frame)
	}
}

func (c *Conn) trace(frame slimproto.Frame) {
	if c.config.Debug {
		log.Printf("Control <- %s", frame)
	}
}

// Send writes one client frame
func (c *Conn) Send(tag string, payload []byte) error {
	frame, err := slimproto.EncodeClient(tag, payload)
	if err != nil {
		return &WriteError{Tag: tag, Addr: c.config.Address, Err: err}
	}
	if err := c.write(tag, frame); err != nil {
		return err
	}
	if c.config.Debug && tag != slimproto.TagStat {
		log.Printf("Control -> %s(%d bytes)", tag, len(payload))
	}
	return nil
}

func (c *Conn) write(tag string, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if _, err := c.conn.Write(frame); err != nil {
		we := &WriteError{Tag: tag, Addr: c.config.Address, Err: err}
		c.writeFailed.CompareAndSwap(nil, we)
		// a partial write leaves the stream unframed
		c.Close()
		return we
	}
	return nil
}

// Close shuts the connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// RemoteIP returns the server address, used when strm leaves the data
// server ip at zero
func (c *Conn) RemoteIP() net.IP {
	if addr, ok := c.conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP
	}
	return nil
}

// LastActivity returns when a frame was last received
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
