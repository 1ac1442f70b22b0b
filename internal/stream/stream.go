// ABOUTME: Data channel: raw HTTP request over TCP, response body into the ring
// ABOUTME: Reports connect, headers, EOF and errors as session-tagged events
package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
)

// EventKind identifies a data channel event
type EventKind int

const (
	EventConnected EventKind = iota
	EventHeaders
	EventEOF
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventHeaders:
		return "headers"
	case EventEOF:
		return "eof"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is sent to the session owner. Session identifies which stream
// session produced it so stale events can be dropped.
type Event struct {
	Kind        EventKind
	Session     uint64
	Status      int
	HeaderCount int
	Bytes       uint64 // total body bytes written to the buffer
	Err         error
}

// Request describes one data connection
type Request struct {
	Session     uint64
	Addr        string // host:port
	Header      string // HTTP request text from strm, sent as-is
	Offset      uint64 // resume point; adds a Range header when non-zero
	Buffer      *audio.RingBuffer
	DialTimeout time.Duration
	Debug       bool
}

const readChunk = 32 * 1024

// Channel is a running data connection
type Channel struct {
	req    Request
	emit   func(Event)
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn net.Conn
}

// Open starts fetching in the background. emit is called from the channel's
// goroutine and is never called after Close returns.
func Open(ctx context.Context, req Request, emit func(Event)) *Channel {
	if req.DialTimeout <= 0 {
		req.DialTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		req:    req,
		emit:   emit,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Close cancels the fetch and waits for the goroutine to exit
func (c *Channel) Close() {
	c.cancel()
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
	<-c.done
}

// Done is closed when the channel's goroutine has exited
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) run() {
	defer close(c.done)

	err := c.fetch()
	if err == nil || c.ctx.Err() != nil {
		return
	}
	if errors.Is(err, audio.ErrClosed) || errors.Is(err, audio.ErrStaleSession) {
		// The session moved on; nobody is listening for this one
		return
	}

	var dce *DataChannelError
	if !errors.As(err, &dce) {
		dce = &DataChannelError{Op: "read", Addr: c.req.Addr, Session: c.req.Session, Err: err}
	}
	log.Printf("Data channel error: %v", dce)
	c.send(Event{Kind: EventError, Err: dce, Bytes: c.req.Buffer.Written()})
}

func (c *Channel) send(ev Event) {
	if c.ctx.Err() != nil {
		return
	}
	ev.Session = c.req.Session
	c.emit(ev)
}

func (c *Channel) fetch() error {
	req := c.req

	dialer := net.Dialer{Timeout: req.DialTimeout}
	conn, err := dialer.DialContext(c.ctx, "tcp", req.Addr)
	if err != nil {
		return &DataChannelError{Op: "dial", Addr: req.Addr, Session: req.Session, Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	if c.ctx.Err() != nil {
		conn.Close()
		return c.ctx.Err()
	}
	defer conn.Close()

	header := withRange(req.Header, req.Offset)
	if req.Debug {
		log.Printf("Data channel -> %s: %q", req.Addr, header)
	}
	if _, err := io.WriteString(conn, header); err != nil {
		return &DataChannelError{Op: "request", Addr: req.Addr, Session: req.Session, Err: err}
	}
	c.send(Event{Kind: EventConnected})

	resp, err := http.ReadResponse(statusReader(conn), nil)
	if err != nil {
		return &DataChannelError{Op: "response", Addr: req.Addr, Session: req.Session, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DataChannelError{
			Op:      "response",
			Addr:    req.Addr,
			Session: req.Session,
			Status:  resp.StatusCode,
			Err:     fmt.Errorf("%w: %s", ErrBadStatus, resp.Status),
		}
	}
	log.Printf("Data channel connected to %s: %s", req.Addr, resp.Status)
	c.send(Event{Kind: EventHeaders, Status: resp.StatusCode, HeaderCount: len(resp.Header)})

	chunk := make([]byte, readChunk)
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if _, err := req.Buffer.Write(c.ctx, req.Session, chunk[:n]); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			req.Buffer.SetEOF()
			total := req.Buffer.Written()
			log.Printf("Data channel EOF after %d bytes", total)
			c.send(Event{Kind: EventEOF, Bytes: total})
			return nil
		}
		if rerr != nil {
			return &DataChannelError{Op: "read", Addr: req.Addr, Session: req.Session, Err: rerr}
		}
	}
}

// statusReader wraps conn so that a shoutcast "ICY 200 OK" status line
// parses as HTTP/1.0
func statusReader(conn net.Conn) *bufio.Reader {
	br := bufio.NewReader(conn)
	if prefix, err := br.Peek(4); err == nil && string(prefix) == "ICY " {
		br.Discard(3)
		return bufio.NewReader(io.MultiReader(strings.NewReader("HTTP/1.0"), br))
	}
	return br
}

// withRange returns header with any Range line replaced by one starting at
// offset. An offset of zero returns header unchanged.
func withRange(header string, offset uint64) string {
	if offset == 0 {
		return header
	}

	head := strings.TrimRight(header, "\r\n")
	lines := strings.Split(head, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(strings.ToLower(line), "range:") {
			continue
		}
		kept = append(kept, line)
	}
	kept = append(kept, fmt.Sprintf("Range: bytes=%d-", offset))
	return strings.Join(kept, "\r\n") + "\r\n\r\n"
}
