// ABOUTME: Tests for the data channel against fake HTTP servers
// ABOUTME: Covers body delivery, ICY status lines, ranges, errors and cancellation
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
)

const getRequest = "GET /stream.mp3?player=aa HTTP/1.0\r\nHost: test\r\n\r\n"

// rawServer answers one connection with response after reading the request
func rawServer(t *testing.T, response func(req string, conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		br := bufio.NewReader(conn)
		var req strings.Builder
		for {
			line, err := br.ReadString('\n')
			if err != nil {
				return
			}
			req.WriteString(line)
			if line == "\r\n" {
				break
			}
		}
		response(req.String(), conn)
	}()
	return ln.Addr().String()
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	done   chan struct{}
	once   sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Kind == EventEOF || ev.Kind == EventError {
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) wait(t *testing.T) []Event {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newBuffer(session uint64, capacity int) *audio.RingBuffer {
	return audio.NewRingBuffer(audio.RingBufferConfig{Capacity: capacity, Session: session})
}

func drain(buf *audio.RingBuffer) []byte {
	var out bytes.Buffer
	p := make([]byte, 4096)
	for {
		n, err := buf.Read(p)
		out.Write(p[:n])
		if err != nil || n == 0 {
			return out.Bytes()
		}
	}
}

func TestBodyIntoBuffer(t *testing.T) {
	body := bytes.Repeat([]byte("audio"), 1000)
	addr := rawServer(t, func(_ string, conn net.Conn) {
		conn.Write([]byte("HTTP/1.0 200 OK\r\nContent-Type: audio/mpeg\r\n\r\n"))
		conn.Write(body)
	})

	buf := newBuffer(1, 64*1024)
	rec := newRecorder()
	ch := Open(context.Background(), Request{Session: 1, Addr: addr, Header: getRequest, Buffer: buf}, rec.emit)
	defer ch.Close()

	events := rec.wait(t)
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
		if ev.Session != 1 {
			t.Errorf("expected session 1 on %v, got %d", ev.Kind, ev.Session)
		}
	}
	want := []EventKind{EventConnected, EventHeaders, EventEOF}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
	if events[1].Status != 200 || events[1].HeaderCount != 1 {
		t.Errorf("expected status 200 with 1 header, got %d/%d", events[1].Status, events[1].HeaderCount)
	}
	if events[2].Bytes != uint64(len(body)) {
		t.Errorf("expected %d bytes at EOF, got %d", len(body), events[2].Bytes)
	}
	if !buf.EOF() {
		t.Error("expected buffer marked EOF")
	}
	if got := drain(buf); !bytes.Equal(got, body) {
		t.Errorf("expected %d body bytes in buffer, got %d", len(body), len(got))
	}
}

func TestICYStatusLine(t *testing.T) {
	addr := rawServer(t, func(_ string, conn net.Conn) {
		conn.Write([]byte("ICY 200 OK\r\nicy-name: radio\r\n\r\nicydata"))
	})

	buf := newBuffer(1, 1024)
	rec := newRecorder()
	ch := Open(context.Background(), Request{Session: 1, Addr: addr, Header: getRequest, Buffer: buf}, rec.emit)
	defer ch.Close()

	events := rec.wait(t)
	last := events[len(events)-1]
	if last.Kind != EventEOF {
		t.Fatalf("expected EOF, got %v (%v)", last.Kind, last.Err)
	}
	if got := string(drain(buf)); got != "icydata" {
		t.Errorf("expected body %q, got %q", "icydata", got)
	}
}

func TestBadStatusIsDataChannelError(t *testing.T) {
	addr := rawServer(t, func(_ string, conn net.Conn) {
		conn.Write([]byte("HTTP/1.0 404 Not Found\r\n\r\n"))
	})

	rec := newRecorder()
	ch := Open(context.Background(), Request{Session: 7, Addr: addr, Header: getRequest, Buffer: newBuffer(7, 1024)}, rec.emit)
	defer ch.Close()

	events := rec.wait(t)
	last := events[len(events)-1]
	var dce *DataChannelError
	if last.Kind != EventError || !errors.As(last.Err, &dce) {
		t.Fatalf("expected DataChannelError event, got %v (%v)", last.Kind, last.Err)
	}
	if dce.Status != 404 || dce.Session != 7 || !errors.Is(dce, ErrBadStatus) {
		t.Errorf("expected status 404 session 7 ErrBadStatus, got %+v", dce)
	}
}

func TestDialFailure(t *testing.T) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	addr := ln.Addr().String()
	ln.Close()

	rec := newRecorder()
	ch := Open(context.Background(), Request{Session: 1, Addr: addr, Header: getRequest, Buffer: newBuffer(1, 1024)}, rec.emit)
	defer ch.Close()

	events := rec.wait(t)
	var dce *DataChannelError
	if len(events) != 1 || !errors.As(events[0].Err, &dce) || dce.Op != "dial" {
		t.Errorf("expected a single dial error, got %+v", events)
	}
}

func TestOffsetSendsRange(t *testing.T) {
	seen := make(chan string, 1)
	addr := rawServer(t, func(req string, conn net.Conn) {
		seen <- req
		conn.Write([]byte("HTTP/1.0 206 Partial Content\r\n\r\nrest"))
	})

	rec := newRecorder()
	ch := Open(context.Background(), Request{Session: 1, Addr: addr, Header: getRequest, Offset: 5000, Buffer: newBuffer(1, 1024)}, rec.emit)
	defer ch.Close()
	rec.wait(t)

	req := <-seen
	if !strings.Contains(req, "Range: bytes=5000-\r\n") {
		t.Errorf("expected Range header in %q", req)
	}
	if !strings.HasPrefix(req, "GET /stream.mp3?player=aa HTTP/1.0\r\n") {
		t.Errorf("expected request line preserved, got %q", req)
	}
}

func TestWithRange(t *testing.T) {
	tests := []struct {
		name   string
		header string
		offset uint64
		want   string
	}{
		{"zero offset untouched", "GET / HTTP/1.0\r\n\r\n", 0, "GET / HTTP/1.0\r\n\r\n"},
		{"appended", "GET / HTTP/1.0\r\nHost: a\r\n\r\n", 10, "GET / HTTP/1.0\r\nHost: a\r\nRange: bytes=10-\r\n\r\n"},
		{"replaces existing", "GET / HTTP/1.0\r\nrange: bytes=1-\r\n\r\n", 20, "GET / HTTP/1.0\r\nRange: bytes=20-\r\n\r\n"},
		{"bare newlines", "GET / HTTP/1.0\n\n", 5, "GET / HTTP/1.0\r\nRange: bytes=5-\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withRange(tt.header, tt.offset); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCloseReleasesBlockedWriter(t *testing.T) {
	addr := rawServer(t, func(_ string, conn net.Conn) {
		conn.Write([]byte("HTTP/1.0 200 OK\r\n\r\n"))
		chunk := make([]byte, 4096)
		for {
			if _, err := conn.Write(chunk); err != nil {
				return
			}
		}
	})

	// Small buffer nobody drains: the writer blocks once it fills
	buf := newBuffer(1, 1024)
	var mu sync.Mutex
	var events []Event
	ch := Open(context.Background(), Request{Session: 1, Addr: addr, Header: getRequest, Buffer: buf}, func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	deadline := time.Now().Add(2 * time.Second)
	for buf.Occupancy() < buf.Capacity() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	closed := make(chan struct{})
	go func() {
		ch.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not release the blocked writer")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		if ev.Kind == EventError || ev.Kind == EventEOF {
			t.Errorf("expected no terminal event after Close, got %v", ev.Kind)
		}
	}
}

func TestStaleSessionStopsQuietly(t *testing.T) {
	addr := rawServer(t, func(_ string, conn net.Conn) {
		conn.Write([]byte("HTTP/1.0 200 OK\r\n\r\nbytes for someone else"))
	})

	// Buffer belongs to session 2; the channel was opened for session 1
	buf := newBuffer(2, 1024)
	var mu sync.Mutex
	var kinds []EventKind
	ch := Open(context.Background(), Request{Session: 1, Addr: addr, Header: getRequest, Buffer: buf}, func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	select {
	case <-ch.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not stop")
	}

	if buf.Occupancy() != 0 {
		t.Errorf("expected no bytes in another session's buffer, got %d", buf.Occupancy())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, k := range kinds {
		if k == EventEOF || k == EventError {
			t.Errorf("expected no terminal event for stale session, got %v", k)
		}
	}
}
