// ABOUTME: Tests for player application orchestration
// ABOUTME: Drives the reconnect loop against fake SlimProto servers
package app

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/slimplayer/internal/control"
	"github.com/Resonate-Protocol/slimplayer/internal/pipeline"
	"github.com/Resonate-Protocol/slimplayer/internal/retry"
	"github.com/Resonate-Protocol/slimplayer/internal/session"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"github.com/Resonate-Protocol/slimplayer/pkg/slimproto"
)

type idlePipeline struct {
	events chan pipeline.Event
}

func newIdlePipeline() *idlePipeline {
	return &idlePipeline{events: make(chan pipeline.Event)}
}

func (p *idlePipeline) Play(uint64, *audio.RingBuffer, audio.Format, time.Duration) error {
	return nil
}

func (p *idlePipeline) Pause() {}

func (p *idlePipeline) Resume() {}

func (p *idlePipeline) Seek(time.Duration) {}

func (p *idlePipeline) SetVolume(float64) {}

func (p *idlePipeline) SetMuted(bool) {}

func (p *idlePipeline) Stop() {}

func (p *idlePipeline) Events() <-chan pipeline.Event {
	return p.events
}

// fakeServer accepts connections and hands each one to serve together with
// its 1-based accept count
type fakeServer struct {
	ln      net.Listener
	accepts atomic.Int32
	wg      sync.WaitGroup
}

func newFakeServer(t *testing.T, serve func(n int, conn net.Conn)) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	s := &fakeServer{ln: ln}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			n := int(s.accepts.Add(1))
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer conn.Close()
				serve(n, conn)
			}()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *fakeServer) addr() string {
	return s.ln.Addr().String()
}

func (s *fakeServer) waitAccepts(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for int(s.accepts.Load()) < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := int(s.accepts.Load()); got < n {
		t.Fatalf("expected %d connections, got %d", n, got)
	}
}

func serverFrame(t *testing.T, tag string, payload []byte) []byte {
	t.Helper()
	frame, err := slimproto.Encode(tag, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", tag, err)
	}
	return frame
}

// greet reads HELO and answers with vers so the handshake completes
func greet(t *testing.T, conn net.Conn, r *slimproto.Reader) bool {
	frame, err := r.Next()
	if err != nil || frame.Tag != slimproto.TagHelo {
		t.Errorf("expected HELO, got %v (%v)", frame.Tag, err)
		return false
	}
	_, err = conn.Write(serverFrame(t, slimproto.TagVers, []byte("8.5.0")))
	return err == nil
}

// hold keeps the connection open until the client goes away
func hold(r *slimproto.Reader) {
	for {
		if _, err := r.Next(); err != nil {
			return
		}
	}
}

func testConfig(addr string) Config {
	return Config{
		Address: addr,
		Name:    "test-player",
		Helo: slimproto.Helo{
			DeviceID:     slimproto.DeviceID,
			MAC:          net.HardwareAddr{0, 4, 0x20, 1, 2, 3},
			Capabilities: slimproto.Capabilities{Codecs: []string{"pcm"}},
		},
		HandshakeTimeout: time.Second,
		SilenceTimeout:   time.Hour,
		MinSession:       time.Millisecond,
		Backoff: &retry.Backoff{
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			Multiplier:   2,
		},
		Session: session.Config{
			Pipeline:     newIdlePipeline(),
			Heartbeat:    time.Hour,
			StallTimeout: time.Hour,
		},
	}
}

func runPlayer(t *testing.T, p *Player) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("player did not stop")
		}
	})
	return cancel, done
}

func TestNewPlayer(t *testing.T) {
	p := New(testConfig("127.0.0.1:3483"))

	if p.Address() != "127.0.0.1:3483" {
		t.Errorf("expected address 127.0.0.1:3483, got %s", p.Address())
	}
	if p.Machine() == nil {
		t.Fatal("expected a session machine")
	}
	if p.Machine().State() != session.StateDisconnected {
		t.Errorf("expected disconnected state, got %v", p.Machine().State())
	}
	if p.config.MinSession != time.Millisecond {
		t.Errorf("expected MinSession to be kept, got %v", p.config.MinSession)
	}
}

func TestMalformedBurstReconnectsOnce(t *testing.T) {
	srv := newFakeServer(t, func(n int, conn net.Conn) {
		r := slimproto.NewClientReader(conn)
		if !greet(t, conn, r) {
			return
		}
		if n == 1 {
			bad := []byte{0xff, 0xff, 'b', 'a', 'd', '!'}
			for i := 0; i < 20; i++ {
				if _, err := conn.Write(bad); err != nil {
					return
				}
			}
		}
		hold(r)
	})

	var mu sync.Mutex
	var changes []bool
	config := testConfig(srv.addr())
	config.OnConnection = func(connected bool, _ string) {
		mu.Lock()
		changes = append(changes, connected)
		mu.Unlock()
	}
	p := New(config)
	runPlayer(t, p)

	srv.waitAccepts(t, 2)
	time.Sleep(300 * time.Millisecond)

	if got := srv.accepts.Load(); got != 2 {
		t.Errorf("expected exactly one reconnect (2 connections), got %d", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []bool{true, false, true}
	if len(changes) != len(want) {
		t.Fatalf("expected connection changes %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("expected connection changes %v, got %v", want, changes)
			break
		}
	}
}

func TestByeOnShutdown(t *testing.T) {
	gotBye := make(chan uint8, 1)
	srv := newFakeServer(t, func(n int, conn net.Conn) {
		r := slimproto.NewClientReader(conn)
		if !greet(t, conn, r) {
			return
		}
		for {
			frame, err := r.Next()
			if err != nil {
				return
			}
			if frame.Tag == slimproto.TagBye && len(frame.Payload) == 1 {
				gotBye <- frame.Payload[0]
				return
			}
		}
	})

	p := New(testConfig(srv.addr()))
	cancel, done := runPlayer(t, p)

	srv.waitAccepts(t, 1)
	deadline := time.Now().Add(2 * time.Second)
	for p.Machine().State() != session.StateIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case reason := <-gotBye:
		if reason != 0 {
			t.Errorf("expected BYE! reason 0, got %d", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected BYE! on shutdown")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("player did not stop")
	}
}

func TestConnectFailuresReported(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	reported := make(chan error, 16)
	config := testConfig(addr)
	config.Backoff = &retry.Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
		ReportAfter:  3,
	}
	config.OnError = func(err error) {
		select {
		case reported <- err:
		default:
		}
	}
	p := New(config)
	runPlayer(t, p)

	select {
	case err := <-reported:
		var ce *control.ConnectError
		if !errors.As(err, &ce) {
			t.Errorf("expected a wrapped ConnectError, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected persistent connect failures to be reported")
	}
}

func TestServRedirectReconnects(t *testing.T) {
	srv := newFakeServer(t, func(n int, conn net.Conn) {
		r := slimproto.NewClientReader(conn)
		if !greet(t, conn, r) {
			return
		}
		if n == 1 {
			conn.Write(serverFrame(t, slimproto.TagServ, []byte{127, 0, 0, 1}))
		}
		hold(r)
	})

	config := testConfig(srv.addr())
	// a redirect must not wait out the backoff
	config.MinSession = time.Hour
	config.Backoff.InitialDelay = time.Hour
	config.Backoff.MaxDelay = time.Hour
	p := New(config)
	runPlayer(t, p)

	srv.waitAccepts(t, 2)

	_, port, _ := net.SplitHostPort(srv.addr())
	if p.Address() != net.JoinHostPort("127.0.0.1", port) {
		t.Errorf("expected redirect to keep port %s, got %s", port, p.Address())
	}
}

func TestReconnectRequest(t *testing.T) {
	srv := newFakeServer(t, func(n int, conn net.Conn) {
		r := slimproto.NewClientReader(conn)
		if !greet(t, conn, r) {
			return
		}
		hold(r)
	})

	config := testConfig(srv.addr())
	config.MinSession = time.Hour
	config.Backoff.InitialDelay = time.Hour
	config.Backoff.MaxDelay = time.Hour
	p := New(config)
	runPlayer(t, p)

	srv.waitAccepts(t, 1)
	deadline := time.Now().Add(2 * time.Second)
	for p.Machine().State() != session.StateIdle && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	p.Reconnect()
	srv.waitAccepts(t, 2)
}

func TestRenameUsedOnNextHandshake(t *testing.T) {
	names := make(chan string, 4)
	srv := newFakeServer(t, func(n int, conn net.Conn) {
		r := slimproto.NewClientReader(conn)
		if !greet(t, conn, r) {
			return
		}
		frame, err := r.Next()
		if err != nil || frame.Tag != slimproto.TagSetd || len(frame.Payload) < 1 {
			t.Errorf("expected SETD after HELO, got %v (%v)", frame.Tag, err)
			return
		}
		names <- string(trimNUL(frame.Payload[1:]))
		if n == 1 {
			rename := append([]byte{0}, []byte("lounge\x00")...)
			conn.Write(serverFrame(t, slimproto.TagSetdServer, rename))
			// the player answers the rename with its new name
			for {
				frame, err := r.Next()
				if err != nil || frame.Tag == slimproto.TagSetd {
					break
				}
			}
			return
		}
		hold(r)
	})

	p := New(testConfig(srv.addr()))
	runPlayer(t, p)

	srv.waitAccepts(t, 2)
	for i, want := range []string{"test-player", "lounge"} {
		select {
		case got := <-names:
			if got != want {
				t.Errorf("connection %d: expected name %q, got %q", i+1, want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("connection %d: no SETD name", i+1)
		}
	}
}

func trimNUL(b []byte) []byte {
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}
