// ABOUTME: Pipeline adapter: streams a session's RingBuffer into an Engine
// ABOUTME: Tags engine events with the session id and reports buffer underruns
package pipeline

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
)

const pumpChunk = 16 * 1024

// Adapter owns at most one playing session at a time
type Adapter struct {
	engine Engine
	events chan Event

	mu      sync.Mutex
	session uint64
	cancel  context.CancelFunc
	reader  *io.PipeReader
	wg      sync.WaitGroup
}

// NewAdapter wraps engine
func NewAdapter(engine Engine) *Adapter {
	return &Adapter{
		engine: engine,
		events: make(chan Event),
	}
}

// Events delivers session-tagged events until the session is stopped
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Play hands buf to the engine for session. Any previous session is
// stopped first.
func (a *Adapter) Play(session uint64, buf *audio.RingBuffer, format audio.Format, offset time.Duration) error {
	a.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()

	a.mu.Lock()
	a.session = session
	a.cancel = cancel
	a.reader = pr
	a.mu.Unlock()

	a.wg.Add(2)
	go a.pump(ctx, session, buf, pw)
	go a.forward(ctx, session)

	if err := a.engine.Play(pr, format, offset); err != nil {
		a.Stop()
		return err
	}
	log.Printf("Pipeline playing session %d (%v)", session, format)
	return nil
}

// Stop halts the engine and waits for the adapter goroutines
func (a *Adapter) Stop() {
	a.mu.Lock()
	cancel, pr, session := a.cancel, a.reader, a.session
	a.cancel, a.reader = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	pr.CloseWithError(io.ErrClosedPipe)
	a.engine.Stop()
	a.wg.Wait()
	log.Printf("Pipeline stopped session %d", session)
}

func (a *Adapter) Pause() { a.engine.Pause() }
func (a *Adapter) Resume() { a.engine.Resume() }
func (a *Adapter) Seek(position time.Duration) { a.engine.Seek(position) }
func (a *Adapter) SetVolume(volume float64) { a.engine.SetVolume(volume) }
func (a *Adapter) SetMuted(muted bool) { a.engine.SetMuted(muted) }

// Buffered reports decoded audio queued at the device, zero when the engine
// cannot tell
func (a *Adapter) Buffered() time.Duration {
	if e, ok := a.engine.(interface{ Buffered() time.Duration }); ok {
		return e.Buffered()
	}
	return 0
}

func (a *Adapter) send(ctx context.Context, ev Event) bool {
	select {
	case a.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// pump copies buffered bytes into the engine's reader. It never blocks on
// an empty buffer without also watching ctx.
func (a *Adapter) pump(ctx context.Context, session uint64, buf *audio.RingBuffer, pw *io.PipeWriter) {
	defer a.wg.Done()

	p := make([]byte, pumpChunk)
	started := false
	starved := false

	for {
		n, err := buf.Read(p)
		if n > 0 {
			started = true
			starved = false
			if _, werr := pw.Write(p[:n]); werr != nil {
				return
			}
			continue
		}
		if err == io.EOF {
			pw.Close()
			return
		}
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		if started && !starved {
			starved = true
			if !a.send(ctx, Event{Kind: EventUnderrun, Session: session}) {
				pw.CloseWithError(ctx.Err())
				return
			}
		}

		select {
		case <-ctx.Done():
			pw.CloseWithError(ctx.Err())
			return
		case <-buf.Notify():
		}
	}
}

func (a *Adapter) forward(ctx context.Context, session uint64) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.engine.Events():
			ev.Session = session
			if !a.send(ctx, ev) {
				return
			}
		}
	}
}
