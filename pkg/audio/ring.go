// ABOUTME: Bounded byte ring between the data channel and the pipeline
// ABOUTME: Blocking session-checked writes, non-blocking reads, watermark callbacks
package audio

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrClosed is returned once the buffer has been torn down
	ErrClosed = errors.New("audio: ring buffer closed")

	// ErrStaleSession is returned to writers holding another session's id
	ErrStaleSession = errors.New("audio: write from stale session")
)

// RingBufferConfig sizes a RingBuffer and wires its callbacks.
// Callbacks run on the goroutine that caused the crossing, outside the lock.
type RingBufferConfig struct {
	Capacity      int
	HighWatermark int // writes never fill past this; defaults to Capacity
	LowWatermark  int
	Threshold     int // autostart threshold in bytes
	Session       uint64
	OnThreshold   func()
	OnLow         func()
}

// RingBuffer is a bounded byte ring owned by one stream session.
//
// Occupancy never exceeds the high watermark, and always equals
// Written() - ReadTotal().
type RingBuffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf     []byte
	readPos int
	count   int
	high    int
	low     int
	session uint64

	threshold      int
	thresholdFired bool
	lowArmed       bool
	onThreshold    func()
	onLow          func()

	written uint64
	read    uint64
	closed  bool
	eof     bool

	notify chan struct{}
}

// NewRingBuffer allocates a buffer for one session
func NewRingBuffer(cfg RingBufferConfig) *RingBuffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	high := cfg.HighWatermark
	if high <= 0 || high > cfg.Capacity {
		high = cfg.Capacity
	}
	threshold := cfg.Threshold
	if threshold > high {
		threshold = high
	}

	rb := &RingBuffer{
		buf:         make([]byte, cfg.Capacity),
		high:        high,
		low:         cfg.LowWatermark,
		session:     cfg.Session,
		threshold:   threshold,
		onThreshold: cfg.OnThreshold,
		onLow:       cfg.OnLow,
		notify:      make(chan struct{}, 1),
	}
	rb.cond = sync.NewCond(&rb.mu)
	return rb
}

// Write copies p into the ring, blocking while it is full. It returns early
// with the bytes already accepted when the buffer is closed, ctx is done or
// session no longer owns the buffer.
func (rb *RingBuffer) Write(ctx context.Context, session uint64, p []byte) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		rb.mu.Lock()
		rb.cond.Broadcast()
		rb.mu.Unlock()
	})
	defer stop()

	total := 0
	for len(p) > 0 {
		n, err := rb.write(ctx, session, p, true)
		total += n
		p = p[n:]
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// TryWrite copies as much of p as fits without blocking
func (rb *RingBuffer) TryWrite(session uint64, p []byte) (int, error) {
	return rb.write(context.Background(), session, p, false)
}

func (rb *RingBuffer) write(ctx context.Context, session uint64, p []byte, block bool) (int, error) {
	rb.mu.Lock()

	for {
		if rb.closed {
			rb.mu.Unlock()
			return 0, ErrClosed
		}
		if session != rb.session {
			rb.mu.Unlock()
			return 0, ErrStaleSession
		}
		if err := ctx.Err(); err != nil {
			rb.mu.Unlock()
			return 0, err
		}
		if rb.count < rb.high || !block {
			break
		}
		rb.cond.Wait()
	}

	n := rb.high - rb.count
	if n > len(p) {
		n = len(p)
	}
	size := len(rb.buf)
	writePos := (rb.readPos + rb.count) % size
	first := copy(rb.buf[writePos:], p[:n])
	if first < n {
		copy(rb.buf, p[first:n])
	}
	rb.count += n
	rb.written += uint64(n)

	var callbacks []func()
	if !rb.thresholdFired && rb.count >= rb.threshold && n > 0 {
		rb.thresholdFired = true
		if rb.onThreshold != nil {
			callbacks = append(callbacks, rb.onThreshold)
		}
	}
	if rb.count >= rb.low {
		rb.lowArmed = true
	}
	rb.mu.Unlock()

	if n > 0 {
		rb.signal()
	}
	for _, cb := range callbacks {
		cb()
	}
	return n, nil
}

// Read copies up to len(p) buffered bytes into p without waiting.
// It returns io.EOF once the stream ended and everything was read.
func (rb *RingBuffer) Read(p []byte) (int, error) {
	rb.mu.Lock()

	if rb.closed {
		rb.mu.Unlock()
		return 0, ErrClosed
	}
	if rb.count == 0 {
		eof := rb.eof
		rb.mu.Unlock()
		if eof {
			return 0, io.EOF
		}
		return 0, nil
	}

	n := rb.count
	if n > len(p) {
		n = len(p)
	}
	size := len(rb.buf)
	first := copy(p[:n], rb.buf[rb.readPos:])
	if first < n {
		copy(p[first:n], rb.buf)
	}
	rb.readPos = (rb.readPos + n) % size
	rb.count -= n
	rb.read += uint64(n)

	var onLow func()
	if rb.lowArmed && rb.count < rb.low && !rb.eof {
		rb.lowArmed = false
		onLow = rb.onLow
	}
	rb.cond.Broadcast()
	rb.mu.Unlock()

	if onLow != nil {
		onLow()
	}
	return n, nil
}

// SetEOF marks the end of the stream; readers get io.EOF once drained
func (rb *RingBuffer) SetEOF() {
	rb.mu.Lock()
	rb.eof = true
	rb.mu.Unlock()
	rb.signal()
}

// EOF reports whether the producer finished
func (rb *RingBuffer) EOF() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.eof
}

// Close releases blocked writers and fails all later calls
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return
	}
	rb.closed = true
	rb.cond.Broadcast()
	rb.mu.Unlock()
	rb.signal()
}

// Closed reports whether Close was called
func (rb *RingBuffer) Closed() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.closed
}

// Notify returns a channel that receives after data arrives, EOF or Close
func (rb *RingBuffer) Notify() <-chan struct{} {
	return rb.notify
}

func (rb *RingBuffer) signal() {
	select {
	case rb.notify <- struct{}{}:
	default:
	}
}

// Occupancy returns the buffered byte count
func (rb *RingBuffer) Occupancy() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Capacity returns the ring size in bytes
func (rb *RingBuffer) Capacity() int {
	return len(rb.buf)
}

// Written returns the total bytes accepted
func (rb *RingBuffer) Written() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.written
}

// ReadTotal returns the total bytes drained
func (rb *RingBuffer) ReadTotal() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.read
}

// Session returns the id of the session that owns the buffer
func (rb *RingBuffer) Session() uint64 {
	return rb.session
}

// ThresholdReached reports whether the autostart threshold has fired
func (rb *RingBuffer) ThresholdReached() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.thresholdFired
}
