// ABOUTME: Tests for the byte ring buffer
// ABOUTME: Backpressure, accounting invariant, watermarks and teardown
package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestRingWriteRead(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 8, Session: 1})

	n, err := rb.TryWrite(1, []byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("expected 5 bytes written, got %d (%v)", n, err)
	}

	out := make([]byte, 3)
	n, _ = rb.Read(out)
	if n != 3 || string(out) != "hel" {
		t.Errorf("expected hel, got %q", out[:n])
	}

	// Wraps around the end of the ring
	n, _ = rb.TryWrite(1, []byte("world!"))
	if n != 6 {
		t.Errorf("expected 6 bytes written, got %d", n)
	}

	out = make([]byte, 16)
	n, _ = rb.Read(out)
	if string(out[:n]) != "loworld!" {
		t.Errorf("expected loworld!, got %q", out[:n])
	}
}

func TestRingTryWritePartial(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 4, Session: 1})

	n, err := rb.TryWrite(1, []byte("abcdef"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected partial write of 4, got %d", n)
	}
	if rb.Occupancy() != rb.Capacity() {
		t.Errorf("expected full buffer, got %d", rb.Occupancy())
	}
}

func TestRingHighWatermarkBoundsWrites(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 10, HighWatermark: 6, Session: 1})

	n, _ := rb.TryWrite(1, make([]byte, 10))
	if n != 6 {
		t.Errorf("expected 6 bytes accepted below high watermark, got %d", n)
	}
}

func TestRingReadNeverBlocks(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 4, Session: 1})

	done := make(chan struct{})
	go func() {
		n, err := rb.Read(make([]byte, 4))
		if n != 0 || err != nil {
			t.Errorf("expected empty read, got %d (%v)", n, err)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read blocked on empty buffer")
	}
}

func TestRingAccountingInvariant(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 37, Session: 1})
	chunk := bytes.Repeat([]byte{7}, 11)
	out := make([]byte, 5)

	for i := 0; i < 200; i++ {
		rb.TryWrite(1, chunk)
		if i%3 == 0 {
			rb.Read(out)
		}
		occ := rb.Occupancy()
		if occ > rb.Capacity() {
			t.Fatalf("occupancy %d exceeds capacity %d", occ, rb.Capacity())
		}
		if uint64(occ) != rb.Written()-rb.ReadTotal() {
			t.Fatalf("occupancy %d != written %d - read %d", occ, rb.Written(), rb.ReadTotal())
		}
	}
}

func TestRingWriteBlocksUntilSpace(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 4, Session: 1})
	rb.TryWrite(1, []byte("abcd"))

	done := make(chan int)
	go func() {
		n, _ := rb.Write(context.Background(), 1, []byte("ef"))
		done <- n
	}()

	select {
	case <-done:
		t.Fatal("write should block while full")
	case <-time.After(50 * time.Millisecond):
	}

	rb.Read(make([]byte, 2))

	select {
	case n := <-done:
		if n != 2 {
			t.Errorf("expected 2 bytes written, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("write did not resume after read")
	}
}

func TestRingCloseReleasesWriter(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 2, Session: 1})
	rb.TryWrite(1, []byte("ab"))

	errc := make(chan error)
	go func() {
		_, err := rb.Write(context.Background(), 1, []byte("c"))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	rb.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not release blocked writer")
	}

	if _, err := rb.Read(make([]byte, 1)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed on read, got %v", err)
	}
}

func TestRingContextReleasesWriter(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 2, Session: 1})
	rb.TryWrite(1, []byte("ab"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error)
	go func() {
		_, err := rb.Write(ctx, 1, []byte("c"))
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel did not release blocked writer")
	}
}

func TestRingRejectsStaleSession(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 8, Session: 2})

	n, err := rb.Write(context.Background(), 1, []byte("old"))
	if !errors.Is(err, ErrStaleSession) || n != 0 {
		t.Errorf("expected stale session rejection, got %d (%v)", n, err)
	}
	if rb.Written() != 0 {
		t.Errorf("expected nothing written, got %d", rb.Written())
	}
}

func TestRingThresholdFiresOnce(t *testing.T) {
	fired := 0
	rb := NewRingBuffer(RingBufferConfig{
		Capacity:    16,
		Threshold:   8,
		Session:     1,
		OnThreshold: func() { fired++ },
	})

	rb.TryWrite(1, make([]byte, 4))
	if fired != 0 {
		t.Fatal("threshold fired early")
	}
	rb.TryWrite(1, make([]byte, 4))
	if fired != 1 {
		t.Fatalf("expected threshold to fire once, fired %d", fired)
	}

	// Drain and refill above the threshold: no second start
	rb.Read(make([]byte, 16))
	rb.TryWrite(1, make([]byte, 12))
	if fired != 1 {
		t.Errorf("expected no re-trigger after refill, fired %d", fired)
	}
	if !rb.ThresholdReached() {
		t.Error("expected ThresholdReached")
	}
}

func TestRingLowWatermarkCrossing(t *testing.T) {
	lows := 0
	rb := NewRingBuffer(RingBufferConfig{
		Capacity:     16,
		LowWatermark: 4,
		Session:      1,
		OnLow:        func() { lows++ },
	})

	// Below the watermark from the start: no crossing yet
	rb.TryWrite(1, make([]byte, 2))
	rb.Read(make([]byte, 1))
	if lows != 0 {
		t.Fatalf("expected no low event before first fill, got %d", lows)
	}

	rb.TryWrite(1, make([]byte, 10))
	rb.Read(make([]byte, 9))
	if lows != 1 {
		t.Fatalf("expected one low event, got %d", lows)
	}

	rb.Read(make([]byte, 1))
	if lows != 1 {
		t.Errorf("expected low event only on crossing, got %d", lows)
	}
}

func TestRingEOF(t *testing.T) {
	rb := NewRingBuffer(RingBufferConfig{Capacity: 8, Session: 1})
	rb.TryWrite(1, []byte("ab"))
	rb.SetEOF()

	out := make([]byte, 8)
	n, err := rb.Read(out)
	if n != 2 || err != nil {
		t.Errorf("expected remaining 2 bytes, got %d (%v)", n, err)
	}
	if _, err := rb.Read(out); err != io.EOF {
		t.Errorf("expected io.EOF once drained, got %v", err)
	}

	select {
	case <-rb.Notify():
	default:
		t.Error("expected a pending notification")
	}
}
