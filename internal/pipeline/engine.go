// ABOUTME: Local audio engine: decode, resample, upmix and play through an Output
// ABOUTME: Reports position every 250ms and end of stream once the device drains
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio/decode"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio/output"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio/resample"
)

// Engine is the external audio pipeline behind the Adapter
type Engine interface {
	// Play starts consuming r, which carries encoded audio in format,
	// reporting positions relative to offset
	Play(r io.Reader, format audio.Format, offset time.Duration) error
	Pause()
	Resume()
	// Seek moves playback to the absolute position
	Seek(position time.Duration)
	SetVolume(volume float64)
	SetMuted(muted bool)
	// Stop ends playback and returns once no more events will be sent
	Stop()
	Events() <-chan Event
}

const (
	positionInterval = 250 * time.Millisecond
	drainPoll        = 20 * time.Millisecond
	decodeFrames     = 2048
	outputChannels   = 2
)

// Local plays through an output.Output on this machine
type Local struct {
	out    output.Output
	events chan Event

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	seekTo atomic.Int64 // pending absolute seek in ns, -1 when none
}

// NewLocal creates an engine writing to out
func NewLocal(out output.Output) *Local {
	l := &Local{
		out:    out,
		events: make(chan Event),
	}
	l.seekTo.Store(-1)
	return l
}

// Events returns the engine's event stream
func (l *Local) Events() <-chan Event {
	return l.events
}

// Buffered returns the audio written to the output but not yet heard
func (l *Local) Buffered() time.Duration {
	return l.out.Buffered()
}

// Play stops any current playback and starts decoding r
func (l *Local) Play(r io.Reader, format audio.Format, offset time.Duration) error {
	if !decode.Supported(format.Codec) {
		return fmt.Errorf("%w: %s", decode.ErrUnsupportedCodec, format.Codec)
	}
	l.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	l.seekTo.Store(-1)
	l.out.Resume()

	go func() {
		defer close(done)
		l.run(ctx, r, format, offset)
	}()
	return nil
}

// Stop ends playback and drops queued audio
func (l *Local) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	l.out.Flush()
	<-done
}

func (l *Local) Pause() {
	l.out.Pause()
}

func (l *Local) Resume() {
	l.out.Resume()
}

// Seek skips forward to position. Streams cannot rewind, so earlier
// positions are ignored.
func (l *Local) Seek(position time.Duration) {
	l.seekTo.Store(int64(position))
	l.out.Flush()
}

func (l *Local) SetVolume(volume float64) {
	l.out.SetVolume(volume)
}

func (l *Local) SetMuted(muted bool) {
	l.out.SetMuted(muted)
}

func (l *Local) emit(ctx context.Context, ev Event) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Local) fatal(ctx context.Context, err error) {
	log.Printf("Pipeline error: %v", err)
	l.emit(ctx, Event{Kind: EventFatal, Err: err})
}

func (l *Local) run(ctx context.Context, r io.Reader, format audio.Format, offset time.Duration) {
	dec, err := decode.New(format, r)
	if err != nil {
		if ctx.Err() == nil {
			l.fatal(ctx, fmt.Errorf("failed to open %s decoder: %w", format.Codec, err))
		}
		return
	}
	defer dec.Close()

	df := dec.Format()
	if df.SampleRate <= 0 || df.Channels <= 0 {
		l.fatal(ctx, fmt.Errorf("decoder reported invalid format %v", df))
		return
	}
	if err := l.out.Open(df.SampleRate, outputChannels); err != nil {
		l.fatal(ctx, fmt.Errorf("failed to open output: %w", err))
		return
	}

	var rs *resample.Resampler
	if l.out.Rate() != df.SampleRate {
		rs = resample.New(df.SampleRate, l.out.Rate(), outputChannels)
		log.Printf("Resampling %dHz -> %dHz", df.SampleRate, l.out.Rate())
	}
	log.Printf("Playing %v from %v", df, offset)

	samples := make([]int32, decodeFrames*df.Channels)
	stereo := make([]int32, decodeFrames*outputChannels)
	var resampled []int32
	if rs != nil {
		resampled = make([]int32, rs.MaxOutput(len(stereo)))
	}

	var decoded int64 // source frames consumed, including skipped ones
	position := func() time.Duration {
		pos := offset + framesToDuration(decoded, df.SampleRate) - l.out.Buffered()
		if pos < offset {
			pos = offset
		}
		return pos
	}
	lastReport := time.Now()
	carry := 0 // samples of an incomplete frame kept from the last read

	for {
		if ctx.Err() != nil {
			return
		}

		n, err := dec.Read(samples[carry:])
		n += carry
		frames := n / df.Channels
		if frames > 0 {
			decoded += int64(frames)

			skip := false
			if target := time.Duration(l.seekTo.Load()); target >= 0 {
				if offset+framesToDuration(decoded, df.SampleRate) < target {
					skip = true
				} else {
					l.seekTo.Store(-1)
					if rs != nil {
						rs.Reset()
					}
					log.Printf("Seek reached %v", target)
				}
			}

			if !skip {
				chunk := toStereo(samples[:frames*df.Channels], df.Channels, stereo)
				if rs != nil {
					chunk = resampled[:rs.Resample(chunk, resampled)]
				}
				if werr := l.out.Write(chunk); werr != nil && !errors.Is(werr, output.ErrFlushed) {
					l.fatal(ctx, fmt.Errorf("output write failed: %w", werr))
					return
				}
			}

			if time.Since(lastReport) >= positionInterval {
				lastReport = time.Now()
				if !l.emit(ctx, Event{Kind: EventPosition, Elapsed: position()}) {
					return
				}
			}
		}
		carry = copy(samples, samples[frames*df.Channels:n])

		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				l.fatal(ctx, fmt.Errorf("decode failed: %w", err))
			}
			return
		}
	}

	if !l.emit(ctx, Event{Kind: EventDecoded, Elapsed: position()}) {
		return
	}

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for l.out.Buffered() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if time.Since(lastReport) >= positionInterval {
			lastReport = time.Now()
			if !l.emit(ctx, Event{Kind: EventPosition, Elapsed: position()}) {
				return
			}
		}
	}

	l.emit(ctx, Event{Kind: EventEndOfStream, Elapsed: position()})
}

// toStereo writes src as two-channel frames into dst. Mono is duplicated
// and channels past the second are dropped.
func toStereo(src []int32, channels int, dst []int32) []int32 {
	if channels == outputChannels {
		return src
	}
	frames := len(src) / channels
	for i := 0; i < frames; i++ {
		left := src[i*channels]
		right := left
		if channels > 1 {
			right = src[i*channels+1]
		}
		dst[i*2] = left
		dst[i*2+1] = right
	}
	return dst[:frames*2]
}

func framesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(rate)
}
