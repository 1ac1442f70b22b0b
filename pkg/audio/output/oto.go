// ABOUTME: Oto-based audio output implementation
// ABOUTME: Handles PCM playback with software volume control using oto library
package output

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

// Oto output implementation using oto library
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	player     *oto.Player
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     float64
	muted      bool
	paused     bool
	ready      bool
}

// NewOto creates a new Oto output
func NewOto() *Oto {
	return &Oto{volume: 1.0}
}

// Open initializes the output device. oto allows one context per process,
// so a later Open with another format keeps the first one.
func (o *Oto) Open(sampleRate, channels int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.otoCtx != nil {
		if o.sampleRate != sampleRate || o.channels != channels {
			log.Printf("Output: keeping %dHz %dch, stream is %dHz %dch",
				o.sampleRate, o.channels, sampleRate, channels)
		}
		if o.player == nil {
			o.newPlayerLocked()
		}
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels
	o.newPlayerLocked()
	o.ready = true

	log.Printf("Audio output initialized: %dHz, %d channels", sampleRate, channels)
	return nil
}

// newPlayerLocked starts a fresh player fed by a pipe
func (o *Oto) newPlayerLocked() {
	pr, pw := io.Pipe()
	o.pipeWriter = pw
	o.player = o.otoCtx.NewPlayer(pr)
	if !o.paused {
		o.player.Play()
	}
}

// Rate returns the device sample rate
func (o *Oto) Rate() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sampleRate
}

// Channels returns the device channel count
func (o *Oto) Channels() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channels
}

// Write outputs audio samples (blocks until written)
func (o *Oto) Write(samples []int32) error {
	o.mu.Lock()
	if !o.ready || o.pipeWriter == nil {
		o.mu.Unlock()
		return fmt.Errorf("output not initialized")
	}
	pw := o.pipeWriter
	multiplier := getVolumeMultiplier(o.volume, o.muted)
	o.mu.Unlock()

	out := make([]byte, len(samples)*2)
	for i, s := range applyVolume(samples, multiplier) {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.SampleToInt16(s)))
	}

	if _, err := pw.Write(out); err != nil {
		if err == io.ErrClosedPipe {
			return ErrFlushed
		}
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// Buffered returns the audio queued inside the player
func (o *Oto) Buffered() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player == nil || o.sampleRate == 0 {
		return 0
	}
	frames := o.player.BufferedSize() / (2 * o.channels)
	return time.Duration(frames) * time.Second / time.Duration(o.sampleRate)
}

// Pause halts the player
func (o *Oto) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = true
	if o.player != nil {
		o.player.Pause()
	}
}

// Resume restarts the player
func (o *Oto) Resume() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.paused = false
	if o.player != nil {
		o.player.Play()
	}
}

// Flush discards queued audio by replacing the player
func (o *Oto) Flush() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.otoCtx == nil {
		return
	}
	o.closePlayerLocked()
	o.newPlayerLocked()
}

func (o *Oto) closePlayerLocked() {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
		o.pipeWriter = nil
	}
	if o.player != nil {
		o.player.Close()
		o.player = nil
	}
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closePlayerLocked()
	if o.otoCtx != nil {
		if err := o.otoCtx.Suspend(); err != nil {
			return fmt.Errorf("suspend oto context: %w", err)
		}
	}
	o.ready = false
	return nil
}

// SetVolume sets the linear gain
func (o *Oto) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	o.mu.Lock()
	o.volume = volume
	o.mu.Unlock()
	log.Printf("Volume set to %.3f", volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	log.Printf("Muted: %v", muted)
}

// applyVolume scales samples with clipping protection
func applyVolume(samples []int32, multiplier float64) []int32 {
	result := make([]int32, len(samples))
	for i, sample := range samples {
		result[i] = audio.Clamp24(int64(float64(sample) * multiplier))
	}
	return result
}

// getVolumeMultiplier calculates volume multiplier
func getVolumeMultiplier(volume float64, muted bool) float64 {
	if muted {
		return 0.0
	}
	return volume
}
