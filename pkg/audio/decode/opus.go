// ABOUTME: Opus audio decoder
// ABOUTME: Decodes an Ogg Opus stream to int32 samples
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

const (
	// Ogg Opus always decodes at 48kHz
	opusSampleRate = 48000
	opusChannels   = 2
)

// OpusDecoder decodes Ogg Opus audio. Output is treated as stereo.
type OpusDecoder struct {
	stream *opus.Stream
	pcm16  []int16
}

// NewOpus opens an Ogg Opus stream from r
func NewOpus(r io.Reader) (Decoder, error) {
	stream, err := opus.NewStream(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus stream: %w", err)
	}
	return &OpusDecoder{stream: stream}, nil
}

// Format returns the decoded format
func (d *OpusDecoder) Format() audio.Format {
	return audio.Format{
		Codec:      "ops",
		SampleRate: opusSampleRate,
		Channels:   opusChannels,
		BitDepth:   24,
	}
}

// Read decodes the next packets into samples
func (d *OpusDecoder) Read(samples []int32) (int, error) {
	if cap(d.pcm16) < len(samples) {
		d.pcm16 = make([]int16, len(samples))
	}
	pcm := d.pcm16[:len(samples)]

	n, err := d.stream.Read(pcm)
	if err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("opus decode failed: %w", err)
	}

	// n counts samples per channel
	total := n * opusChannels
	if total > len(samples) {
		total = len(samples)
	}
	for i := 0; i < total; i++ {
		samples[i] = audio.SampleFromInt16(pcm[i])
	}
	return total, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return d.stream.Close()
}
