// ABOUTME: FLAC audio decoder
// ABOUTME: Decodes a FLAC stream frame by frame via mewkiz/flac
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLACDecoder decodes FLAC audio
type FLACDecoder struct {
	stream  *flac.Stream
	format  audio.Format
	shift   int // left shift into the 24-bit range; negative shifts right
	pending []int32
}

// NewFLAC parses the stream header from r
func NewFLAC(r io.Reader) (Decoder, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open flac stream: %w", err)
	}

	bps := int(stream.Info.BitsPerSample)
	return &FLACDecoder{
		stream: stream,
		format: audio.Format{
			Codec:      "flc",
			SampleRate: int(stream.Info.SampleRate),
			Channels:   int(stream.Info.NChannels),
			BitDepth:   24,
		},
		shift: 24 - bps,
	}, nil
}

// Format returns the decoded format
func (d *FLACDecoder) Format() audio.Format {
	return d.format
}

// Read returns interleaved samples, parsing frames as needed
func (d *FLACDecoder) Read(samples []int32) (int, error) {
	for len(d.pending) == 0 {
		if err := d.nextFrame(); err != nil {
			return 0, err
		}
	}

	n := copy(samples, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *FLACDecoder) nextFrame() error {
	frame, err := d.stream.ParseNext()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("flac decode error: %w", err)
	}

	channels := len(frame.Subframes)
	if channels == 0 {
		return nil
	}
	blockSize := len(frame.Subframes[0].Samples)

	out := make([]int32, 0, blockSize*channels)
	for i := 0; i < blockSize; i++ {
		for ch := 0; ch < channels; ch++ {
			out = append(out, d.scale(frame.Subframes[ch].Samples[i]))
		}
	}
	d.pending = out
	return nil
}

func (d *FLACDecoder) scale(s int32) int32 {
	if d.shift >= 0 {
		return s << uint(d.shift)
	}
	return s >> uint(-d.shift)
}

// Close releases decoder resources
func (d *FLACDecoder) Close() error {
	return d.stream.Close()
}
