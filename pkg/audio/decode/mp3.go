// ABOUTME: MP3 audio decoder
// ABOUTME: Decodes an MP3 stream to int32 samples via go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MP3 audio. go-mp3 always produces 16-bit
// little-endian stereo.
type MP3Decoder struct {
	decoder *mp3.Decoder
	format  audio.Format
	buf     []byte
	carry   int
}

// NewMP3 creates a decoder reading from r. It blocks until the first frame
// header has been read.
func NewMP3(r io.Reader) (Decoder, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	return &MP3Decoder{
		decoder: decoder,
		format: audio.Format{
			Codec:      "mp3",
			SampleRate: decoder.SampleRate(),
			Channels:   2,
			BitDepth:   24,
		},
	}, nil
}

// Format returns the decoded format
func (d *MP3Decoder) Format() audio.Format {
	return d.format
}

// Read converts decoded MP3 bytes to int32 samples
func (d *MP3Decoder) Read(samples []int32) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	need := len(samples) * 2
	if cap(d.buf) < need {
		nb := make([]byte, need)
		copy(nb, d.buf[:d.carry])
		d.buf = nb
	}
	d.buf = d.buf[:need]

	n, err := d.decoder.Read(d.buf[d.carry:])
	total := d.carry + n
	count := total / 2
	for i := 0; i < count; i++ {
		samples[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(d.buf[i*2:])))
	}
	d.carry = copy(d.buf, d.buf[count*2:total])

	if err != nil && err != io.EOF {
		return count, fmt.Errorf("mp3 decode error: %w", err)
	}
	if err == io.EOF && count > 0 {
		return count, nil
	}
	return count, err
}

// Close releases decoder resources
func (d *MP3Decoder) Close() error {
	return nil
}
