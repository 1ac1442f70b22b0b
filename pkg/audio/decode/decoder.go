// ABOUTME: Decoder interface definition
// ABOUTME: Common streaming interface for all audio decoders
package decode

import (
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
)

// ErrUnsupportedCodec is returned by New for codecs without a decoder
var ErrUnsupportedCodec = errors.New("unsupported codec")

// Codecs lists the capability names New can decode, in HELO order
var Codecs = []string{"pcm", "mp3", "flc", "ops"}

// Decoder reads decoded audio from an encoded stream
type Decoder interface {
	// Format describes the decoded output. BitDepth is always 24.
	Format() audio.Format

	// Read fills samples with interleaved frames and returns the sample
	// count. It returns io.EOF after the last sample.
	Read(samples []int32) (int, error)

	// Close releases decoder resources
	Close() error
}

// New opens a decoder for format.Codec reading from r
func New(format audio.Format, r io.Reader) (Decoder, error) {
	switch format.Codec {
	case "pcm":
		return NewPCM(format, r)
	case "mp3":
		return NewMP3(r)
	case "flc", "flac":
		return NewFLAC(r)
	case "ops", "opus":
		return NewOpus(r)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, format.Codec)
}

// Supported reports whether New can decode codec
func Supported(codec string) bool {
	for _, c := range Codecs {
		if c == codec {
			return true
		}
	}
	return false
}
