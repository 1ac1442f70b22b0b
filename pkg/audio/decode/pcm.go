// ABOUTME: PCM audio decoder
// ABOUTME: Decodes raw or WAV-wrapped 8/16/24/32-bit PCM to int32 samples
package decode

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	r         io.Reader
	format    audio.Format
	bigEndian bool
	width     int // bytes per sample
	buf       []byte
	carry     int // partial sample bytes at the front of buf
}

// NewPCM creates a PCM decoder. A zero SampleRate means the stream starts
// with a WAV header that describes it.
func NewPCM(format audio.Format, r io.Reader) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	br := bufio.NewReader(r)
	if format.SampleRate == 0 || format.Channels == 0 || format.BitDepth == 0 {
		wav, err := readWAVHeader(br)
		if err != nil {
			return nil, err
		}
		format = wav
	}

	switch format.BitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", format.BitDepth)
	}

	return &PCMDecoder{
		r:         br,
		format:    format,
		bigEndian: format.BigEndian,
		width:     format.BitDepth / 8,
	}, nil
}

// Format returns the decoded format
func (d *PCMDecoder) Format() audio.Format {
	f := d.format
	f.BitDepth = 24
	f.BigEndian = false
	return f
}

// Read converts PCM bytes to int32 samples
func (d *PCMDecoder) Read(samples []int32) (int, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	need := len(samples) * d.width
	if cap(d.buf) < need {
		nb := make([]byte, need)
		copy(nb, d.buf[:d.carry])
		d.buf = nb
	}
	d.buf = d.buf[:need]

	n, err := io.ReadAtLeast(d.r, d.buf[d.carry:], d.width-d.carry)
	total := d.carry + n
	count := total / d.width

	for i := 0; i < count; i++ {
		samples[i] = d.sample(d.buf[i*d.width:])
	}

	d.carry = copy(d.buf, d.buf[count*d.width:total])

	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if count > 0 && err == io.EOF {
		// Report the tail now, EOF on the next call.
		return count, nil
	}
	return count, err
}

func (d *PCMDecoder) sample(b []byte) int32 {
	switch d.width {
	case 1:
		return audio.SampleFromInt8(b[0])
	case 2:
		if d.bigEndian {
			return audio.SampleFromInt16(int16(binary.BigEndian.Uint16(b)))
		}
		return audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		if d.bigEndian {
			return audio.SampleFrom24Bit([3]byte{b[2], b[1], b[0]})
		}
		return audio.SampleFrom24Bit([3]byte{b[0], b[1], b[2]})
	default:
		if d.bigEndian {
			return audio.SampleFrom32Bit(int32(binary.BigEndian.Uint32(b)))
		}
		return audio.SampleFrom32Bit(int32(binary.LittleEndian.Uint32(b)))
	}
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}

// readWAVHeader consumes a RIFF/WAVE header up to the start of the data chunk
func readWAVHeader(r *bufio.Reader) (audio.Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return audio.Format{}, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return audio.Format{}, fmt.Errorf("pcm stream has no wav header and no declared format")
	}

	format := audio.Format{Codec: "pcm"}
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return audio.Format{}, fmt.Errorf("read wav chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := int(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return audio.Format{}, fmt.Errorf("wav fmt chunk too short: %d", size)
			}
			body := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, body); err != nil {
				return audio.Format{}, fmt.Errorf("read wav fmt: %w", err)
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			if tag != 1 && tag != 0xfffe {
				return audio.Format{}, fmt.Errorf("unsupported wav format tag %#x", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			format.BitDepth = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return audio.Format{}, fmt.Errorf("wav data chunk before fmt chunk")
			}
			return format, nil
		default:
			if _, err := r.Discard(size + size%2); err != nil {
				return audio.Format{}, fmt.Errorf("skip wav chunk %q: %w", id, err)
			}
		}
	}
}
