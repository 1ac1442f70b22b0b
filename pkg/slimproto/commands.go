// ABOUTME: Server-to-client SlimProto commands
// ABOUTME: Parses strm, audg, aude, setd, serv and vers payloads into typed values
package slimproto

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Server command tags
const (
	TagStrm       = "strm"
	TagAudg       = "audg"
	TagAude       = "aude"
	TagSetdServer = "setd"
	TagServ       = "serv"
	TagVers       = "vers"
)

// strm sub-commands
const (
	StrmStart   byte = 's'
	StrmPause   byte = 'p'
	StrmUnpause byte = 'u'
	StrmStop    byte = 'q'
	StrmFlush   byte = 'f'
	StrmStatus  byte = 't'
	StrmSkip    byte = 'a'
)

// StrmHeaderSize is the fixed portion of a strm payload
const StrmHeaderSize = 24

// gainFactor converts 16.16 fixed point to float
const gainFactor = 65536.0

// Message is a decoded server command
type Message interface {
	Tag() string
}

// Strm controls the stream session
type Strm struct {
	Command          byte
	Autostart        byte
	Format           byte
	PCMSampleSize    byte
	PCMSampleRate    byte
	PCMChannels      byte
	PCMEndian        byte
	Threshold        uint32 // bytes
	SPDIF            byte
	TransitionPeriod byte
	TransitionType   byte
	Flags            byte
	OutputThreshold  time.Duration
	// Value holds replay gain (16.16) for start and interval/timestamp
	// milliseconds for the other sub-commands.
	Value      uint32
	ServerPort uint16
	ServerIP   net.IP
	Request    string
}

func (Strm) Tag() string { return TagStrm }

// AutostartEnabled reports whether playback starts on its own at the threshold
func (s Strm) AutostartEnabled() bool {
	return s.Autostart == '1' || s.Autostart == '3'
}

// ReplayGain returns the 16.16 replay gain as a float. Zero means none.
func (s Strm) ReplayGain() float64 {
	return float64(s.Value) / gainFactor
}

// Interval returns Value as milliseconds
func (s Strm) Interval() time.Duration {
	return time.Duration(s.Value) * time.Millisecond
}

// Codec maps the format byte to the capability name used in HELO.
// Unknown bytes map to "".
func (s Strm) Codec() string {
	switch s.Format {
	case 'p':
		return "pcm"
	case 'm':
		return "mp3"
	case 'f':
		return "flc"
	case 'u':
		return "ops"
	case 'o':
		return "ogg"
	case 'a':
		return "aac"
	case 'w':
		return "wma"
	case 'l':
		return "alc"
	}
	return ""
}

// SampleRate decodes the pcm rate byte. Zero means the stream describes itself.
func (s Strm) SampleRate() int {
	switch s.PCMSampleRate {
	case '0':
		return 11025
	case '1':
		return 22050
	case '2':
		return 32000
	case '3':
		return 44100
	case '4':
		return 48000
	case '5':
		return 8000
	case '6':
		return 12000
	case '7':
		return 16000
	case '8':
		return 24000
	case '9':
		return 96000
	}
	return 0
}

// SampleSize decodes the pcm sample size byte into bits
func (s Strm) SampleSize() int {
	switch s.PCMSampleSize {
	case '0':
		return 8
	case '1':
		return 16
	case '2':
		return 24
	case '3':
		return 32
	}
	return 0
}

// Channels decodes the channel count byte
func (s Strm) Channels() int {
	switch s.PCMChannels {
	case '1':
		return 1
	case '2':
		return 2
	}
	return 0
}

// BigEndian reports the pcm byte order
func (s Strm) BigEndian() bool {
	return s.PCMEndian == '0'
}

// Marshal encodes the strm payload
func (s Strm) Marshal() []byte {
	buf := make([]byte, StrmHeaderSize, StrmHeaderSize+len(s.Request))
	buf[0] = s.Command
	buf[1] = s.Autostart
	buf[2] = s.Format
	buf[3] = s.PCMSampleSize
	buf[4] = s.PCMSampleRate
	buf[5] = s.PCMChannels
	buf[6] = s.PCMEndian
	buf[7] = byte(s.Threshold / 1024)
	buf[8] = s.SPDIF
	buf[9] = s.TransitionPeriod
	buf[10] = s.TransitionType
	buf[11] = s.Flags
	buf[12] = byte(s.OutputThreshold / (100 * time.Millisecond))
	binary.BigEndian.PutUint32(buf[14:18], s.Value)
	binary.BigEndian.PutUint16(buf[18:20], s.ServerPort)
	if ip := s.ServerIP.To4(); ip != nil {
		copy(buf[20:24], ip)
	}
	return append(buf, s.Request...)
}

func parseStrm(p []byte) (Strm, error) {
	if len(p) < StrmHeaderSize {
		return Strm{}, fmt.Errorf("strm: %w", ErrShortPayload)
	}
	ip := net.IPv4(p[20], p[21], p[22], p[23])
	if binary.BigEndian.Uint32(p[20:24]) == 0 {
		ip = nil
	}
	return Strm{
		Command:          p[0],
		Autostart:        p[1],
		Format:           p[2],
		PCMSampleSize:    p[3],
		PCMSampleRate:    p[4],
		PCMChannels:      p[5],
		PCMEndian:        p[6],
		Threshold:        uint32(p[7]) * 1024,
		SPDIF:            p[8],
		TransitionPeriod: p[9],
		TransitionType:   p[10],
		Flags:            p[11],
		OutputThreshold:  time.Duration(p[12]) * 100 * time.Millisecond,
		Value:            binary.BigEndian.Uint32(p[14:18]),
		ServerPort:       binary.BigEndian.Uint16(p[18:20]),
		ServerIP:         ip,
		Request:          string(p[StrmHeaderSize:]),
	}, nil
}

// Audg sets the output gain
type Audg struct {
	Left  float64
	Right float64
}

func (Audg) Tag() string { return TagAudg }

// Volume collapses the per-channel gains into one level
func (a Audg) Volume() float64 {
	if a.Left > a.Right {
		return a.Left
	}
	return a.Right
}

// Marshal encodes the audg payload with zero old gains
func (a Audg) Marshal() []byte {
	buf := make([]byte, 18)
	binary.BigEndian.PutUint32(buf[10:14], uint32(a.Left*gainFactor))
	binary.BigEndian.PutUint32(buf[14:18], uint32(a.Right*gainFactor))
	return buf
}

func parseAudg(p []byte) (Audg, error) {
	if len(p) < 18 {
		return Audg{}, fmt.Errorf("audg: %w", ErrShortPayload)
	}
	return Audg{
		Left:  float64(binary.BigEndian.Uint32(p[10:14])) / gainFactor,
		Right: float64(binary.BigEndian.Uint32(p[14:18])) / gainFactor,
	}, nil
}

// Aude enables or disables outputs
type Aude struct {
	SPDIF bool
	DAC   bool
}

func (Aude) Tag() string { return TagAude }

func parseAude(p []byte) (Aude, error) {
	if len(p) < 2 {
		return Aude{}, fmt.Errorf("aude: %w", ErrShortPayload)
	}
	return Aude{SPDIF: p[0] != 0, DAC: p[1] != 0}, nil
}

// Setd queries or updates a player setting
type Setd struct {
	ID   byte
	Data []byte
}

func (Setd) Tag() string { return TagSetdServer }

// IsQuery reports whether the server is asking for the current value
func (s Setd) IsQuery() bool {
	return len(s.Data) == 0
}

// Name returns Data as a NUL-trimmed string
func (s Setd) Name() string {
	for i, b := range s.Data {
		if b == 0 {
			return string(s.Data[:i])
		}
	}
	return string(s.Data)
}

func parseSetd(p []byte) (Setd, error) {
	if len(p) < 1 {
		return Setd{}, fmt.Errorf("setd: %w", ErrShortPayload)
	}
	data := make([]byte, len(p)-1)
	copy(data, p[1:])
	return Setd{ID: p[0], Data: data}, nil
}

// Serv redirects the player to another server
type Serv struct {
	IP          net.IP
	SyncGroupID string
}

func (Serv) Tag() string { return TagServ }

func parseServ(p []byte) (Serv, error) {
	if len(p) < 4 {
		return Serv{}, fmt.Errorf("serv: %w", ErrShortPayload)
	}
	return Serv{
		IP:          net.IPv4(p[0], p[1], p[2], p[3]),
		SyncGroupID: string(p[4:]),
	}, nil
}

// Vers carries the server version
type Vers struct {
	Version string
}

func (Vers) Tag() string { return TagVers }

// Unknown is any tag this client does not act on
type Unknown struct {
	Name    string
	Payload []byte
}

func (u Unknown) Tag() string { return u.Name }

// ParseServerMessage turns a frame into a typed command.
//
// Unrecognised tags yield Unknown with a nil error. A payload too short for
// its command yields an error wrapping ErrShortPayload.
func ParseServerMessage(f Frame) (Message, error) {
	switch f.Tag {
	case TagStrm:
		return parseStrm(f.Payload)
	case TagAudg:
		return parseAudg(f.Payload)
	case TagAude:
		return parseAude(f.Payload)
	case TagSetdServer:
		return parseSetd(f.Payload)
	case TagServ:
		return parseServ(f.Payload)
	case TagVers:
		return Vers{Version: string(f.Payload)}, nil
	}
	return Unknown{Name: f.Tag, Payload: f.Payload}, nil
}
