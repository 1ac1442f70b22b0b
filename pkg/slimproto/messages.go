// ABOUTME: Client-to-server SlimProto messages
// ABOUTME: HELO, STAT, BYE!, SETD and DSCO payload layouts
package slimproto

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// Client message tags
const (
	TagHelo = "HELO"
	TagStat = "STAT"
	TagBye  = "BYE!"
	TagSetd = "SETD"
	TagDsco = "DSCO"
)

// DefaultPort is the SlimProto control port
const DefaultPort = 3483

// DeviceID is the device type reported in HELO ("squeezeplay" family)
const DeviceID = 12

// StatSize is the fixed length of a STAT payload
const StatSize = 53

// STAT event codes
const (
	StatAccepted     = "STMc" // start accepted, data connection opening
	StatConnected    = "STMe" // data connection established
	StatHeaders      = "STMh" // data response headers parsed
	StatThreshold    = "STMl" // buffer threshold reached, waiting for unpause
	StatStarted      = "STMs" // playback started
	StatPaused       = "STMp"
	StatResumed      = "STMr"
	StatFlushed      = "STMf" // stopped or flushed
	StatDecoded      = "STMd" // decoder consumed the whole stream
	StatFinished     = "STMu" // playback ended normally
	StatUnderrun     = "STMo"
	StatNotSupported = "STMn" // unsupported format or decoder error
	StatTimer        = "STMt" // heartbeat or reply to strm t
)

// Helo announces the client and its capabilities
type Helo struct {
	DeviceID      uint8
	Revision      uint8
	MAC           net.HardwareAddr
	UUID          uuid.UUID
	WLANChannels  uint16
	BytesReceived uint64
	Capabilities  Capabilities
}

// Capabilities is the comma-separated capability list sent with HELO
type Capabilities struct {
	Codecs        []string
	Model         string
	ModelName     string
	Firmware      string
	MaxSampleRate int
	SyncGroupID   string
}

// String renders the capability list in wire order
func (c Capabilities) String() string {
	parts := append([]string{}, c.Codecs...)
	if c.Model != "" {
		parts = append(parts, "Model="+c.Model)
	}
	if c.ModelName != "" {
		parts = append(parts, "ModelName="+c.ModelName)
	}
	if c.Firmware != "" {
		parts = append(parts, "Firmware="+c.Firmware)
	}
	if c.MaxSampleRate > 0 {
		parts = append(parts, fmt.Sprintf("MaxSampleRate=%d", c.MaxSampleRate))
	}
	parts = append(parts, "AccuratePlayPoints=1", "HasDigitalOut=1")
	if c.SyncGroupID != "" {
		parts = append(parts, "SyncgroupID="+c.SyncGroupID)
	}
	return strings.Join(parts, ",")
}

// Supports reports whether codec is in the capability list
func (c Capabilities) Supports(codec string) bool {
	for _, name := range c.Codecs {
		if name == codec {
			return true
		}
	}
	return false
}

// Marshal encodes the HELO payload
func (h Helo) Marshal() []byte {
	caps := h.Capabilities.String()
	buf := make([]byte, 34, 34+len(caps))

	buf[0] = h.DeviceID
	buf[1] = h.Revision
	copy(buf[2:8], h.MAC)
	copy(buf[8:24], h.UUID[:])
	binary.BigEndian.PutUint16(buf[24:26], h.WLANChannels)
	binary.BigEndian.PutUint64(buf[26:34], h.BytesReceived)
	return append(buf, caps...)
}

// Frame returns the encoded client frame
func (h Helo) Frame() ([]byte, error) {
	return EncodeClient(TagHelo, h.Marshal())
}

// Stat is a status report
type Stat struct {
	Event            string
	NumCRLF          uint8
	MASInitialized   uint8
	MASMode          uint8
	BufferSize       uint32
	BufferFullness   uint32
	BytesReceived    uint64
	SignalStrength   uint16
	Jiffies          uint32
	OutputBufferSize uint32
	OutputFullness   uint32
	ElapsedSeconds   uint32
	Voltage          uint16
	ElapsedMillis    uint32
	ServerTimestamp  uint32
	ErrorCode        uint16
}

// Marshal encodes the 53-byte STAT payload
func (s Stat) Marshal() []byte {
	buf := make([]byte, StatSize)
	copy(buf[0:4], padTag(s.Event))
	buf[4] = s.NumCRLF
	buf[5] = s.MASInitialized
	buf[6] = s.MASMode
	binary.BigEndian.PutUint32(buf[7:11], s.BufferSize)
	binary.BigEndian.PutUint32(buf[11:15], s.BufferFullness)
	binary.BigEndian.PutUint64(buf[15:23], s.BytesReceived)
	binary.BigEndian.PutUint16(buf[23:25], s.SignalStrength)
	binary.BigEndian.PutUint32(buf[25:29], s.Jiffies)
	binary.BigEndian.PutUint32(buf[29:33], s.OutputBufferSize)
	binary.BigEndian.PutUint32(buf[33:37], s.OutputFullness)
	binary.BigEndian.PutUint32(buf[37:41], s.ElapsedSeconds)
	binary.BigEndian.PutUint16(buf[41:43], s.Voltage)
	binary.BigEndian.PutUint32(buf[43:47], s.ElapsedMillis)
	binary.BigEndian.PutUint32(buf[47:51], s.ServerTimestamp)
	binary.BigEndian.PutUint16(buf[51:53], s.ErrorCode)
	return buf
}

// Frame returns the encoded client frame
func (s Stat) Frame() ([]byte, error) {
	return EncodeClient(TagStat, s.Marshal())
}

// UnmarshalStat decodes a STAT payload
func UnmarshalStat(p []byte) (Stat, error) {
	if len(p) < StatSize {
		return Stat{}, fmt.Errorf("STAT: %w", ErrShortPayload)
	}
	return Stat{
		Event:            string(p[0:4]),
		NumCRLF:          p[4],
		MASInitialized:   p[5],
		MASMode:          p[6],
		BufferSize:       binary.BigEndian.Uint32(p[7:11]),
		BufferFullness:   binary.BigEndian.Uint32(p[11:15]),
		BytesReceived:    binary.BigEndian.Uint64(p[15:23]),
		SignalStrength:   binary.BigEndian.Uint16(p[23:25]),
		Jiffies:          binary.BigEndian.Uint32(p[25:29]),
		OutputBufferSize: binary.BigEndian.Uint32(p[29:33]),
		OutputFullness:   binary.BigEndian.Uint32(p[33:37]),
		ElapsedSeconds:   binary.BigEndian.Uint32(p[37:41]),
		Voltage:          binary.BigEndian.Uint16(p[41:43]),
		ElapsedMillis:    binary.BigEndian.Uint32(p[43:47]),
		ServerTimestamp:  binary.BigEndian.Uint32(p[47:51]),
		ErrorCode:        binary.BigEndian.Uint16(p[51:53]),
	}, nil
}

// ByeFrame encodes BYE! with the given reason
func ByeFrame(reason uint8) ([]byte, error) {
	return EncodeClient(TagBye, []byte{reason})
}

// SetdNamePayload builds the SETD id 0 payload carrying the player name
func SetdNamePayload(name string) []byte {
	payload := make([]byte, 0, len(name)+2)
	payload = append(payload, 0)
	payload = append(payload, name...)
	return append(payload, 0)
}

// SetdNameFrame encodes SETD id 0 carrying the player name
func SetdNameFrame(name string) ([]byte, error) {
	return EncodeClient(TagSetd, SetdNamePayload(name))
}

// DSCO reasons
const (
	DscoClosed     uint8 = 0
	DscoReset      uint8 = 1
	DscoTimeout    uint8 = 2
	DscoHTTPError  uint8 = 3
	DscoHTTPError2 uint8 = 4
)

// DscoFrame encodes DSCO with the given reason
func DscoFrame(reason uint8) ([]byte, error) {
	return EncodeClient(TagDsco, []byte{reason})
}

func padTag(s string) string {
	if len(s) >= TagSize {
		return s[:TagSize]
	}
	return s + strings.Repeat(" ", TagSize-len(s))
}
