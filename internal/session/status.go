// ABOUTME: Status snapshot published with every STAT frame
// ABOUTME: Carries state, session id, buffer and clock figures for reporters
package session

import "time"

// Status describes the player at the moment a status frame was sent.
// SessionID is the session the report is about; acknowledgements of stale
// commands carry the stale id with Stale set.
type Status struct {
	Event           string    `json:"event"`
	State           State     `json:"state"`
	SessionID       uint64    `json:"session_id"`
	Stale           bool      `json:"stale,omitempty"`
	Codec           string    `json:"codec,omitempty"`
	Occupancy       int       `json:"occupancy"`
	Capacity        int       `json:"capacity"`
	BytesReceived   uint64    `json:"bytes_received"`
	ElapsedMillis   int64     `json:"elapsed_ms"`
	Underrun        bool      `json:"underrun"`
	LowWater        bool      `json:"low_water"`
	Headers         int       `json:"headers,omitempty"`
	OutputMillis    int64     `json:"output_ms"`
	ServerTimestamp uint32    `json:"server_timestamp,omitempty"`
	Jiffies         uint32    `json:"jiffies"`
	Volume          float64   `json:"volume"`
	Muted           bool      `json:"muted"`
	Error           string    `json:"error,omitempty"`
	Time            time.Time `json:"time"`
}

// Elapsed returns the playback position carried by the status
func (s Status) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMillis) * time.Millisecond
}
