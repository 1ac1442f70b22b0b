// ABOUTME: Events flowing from the audio pipeline back to the session
// ABOUTME: Position updates, end of stream, fatal errors and underruns
package pipeline

import (
	"fmt"
	"time"
)

// EventKind identifies a pipeline event
type EventKind int

const (
	// EventPosition reports the elapsed playback time
	EventPosition EventKind = iota
	// EventDecoded means the decoder consumed the whole stream
	EventDecoded
	// EventEndOfStream means the last sample has been played
	EventEndOfStream
	// EventFatal means playback cannot continue
	EventFatal
	// EventUnderrun means the pipeline ran out of buffered bytes
	EventUnderrun
)

func (k EventKind) String() string {
	switch k {
	case EventPosition:
		return "position"
	case EventDecoded:
		return "decoded"
	case EventEndOfStream:
		return "end-of-stream"
	case EventFatal:
		return "fatal"
	case EventUnderrun:
		return "underrun"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is reported by an Engine and tagged with its session by the Adapter
type Event struct {
	Kind    EventKind
	Session uint64
	Elapsed time.Duration
	Err     error
}
