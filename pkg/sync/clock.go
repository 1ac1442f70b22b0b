// ABOUTME: Playback clock with skew and drift compensation
// ABOUTME: Interpolates stream position from local time plus smoothed corrections
package sync

import (
	"log"
	"sync"
	"time"
)

const (
	// DefaultGain is the weight given to each new residual
	DefaultGain = 0.1

	// outlierThreshold rejects samples that disagree with the prediction by more
	outlierThreshold = 500 * time.Millisecond

	// outlierLimit consecutive outliers means the stream really jumped
	outlierLimit = 5

	// maxDrift bounds the estimated rate error (5%)
	maxDrift = 0.05

	// staleAfter marks the clock lost when no sample arrived for this long
	staleAfter = 5 * time.Second
)

// Quality represents how well the clock tracks the pipeline
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	}
	return "lost"
}

// Clock tracks stream position against local monotonic time.
//
// position = base + elapsed*(1+drift), where elapsed is local time since
// ref. Each sample moves base by gain*residual and drift by
// gain*residual/dt; skew accumulates the applied corrections.
type Clock struct {
	mu  sync.RWMutex
	now func() time.Time

	running bool
	paused  bool
	frozen  time.Duration

	base  time.Duration // stream position at ref
	ref   time.Time     // local reference
	skew  time.Duration // accumulated correction since the last anchor
	drift float64       // stream seconds per local second, minus one

	lastSample   time.Time
	lastResidual time.Duration
	lastReturned time.Duration
	sampleCount  int
	outliers     int
	gain         float64
	quality      Quality
}

// NewClock creates a stopped clock
func NewClock() *Clock {
	return &Clock{
		now:     time.Now,
		gain:    DefaultGain,
		quality: QualityLost,
	}
}

// Start anchors the clock at offset and clears all estimates
func (c *Clock) Start(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = true
	c.paused = false
	c.base = offset
	c.ref = c.now()
	c.skew = 0
	c.drift = 0
	c.lastSample = time.Time{}
	c.lastResidual = 0
	c.lastReturned = 0
	c.sampleCount = 0
	c.outliers = 0
	c.quality = QualityGood
}

// Stop halts the clock. Position reads 0 afterwards.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.running = false
	c.paused = false
	c.lastReturned = 0
	c.quality = QualityLost
}

// Running reports whether Start was called since the last Stop
func (c *Clock) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Advance folds a reported elapsed position into the skew estimate
func (c *Clock) Advance(reported time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.paused {
		return
	}

	now := c.now()
	predicted := c.rawLocked(now)
	residual := reported - predicted

	if residual > outlierThreshold || residual < -outlierThreshold {
		c.outliers++
		if c.outliers < outlierLimit {
			log.Printf("Clock: discarding sample %v (residual %v)", reported, residual)
			return
		}
		// The pipeline is consistently elsewhere; follow it.
		log.Printf("Clock: %d consecutive outliers, re-anchoring at %v", c.outliers, reported)
		c.base = reported
		c.ref = now
		c.skew = 0
		c.outliers = 0
		c.lastSample = now
		c.sampleCount++
		c.quality = QualityDegraded
		return
	}
	c.outliers = 0

	if c.sampleCount > 0 {
		dt := now.Sub(c.ref).Seconds()
		if dt > 0 {
			c.drift += c.gain * residual.Seconds() / dt
			if c.drift > maxDrift {
				c.drift = maxDrift
			} else if c.drift < -maxDrift {
				c.drift = -maxDrift
			}
		}
	}

	correction := time.Duration(c.gain * float64(residual))
	c.base = predicted + correction
	c.ref = now
	c.skew += correction
	c.lastSample = now
	c.lastResidual = residual
	c.sampleCount++

	if residual < 50*time.Millisecond && residual > -50*time.Millisecond {
		c.quality = QualityGood
	} else {
		c.quality = QualityDegraded
	}
}

// Position returns the interpolated stream position. It never decreases
// between Start/Seek calls.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return 0
	}
	if c.paused {
		return c.frozen
	}

	pos := c.rawLocked(c.now())
	if pos < c.lastReturned {
		pos = c.lastReturned
	}
	c.lastReturned = pos
	return pos
}

// Seek re-anchors at offset. Drift is kept so synchronization carries across.
func (c *Clock) Seek(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	c.base = offset
	c.ref = c.now()
	c.skew = 0
	c.lastReturned = 0
	c.outliers = 0
	if c.paused {
		c.frozen = offset
	}
}

// Pause freezes the position
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.paused {
		return
	}
	pos := c.rawLocked(c.now())
	if pos < c.lastReturned {
		pos = c.lastReturned
	}
	c.frozen = pos
	c.paused = true
}

// Resume continues from the frozen position
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || !c.paused {
		return
	}
	c.base = c.frozen
	c.ref = c.now()
	c.skew = 0
	c.lastReturned = c.frozen
	c.paused = false
}

// Stats returns the accumulated correction, drift and quality
func (c *Clock) Stats() (skew time.Duration, drift float64, quality Quality) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.skew, c.drift, c.quality
}

// CheckQuality marks the clock lost when samples stopped arriving
func (c *Clock) CheckQuality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running && !c.paused && c.sampleCount > 0 && c.now().Sub(c.lastSample) > staleAfter {
		c.quality = QualityLost
	}
	return c.quality
}

func (c *Clock) rawLocked(now time.Time) time.Duration {
	elapsed := now.Sub(c.ref)
	return c.base + time.Duration(float64(elapsed)*(1+c.drift))
}
