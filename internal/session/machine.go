// ABOUTME: Session state machine: the single owner of stream sessions
// ABOUTME: Serialises commands, data, buffer, pipeline and timer events on one goroutine
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/Resonate-Protocol/slimplayer/internal/pipeline"
	"github.com/Resonate-Protocol/slimplayer/internal/stream"
	"github.com/Resonate-Protocol/slimplayer/pkg/audio"
	"github.com/Resonate-Protocol/slimplayer/pkg/slimproto"
	psync "github.com/Resonate-Protocol/slimplayer/pkg/sync"
)

// Sender writes one client frame to the control channel
type Sender interface {
	Send(tag string, payload []byte) error
}

// Pipeline plays the current session's buffer
type Pipeline interface {
	Play(session uint64, buf *audio.RingBuffer, format audio.Format, offset time.Duration) error
	Pause()
	Resume()
	Seek(position time.Duration)
	SetVolume(volume float64)
	SetMuted(muted bool)
	Stop()
	Events() <-chan pipeline.Event
}

// OutputReporter is implemented by pipelines that can say how much decoded
// audio is queued at the device
type OutputReporter interface {
	Buffered() time.Duration
}

// DataChannel is an open data connection
type DataChannel interface {
	Close()
}

// DataOpener starts a data connection. emit must not be called once Close
// has returned.
type DataOpener func(ctx context.Context, req stream.Request, emit func(stream.Event)) DataChannel

// OpenStream is the DataOpener backed by the stream package
func OpenStream(ctx context.Context, req stream.Request, emit func(stream.Event)) DataChannel {
	return stream.Open(ctx, req, emit)
}

// Command is a server command. SessionID 0 addresses whatever session is
// current; any other id must match the current session to take effect.
type Command struct {
	Msg       slimproto.Message
	SessionID uint64
}

// Config wires the machine to its collaborators
type Config struct {
	Capabilities slimproto.Capabilities
	Name         string
	BufferSize   int
	Heartbeat    time.Duration
	StallTimeout time.Duration
	DataRetries  int
	LowWatermark time.Duration // buffered playback time that counts as low
	Debug        bool

	Pipeline Pipeline   // required
	OpenData DataOpener // defaults to OpenStream
	Jiffies  *psync.Jiffies

	OnStatus   func(Status)
	OnRedirect func(ip net.IP)
	OnRename   func(name string)
	OnError    func(err error)
}

const (
	defaultBufferSize = 2 * 1024 * 1024
	eventQueueSize    = 64

	// consecutive pipeline failures before the user is told
	fatalReportAfter = 3

	// output buffer as the server expects it: 10s of 44.1kHz 16-bit stereo
	outputByteRate   = 44100 * 4
	outputBufferSize = outputByteRate * 10
)

type timerKind int

const (
	timerResume  timerKind = iota // end of a timed pause
	timerUnpause                  // jiffies target of a timed unpause
	timerStall                    // no data since the channel failed
)

type connectingEvent struct{}

type handshakeEvent struct {
	sender Sender
	ip     net.IP
}

type disconnectEvent struct{}

type commandEvent struct {
	cmd Command
}

type dataEvent struct {
	ev stream.Event
}

type bufferEvent struct {
	session uint64
	low     bool
}

type timerEvent struct {
	session uint64
	kind    timerKind
}

// streamSession is one playback request. It is replaced, never reused.
type streamSession struct {
	id     uint64
	strm   slimproto.Strm
	format audio.Format
	addr   string
	low    int

	ctx    context.Context
	cancel context.CancelFunc
	buf    *audio.RingBuffer
	data   DataChannel
	timers []*time.Timer

	started   bool
	dataEOF   bool
	retries   int
	underrun  bool
	lowWater  bool
	stallMark uint64
	headers   int // response header count, reported as STAT crlf
}

// Machine owns the stream session and every transition between states.
// All mutation happens on the Run goroutine; the exported methods only post
// events to it.
type Machine struct {
	config   Config
	pipeline Pipeline
	openData DataOpener
	clock    *psync.Clock
	jiffies  *psync.Jiffies

	events chan any
	done   chan struct{}

	// owned by Run
	state     State
	sender    Sender
	controlIP net.IP
	queued    []Command
	current   *streamSession
	lastID    uint64
	name      string
	volume    float64
	muted     bool
	fatals    int

	mu        sync.RWMutex
	published State
	status    Status
}

// New creates a machine in the Disconnected state
func New(config Config) *Machine {
	if config.BufferSize <= 0 {
		config.BufferSize = defaultBufferSize
	}
	if config.Heartbeat <= 0 {
		config.Heartbeat = time.Second
	}
	if config.StallTimeout <= 0 {
		config.StallTimeout = 10 * time.Second
	}
	if config.OpenData == nil {
		config.OpenData = OpenStream
	}
	if config.Jiffies == nil {
		config.Jiffies = psync.NewJiffies()
	}

	return &Machine{
		config:   config,
		pipeline: config.Pipeline,
		openData: config.OpenData,
		clock:    psync.NewClock(),
		jiffies:  config.Jiffies,
		events:   make(chan any, eventQueueSize),
		done:     make(chan struct{}),
		name:     config.Name,
		volume:   1.0,
	}
}

// Run processes events until ctx is cancelled. Call it once.
func (m *Machine) Run(ctx context.Context) error {
	defer close(m.done)

	ticker := time.NewTicker(m.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.teardown()
			m.setState(StateDisconnected)
			return ctx.Err()
		case ev := <-m.events:
			m.dispatch(ev)
		case ev := <-m.pipeline.Events():
			m.handlePipeline(ev)
		case <-ticker.C:
			m.heartbeat()
		}
	}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published
}

// Status returns the last published status
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Connecting marks the start of a handshake. Commands arriving before
// HandshakeDone are queued.
func (m *Machine) Connecting() {
	m.post(connectingEvent{})
}

// HandshakeDone attaches the control channel. ip is used when a start
// command leaves the data server address at zero.
func (m *Machine) HandshakeDone(sender Sender, ip net.IP) {
	m.post(handshakeEvent{sender: sender, ip: ip})
}

// Disconnected drops the control channel and any session with it
func (m *Machine) Disconnected() {
	m.post(disconnectEvent{})
}

// HandleFrame decodes a control frame and submits it for the current session
func (m *Machine) HandleFrame(frame slimproto.Frame) {
	msg, err := slimproto.ParseServerMessage(frame)
	if err != nil {
		log.Printf("Ignoring %s: %v", frame, err)
		return
	}
	m.Submit(Command{Msg: msg})
}

// Submit queues a command for the event loop
func (m *Machine) Submit(cmd Command) {
	m.post(commandEvent{cmd: cmd})
}

func (m *Machine) post(ev any) {
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

// postSession is used by session-owned goroutines and timers. It gives up
// once the session is torn down so teardown never waits on a full queue.
func (m *Machine) postSession(ctx context.Context, ev any) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	case <-m.done:
	}
}

func (m *Machine) dispatch(ev any) {
	switch ev := ev.(type) {
	case connectingEvent:
		m.setState(StateHandshaking)
	case handshakeEvent:
		m.sender = ev.sender
		m.controlIP = ev.ip
		m.setState(StateIdle)
		queued := m.queued
		m.queued = nil
		for _, cmd := range queued {
			m.handleCommand(cmd)
		}
	case disconnectEvent:
		m.teardown()
		m.sender = nil
		m.queued = nil
		m.setState(StateDisconnected)
	case commandEvent:
		m.handleCommand(ev.cmd)
	case dataEvent:
		m.handleData(ev.ev)
	case bufferEvent:
		m.handleBuffer(ev)
	case timerEvent:
		m.handleTimer(ev)
	}
}

func (m *Machine) setState(state State) {
	if m.state != state {
		log.Printf("State: %s -> %s", m.state, state)
	}
	m.state = state
	m.mu.Lock()
	m.published = state
	m.mu.Unlock()
}

func (m *Machine) handleCommand(cmd Command) {
	switch m.state {
	case StateHandshaking:
		log.Printf("Queueing %s until the handshake completes", cmd.Msg.Tag())
		m.queued = append(m.queued, cmd)
		return
	case StateDisconnected:
		log.Printf("Dropping %s: not connected", cmd.Msg.Tag())
		return
	}

	if cmd.SessionID != 0 && (m.current == nil || cmd.SessionID != m.current.id) {
		log.Printf("Ignoring %s for stale session %d", cmd.Msg.Tag(), cmd.SessionID)
		m.sendStale(cmd.SessionID)
		return
	}

	switch msg := cmd.Msg.(type) {
	case slimproto.Strm:
		m.handleStrm(msg)
	case slimproto.Audg:
		m.volume = msg.Volume()
		m.applyVolume()
	case slimproto.Aude:
		m.muted = !msg.DAC
		m.pipeline.SetMuted(m.muted)
		log.Printf("Output muted: %v", m.muted)
	case slimproto.Setd:
		m.handleSetd(msg)
	case slimproto.Serv:
		log.Printf("Server redirect to %v", msg.IP)
		if m.config.OnRedirect != nil {
			m.config.OnRedirect(msg.IP)
		}
	case slimproto.Vers:
		log.Printf("Server version %s", msg.Version)
	case slimproto.Unknown:
		log.Printf("Ignoring unknown command %q (%d bytes)", msg.Name, len(msg.Payload))
	default:
		log.Printf("Ignoring command %s", cmd.Msg.Tag())
	}
}

func (m *Machine) handleStrm(s slimproto.Strm) {
	switch s.Command {
	case slimproto.StrmStart:
		m.start(s)
	case slimproto.StrmPause:
		m.pause(s.Interval())
	case slimproto.StrmUnpause:
		m.unpause(s.Value)
	case slimproto.StrmStop, slimproto.StrmFlush:
		m.stop()
	case slimproto.StrmStatus:
		m.sendStatus(slimproto.StatTimer, s.Value)
	case slimproto.StrmSkip:
		m.skip(s.Interval())
	default:
		log.Printf("Ignoring strm command %q", s.Command)
	}
}

func (m *Machine) start(s slimproto.Strm) {
	codec := s.Codec()
	if !m.config.Capabilities.Supports(codec) {
		log.Printf("Unsupported stream format %q (%q)", codec, s.Format)
		m.sendStatus(slimproto.StatNotSupported, 0)
		return
	}

	// The old session is fully gone before anything new exists
	m.teardown()

	m.lastID++
	id := m.lastID

	format := audio.Format{Codec: codec}
	if codec == "pcm" {
		format.SampleRate = s.SampleRate()
		format.Channels = s.Channels()
		format.BitDepth = s.SampleSize()
		format.BigEndian = s.BigEndian()
	}

	ip := s.ServerIP
	if ip == nil {
		ip = m.controlIP
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &streamSession{
		id:     id,
		strm:   s,
		format: format,
		addr:   net.JoinHostPort(ip.String(), strconv.Itoa(int(s.ServerPort))),
		low:    int(float64(format.ByteRate()) * m.config.LowWatermark.Seconds()),
		ctx:    ctx,
		cancel: cancel,
	}
	sess.buf = audio.NewRingBuffer(audio.RingBufferConfig{
		Capacity:     m.config.BufferSize,
		LowWatermark: sess.low,
		Threshold:    int(s.Threshold),
		Session:      id,
		OnThreshold:  func() { m.postSession(ctx, bufferEvent{session: id}) },
		OnLow:        func() { m.postSession(ctx, bufferEvent{session: id, low: true}) },
	})

	m.current = sess
	m.setState(StateBuffering)
	log.Printf("Session %d: %v from %s, threshold %d bytes, autostart %v",
		id, format, sess.addr, s.Threshold, s.AutostartEnabled())

	m.sendStatus(slimproto.StatAccepted, 0)
	m.connectData(sess, 0)
}

func (m *Machine) connectData(s *streamSession, offset uint64) {
	ctx, id := s.ctx, s.id
	s.data = m.openData(ctx, stream.Request{
		Session: id,
		Addr:    s.addr,
		Header:  s.strm.Request,
		Offset:  offset,
		Buffer:  s.buf,
		Debug:   m.config.Debug,
	}, func(ev stream.Event) {
		m.postSession(ctx, dataEvent{ev: ev})
	})
}

func (m *Machine) startPlayback(s *streamSession) {
	if s.started {
		return
	}
	s.started = true

	if err := m.pipeline.Play(s.id, s.buf, s.format, 0); err != nil {
		m.fail(fmt.Errorf("session %d: failed to start playback: %w", s.id, err))
		return
	}
	m.applyVolume()
	m.pipeline.SetMuted(m.muted)
	m.clock.Start(0)
	m.setState(StatePlaying)
	m.sendStatus(slimproto.StatStarted, 0)
}

func (m *Machine) pause(interval time.Duration) {
	s := m.current
	if s == nil || m.state != StatePlaying {
		log.Printf("Pause ignored while %s", m.state)
		m.sendStatus(slimproto.StatTimer, 0)
		return
	}

	m.pipeline.Pause()
	m.clock.Pause()
	m.setState(StatePaused)

	if interval > 0 {
		log.Printf("Pausing for %v", interval)
		m.after(s, interval, timerResume)
		return
	}
	m.sendStatus(slimproto.StatPaused, 0)
}

func (m *Machine) unpause(jiffies uint32) {
	s := m.current
	if s == nil {
		log.Printf("Unpause ignored while %s", m.state)
		m.sendStatus(slimproto.StatTimer, 0)
		return
	}
	if jiffies != 0 {
		if wait := m.jiffies.Until(jiffies); wait > 0 {
			log.Printf("Unpausing at jiffies %d (in %v)", jiffies, wait)
			m.after(s, wait, timerUnpause)
			return
		}
	}
	m.resume(true)
}

func (m *Machine) resume(report bool) {
	switch m.state {
	case StatePaused:
		m.pipeline.Resume()
		m.clock.Resume()
		m.setState(StatePlaying)
	case StateBuffering:
		m.startPlayback(m.current)
		if m.state != StatePlaying {
			return
		}
	default:
		log.Printf("Resume ignored while %s", m.state)
		if report {
			m.sendStatus(slimproto.StatTimer, 0)
		}
		return
	}
	if report {
		m.sendStatus(slimproto.StatResumed, 0)
	}
}

func (m *Machine) stop() {
	st := m.snapshot(slimproto.StatFlushed)
	if m.current != nil {
		m.setState(StateDraining)
	}
	m.teardown()
	m.setState(StateIdle)
	st.State = m.state
	m.publish(st)
}

func (m *Machine) skip(interval time.Duration) {
	s := m.current
	if s == nil || !s.started {
		log.Printf("Skip ignored while %s", m.state)
		return
	}
	target := m.clock.Position() + interval
	m.pipeline.Seek(target)
	m.clock.Seek(target)
	log.Printf("Session %d: skipped %v to %v", s.id, interval, target)
}

func (m *Machine) handleSetd(msg slimproto.Setd) {
	if msg.ID != 0 {
		log.Printf("Ignoring setd id %d", msg.ID)
		return
	}
	if !msg.IsQuery() {
		if name := msg.Name(); name != "" && name != m.name {
			log.Printf("Player renamed to %q", name)
			m.name = name
			if m.config.OnRename != nil {
				m.config.OnRename(name)
			}
		}
	}
	m.send(slimproto.TagSetd, slimproto.SetdNamePayload(m.name))
}

func (m *Machine) applyVolume() {
	volume := m.volume
	if s := m.current; s != nil {
		// replay gain scales the server volume, zero means none
		if gain := s.strm.ReplayGain(); gain > 0 {
			volume *= gain
		}
	}
	m.pipeline.SetVolume(volume)
}

// teardown releases the current session: stop its goroutines, release a
// blocked writer, close the data connection, stop the pipeline, then forget it
func (m *Machine) teardown() {
	s := m.current
	if s == nil {
		return
	}

	s.cancel()
	s.buf.Close()
	if s.data != nil {
		s.data.Close()
	}
	m.pipeline.Stop()
	for _, t := range s.timers {
		t.Stop()
	}
	m.clock.Stop()
	m.current = nil

	log.Printf("Session %d: torn down after %d bytes", s.id, s.buf.Written())
}

// fail reports an error status and returns to Idle
func (m *Machine) fail(err error) {
	log.Printf("Session error: %v", err)
	m.setState(StateError)
	st := m.snapshot(slimproto.StatNotSupported)
	st.Error = err.Error()
	m.publish(st)
	m.teardown()
	m.setState(StateIdle)
}

func (m *Machine) after(s *streamSession, d time.Duration, kind timerKind) {
	ctx, id := s.ctx, s.id
	t := time.AfterFunc(d, func() {
		m.postSession(ctx, timerEvent{session: id, kind: kind})
	})
	s.timers = append(s.timers, t)
}

// sessionFor returns the current session when id names it
func (m *Machine) sessionFor(id uint64) *streamSession {
	if s := m.current; s != nil && s.id == id {
		return s
	}
	if m.config.Debug {
		log.Printf("Dropping event for stale session %d", id)
	}
	return nil
}

func (m *Machine) handleBuffer(ev bufferEvent) {
	s := m.sessionFor(ev.session)
	if s == nil {
		return
	}
	if ev.low {
		s.lowWater = true
		log.Printf("Session %d: buffer below low watermark (%d bytes)", s.id, s.low)
		return
	}
	if m.state != StateBuffering || s.started {
		return
	}
	if s.strm.AutostartEnabled() {
		m.startPlayback(s)
		return
	}
	log.Printf("Session %d: threshold reached, waiting for unpause", s.id)
	m.sendStatus(slimproto.StatThreshold, 0)
}

func (m *Machine) handleTimer(ev timerEvent) {
	s := m.sessionFor(ev.session)
	if s == nil {
		return
	}
	switch ev.kind {
	case timerResume:
		m.resume(false)
	case timerUnpause:
		m.resume(true)
	case timerStall:
		if written := s.buf.Written(); written > s.stallMark {
			log.Printf("Session %d: data resumed (%d new bytes)", s.id, written-s.stallMark)
			return
		}
		m.fail(fmt.Errorf("session %d: no data for %v", s.id, m.config.StallTimeout))
	}
}

func (m *Machine) handleData(ev stream.Event) {
	s := m.sessionFor(ev.Session)
	if s == nil {
		return
	}
	switch ev.Kind {
	case stream.EventConnected:
		m.sendStatus(slimproto.StatConnected, 0)
	case stream.EventHeaders:
		s.headers = ev.HeaderCount
		m.sendStatus(slimproto.StatHeaders, 0)
	case stream.EventEOF:
		s.dataEOF = true
		m.send(slimproto.TagDsco, []byte{slimproto.DscoClosed})
		if s.started || m.state != StateBuffering {
			return
		}
		// The whole stream fit below the threshold
		if s.strm.AutostartEnabled() {
			m.startPlayback(s)
		} else if !s.buf.ThresholdReached() {
			m.sendStatus(slimproto.StatThreshold, 0)
		}
	case stream.EventError:
		m.dataFailed(s, ev.Err)
	}
}

func (m *Machine) dataFailed(s *streamSession, err error) {
	reason := slimproto.DscoReset
	var dce *stream.DataChannelError
	if errors.As(err, &dce) {
		switch {
		case dce.Status != 0:
			reason = slimproto.DscoHTTPError
		case dce.Timeout():
			reason = slimproto.DscoTimeout
		}
	}
	log.Printf("Session %d: data channel lost: %v", s.id, err)
	m.send(slimproto.TagDsco, []byte{reason})

	s.underrun = true
	m.sendStatus(slimproto.StatUnderrun, 0)

	if s.retries < m.config.DataRetries {
		s.retries++
		offset := s.buf.Written()
		log.Printf("Session %d: reopening data channel from byte %d (retry %d/%d)",
			s.id, offset, s.retries, m.config.DataRetries)
		s.data.Close()
		m.connectData(s, offset)
	}

	s.stallMark = s.buf.Written()
	m.after(s, m.config.StallTimeout, timerStall)
}

func (m *Machine) handlePipeline(ev pipeline.Event) {
	s := m.sessionFor(ev.Session)
	if s == nil {
		return
	}
	switch ev.Kind {
	case pipeline.EventPosition:
		m.clock.Advance(ev.Elapsed)
		m.fatals = 0
		if s.underrun && s.buf.Occupancy() > 0 {
			s.underrun = false
		}
	case pipeline.EventDecoded:
		m.sendStatus(slimproto.StatDecoded, 0)
	case pipeline.EventEndOfStream:
		m.fatals = 0
		m.setState(StateDraining)
		st := m.snapshot(slimproto.StatFinished)
		m.teardown()
		m.setState(StateIdle)
		st.State = m.state
		m.publish(st)
	case pipeline.EventFatal:
		m.fatals++
		err := fmt.Errorf("session %d: pipeline failed: %w", s.id, ev.Err)
		m.fail(err)
		if m.fatals >= fatalReportAfter && m.config.OnError != nil {
			m.config.OnError(fmt.Errorf("%d consecutive playback failures, last: %w", m.fatals, err))
		}
	case pipeline.EventUnderrun:
		s.underrun = true
		log.Printf("Session %d: underrun", s.id)
		m.sendStatus(slimproto.StatUnderrun, 0)
	}
}

func (m *Machine) heartbeat() {
	if m.sender == nil || m.state == StateHandshaking || m.state == StateDisconnected {
		return
	}
	if m.config.Debug && m.clock.Running() {
		skew, drift, quality := m.clock.Stats()
		log.Printf("Clock: position=%v skew=%v drift=%.6f quality=%s",
			m.clock.Position(), skew, drift, quality)
	}
	m.sendStatus(slimproto.StatTimer, 0)
	// the low-water crossing is reported once before it clears
	if s := m.current; s != nil && s.lowWater && s.buf.Occupancy() >= s.low {
		s.lowWater = false
	}
}

func (m *Machine) snapshot(event string) Status {
	st := Status{
		Event:   event,
		State:   m.state,
		Jiffies: m.jiffies.Now(),
		Volume:  m.volume,
		Muted:   m.muted,
		Time:    time.Now(),
	}
	if s := m.current; s != nil {
		st.SessionID = s.id
		st.Codec = s.format.Codec
		st.Occupancy = s.buf.Occupancy()
		st.Capacity = s.buf.Capacity()
		st.BytesReceived = s.buf.Written()
		st.Underrun = s.underrun
		st.LowWater = s.lowWater
		st.Headers = s.headers
		st.ElapsedMillis = m.clock.Position().Milliseconds()
		if out, ok := m.pipeline.(OutputReporter); ok {
			st.OutputMillis = out.Buffered().Milliseconds()
		}
	}
	return st
}

func (m *Machine) sendStatus(event string, serverTimestamp uint32) {
	st := m.snapshot(event)
	st.ServerTimestamp = serverTimestamp
	m.publish(st)
}

// sendStale acknowledges a command for a superseded session. The report
// keeps the stale id so it is never mistaken for the current session.
func (m *Machine) sendStale(id uint64) {
	m.publish(Status{
		Event:     slimproto.StatTimer,
		State:     m.state,
		SessionID: id,
		Stale:     true,
		Jiffies:   m.jiffies.Now(),
		Volume:    m.volume,
		Muted:     m.muted,
		Time:      time.Now(),
	})
}

func (m *Machine) publish(st Status) {
	m.mu.Lock()
	m.status = st
	m.mu.Unlock()

	stat := slimproto.Stat{
		Event:            st.Event,
		NumCRLF:          uint8(min(st.Headers, 255)),
		BufferSize:       uint32(st.Capacity),
		BufferFullness:   uint32(st.Occupancy),
		BytesReceived:    st.BytesReceived,
		SignalStrength:   0xffff,
		Jiffies:          st.Jiffies,
		OutputBufferSize: outputBufferSize,
		OutputFullness:   uint32(min(st.OutputMillis*outputByteRate/1000, outputBufferSize)),
		ElapsedSeconds:   uint32(st.ElapsedMillis / 1000),
		ElapsedMillis:    uint32(st.ElapsedMillis),
		ServerTimestamp:  st.ServerTimestamp,
	}
	m.send(slimproto.TagStat, stat.Marshal())
	if m.config.Debug && st.Event != slimproto.StatTimer {
		log.Printf("Status %s: state=%s session=%d buffer=%d/%d elapsed=%v",
			st.Event, st.State, st.SessionID, st.Occupancy, st.Capacity, st.Elapsed())
	}

	if m.config.OnStatus != nil {
		m.config.OnStatus(st)
	}
}

func (m *Machine) send(tag string, payload []byte) {
	if m.sender == nil {
		return
	}
	if err := m.sender.Send(tag, payload); err != nil {
		log.Printf("Failed to send %s: %v", tag, err)
	}
}
