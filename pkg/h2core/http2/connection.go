package http2

// Role says which side of the connection this state machine models.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// String returns the string representation of the role.
func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// direction is the travel direction of a frame relative to us. Send and
// receive sides each keep their own header-block interlock.
type direction uint8

const (
	dirSend direction = iota
	dirReceive
)

// connPhase is the top-level connection state (RFC 7540 §3, §6.8).
type connPhase uint8

const (
	// phasePreface: the magic preface is done, the initial SETTINGS
	// exchange is not. Only SETTINGS, WINDOW_UPDATE and PING may flow.
	phasePreface connPhase = iota
	phaseActive
	phaseQuiescing
	phaseClosed
)

func (p connPhase) String() string {
	switch p {
	case phasePreface:
		return "prefaceExchange"
	case phaseActive:
		return "active"
	case phaseQuiescing:
		return "quiescing"
	default:
		return "closed"
	}
}

// headerBlockState is the CONTINUATION interlock: while a header block
// is open in one direction, no other frame may travel that direction
// (RFC 7540 §4.3).
type headerBlockState struct {
	active   bool
	streamID uint32
	trailers bool
	// forPromise marks a block opened by PUSH_PROMISE: it describes the
	// promised request, so content-length does not apply to the carrier
	// stream.
	forPromise bool
}

// Connection is the HTTP/2 connection state machine. It owns the stream
// map, both connection-level flow-control windows, settings state and
// GOAWAY bookkeeping, and dispatches every frame event — inbound via
// ReceiveFrame, outbound via SendFrame — through validation, stream
// lifecycle transitions and window arithmetic, emitting one StateChange
// per accepted frame.
//
// A Connection is single-threaded and non-reentrant: exactly one frame
// event is processed at a time, and the StateChange for frame N is
// observed before frame N+1 is offered. All validation happens before
// any state is mutated, so an error return leaves the machine exactly
// as it was.
type Connection struct {
	role  Role
	phase connPhase
	cfg   *Config

	// Settings in force. localSettings applies once the peer ACKs;
	// pendingLocal queues sent-but-unACKed payloads in order.
	localSettings  Settings
	remoteSettings Settings
	pendingLocal   [][]Setting

	// Preface progress: active once both SETTINGS have been exchanged
	// and both ACKs have flowed.
	localSettingsSent      bool
	localSettingsAcked     bool
	remoteSettingsReceived bool
	remoteSettingsAcked    bool
	settingsAcksOwed       int

	// Connection-level windows. Unlike stream windows these are only
	// ever moved by DATA and WINDOW_UPDATE, never by SETTINGS
	// (RFC 7540 §6.9.2).
	connInbound  Window
	connOutbound Window

	streams          streamMap
	nextLocalID      uint32
	lastPeerStreamID uint32

	goAwaySent       bool
	goAwayLastID     uint32
	goAwayCode       ErrorCode
	goAwayReceived   bool
	peerGoAwayLastID uint32

	// Live non-reserved stream counts per initiator, checked against
	// MAX_CONCURRENT_STREAMS (RFC 7540 §5.1.2).
	activeLocal uint32
	activePeer  uint32

	recentReset *resetRing

	headerBlock [2]headerBlockState
}

// NewConnection creates a connection state machine in the
// preface-exchange state. A nil cfg uses DefaultConfig.
func NewConnection(role Role, cfg *Config) (*Connection, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nextLocal := uint32(1)
	if role == RoleServer {
		nextLocal = 2
	}
	return &Connection{
		role:           role,
		phase:          phasePreface,
		cfg:            cfg,
		localSettings:  cfg.LocalSettings,
		remoteSettings: cfg.RemoteSettings,
		connInbound:    Window(DefaultWindowSize),
		connOutbound:   Window(DefaultWindowSize),
		nextLocalID:    nextLocal,
		recentReset:    newResetRing(cfg.RecentResetCapacity),
	}, nil
}

// Role returns which side this machine models.
func (c *Connection) Role() Role { return c.role }

// IsQuiescing reports whether a GOAWAY has been sent or received and
// the connection has not since been torn down.
func (c *Connection) IsQuiescing() bool { return c.phase == phaseQuiescing }

// IsClosed reports whether the connection has been torn down.
func (c *Connection) IsClosed() bool { return c.phase == phaseClosed }

// ConnectionWindows returns the connection-level inbound and outbound
// flow-control windows.
func (c *Connection) ConnectionWindows() (inbound, outbound int32) {
	return c.connInbound.Value(), c.connOutbound.Value()
}

// StreamWindows returns one stream's flow-control windows.
func (c *Connection) StreamWindows(streamID uint32) (inbound, outbound int32, ok bool) {
	st, ok := c.streams.Lookup(streamID)
	if !ok {
		return 0, 0, false
	}
	return st.InboundWindow(), st.OutboundWindow(), true
}

// ActiveStreams returns the number of streams currently in the map.
func (c *Connection) ActiveStreams() int { return c.streams.Len() }

// LastPeerStreamID returns the highest stream ID the peer has initiated.
func (c *Connection) LastPeerStreamID() uint32 { return c.lastPeerStreamID }

// ReceiveFrame validates and applies a frame arriving from the peer.
func (c *Connection) ReceiveFrame(f *Frame) (StateChange, error) {
	return c.dispatch(f, dirReceive)
}

// SendFrame validates and applies a frame about to be emitted. Running
// outbound frames through the same machine catches local bugs before
// the bytes hit the wire.
func (c *Connection) SendFrame(f *Frame) (StateChange, error) {
	return c.dispatch(f, dirSend)
}

// GoAway initiates graceful shutdown: equivalent to sending a GOAWAY
// frame whose last stream ID is the highest peer stream seen.
func (c *Connection) GoAway(code ErrorCode, debugData []byte) (StateChange, error) {
	return c.SendFrame(&Frame{
		Type:         FrameGoAway,
		LastStreamID: c.lastPeerStreamID,
		ErrCode:      code,
		DebugData:    debugData,
	})
}

// Teardown closes the connection immediately and reports every stream
// still in the map as a bulk closure, IDs strictly increasing.
func (c *Connection) Teardown() StateChange {
	ids := c.streams.DropWhere(func(*Stream) bool { return true })
	activeStreams.Sub(float64(len(ids)))
	c.activeLocal, c.activePeer = 0, 0
	c.phase = phaseClosed
	return StateChange{Kind: StateChangeBulkStreamClosure, Closed: ids}
}

// dispatch is the single frame entry point for both directions.
func (c *Connection) dispatch(f *Frame, d direction) (StateChange, error) {
	if c.phase == phaseClosed {
		return noChange(), connError(ErrCodeProtocol, ErrConnectionClosed)
	}
	if err := f.validateShape(); err != nil {
		return noChange(), err
	}

	// CONTINUATION interlock: an open header block admits nothing but
	// its own continuation frames (RFC 7540 §4.3).
	hb := &c.headerBlock[d]
	if hb.active {
		if f.Type != FrameContinuation || f.StreamID != hb.streamID {
			return noChange(), connError(ErrCodeProtocol, ErrHeaderBlockInterleave)
		}
	} else if f.Type == FrameContinuation {
		return noChange(), connError(ErrCodeProtocol, ErrHeaderBlockInterleave)
	}

	if c.phase == phasePreface {
		switch f.Type {
		case FrameSettings, FrameWindowUpdate, FramePing:
		default:
			return noChange(), connError(ErrCodeProtocol, ErrFrameIllegalInState)
		}
	}

	switch f.Type {
	case FrameData:
		return c.handleData(f, d)
	case FrameHeaders:
		return c.handleHeaders(f, d)
	case FramePriority:
		// Accepted, validated for shape, ignored for scheduling.
		return noChange(), nil
	case FrameRSTStream:
		return c.handleRSTStream(f, d)
	case FrameSettings:
		return c.handleSettings(f, d)
	case FramePushPromise:
		return c.handlePushPromise(f, d)
	case FramePing:
		return noChange(), nil
	case FrameGoAway:
		return c.handleGoAway(f, d)
	case FrameWindowUpdate:
		return c.handleWindowUpdate(f, d)
	case FrameContinuation:
		return c.handleContinuation(f, d)
	default:
		// Unknown frame types are ignored (RFC 7540 §4.1).
		return noChange(), nil
	}
}

// isLocalClass reports whether the ID's parity belongs to streams we
// initiate.
func (c *Connection) isLocalClass(streamID uint32) bool {
	return (streamID%2 == 1) == (c.role == RoleClient)
}

// isIdleID reports whether the ID has never been used in its class.
func (c *Connection) isIdleID(streamID uint32) bool {
	if c.isLocalClass(streamID) {
		return streamID >= c.nextLocalID
	}
	return streamID > c.lastPeerStreamID
}

// missingStream classifies a stream-scoped frame whose stream is not in
// the map: frames racing one of our resets are dropped silently, frames
// on never-used IDs are a connection error, everything else hit a
// closed stream.
func (c *Connection) missingStream(streamID uint32) (StateChange, error) {
	if c.recentReset.contains(streamID) {
		return noChange(), nil
	}
	if c.isIdleID(streamID) {
		return noChange(), connError(ErrCodeProtocol, ErrIdleStream)
	}
	return noChange(), streamError(streamID, ErrCodeStreamClosed, ErrStreamClosed)
}

// mapStreamLevel translates an internal sentinel from the stream machine
// into the error class the protocol demands for that stream.
func mapStreamLevel(streamID uint32, err error) error {
	switch err {
	case ErrStreamClosed:
		return streamError(streamID, ErrCodeStreamClosed, err)
	case ErrWindowExceeded, ErrWindowOverflow, ErrWindowUnderflow:
		return streamError(streamID, ErrCodeFlowControl, err)
	case ErrZeroWindowIncrement, ErrContentLength, ErrTrailers:
		return streamError(streamID, ErrCodeProtocol, err)
	case ErrBadStreamTransition:
		return connError(ErrCodeProtocol, err)
	}
	return err
}

// insertStream registers a freshly created stream.
func (c *Connection) insertStream(st *Stream) {
	c.streams.Insert(st)
	activeStreams.Inc()
	if st.state != StateReservedLocal && st.state != StateReservedRemote {
		c.countStream(st)
	}
}

// countStream adds a stream to its MAX_CONCURRENT_STREAMS counter.
// Reserved streams only count once a HEADERS frame activates them
// (RFC 7540 §5.1.2).
func (c *Connection) countStream(st *Stream) {
	st.counted = true
	if st.localInitiated {
		c.activeLocal++
	} else {
		c.activePeer++
	}
}

// removeStream drops a stream from the map and its counters.
func (c *Connection) removeStream(st *Stream) {
	c.streams.Remove(st.id)
	activeStreams.Dec()
	if st.counted {
		if st.localInitiated {
			c.activeLocal--
		} else {
			c.activePeer--
		}
	}
}

// newStreamWindows returns the windows a new stream starts with under
// the settings currently in force.
func (c *Connection) newStreamWindows() (inbound, outbound int32) {
	return int32(c.localSettings.InitialWindowSize), int32(c.remoteSettings.InitialWindowSize)
}

// handleData applies a DATA frame: stream lifecycle, stream window and
// connection window all validated before any of them moves.
func (c *Connection) handleData(f *Frame, d direction) (StateChange, error) {
	st, ok := c.streams.Lookup(f.StreamID)
	if !ok {
		return c.missingStream(f.StreamID)
	}

	flowLen := f.FlowControlledLength()
	dataLen := uint32(len(f.Data))
	endStream := f.EndStream()

	if d == dirReceive {
		if err := st.checkReceiveData(flowLen, dataLen, endStream); err != nil {
			return noChange(), mapStreamLevel(f.StreamID, err)
		}
		if int64(flowLen) > int64(c.connInbound) {
			return noChange(), connError(ErrCodeFlowControl, ErrWindowExceeded)
		}
		c.connInbound -= Window(flowLen)
		st.applyReceiveData(flowLen, dataLen, endStream)
	} else {
		if err := st.checkSendData(flowLen); err != nil {
			return noChange(), mapStreamLevel(f.StreamID, err)
		}
		if int64(flowLen) > int64(c.connOutbound) {
			return noChange(), connError(ErrCodeFlowControl, ErrWindowExceeded)
		}
		c.connOutbound -= Window(flowLen)
		st.applySendData(flowLen, endStream)
	}

	if st.state == StateClosed {
		c.removeStream(st)
		return StateChange{
			Kind:         StateChangeStreamClosed,
			StreamID:     st.id,
			ConnInbound:  c.connInbound.Value(),
			ConnOutbound: c.connOutbound.Value(),
		}, nil
	}
	return StateChange{
		Kind:         StateChangeFlowControl,
		ConnInbound:  c.connInbound.Value(),
		ConnOutbound: c.connOutbound.Value(),
		StreamWindow: &StreamWindowChange{
			StreamID: st.id,
			Inbound:  st.InboundWindow(),
			Outbound: st.OutboundWindow(),
		},
	}, nil
}

// handleHeaders applies a HEADERS frame, creating the stream when the
// ID is new in its class.
func (c *Connection) handleHeaders(f *Frame, d direction) (StateChange, error) {
	if st, ok := c.streams.Lookup(f.StreamID); ok {
		return c.headersOnExisting(f, d, st)
	}
	if d == dirSend {
		return c.headersCreateLocal(f)
	}
	return c.headersCreateRemote(f)
}

// headersOnExisting handles response headers, reserved-stream
// activation, and trailing header blocks.
func (c *Connection) headersOnExisting(f *Frame, d direction, st *Stream) (StateChange, error) {
	endStream := f.EndStream()
	wasReserved := st.state == StateReservedLocal || st.state == StateReservedRemote

	// A block on a stream whose headers already flowed in this
	// direction is a trailing block.
	trailers := st.headersSent
	if d == dirReceive {
		trailers = st.headersReceived
	}

	clen, err := scanHeaderBlock(f.Headers, trailers)
	if err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}
	if d == dirReceive && !trailers && endStream && clen > 0 {
		// Headers-only message declaring a body it will never carry.
		return noChange(), streamError(f.StreamID, ErrCodeProtocol, ErrContentLength)
	}
	if d == dirReceive {
		err = st.receiveHeaders(endStream)
	} else {
		err = st.sendHeaders(endStream)
	}
	if err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}
	if d == dirReceive && !trailers && clen >= 0 {
		st.contentLength = clen
	}
	if wasReserved && st.state != StateClosed {
		c.countStream(st)
	}
	if !f.EndHeaders() {
		c.headerBlock[d] = headerBlockState{active: true, streamID: f.StreamID, trailers: trailers}
	}

	if st.state == StateClosed {
		c.removeStream(st)
		if wasReserved {
			return StateChange{Kind: StateChangeStreamCreatedAndClosed, StreamID: st.id}, nil
		}
		return StateChange{
			Kind:         StateChangeStreamClosed,
			StreamID:     st.id,
			ConnInbound:  c.connInbound.Value(),
			ConnOutbound: c.connOutbound.Value(),
		}, nil
	}
	return noChange(), nil
}

// headersCreateLocal opens a new locally initiated stream.
func (c *Connection) headersCreateLocal(f *Frame) (StateChange, error) {
	if !c.isLocalClass(f.StreamID) {
		return noChange(), connError(ErrCodeProtocol, ErrInvalidStreamID)
	}
	if f.StreamID < c.nextLocalID {
		return noChange(), streamError(f.StreamID, ErrCodeStreamClosed, ErrStreamClosed)
	}
	if c.goAwayReceived {
		return noChange(), streamError(f.StreamID, ErrCodeRefusedStream, ErrQuiescing)
	}
	if c.activeLocal >= c.remoteSettings.MaxConcurrentStreams {
		return noChange(), streamError(f.StreamID, ErrCodeRefusedStream, ErrMaxConcurrentStreams)
	}
	if _, err := scanHeaderBlock(f.Headers, false); err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}

	inbound, outbound := c.newStreamWindows()
	st := newStream(f.StreamID, true, inbound, outbound)
	if err := st.sendHeaders(f.EndStream()); err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}
	c.nextLocalID = f.StreamID + 2
	c.insertStream(st)
	if !f.EndHeaders() {
		c.headerBlock[dirSend] = headerBlockState{active: true, streamID: f.StreamID}
	}
	return StateChange{
		Kind:                StateChangeStreamCreated,
		StreamID:            st.id,
		LocalInitialWindow:  inbound,
		RemoteInitialWindow: outbound,
	}, nil
}

// headersCreateRemote opens a new peer-initiated stream, enforcing
// parity, monotonicity, GOAWAY refusal and concurrency limits.
func (c *Connection) headersCreateRemote(f *Frame) (StateChange, error) {
	if c.isLocalClass(f.StreamID) {
		// The peer may not initiate with our parity.
		if f.StreamID >= c.nextLocalID {
			return noChange(), connError(ErrCodeProtocol, ErrInvalidStreamID)
		}
		return c.missingStream(f.StreamID)
	}
	if f.StreamID <= c.lastPeerStreamID {
		return c.missingStream(f.StreamID)
	}
	if c.goAwaySent && f.StreamID > c.goAwayLastID {
		return noChange(), streamError(f.StreamID, ErrCodeRefusedStream, ErrQuiescing)
	}
	if c.activePeer >= c.localSettings.MaxConcurrentStreams {
		return noChange(), streamError(f.StreamID, ErrCodeRefusedStream, ErrMaxConcurrentStreams)
	}
	clen, err := scanHeaderBlock(f.Headers, false)
	if err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}
	if f.EndStream() && clen > 0 {
		return noChange(), streamError(f.StreamID, ErrCodeProtocol, ErrContentLength)
	}

	inbound, outbound := c.newStreamWindows()
	st := newStream(f.StreamID, false, inbound, outbound)
	if err := st.receiveHeaders(f.EndStream()); err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}
	if clen >= 0 {
		st.contentLength = clen
	}
	c.lastPeerStreamID = f.StreamID
	c.insertStream(st)
	if !f.EndHeaders() {
		c.headerBlock[dirReceive] = headerBlockState{active: true, streamID: f.StreamID}
	}
	return StateChange{
		Kind:                StateChangeStreamCreated,
		StreamID:            st.id,
		LocalInitialWindow:  inbound,
		RemoteInitialWindow: outbound,
	}, nil
}

// handleRSTStream tears down one stream in either direction. IDs we
// reset are remembered so late frames from the peer can be dropped.
func (c *Connection) handleRSTStream(f *Frame, d direction) (StateChange, error) {
	st, ok := c.streams.Lookup(f.StreamID)
	if !ok {
		if c.isIdleID(f.StreamID) {
			return noChange(), connError(ErrCodeProtocol, ErrIdleStream)
		}
		// RST_STREAM racing a closure is expected; never answered.
		return noChange(), nil
	}
	code := f.ErrCode
	st.reset(code)
	c.removeStream(st)
	if d == dirSend {
		c.recentReset.push(f.StreamID)
	}
	streamResets.Inc()
	return StateChange{
		Kind:         StateChangeStreamClosed,
		StreamID:     f.StreamID,
		ConnInbound:  c.connInbound.Value(),
		ConnOutbound: c.connOutbound.Value(),
		Reason:       &code,
	}, nil
}

// handleSettings applies the SETTINGS negotiation rules: a peer payload
// takes effect on receipt, a local payload on receipt of its ACK
// (RFC 7540 §6.5.3). INITIAL_WINDOW_SIZE deltas re-baseline every live
// stream atomically: all windows are range-checked before any moves.
func (c *Connection) handleSettings(f *Frame, d direction) (StateChange, error) {
	if f.Flags.Has(FlagAck) {
		if d == dirSend {
			if c.settingsAcksOwed == 0 {
				return noChange(), connError(ErrCodeProtocol, ErrSettingsAckUnexpected)
			}
			c.settingsAcksOwed--
			c.remoteSettingsAcked = true
			c.maybeActivate()
			return noChange(), nil
		}
		if len(c.pendingLocal) == 0 {
			return noChange(), connError(ErrCodeProtocol, ErrSettingsAckUnexpected)
		}
		payload := c.pendingLocal[0]
		delta, changed := c.localSettings.initialWindowDelta(payload)
		if changed {
			if err := c.checkStreamWindowDelta(delta, dirReceive); err != nil {
				return noChange(), err
			}
		}
		c.pendingLocal = c.pendingLocal[1:]
		c.localSettings.apply(payload)
		if changed {
			c.applyStreamWindowDelta(delta, dirReceive)
		}
		c.localSettingsAcked = true
		c.maybeActivate()
		return StateChange{Kind: StateChangeSettingsChanged, WindowDelta: delta}, nil
	}

	if err := validateSettings(f.Settings); err != nil {
		return noChange(), err
	}
	if d == dirSend {
		if len(c.pendingLocal) >= c.cfg.MaxOutstandingSettings {
			return noChange(), connError(ErrCodeInternal, ErrSettingsBacklog)
		}
		c.pendingLocal = append(c.pendingLocal, f.Settings)
		c.localSettingsSent = true
		return noChange(), nil
	}

	delta, changed := c.remoteSettings.initialWindowDelta(f.Settings)
	if changed {
		if err := c.checkStreamWindowDelta(delta, dirSend); err != nil {
			return noChange(), err
		}
	}
	c.remoteSettings.apply(f.Settings)
	if changed {
		c.applyStreamWindowDelta(delta, dirSend)
	}
	c.remoteSettingsReceived = true
	c.settingsAcksOwed++
	return StateChange{Kind: StateChangeSettingsChanged, WindowDelta: delta}, nil
}

// checkStreamWindowDelta verifies an INITIAL_WINDOW_SIZE delta fits
// every live stream's affected window. Nothing is mutated.
func (c *Connection) checkStreamWindowDelta(delta int32, d direction) error {
	var failed error
	c.streams.ForEach(func(st *Stream) bool {
		w := st.outbound
		if d == dirReceive {
			w = st.inbound
		}
		if err := w.checkAdjust(delta); err != nil {
			failed = connError(ErrCodeFlowControl, err)
			return false
		}
		return true
	})
	return failed
}

// applyStreamWindowDelta re-baselines every live stream's affected
// window. Callers must have run checkStreamWindowDelta first.
func (c *Connection) applyStreamWindowDelta(delta int32, d direction) {
	c.streams.ForEach(func(st *Stream) bool {
		if d == dirReceive {
			st.inbound += Window(delta)
		} else {
			st.outbound += Window(delta)
		}
		return true
	})
}

// maybeActivate leaves the preface exchange once both SETTINGS frames
// and both ACKs have flowed.
func (c *Connection) maybeActivate() {
	if c.phase == phasePreface &&
		c.localSettingsSent && c.localSettingsAcked &&
		c.remoteSettingsReceived && c.remoteSettingsAcked {
		c.phase = phaseActive
	}
}

// handlePushPromise reserves the promised stream (RFC 7540 §6.6). The
// frame travels on the parent stream; the reservation is the new one.
func (c *Connection) handlePushPromise(f *Frame, d direction) (StateChange, error) {
	promised := f.PromisedStreamID
	if promised == 0 || promised > MaxStreamID {
		return noChange(), connError(ErrCodeProtocol, ErrInvalidStreamID)
	}

	if d == dirReceive {
		if c.role == RoleServer {
			return noChange(), connError(ErrCodeProtocol, ErrInvalidPushRole)
		}
		if !c.localSettings.EnablePush {
			return noChange(), connError(ErrCodeProtocol, ErrPushDisabled)
		}
		parent, ok := c.streams.Lookup(f.StreamID)
		if !ok {
			return c.missingStream(f.StreamID)
		}
		if parent.state != StateOpen && parent.state != StateHalfClosedLocal {
			return noChange(), connError(ErrCodeProtocol, ErrBadStreamTransition)
		}
		if c.isLocalClass(promised) {
			return noChange(), connError(ErrCodeProtocol, ErrInvalidStreamID)
		}
		if promised <= c.lastPeerStreamID {
			return noChange(), connError(ErrCodeProtocol, ErrStreamIDNotMonotone)
		}
		if _, err := scanHeaderBlock(f.Headers, false); err != nil {
			return noChange(), mapStreamLevel(promised, err)
		}

		inbound, outbound := c.newStreamWindows()
		st := newStream(promised, false, inbound, outbound)
		st.state = StateReservedRemote
		c.lastPeerStreamID = promised
		c.insertStream(st)
		if !f.EndHeaders() {
			c.headerBlock[dirReceive] = headerBlockState{active: true, streamID: f.StreamID, forPromise: true}
		}
		return StateChange{
			Kind:                StateChangeStreamCreated,
			StreamID:            promised,
			LocalInitialWindow:  inbound,
			RemoteInitialWindow: outbound,
		}, nil
	}

	if c.role == RoleClient {
		return noChange(), connError(ErrCodeProtocol, ErrInvalidPushRole)
	}
	if !c.remoteSettings.EnablePush {
		return noChange(), connError(ErrCodeProtocol, ErrPushDisabled)
	}
	parent, ok := c.streams.Lookup(f.StreamID)
	if !ok {
		return c.missingStream(f.StreamID)
	}
	if parent.state != StateOpen && parent.state != StateHalfClosedRemote {
		return noChange(), connError(ErrCodeProtocol, ErrBadStreamTransition)
	}
	if !c.isLocalClass(promised) || promised < c.nextLocalID {
		return noChange(), connError(ErrCodeProtocol, ErrInvalidStreamID)
	}
	if _, err := scanHeaderBlock(f.Headers, false); err != nil {
		return noChange(), mapStreamLevel(promised, err)
	}

	inbound, outbound := c.newStreamWindows()
	st := newStream(promised, true, inbound, outbound)
	st.state = StateReservedLocal
	c.nextLocalID = promised + 2
	c.insertStream(st)
	if !f.EndHeaders() {
		c.headerBlock[dirSend] = headerBlockState{active: true, streamID: f.StreamID, forPromise: true}
	}
	return StateChange{
		Kind:                StateChangeStreamCreated,
		StreamID:            promised,
		LocalInitialWindow:  inbound,
		RemoteInitialWindow: outbound,
	}, nil
}

// handleGoAway enters quiescence and drops the stream tail beyond the
// announced last stream ID (RFC 7540 §6.8). A follow-up GOAWAY may only
// shrink the last stream ID.
func (c *Connection) handleGoAway(f *Frame, d direction) (StateChange, error) {
	last := f.LastStreamID
	if d == dirSend {
		if c.goAwaySent && last > c.goAwayLastID {
			return noChange(), connError(ErrCodeProtocol, ErrGoAwayLastStreamID)
		}
		c.goAwaySent = true
		c.goAwayLastID = last
		c.goAwayCode = f.ErrCode
		c.phase = phaseQuiescing
		goAways.Inc()
		return c.dropStreamTail(last, false), nil
	}

	if c.goAwayReceived && last > c.peerGoAwayLastID {
		return noChange(), connError(ErrCodeProtocol, ErrGoAwayLastStreamID)
	}
	c.goAwayReceived = true
	c.peerGoAwayLastID = last
	c.phase = phaseQuiescing
	goAways.Inc()
	return c.dropStreamTail(last, true), nil
}

// dropStreamTail closes every stream of the named initiator class with
// an ID above last: the GOAWAY sender guarantees nothing about them.
// The dropped IDs come out strictly increasing.
func (c *Connection) dropStreamTail(last uint32, localClass bool) StateChange {
	var doomed []*Stream
	c.streams.ForEach(func(st *Stream) bool {
		if st.localInitiated == localClass && st.id > last {
			doomed = append(doomed, st)
		}
		return true
	})
	ids := make([]uint32, 0, len(doomed))
	for _, st := range doomed {
		c.removeStream(st)
		ids = append(ids, st.id)
	}
	return StateChange{Kind: StateChangeBulkStreamClosure, Closed: ids}
}

// handleWindowUpdate applies a WINDOW_UPDATE to the connection window
// (root stream) or one stream's window.
func (c *Connection) handleWindowUpdate(f *Frame, d direction) (StateChange, error) {
	inc := f.WindowIncrement

	if f.StreamID == ConnectionStreamID {
		if inc == 0 {
			return noChange(), connError(ErrCodeProtocol, ErrZeroWindowIncrement)
		}
		w := &c.connInbound
		if d == dirReceive {
			w = &c.connOutbound
		}
		if err := w.Increment(inc); err != nil {
			return noChange(), connError(ErrCodeFlowControl, err)
		}
		return StateChange{
			Kind:         StateChangeFlowControl,
			ConnInbound:  c.connInbound.Value(),
			ConnOutbound: c.connOutbound.Value(),
		}, nil
	}

	st, ok := c.streams.Lookup(f.StreamID)
	if !ok {
		return c.missingStream(f.StreamID)
	}
	if inc == 0 {
		return noChange(), streamError(f.StreamID, ErrCodeProtocol, ErrZeroWindowIncrement)
	}
	w := &st.inbound
	if d == dirReceive {
		w = &st.outbound
	}
	if err := w.Increment(inc); err != nil {
		return noChange(), streamError(f.StreamID, ErrCodeFlowControl, err)
	}
	return StateChange{
		Kind:         StateChangeFlowControl,
		ConnInbound:  c.connInbound.Value(),
		ConnOutbound: c.connOutbound.Value(),
		StreamWindow: &StreamWindowChange{
			StreamID: st.id,
			Inbound:  st.InboundWindow(),
			Outbound: st.OutboundWindow(),
		},
	}, nil
}

// handleContinuation carries on an open header block. The dispatch
// interlock has already pinned the direction and stream ID.
func (c *Connection) handleContinuation(f *Frame, d direction) (StateChange, error) {
	hb := &c.headerBlock[d]
	clen, err := scanHeaderBlock(f.Headers, hb.trailers)
	if err != nil {
		return noChange(), mapStreamLevel(f.StreamID, err)
	}
	// The stream may already be gone when the opening HEADERS carried
	// END_STREAM on a half-closed stream; the block still completes.
	if st, ok := c.streams.Lookup(f.StreamID); ok && d == dirReceive && !hb.trailers && !hb.forPromise && clen >= 0 {
		if st.contentLength >= 0 && st.contentLength != clen {
			return noChange(), streamError(f.StreamID, ErrCodeProtocol, ErrContentLength)
		}
		st.contentLength = clen
	}
	if f.EndHeaders() {
		hb.active = false
	}
	return noChange(), nil
}
