package http2

import "fmt"

// StateChangeKind tags the StateChange union.
type StateChangeKind uint8

const (
	// StateChangeNone means the frame was accepted with no externally
	// visible effect (PING, PRIORITY, SETTINGS queued but not ACKed).
	StateChangeNone StateChangeKind = iota

	// StateChangeStreamCreated reports a new stream entering the map.
	StateChangeStreamCreated

	// StateChangeStreamClosed reports a single stream leaving the map.
	StateChangeStreamClosed

	// StateChangeStreamCreatedAndClosed reports a reserved stream whose
	// responding HEADERS carried END_STREAM, completing it in one frame.
	StateChangeStreamCreatedAndClosed

	// StateChangeFlowControl reports window movement without a
	// lifecycle change.
	StateChangeFlowControl

	// StateChangeBulkStreamClosure reports every stream closed by a
	// GOAWAY tail drop or a teardown, IDs strictly increasing.
	StateChangeBulkStreamClosure

	// StateChangeSettingsChanged reports a SETTINGS payload taking
	// effect.
	StateChangeSettingsChanged
)

// String returns the string representation of the kind.
func (k StateChangeKind) String() string {
	switch k {
	case StateChangeNone:
		return "none"
	case StateChangeStreamCreated:
		return "streamCreated"
	case StateChangeStreamClosed:
		return "streamClosed"
	case StateChangeStreamCreatedAndClosed:
		return "streamCreatedAndClosed"
	case StateChangeFlowControl:
		return "flowControlChange"
	case StateChangeBulkStreamClosure:
		return "bulkStreamClosure"
	case StateChangeSettingsChanged:
		return "settingsChanged"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// StreamWindowChange reports one stream's windows after a flow-control
// mutation.
type StreamWindowChange struct {
	StreamID uint32
	Inbound  int32
	Outbound int32
}

// StateChange is the event the connection state machine emits for every
// accepted frame. Exactly one is returned per frame, before the next
// frame is offered. Fields beyond Kind are populated per kind:
//
//	StreamCreated:           StreamID, LocalInitialWindow, RemoteInitialWindow
//	StreamClosed:            StreamID, ConnInbound, ConnOutbound, Reason
//	StreamCreatedAndClosed:  StreamID
//	FlowControl:             ConnInbound, ConnOutbound, StreamWindow
//	BulkStreamClosure:       Closed
//	SettingsChanged:         WindowDelta
type StateChange struct {
	Kind StateChangeKind

	StreamID            uint32
	LocalInitialWindow  int32
	RemoteInitialWindow int32

	ConnInbound  int32
	ConnOutbound int32

	// Reason is the reset code for a stream closed by RST_STREAM; nil
	// for a stream that completed normally.
	Reason *ErrorCode

	// StreamWindow is set when a flow-control change touched a stream
	// window as well as (or instead of) the connection windows.
	StreamWindow *StreamWindowChange

	// Closed lists the stream IDs dropped by a bulk closure, strictly
	// increasing.
	Closed []uint32

	// WindowDelta is the INITIAL_WINDOW_SIZE re-baseline applied to
	// every live stream; zero when the SETTINGS payload did not change
	// the initial window.
	WindowDelta int32
}

// noChange is the zero event for frames with no visible effect.
func noChange() StateChange { return StateChange{Kind: StateChangeNone} }
