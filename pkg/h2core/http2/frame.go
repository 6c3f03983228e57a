package http2

import (
	"golang.org/x/net/http2/hpack"
)

// Frame is the structured frame value handed to the state machine by the
// external frame parser (RFC 7540 §4.1). Only the fields relevant to the
// frame's Type are populated; the parser owns the byte-level layout, the
// state machine relies on type, flags, stream ID and the flow-controlled
// payload length.
type Frame struct {
	Type     FrameType
	Flags    Flags
	StreamID uint32

	// DATA
	Data      []byte
	PadLength uint8 // meaningful only when FlagPadded is set

	// HEADERS, PUSH_PROMISE, CONTINUATION: the decoded header block
	// fragment. HPACK coding happens outside the core.
	Headers []hpack.HeaderField

	// PUSH_PROMISE
	PromisedStreamID uint32

	// RST_STREAM, GOAWAY
	ErrCode ErrorCode

	// SETTINGS
	Settings []Setting

	// WINDOW_UPDATE
	WindowIncrement uint32

	// GOAWAY
	LastStreamID uint32
	DebugData    []byte

	// HEADERS with FlagPriority, PRIORITY
	StreamDependency uint32
	Weight           uint8
	Exclusive        bool
}

// FlowControlledLength returns the number of bytes this frame charges
// against flow-control windows: payload plus padding plus the one-octet
// pad-length field when padded (RFC 7540 §6.1).
func (f *Frame) FlowControlledLength() uint32 {
	if f.Type != FrameData {
		return 0
	}
	n := uint32(len(f.Data))
	if f.Flags.Has(FlagPadded) {
		n += uint32(f.PadLength) + 1
	}
	return n
}

// EndStream reports whether the frame carries END_STREAM.
func (f *Frame) EndStream() bool {
	return (f.Type == FrameData || f.Type == FrameHeaders) && f.Flags.Has(FlagEndStream)
}

// EndHeaders reports whether the frame terminates its header block.
func (f *Frame) EndHeaders() bool {
	switch f.Type {
	case FrameHeaders, FramePushPromise, FrameContinuation:
		return f.Flags.Has(FlagEndHeaders)
	}
	return false
}

// validateShape checks the stream-scope rules that hold for a frame type
// regardless of connection state (RFC 7540 §6). Frame-length rules are
// the parser's concern and are not re-checked here.
func (f *Frame) validateShape() error {
	switch f.Type {
	case FrameData, FrameHeaders, FrameRSTStream, FramePushPromise, FrameContinuation:
		// MUST be associated with a stream
		if f.StreamID == ConnectionStreamID {
			return connError(ErrCodeProtocol, ErrInvalidStreamID)
		}
	case FramePriority:
		if f.StreamID == ConnectionStreamID {
			return connError(ErrCodeProtocol, ErrInvalidStreamID)
		}
		if f.StreamDependency == f.StreamID {
			return streamError(f.StreamID, ErrCodeProtocol, ErrStreamSelfDependency)
		}
	case FrameSettings, FramePing:
		// MUST be on the root stream
		if f.StreamID != ConnectionStreamID {
			return connError(ErrCodeProtocol, ErrInvalidStreamID)
		}
		if f.Type == FrameSettings && f.Flags.Has(FlagAck) && len(f.Settings) != 0 {
			return connError(ErrCodeFrameSize, ErrSettingsAckWithData)
		}
	case FrameGoAway:
		if f.StreamID != ConnectionStreamID {
			return connError(ErrCodeProtocol, ErrGoAwayStreamID)
		}
	case FrameWindowUpdate:
		// Legal on the root stream or any stream
	}
	if f.StreamID > MaxStreamID {
		return connError(ErrCodeProtocol, ErrInvalidStreamID)
	}
	return nil
}
