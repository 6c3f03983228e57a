package http2

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/http2/hpack"
)

// StreamState represents the state of an HTTP/2 stream (RFC 7540 §5.1)
type StreamState uint8

const (
	StateIdle StreamState = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReservedLocal:
		return "reserved(local)"
	case StateReservedRemote:
		return "reserved(remote)"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half-closed(local)"
	case StateHalfClosedRemote:
		return "half-closed(remote)"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Stream tracks one multiplexed stream's lifecycle and flow-control
// state (RFC 7540 §5). A Stream lives in the connection's stream map
// from first observation until it enters the closed state; the lifecycle
// only ever moves forward.
type Stream struct {
	id             uint32
	state          StreamState
	localInitiated bool

	// Flow control. inbound is how much the peer may still send us,
	// outbound how much we may still send.
	inbound  Window
	outbound Window

	// Content-length policing (RFC 7540 §8.1.2.6). contentLength is the
	// value the peer declared, -1 when absent; bytesReceived counts DATA
	// payload octets, excluding padding.
	contentLength int64
	bytesReceived int64

	// headersSent/headersReceived record the first header block per
	// direction; trailersSent/trailersReceived the one permitted
	// trailing block (RFC 7540 §8.1).
	headersSent      bool
	headersReceived  bool
	trailersSent     bool
	trailersReceived bool

	resetCode ErrorCode
	wasReset  bool

	// counted is set once the stream occupies a MAX_CONCURRENT_STREAMS
	// slot; reserved streams stay uncounted until activated.
	counted bool
}

// newStream creates a stream in the idle state with the given windows.
func newStream(id uint32, localInitiated bool, inbound, outbound int32) *Stream {
	return &Stream{
		id:             id,
		state:          StateIdle,
		localInitiated: localInitiated,
		inbound:        Window(inbound),
		outbound:       Window(outbound),
		contentLength:  -1,
	}
}

// ID returns the stream identifier.
func (s *Stream) ID() uint32 { return s.id }

// State returns the current stream state.
func (s *Stream) State() StreamState { return s.state }

// InboundWindow returns how much the peer may still send on this stream.
func (s *Stream) InboundWindow() int32 { return s.inbound.Value() }

// OutboundWindow returns how much we may still send on this stream.
func (s *Stream) OutboundWindow() int32 { return s.outbound.Value() }

// sendHeaders applies a locally emitted HEADERS frame (RFC 7540 §5.1).
// The first block in this direction opens (or activates) the stream; a
// second one is a trailing block and must end the stream.
func (s *Stream) sendHeaders(endStream bool) error {
	switch s.state {
	case StateHalfClosedLocal, StateClosed:
		return ErrStreamClosed
	case StateReservedRemote:
		return ErrBadStreamTransition
	case StateIdle:
		s.headersSent = true
		if endStream {
			s.state = StateHalfClosedLocal
		} else {
			s.state = StateOpen
		}
	case StateReservedLocal:
		// Responding on a stream we promised; the remote half never opens.
		s.headersSent = true
		if endStream {
			s.state = StateClosed
		} else {
			s.state = StateHalfClosedRemote
		}
	case StateOpen, StateHalfClosedRemote:
		if !s.headersSent {
			s.headersSent = true
			if !endStream {
				return nil
			}
		} else {
			if s.trailersSent || !endStream {
				return ErrTrailers
			}
			s.trailersSent = true
		}
		if s.state == StateOpen {
			s.state = StateHalfClosedLocal
		} else {
			s.state = StateClosed
		}
	}
	return nil
}

// receiveHeaders applies a HEADERS frame from the peer.
func (s *Stream) receiveHeaders(endStream bool) error {
	switch s.state {
	case StateHalfClosedRemote, StateClosed:
		return ErrStreamClosed
	case StateReservedLocal:
		return ErrBadStreamTransition
	case StateIdle:
		s.headersReceived = true
		if endStream {
			s.state = StateHalfClosedRemote
		} else {
			s.state = StateOpen
		}
	case StateReservedRemote:
		s.headersReceived = true
		if endStream {
			s.state = StateClosed
		} else {
			s.state = StateHalfClosedLocal
		}
	case StateOpen, StateHalfClosedLocal:
		if !s.headersReceived {
			s.headersReceived = true
			if !endStream {
				return nil
			}
		} else {
			if s.trailersReceived || !endStream {
				return ErrTrailers
			}
			if s.contentLength >= 0 && s.bytesReceived != s.contentLength {
				return ErrContentLength
			}
			s.trailersReceived = true
		}
		if s.state == StateOpen {
			s.state = StateHalfClosedRemote
		} else {
			s.state = StateClosed
		}
	}
	return nil
}

// checkSendData validates a locally emitted DATA frame without mutating.
func (s *Stream) checkSendData(flowLen uint32) error {
	switch s.state {
	case StateOpen, StateHalfClosedRemote:
	case StateHalfClosedLocal, StateClosed:
		return ErrStreamClosed
	default:
		return ErrBadStreamTransition
	}
	if int64(flowLen) > int64(s.outbound) {
		return ErrWindowExceeded
	}
	return nil
}

// applySendData mutates for a DATA frame checkSendData accepted.
func (s *Stream) applySendData(flowLen uint32, endStream bool) {
	s.outbound -= Window(flowLen)
	if endStream {
		if s.state == StateOpen {
			s.state = StateHalfClosedLocal
		} else {
			s.state = StateClosed
		}
	}
}

// checkReceiveData validates a DATA frame from the peer without
// mutating: stream state, the stream window, and the declared
// content-length must all admit it.
func (s *Stream) checkReceiveData(flowLen, dataLen uint32, endStream bool) error {
	switch s.state {
	case StateOpen, StateHalfClosedLocal:
	case StateHalfClosedRemote, StateClosed:
		return ErrStreamClosed
	default:
		return ErrBadStreamTransition
	}
	if int64(flowLen) > int64(s.inbound) {
		return ErrWindowExceeded
	}
	if s.contentLength >= 0 {
		received := s.bytesReceived + int64(dataLen)
		if received > s.contentLength {
			return ErrContentLength
		}
		if endStream && received != s.contentLength {
			return ErrContentLength
		}
	}
	return nil
}

// applyReceiveData mutates for a DATA frame checkReceiveData accepted.
func (s *Stream) applyReceiveData(flowLen, dataLen uint32, endStream bool) {
	s.inbound -= Window(flowLen)
	s.bytesReceived += int64(dataLen)
	if endStream {
		if s.state == StateOpen {
			s.state = StateHalfClosedRemote
		} else {
			s.state = StateClosed
		}
	}
}

// reset moves the stream to closed, recording the reason. Legal from any
// non-idle state in either direction (RFC 7540 §5.1).
func (s *Stream) reset(code ErrorCode) {
	s.state = StateClosed
	s.resetCode = code
	s.wasReset = true
}

// scanHeaderBlock inspects a decoded header block fragment without
// mutating. The core only cares about content-length, and, for trailing
// blocks, that no pseudo-header fields appear (RFC 7540 §8.1.2.1,
// §8.1.2.6). Returns the declared content-length, -1 when absent.
func scanHeaderBlock(fields []hpack.HeaderField, trailers bool) (int64, error) {
	contentLength := int64(-1)
	for _, f := range fields {
		if trailers && strings.HasPrefix(f.Name, ":") {
			return -1, ErrTrailers
		}
		if f.Name != "content-length" {
			continue
		}
		n, err := strconv.ParseInt(f.Value, 10, 64)
		if err != nil || n < 0 {
			return -1, ErrContentLength
		}
		if contentLength >= 0 && contentLength != n {
			return -1, ErrContentLength
		}
		contentLength = n
	}
	return contentLength, nil
}
