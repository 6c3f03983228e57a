package http2

import (
	"errors"
	"testing"

	"golang.org/x/net/http2/hpack"
)

func TestStreamHeaderTransitions(t *testing.T) {
	tests := []struct {
		name      string
		prepare   func(*Stream) error
		send      bool
		endStream bool
		wantState StreamState
		wantErr   error
	}{
		{
			name:      "send HEADERS opens",
			send:      true,
			wantState: StateOpen,
		},
		{
			name:      "send HEADERS with END_STREAM half-closes local",
			send:      true,
			endStream: true,
			wantState: StateHalfClosedLocal,
		},
		{
			name:      "recv HEADERS opens",
			wantState: StateOpen,
		},
		{
			name:      "recv HEADERS with END_STREAM half-closes remote",
			endStream: true,
			wantState: StateHalfClosedRemote,
		},
		{
			name: "response headers keep the stream open",
			prepare: func(s *Stream) error {
				return s.receiveHeaders(false)
			},
			send:      true,
			wantState: StateOpen,
		},
		{
			name: "responding on a promised stream half-closes remote",
			prepare: func(s *Stream) error {
				s.state = StateReservedLocal
				return nil
			},
			send:      true,
			wantState: StateHalfClosedRemote,
		},
		{
			name: "promised response with END_STREAM closes",
			prepare: func(s *Stream) error {
				s.state = StateReservedLocal
				return nil
			},
			send:      true,
			endStream: true,
			wantState: StateClosed,
		},
		{
			name: "recv HEADERS on a reserved(remote) stream half-closes local",
			prepare: func(s *Stream) error {
				s.state = StateReservedRemote
				return nil
			},
			wantState: StateHalfClosedLocal,
		},
		{
			name: "trailers must end the stream",
			prepare: func(s *Stream) error {
				return s.receiveHeaders(false)
			},
			wantErr: ErrTrailers,
		},
		{
			name: "trailers with END_STREAM close the receive half",
			prepare: func(s *Stream) error {
				return s.receiveHeaders(false)
			},
			endStream: true,
			wantState: StateHalfClosedRemote,
		},
		{
			name: "HEADERS after END_STREAM in the same direction",
			prepare: func(s *Stream) error {
				return s.receiveHeaders(true)
			},
			wantErr: ErrStreamClosed,
		},
		{
			name: "send HEADERS on a stream the peer reserved",
			prepare: func(s *Stream) error {
				s.state = StateReservedRemote
				return nil
			},
			send:    true,
			wantErr: ErrBadStreamTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStream(1, tt.send, DefaultWindowSize, DefaultWindowSize)
			if tt.prepare != nil {
				if err := tt.prepare(st); err != nil {
					t.Fatalf("prepare: %v", err)
				}
			}

			var err error
			if tt.send {
				err = st.sendHeaders(tt.endStream)
			} else {
				err = st.receiveHeaders(tt.endStream)
			}

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if st.State() != tt.wantState {
				t.Errorf("state = %s, want %s", st.State(), tt.wantState)
			}
		})
	}
}

func TestStreamDataTransitions(t *testing.T) {
	// open stream, both halves live
	st := newStream(1, true, DefaultWindowSize, DefaultWindowSize)
	if err := st.sendHeaders(false); err != nil {
		t.Fatal(err)
	}
	if err := st.receiveHeaders(false); err != nil {
		t.Fatal(err)
	}

	if err := st.checkSendData(100); err != nil {
		t.Fatalf("checkSendData: %v", err)
	}
	st.applySendData(100, false)
	if st.OutboundWindow() != DefaultWindowSize-100 {
		t.Errorf("outbound = %d, want %d", st.OutboundWindow(), DefaultWindowSize-100)
	}

	// END_STREAM half-closes, then closes
	st.applySendData(0, true)
	if st.State() != StateHalfClosedLocal {
		t.Fatalf("state = %s, want half-closed(local)", st.State())
	}
	if err := st.checkSendData(1); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("sending after END_STREAM = %v, want ErrStreamClosed", err)
	}

	if err := st.checkReceiveData(10, 10, true); err != nil {
		t.Fatalf("checkReceiveData: %v", err)
	}
	st.applyReceiveData(10, 10, true)
	if st.State() != StateClosed {
		t.Errorf("state = %s, want closed", st.State())
	}
}

func TestStreamDataWindowExceeded(t *testing.T) {
	st := newStream(1, true, 10, 10)
	if err := st.sendHeaders(false); err != nil {
		t.Fatal(err)
	}
	if err := st.receiveHeaders(false); err != nil {
		t.Fatal(err)
	}

	if err := st.checkSendData(11); !errors.Is(err, ErrWindowExceeded) {
		t.Errorf("checkSendData(11) = %v, want ErrWindowExceeded", err)
	}
	if err := st.checkReceiveData(11, 11, false); !errors.Is(err, ErrWindowExceeded) {
		t.Errorf("checkReceiveData(11) = %v, want ErrWindowExceeded", err)
	}
	// nothing moved
	if st.OutboundWindow() != 10 || st.InboundWindow() != 10 {
		t.Errorf("windows mutated on error: in=%d out=%d", st.InboundWindow(), st.OutboundWindow())
	}
}

func TestStreamContentLengthPolicing(t *testing.T) {
	tests := []struct {
		name      string
		declared  int64
		chunks    []uint32
		endOnLast bool
		wantErr   error
	}{
		{
			name:      "exact length",
			declared:  10,
			chunks:    []uint32{4, 6},
			endOnLast: true,
		},
		{
			name:     "excess data",
			declared: 10,
			chunks:   []uint32{4, 8},
			wantErr:  ErrContentLength,
		},
		{
			name:      "short body at END_STREAM",
			declared:  10,
			chunks:    []uint32{4, 2},
			endOnLast: true,
			wantErr:   ErrContentLength,
		},
		{
			name:      "no declaration, anything goes",
			declared:  -1,
			chunks:    []uint32{1000, 2000},
			endOnLast: true,
		},
		{
			name:      "zero-length DATA with END_STREAM",
			declared:  0,
			chunks:    []uint32{0},
			endOnLast: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newStream(1, false, DefaultWindowSize, DefaultWindowSize)
			if err := st.receiveHeaders(false); err != nil {
				t.Fatal(err)
			}
			st.contentLength = tt.declared

			var err error
			for i, n := range tt.chunks {
				end := tt.endOnLast && i == len(tt.chunks)-1
				err = st.checkReceiveData(n, n, end)
				if err != nil {
					break
				}
				st.applyReceiveData(n, n, end)
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestScanHeaderBlock(t *testing.T) {
	tests := []struct {
		name     string
		fields   []hpack.HeaderField
		trailers bool
		wantLen  int64
		wantErr  error
	}{
		{
			name: "content-length extracted",
			fields: []hpack.HeaderField{
				{Name: ":method", Value: "POST"},
				{Name: "content-length", Value: "42"},
			},
			wantLen: 42,
		},
		{
			name: "no content-length",
			fields: []hpack.HeaderField{
				{Name: ":method", Value: "GET"},
			},
			wantLen: -1,
		},
		{
			name: "malformed content-length",
			fields: []hpack.HeaderField{
				{Name: "content-length", Value: "banana"},
			},
			wantErr: ErrContentLength,
		},
		{
			name: "negative content-length",
			fields: []hpack.HeaderField{
				{Name: "content-length", Value: "-1"},
			},
			wantErr: ErrContentLength,
		},
		{
			name: "conflicting duplicates",
			fields: []hpack.HeaderField{
				{Name: "content-length", Value: "10"},
				{Name: "content-length", Value: "20"},
			},
			wantErr: ErrContentLength,
		},
		{
			name: "agreeing duplicates",
			fields: []hpack.HeaderField{
				{Name: "content-length", Value: "10"},
				{Name: "content-length", Value: "10"},
			},
			wantLen: 10,
		},
		{
			name: "pseudo-header in trailers",
			fields: []hpack.HeaderField{
				{Name: ":status", Value: "200"},
			},
			trailers: true,
			wantErr:  ErrTrailers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := scanHeaderBlock(tt.fields, tt.trailers)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got != tt.wantLen {
				t.Errorf("content-length = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestStreamReset(t *testing.T) {
	st := newStream(3, true, DefaultWindowSize, DefaultWindowSize)
	if err := st.sendHeaders(false); err != nil {
		t.Fatal(err)
	}

	st.reset(ErrCodeCancel)
	if st.State() != StateClosed {
		t.Errorf("state = %s, want closed", st.State())
	}
	if !st.wasReset || st.resetCode != ErrCodeCancel {
		t.Errorf("reset bookkeeping: wasReset=%v code=%s", st.wasReset, st.resetCode)
	}
}
