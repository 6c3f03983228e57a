package http2

import (
	"errors"
	"testing"
)

func TestWindowConsume(t *testing.T) {
	w := Window(DefaultWindowSize)

	if err := w.Consume(100); err != nil {
		t.Fatalf("Consume() error: %v", err)
	}
	if w.Value() != DefaultWindowSize-100 {
		t.Errorf("window = %d, want %d", w.Value(), DefaultWindowSize-100)
	}

	// Consuming exactly what is left is fine
	if err := w.Consume(uint32(w.Value())); err != nil {
		t.Fatalf("Consume() error: %v", err)
	}
	if w.Value() != 0 {
		t.Errorf("window = %d, want 0", w.Value())
	}

	// Consuming past zero is a flow-control violation
	if err := w.Consume(1); !errors.Is(err, ErrWindowExceeded) {
		t.Errorf("Consume(1) on empty window = %v, want ErrWindowExceeded", err)
	}
}

func TestWindowIncrement(t *testing.T) {
	tests := []struct {
		name    string
		start   int32
		inc     uint32
		want    int32
		wantErr error
	}{
		{
			name:  "simple increment",
			start: 1000,
			inc:   500,
			want:  1500,
		},
		{
			name:    "zero increment is a protocol violation",
			start:   1000,
			inc:     0,
			wantErr: ErrZeroWindowIncrement,
		},
		{
			name:  "increment to exactly the maximum",
			start: MaxWindowSize - 1,
			inc:   1,
			want:  MaxWindowSize,
		},
		{
			name:    "increment past the maximum overflows",
			start:   MaxWindowSize,
			inc:     1,
			wantErr: ErrWindowOverflow,
		},
		{
			name:  "negative window recovers",
			start: -500,
			inc:   1000,
			want:  500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window(tt.start)
			err := w.Increment(tt.inc)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Increment() = %v, want %v", err, tt.wantErr)
				}
				if w.Value() != tt.start {
					t.Errorf("window mutated on error: %d", w.Value())
				}
				return
			}
			if err != nil {
				t.Fatalf("Increment() error: %v", err)
			}
			if w.Value() != tt.want {
				t.Errorf("window = %d, want %d", w.Value(), tt.want)
			}
		})
	}
}

func TestWindowAdjust(t *testing.T) {
	tests := []struct {
		name    string
		start   int32
		delta   int32
		want    int32
		wantErr error
	}{
		{
			name:  "positive re-baseline",
			start: DefaultWindowSize,
			delta: 65535,
			want:  131070,
		},
		{
			name:  "negative re-baseline may go negative",
			start: 100,
			delta: -65535,
			want:  -65435,
		},
		{
			name:    "overflow",
			start:   MaxWindowSize - 100,
			delta:   200,
			wantErr: ErrWindowOverflow,
		},
		{
			name:    "underflow",
			start:   -MaxWindowSize + 100,
			delta:   -200,
			wantErr: ErrWindowUnderflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window(tt.start)
			if got := w.checkAdjust(tt.delta); !errors.Is(got, tt.wantErr) {
				t.Errorf("checkAdjust() = %v, want %v", got, tt.wantErr)
			}
			err := w.Adjust(tt.delta)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Adjust() = %v, want %v", err, tt.wantErr)
				}
				if w.Value() != tt.start {
					t.Errorf("window mutated on error: %d", w.Value())
				}
				return
			}
			if err != nil {
				t.Fatalf("Adjust() error: %v", err)
			}
			if w.Value() != tt.want {
				t.Errorf("window = %d, want %d", w.Value(), tt.want)
			}
		})
	}
}
