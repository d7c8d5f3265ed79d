package reconnect

import (
	"testing"
	"time"
)

func TestPolicy_Delay(t *testing.T) {
	p := NewPolicy(1*time.Second, 60*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{6, 60 * time.Second}, // 64s capped
		{10, 60 * time.Second},
		{100, 60 * time.Second}, // no overflow past the cap
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPolicy_Next_MatchesDelay(t *testing.T) {
	p := NewPolicy(500*time.Millisecond, 10*time.Second)

	for i := 0; i < 8; i++ {
		got := p.Next()
		want := p.Delay(i)
		if got != want {
			t.Errorf("Next() attempt %d = %v, want %v", i, got, want)
		}
	}
}

func TestPolicy_Next_CapsAtMax(t *testing.T) {
	p := NewPolicy(1*time.Second, 30*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s capped
		30 * time.Second,
		30 * time.Second,
	}
	for i, w := range want {
		if got := p.Next(); got != w {
			t.Errorf("Next() call %d = %v, want %v", i, got, w)
		}
	}
}

func TestPolicy_Reset(t *testing.T) {
	p := NewPolicy(1*time.Second, 60*time.Second)

	p.Next()
	p.Next()
	p.Next()
	p.Reset()

	if got := p.Next(); got != 1*time.Second {
		t.Errorf("Next() after Reset = %v, want %v", got, 1*time.Second)
	}
}
