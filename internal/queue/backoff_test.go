package queue

import (
	"testing"
	"time"
)

func TestBackoff_DoublesPerRetry(t *testing.T) {
	tests := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
		{4, 80 * time.Minute},
	}

	for _, tc := range tests {
		got := Backoff(tc.retryCount, DefaultBaseDelay)
		if got != tc.expected {
			t.Errorf("Backoff(%d): expected %v, got %v", tc.retryCount, tc.expected, got)
		}
	}
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	// 5min * 2^9 = 2560min, past the 1440min cap
	if got := Backoff(9, DefaultBaseDelay); got != MaxDelay {
		t.Errorf("expected cap %v, got %v", MaxDelay, got)
	}

	// Huge retry counts must not overflow
	if got := Backoff(500, DefaultBaseDelay); got != MaxDelay {
		t.Errorf("expected cap %v for large count, got %v", MaxDelay, got)
	}
}

func TestBackoff_Defaults(t *testing.T) {
	if got := Backoff(0, 0); got != DefaultBaseDelay {
		t.Errorf("expected default base %v, got %v", DefaultBaseDelay, got)
	}

	if got := Backoff(-3, DefaultBaseDelay); got != DefaultBaseDelay {
		t.Errorf("negative count should clamp to base, got %v", got)
	}
}

func TestBackoff_CustomBase(t *testing.T) {
	if got := Backoff(2, time.Minute); got != 4*time.Minute {
		t.Errorf("expected 4m, got %v", got)
	}
}
