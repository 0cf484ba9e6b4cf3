package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name     string
		expires  time.Time
		expected bool
	}{
		{
			name:     "future expiry",
			expires:  time.Now().Add(time.Minute),
			expected: false,
		},
		{
			name:     "past expiry",
			expires:  time.Now().Add(-time.Minute),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{Expires: tt.expires}
			if got := e.IsExpired(); got != tt.expected {
				t.Errorf("IsExpired() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	e := &Entry{Expires: time.Now().Add(time.Minute)}
	ttl := e.TTL()
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL() = %v, want between 0 and 1m", ttl)
	}

	expired := &Entry{Expires: time.Now().Add(-time.Minute)}
	if got := expired.TTL(); got != 0 {
		t.Errorf("TTL() = %v, want 0 for expired entry", got)
	}
}
