package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *DomainError
		expected string
	}{
		{
			name:     "without details",
			err:      NewDomainError("CH-TEST-1000", "test message"),
			expected: "[CH-TEST-1000] test message",
		},
		{
			name:     "with details",
			err:      NewDomainError("CH-TEST-1001", "test message").WithDetails("extra"),
			expected: "[CH-TEST-1001] test message: extra",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	detailed := ErrVideoExists.WithDetails("capture 1700000000")
	wrapped := fmt.Errorf("enqueue: %w", detailed)

	if !errors.Is(wrapped, ErrVideoExists) {
		t.Error("errors.Is should match on code through wrapping")
	}
	if errors.Is(wrapped, ErrVideoInvalid) {
		t.Error("errors.Is should not match a different code")
	}
	if got := ErrorCode(wrapped); got != "CH-VID-4090" {
		t.Errorf("ErrorCode() = %q, want CH-VID-4090", got)
	}
	if got := ErrorCode(errors.New("plain")); got != "" {
		t.Errorf("ErrorCode(plain) = %q, want empty", got)
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := ErrSnapshotWrite.WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if ErrSnapshotWrite.Cause != nil {
		t.Error("WithCause must not modify the sentinel")
	}
}
