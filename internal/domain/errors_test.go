package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUnsupportedIntent, ReasonUnsupported},
		{fmt.Errorf("Assemble: %w", ErrDataUnavailable), ReasonDataUnavailable},
		{fmt.Errorf("complete: %w", ErrModelTimeout), ReasonModelTimeout},
		{fmt.Errorf("complete: %w", ErrModelError), ReasonModelError},
		{errors.New("boom"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := ReasonFor(tt.err); got != tt.want {
			t.Errorf("ReasonFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
