package channel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"channel error", NewChannelError("503", "<html>busy</html>", nil), true},
		{"wrapped channel error", fmt.Errorf("export: %w", NewChannelError("reset", "", nil)), true},
		{"permanent rejection", &ChannelError{Message: "bad room", Permanent: true}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"network timeout", timeoutErr{}, true},
		{"missing dependency", fmt.Errorf("%w: room", ErrMissingDependency), false},
		{"ambiguous match", ErrAmbiguousMatch, false},
		{"duplicate binding", ErrDuplicateBinding, false},
		{"invalid input", ErrInvalidInput, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestChannelError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("write room: %w", &ChannelError{Message: "unavailable", RawPayload: `{"error":"down"}`, StatusCode: 502, Err: cause})

	ce, ok := AsChannelError(err)
	assert.True(t, ok)
	assert.Equal(t, 502, ce.StatusCode)
	assert.Equal(t, `{"error":"down"}`, RawMessage(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "status 502")
	assert.Empty(t, RawMessage(errors.New("other")))
}
