package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", NotFound("order %s not found", "o1"), KindNotFound},
		{"wrapped", fmt.Errorf("complete: %w", PermissionDenied("not your order")), KindPermissionDenied},
		{"plain error", errors.New("boom"), KindInternal},
		{"internal", Internal(errors.New("conn reset"), "store unavailable"), KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestMessageHidesInternalCause(t *testing.T) {
	err := Internal(errors.New("pq: password authentication failed"), "store unavailable")
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, "insufficient stock for Kurta (M)", Message(FailedPrecondition("insufficient stock for %s (%s)", "Kurta", "M")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("timeout")))
	assert.False(t, Retryable(InvalidArgument("bad otp")))
	assert.False(t, Retryable(AlreadyExists("rated")))
	assert.False(t, Retryable(nil))
}
