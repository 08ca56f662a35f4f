package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormat(t *testing.T) {
	err := NewError(ErrNoResponse, "no new reply after 60 polls")
	assert.Equal(t, "[NO_RESPONSE] no new reply after 60 polls", err.Error())

	wrapped := NewError(ErrConnectionFailed, "attach browser").WithCause(errors.New("dial tcp: refused"))
	assert.Contains(t, wrapped.Error(), "CONNECTION_FAILED")
	assert.Contains(t, wrapped.Error(), "dial tcp: refused")
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewError(ErrStartFailed, "open thread").WithCause(cause)
	assert.ErrorIs(t, err, cause)
}

func TestAsErrorThroughChain(t *testing.T) {
	inner := NewError(ErrRateLimited, "limit reached").
		WithRetryable(true).
		WithResetAt(time.Unix(1700000000, 0))
	outer := fmt.Errorf("send attempt 2: %w", inner)

	e := AsError(outer)
	require.NotNil(t, e)
	assert.Equal(t, ErrRateLimited, e.Code)
	assert.Equal(t, time.Unix(1700000000, 0), e.ResetAt)
	assert.True(t, IsRetryable(outer))
	assert.Equal(t, ErrRateLimited, GetErrorCode(outer))
}

func TestAsErrorPlain(t *testing.T) {
	assert.Nil(t, AsError(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestTokenCount(t *testing.T) {
	assert.Equal(t, 0, TokenCount(""))
	assert.Equal(t, 0, TokenCount("   \n\t"))
	assert.Equal(t, 2, TokenCount("hi there"))
	assert.Equal(t, 3, TokenCount("  a\tb \n c "))
}
