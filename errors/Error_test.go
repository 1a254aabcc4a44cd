package errors

import (
	"testing"

	stderrors "errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIs(t *testing.T) {
	base := New(ErrNonexistentCoin, "coin %x not found", []byte{1, 2, 3})
	wrapped := New(ErrViolatesScript, "covenant failed", base)

	assert.True(t, stderrors.Is(wrapped, New(ErrViolatesScript, "")))
	assert.True(t, stderrors.Is(wrapped, New(ErrNonexistentCoin, "")))
}

func TestErrorAs(t *testing.T) {
	base := New(ErrBadKind, "unsupported kind")

	var target *Error
	require.True(t, stderrors.As(error(base), &target))
	assert.Equal(t, ErrBadKind, target.Code)
}

func TestErrorCodeToGRPCCode(t *testing.T) {
	assert.Equal(t, "NotFound", ErrorCodeToGRPCCode(ErrNonexistentCoin).String())
	assert.Equal(t, "InvalidArgument", ErrorCodeToGRPCCode(ErrWrongNetwork).String())
}

func TestJoin(t *testing.T) {
	err := Join(nil, New(ErrCorrupt, "disk"), New(ErrTimedOut, "net"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk")
	assert.Contains(t, err.Error(), "net")
}
