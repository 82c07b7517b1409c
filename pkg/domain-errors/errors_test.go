package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeNotFound, "compliance record not found")
	assert.Equal(t, "compliance record not found", err.Error())
	assert.Equal(t, CodeNotFound, CodeOf(err))

	assert.Equal(t, "not_found", New(CodeNotFound, "").Error(), "empty message falls back to the code")
}

func TestNewf(t *testing.T) {
	err := Newf(CodeValidation, "unknown role %q", "viceroy")
	assert.Equal(t, `unknown role "viceroy"`, err.Error())
	assert.True(t, HasCode(err, CodeValidation))
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeUnavailable, "store unavailable")

	assert.Equal(t, "store unavailable", err.Error())
	assert.True(t, HasCode(err, CodeUnavailable))
	assert.ErrorIs(t, err, cause, "the cause stays reachable")

	assert.Nil(t, Wrap(nil, CodeUnavailable, "ignored"))
}

func TestHasCodeWalksTheChain(t *testing.T) {
	inner := New(CodeConflict, "lost the race")
	outer := Wrap(inner, CodeUnavailable, "commit failed")

	assert.True(t, HasCode(outer, CodeUnavailable))
	assert.True(t, HasCode(outer, CodeConflict), "inner codes stay visible")
	assert.False(t, HasCode(outer, CodeNotFound))
	assert.False(t, HasCode(nil, CodeNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeInternal))
}

func TestHasCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("while executing transition: %w", New(CodeApprovalPending, "2 approvals outstanding"))
	assert.True(t, HasCode(err, CodeApprovalPending))
}

func TestCodeOf(t *testing.T) {
	inner := New(CodeConflict, "lost the race")
	outer := Wrap(inner, CodeUnavailable, "commit failed")

	assert.Equal(t, CodeUnavailable, CodeOf(outer), "outermost code wins")
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestIs(t *testing.T) {
	cause := errors.New("boom")
	require.True(t, Is(Wrap(cause, CodeInternal, "wrapped"), cause))
}
