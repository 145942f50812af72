package policykit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrorWrapping tests sentinel matching through the wrapper
func TestErrorWrapping(t *testing.T) {
	err := NewError(ErrNotFound, "role not found").
		WithRole("editor").
		WithPrincipal("user-1")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.Equal(t, "editor", err.Role)
	assert.Equal(t, "user-1", err.PrincipalID)
	assert.Contains(t, err.Error(), "role not found")

	// Wrapping further up the stack must preserve the sentinel
	wrapped := fmt.Errorf("assigning: %w", err)
	assert.True(t, IsNotFound(wrapped))
}

// TestErrorClassifiers tests each Is helper against its sentinel
func TestErrorClassifiers(t *testing.T) {
	assert.True(t, IsInvalidInput(NewError(ErrInvalidInput, "")))
	assert.True(t, IsConflict(NewError(ErrConflict, "")))
	assert.True(t, IsPermissionDenied(NewError(ErrPermissionDenied, "")))
	assert.True(t, IsUnavailable(NewError(ErrUnavailable, "")))

	assert.False(t, IsUnavailable(NewError(ErrConflict, "")))
	assert.False(t, IsNotFound(nil))
}

// TestErrorMessage tests rendering with and without context
func TestErrorMessage(t *testing.T) {
	assert.Equal(t, ErrConflict.Error(), NewError(ErrConflict, "").Error())
	assert.Equal(t,
		ErrConflict.Error()+": duplicate assignment",
		NewError(ErrConflict, "duplicate assignment").Error())
}
