package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"direct match", ErrNotFound, true},
		{"wrapped once", fmt.Errorf("load run: %w", ErrNotFound), true},
		{"wrapped twice", fmt.Errorf("checkpoint: %w", fmt.Errorf("sqlite: %w", ErrNotFound)), true},
		{"different error", ErrValidation, false},
		{"nil error", nil, false},
		{"unrelated error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMalformedIDError(t *testing.T) {
	err := error(&MalformedIDError{Raw: "123", Reason: "too short"})

	assert.True(t, IsValidation(err))
	assert.False(t, IsInvalidState(err))
	assert.Equal(t, `malformed process id "123": too short`, err.Error())

	var target *MalformedIDError
	assert.True(t, errors.As(fmt.Errorf("row 4: %w", err), &target))
	assert.Equal(t, "123", target.Raw)
}

func TestInvalidOverrideError(t *testing.T) {
	err := error(&InvalidOverrideError{Index: 3, Current: "found"})

	assert.True(t, IsInvalidState(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, "invalid override at index 3: outcome is found", err.Error())
	assert.Equal(t, "invalid override at index 7", (&InvalidOverrideError{Index: 7}).Error())
}
