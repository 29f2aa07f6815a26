package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_Creation(t *testing.T) {
	cause := errors.New("underlying error")

	err := NewValidationError("test validation error", cause)

	assert.Equal(t, ErrorTypeValidation, err.Type)
	assert.Equal(t, "test validation error", err.Message)
	assert.Equal(t, cause, err.Cause)
	assert.NotNil(t, err.Context)
}

func TestDomainError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		error    *DomainError
		expected string
	}{
		{
			name:     "error without cause",
			error:    NewValidationError("missing service_name", nil),
			expected: "validation: missing service_name",
		},
		{
			name:     "error with cause",
			error:    NewStoreUnavailableError("create failed", errors.New("connection refused")),
			expected: "store_unavailable: create failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.error.Error())
		})
	}
}

func TestDomainError_TypeChecking(t *testing.T) {
	transient := NewTransientServiceError("health check timed out", nil)
	store := NewStoreUnavailableError("store down", nil)

	assert.True(t, IsTransientServiceError(transient))
	assert.False(t, IsTransientServiceError(store))
	assert.True(t, IsStoreUnavailableError(store))

	wrapped := fmt.Errorf("phase push: %w", store)
	assert.True(t, IsStoreUnavailableError(wrapped))
	assert.False(t, IsValidationError(errors.New("plain")))
}

func TestUnknownActionError(t *testing.T) {
	err := NewUnknownActionError("explode")

	require.True(t, IsActionExecutionError(err))
	assert.True(t, IsUnknownActionError(err))
	assert.Equal(t, "explode", err.Context["action"])

	downstream := NewActionExecutionError("signal publish failed", errors.New("nats down"))
	assert.True(t, IsActionExecutionError(downstream))
	assert.False(t, IsUnknownActionError(downstream))
}

func TestErrorCollection(t *testing.T) {
	collection := NewErrorCollection()
	assert.NoError(t, collection.ToError())

	collection.Add(nil)
	assert.False(t, collection.HasErrors())

	collection.Add(errors.New("phase 2 failed"))
	collection.Add(errors.New("phase 3 failed"))

	require.Error(t, collection.ToError())
	assert.Equal(t, "2 errors occurred: phase 2 failed", collection.Error())
}
