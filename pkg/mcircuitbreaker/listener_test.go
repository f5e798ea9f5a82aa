package mcircuitbreaker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbusline/platform-core/internal/breaker"
)

func TestStateChangeEvent_ContainsRequiredFields(t *testing.T) {
	event := StateChangeEvent{
		ServiceName: "test-service",
		FromState:   StateClosed,
		ToState:     StateOpen,
		Counts: Counts{
			Requests:            10,
			TotalFailures:       5,
			ConsecutiveFailures: 3,
		},
	}

	assert.Equal(t, "test-service", event.ServiceName)
	assert.Equal(t, StateClosed, event.FromState)
	assert.Equal(t, StateOpen, event.ToState)
	assert.Equal(t, uint32(10), event.Counts.Requests)
	assert.Equal(t, uint32(5), event.Counts.TotalFailures)
	assert.Equal(t, uint32(3), event.Counts.ConsecutiveFailures)
}

func TestStateListener_CanReceiveEvents(t *testing.T) {
	listener := &mockListener{}

	event := StateChangeEvent{
		ServiceName: "rabbitmq-producer",
		FromState:   StateClosed,
		ToState:     StateOpen,
	}

	listener.OnCircuitBreakerStateChange(event)

	assert.Len(t, listener.calls, 1)
	assert.Equal(t, "rabbitmq-producer", listener.calls[0].ServiceName)
}

func TestLibCommonsAdapterListener_ImplementsInterface(t *testing.T) {
	mockMidazListener := &mockListener{}
	adapter := NewLibCommonsAdapter(mockMidazListener)

	// Verify adapter implements the breaker engine's StateChangeListener
	var _ breaker.StateChangeListener = adapter
}

func TestLibCommonsAdapterListener_ForwardsStateChanges(t *testing.T) {
	mockMidazListener := &mockListener{}
	adapter := NewLibCommonsAdapter(mockMidazListener)

	// Simulate a breaker engine callback
	adapter.OnStateChange(
		"rabbitmq-producer",
		breaker.StateClosed,
		breaker.StateOpen,
		breaker.Counts{
			Requests:             10,
			TotalSuccesses:       5,
			TotalFailures:        5,
			ConsecutiveSuccesses: 0,
			ConsecutiveFailures:  3,
		},
	)

	assert.Len(t, mockMidazListener.calls, 1)
	assert.Equal(t, "rabbitmq-producer", mockMidazListener.calls[0].ServiceName)
	assert.Equal(t, StateClosed, mockMidazListener.calls[0].FromState)
	assert.Equal(t, StateOpen, mockMidazListener.calls[0].ToState)
	// Verify all Counts fields are correctly mapped
	assert.Equal(t, uint32(10), mockMidazListener.calls[0].Counts.Requests)
	assert.Equal(t, uint32(5), mockMidazListener.calls[0].Counts.TotalSuccesses)
	assert.Equal(t, uint32(5), mockMidazListener.calls[0].Counts.TotalFailures)
	assert.Equal(t, uint32(0), mockMidazListener.calls[0].Counts.ConsecutiveSuccesses)
	assert.Equal(t, uint32(3), mockMidazListener.calls[0].Counts.ConsecutiveFailures)
}

func TestLibCommonsAdapter_HandlesNilListener(t *testing.T) {
	// Create adapter with nil listener
	adapter := NewLibCommonsAdapter(nil)

	// Should not panic when listener is nil
	adapter.OnStateChange(
		"test-service",
		breaker.StateClosed,
		breaker.StateOpen,
		breaker.Counts{},
	)
	// Test passes if no panic occurred
}

func TestConvertState_AllStates(t *testing.T) {
	tests := []struct {
		name     string
		input    breaker.State
		expected State
	}{
		{
			name:     "closed state",
			input:    breaker.StateClosed,
			expected: StateClosed,
		},
		{
			name:     "open state",
			input:    breaker.StateOpen,
			expected: StateOpen,
		},
		{
			name:     "half-open state",
			input:    breaker.StateHalfOpen,
			expected: StateHalfOpen,
		},
		{
			name:     "unknown state returns StateUnknown",
			input:    breaker.State("invalid-state"), // Invalid state value
			expected: StateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := convertState(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLibCommonsAdapter_ForwardsAllStateTransitions(t *testing.T) {
	tests := []struct {
		name         string
		fromState    breaker.State
		toState      breaker.State
		expectedFrom State
		expectedTo   State
	}{
		{
			name:         "closed to open",
			fromState:    breaker.StateClosed,
			toState:      breaker.StateOpen,
			expectedFrom: StateClosed,
			expectedTo:   StateOpen,
		},
		{
			name:         "open to half-open",
			fromState:    breaker.StateOpen,
			toState:      breaker.StateHalfOpen,
			expectedFrom: StateOpen,
			expectedTo:   StateHalfOpen,
		},
		{
			name:         "half-open to closed",
			fromState:    breaker.StateHalfOpen,
			toState:      breaker.StateClosed,
			expectedFrom: StateHalfOpen,
			expectedTo:   StateClosed,
		},
		{
			name:         "half-open to open",
			fromState:    breaker.StateHalfOpen,
			toState:      breaker.StateOpen,
			expectedFrom: StateHalfOpen,
			expectedTo:   StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listener := &mockListener{}
			adapter := NewLibCommonsAdapter(listener)

			adapter.OnStateChange("test-service", tt.fromState, tt.toState, breaker.Counts{})

			assert.Len(t, listener.calls, 1)
			assert.Equal(t, tt.expectedFrom, listener.calls[0].FromState)
			assert.Equal(t, tt.expectedTo, listener.calls[0].ToState)
		})
	}
}
