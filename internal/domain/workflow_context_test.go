package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeKeepsUnparseableRollbackTime(t *testing.T) {
	ctx := NewWorkflowContext(map[string]any{ContextKeyRolledBackAt: "yesterday"})

	assert.Nil(t, ctx.RolledBackAt)
	assert.True(t, ctx.RolledBack())
	assert.Equal(t, "yesterday", ctx.Map()[ContextKeyRolledBackAt])

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx.Merge(map[string]any{ContextKeyRolledBackAt: at.Format(time.RFC3339)})
	require.NotNil(t, ctx.RolledBackAt)
	assert.Equal(t, at, ctx.RolledBackAt.UTC())
	assert.NotContains(t, ctx.Values, ContextKeyRolledBackAt)
}

func TestMergeIgnoresEmptyTimestamps(t *testing.T) {
	ctx := NewWorkflowContext(map[string]any{ContextKeyCancelledAt: "", ContextKeyRolledBackAt: nil})

	assert.Nil(t, ctx.CancelledAt)
	assert.False(t, ctx.RolledBack())
	assert.Empty(t, ctx.Values)
}

func TestFractionalRetryCountStaysPresent(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		present bool
	}{
		{name: "fraction", value: 0.4, present: true},
		{name: "json number", value: json.Number("0.2"), present: true},
		{name: "numeric string", value: "1.5", present: true},
		{name: "zero", value: 0.0, present: false},
		{name: "negative", value: -2, present: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := NewWorkflowContext(map[string]any{ContextKeyRetryCount: tt.value})
			assert.Equal(t, tt.present, ctx.Retry.Present())
			assert.Equal(t, tt.present, ParseRetryMarkers(map[string]any{ContextKeyRetries: tt.value}).Present())
		})
	}
}

func TestMergeKeepsNonNumericRetryCount(t *testing.T) {
	ctx := NewWorkflowContext(map[string]any{ContextKeyRetryCount: "several"})

	assert.Zero(t, ctx.Retry.RetryCount)
	assert.Equal(t, "several", ctx.Map()[ContextKeyRetryCount])

	ctx.Merge(map[string]any{ContextKeyRetryCount: 2})
	assert.Equal(t, 2, ctx.Retry.RetryCount)
	assert.Equal(t, 2, ctx.Map()[ContextKeyRetryCount])
	assert.NotContains(t, ctx.Values, ContextKeyRetryCount)
}

func TestRetryFlagsAcceptFractions(t *testing.T) {
	markers := ParseRetryMarkers(map[string]any{ContextKeyRetry: 0.5, ContextKeyRetryRequested: "no"})

	assert.True(t, markers.Retry)
	assert.False(t, markers.RetryRequested)
}
