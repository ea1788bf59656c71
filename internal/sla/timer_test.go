package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestComputeDeadlines(t *testing.T) {
	d := ComputeDeadlines(base, Policy{ResponseMinutes: 15, ResolutionMinutes: 240})
	require.NotNil(t, d.ResponseDue)
	require.NotNil(t, d.ResolutionDue)
	assert.Equal(t, base.Add(15*time.Minute), *d.ResponseDue)
	assert.Equal(t, base.Add(4*time.Hour), *d.ResolutionDue)

	empty := ComputeDeadlines(base, Policy{})
	assert.Nil(t, empty.ResponseDue)
	assert.Nil(t, empty.ResolutionDue)
}

func TestPausedMinutes(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"exact minutes", 5 * time.Minute, 5},
		{"rounds partial minute up", 5*time.Minute + time.Millisecond, 6},
		{"sub minute", 10 * time.Second, 1},
		{"zero", 0, 0},
		{"negative floors at zero", -3 * time.Minute, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PausedMinutes(base, base.Add(tc.elapsed)))
		})
	}
}

func TestExtendDeadline(t *testing.T) {
	assert.Nil(t, ExtendDeadline(nil, 10))

	due := base.Add(time.Hour)
	extended := ExtendDeadline(&due, 7)
	require.NotNil(t, extended)
	assert.Equal(t, base.Add(67*time.Minute), *extended)
	assert.Equal(t, base.Add(time.Hour), due, "input must not be mutated")
}

func TestEvaluateMet(t *testing.T) {
	assert.Nil(t, EvaluateMet(base, nil))

	due := base.Add(time.Minute)
	met := EvaluateMet(base, &due)
	require.NotNil(t, met)
	assert.True(t, *met)

	onTime := EvaluateMet(due, &due)
	require.NotNil(t, onTime)
	assert.True(t, *onTime)

	late := EvaluateMet(due.Add(time.Second), &due)
	require.NotNil(t, late)
	assert.False(t, *late)
}

func TestStepDueDate(t *testing.T) {
	assert.Nil(t, StepDueDate(0, base))
	assert.Nil(t, StepDueDate(-5, base))

	due := StepDueDate(30, base)
	require.NotNil(t, due)
	assert.Equal(t, base.Add(30*time.Minute), *due)
}
