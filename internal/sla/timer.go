// Package sla computes incident and step deadlines and pause accounting.
package sla

import (
	"math"
	"time"
)

// Policy holds the minute offsets used to derive deadlines.
type Policy struct {
	ResponseMinutes   int
	ResolutionMinutes int
}

// Deadlines are the computed response and resolution due dates.
type Deadlines struct {
	ResponseDue   *time.Time
	ResolutionDue *time.Time
}

// ComputeDeadlines adds the policy offsets to now. Non-positive offsets leave the deadline unset.
func ComputeDeadlines(now time.Time, policy Policy) Deadlines {
	return Deadlines{
		ResponseDue:   addMinutes(now, policy.ResponseMinutes),
		ResolutionDue: addMinutes(now, policy.ResolutionMinutes),
	}
}

// PausedMinutes returns the whole minutes between pause and resume, rounded up and floored at zero.
func PausedMinutes(pausedAt, resumedAt time.Time) int {
	ms := resumedAt.Sub(pausedAt).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Ceil(float64(ms) / 60000))
}

// ExtendDeadline shifts a deadline forward by the paused minutes.
func ExtendDeadline(deadline *time.Time, pausedMinutes int) *time.Time {
	if deadline == nil {
		return nil
	}
	extended := deadline.Add(time.Duration(pausedMinutes) * time.Minute)
	return &extended
}

// EvaluateMet reports whether observedAt is on or before the deadline; nil when there is no deadline.
func EvaluateMet(observedAt time.Time, deadline *time.Time) *bool {
	if deadline == nil {
		return nil
	}
	met := !observedAt.After(*deadline)
	return &met
}

// StepDueDate returns now plus slaMinutes, or nil when slaMinutes is not positive.
func StepDueDate(slaMinutes int, now time.Time) *time.Time {
	return addMinutes(now, slaMinutes)
}

func addMinutes(now time.Time, minutes int) *time.Time {
	if minutes <= 0 {
		return nil
	}
	due := now.Add(time.Duration(minutes) * time.Minute)
	return &due
}
