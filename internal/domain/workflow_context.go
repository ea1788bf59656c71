package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Recognized workflow context keys. Everything else lands in WorkflowContext.Values.
const (
	ContextKeyAssigneeID         = "assigneeId"
	ContextKeyCancellationReason = "cancellationReason"
	ContextKeyCancelledBy        = "cancelledBy"
	ContextKeyCancelledAt        = "cancelledAt"
	ContextKeyRollbackReason     = "rollbackReason"
	ContextKeyRolledBackBy       = "rolledBackBy"
	ContextKeyRolledBackAt       = "rolledBackAt"
	ContextKeyRetryCount         = "retryCount"
	ContextKeyRetries            = "retries"
	ContextKeyRetriedStepID      = "retriedStepId"
	ContextKeyRetryRequested     = "retryRequested"
	ContextKeyRetry              = "retry"
)

// RetryMarkers captures the retry signal keys.
type RetryMarkers struct {
	RetryCount     int
	Retries        int
	RetriedStepID  string
	RetryRequested bool
	Retry          bool
}

// Present reports whether any marker carries a positive or true value.
func (r RetryMarkers) Present() bool {
	return r.RetryCount > 0 || r.Retries > 0 || r.RetriedStepID != "" || r.RetryRequested || r.Retry
}

// ParseRetryMarkers extracts retry markers from a free-form map such as a step output.
func ParseRetryMarkers(values map[string]any) RetryMarkers {
	var markers RetryMarkers
	markers.apply(values)
	return markers
}

func (r *RetryMarkers) apply(values map[string]any) {
	for key, value := range values {
		switch key {
		case ContextKeyRetryCount:
			r.RetryCount, _ = toCount(value)
		case ContextKeyRetries:
			r.Retries, _ = toCount(value)
		case ContextKeyRetriedStepID:
			r.RetriedStepID = toString(value)
		case ContextKeyRetryRequested:
			r.RetryRequested = truthy(value)
		case ContextKeyRetry:
			r.Retry = truthy(value)
		}
	}
}

func (r RetryMarkers) toMap(out map[string]any) {
	if r.RetryCount != 0 {
		out[ContextKeyRetryCount] = r.RetryCount
	}
	if r.Retries != 0 {
		out[ContextKeyRetries] = r.Retries
	}
	if r.RetriedStepID != "" {
		out[ContextKeyRetriedStepID] = r.RetriedStepID
	}
	if r.RetryRequested {
		out[ContextKeyRetryRequested] = true
	}
	if r.Retry {
		out[ContextKeyRetry] = true
	}
}

// WorkflowContext is the workflow's key/value bag. Keys the engine and analytics
// rely on are typed; arbitrary caller metadata passes through Values.
type WorkflowContext struct {
	AssigneeID         string
	CancellationReason string
	CancelledBy        string
	CancelledAt        *time.Time
	RollbackReason     string
	RolledBackBy       string
	RolledBackAt       *time.Time
	Retry              RetryMarkers
	Values             map[string]any
}

// NewWorkflowContext builds a context from a flat map.
func NewWorkflowContext(values map[string]any) WorkflowContext {
	var c WorkflowContext
	c.Merge(values)
	return c
}

// Merge shallow-merges values into the context; supplied keys win.
func (c *WorkflowContext) Merge(values map[string]any) {
	for key, value := range values {
		switch key {
		case ContextKeyAssigneeID:
			c.AssigneeID = toString(value)
		case ContextKeyCancellationReason:
			c.CancellationReason = toString(value)
		case ContextKeyCancelledBy:
			c.CancelledBy = toString(value)
		case ContextKeyCancelledAt:
			c.CancelledAt = c.mergeTime(key, value)
		case ContextKeyRollbackReason:
			c.RollbackReason = toString(value)
		case ContextKeyRolledBackBy:
			c.RolledBackBy = toString(value)
		case ContextKeyRolledBackAt:
			c.RolledBackAt = c.mergeTime(key, value)
		case ContextKeyRetryCount, ContextKeyRetries:
			if _, ok := toCount(value); ok || value == nil {
				delete(c.Values, key)
			} else {
				c.setRaw(key, value)
			}
			c.Retry.apply(map[string]any{key: value})
		case ContextKeyRetriedStepID, ContextKeyRetryRequested, ContextKeyRetry:
			c.Retry.apply(map[string]any{key: value})
		default:
			c.setRaw(key, value)
		}
	}
}

// mergeTime parses a timestamp key. A value that is set but not a timestamp is kept
// verbatim in Values so the signal survives.
func (c *WorkflowContext) mergeTime(key string, value any) *time.Time {
	t := toTime(value)
	if t == nil && value != nil && toString(value) != "" {
		c.setRaw(key, value)
	} else {
		delete(c.Values, key)
	}
	return t
}

func (c *WorkflowContext) setRaw(key string, value any) {
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[key] = value
}

// RolledBack reports whether a rollback was ever recorded, even with an unparseable time.
func (c WorkflowContext) RolledBack() bool {
	return c.RolledBackAt != nil || c.Values[ContextKeyRolledBackAt] != nil
}

// Map flattens the context into a single map.
func (c WorkflowContext) Map() map[string]any {
	out := CloneMap(c.Values)
	if out == nil {
		out = make(map[string]any)
	}
	if c.AssigneeID != "" {
		out[ContextKeyAssigneeID] = c.AssigneeID
	}
	if c.CancellationReason != "" {
		out[ContextKeyCancellationReason] = c.CancellationReason
	}
	if c.CancelledBy != "" {
		out[ContextKeyCancelledBy] = c.CancelledBy
	}
	if c.CancelledAt != nil {
		out[ContextKeyCancelledAt] = c.CancelledAt.UTC().Format(time.RFC3339Nano)
	}
	if c.RollbackReason != "" {
		out[ContextKeyRollbackReason] = c.RollbackReason
	}
	if c.RolledBackBy != "" {
		out[ContextKeyRolledBackBy] = c.RolledBackBy
	}
	if c.RolledBackAt != nil {
		out[ContextKeyRolledBackAt] = c.RolledBackAt.UTC().Format(time.RFC3339Nano)
	}
	c.Retry.toMap(out)
	return out
}

// Lookup resolves a dotted path such as "incident.title".
func (c WorkflowContext) Lookup(path string) (any, bool) {
	var current any = c.Map()
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// LookupString resolves a dotted path to a string value.
func (c WorkflowContext) LookupString(path string) (string, bool) {
	v, ok := c.Lookup(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a deep copy.
func (c WorkflowContext) Clone() WorkflowContext {
	out := c
	out.CancelledAt = cloneTime(c.CancelledAt)
	out.RolledBackAt = cloneTime(c.RolledBackAt)
	out.Values = CloneMap(c.Values)
	return out
}

// MarshalJSON writes the flattened map.
func (c WorkflowContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Map())
}

// UnmarshalJSON splits a flat map into typed keys and passthrough values.
func (c *WorkflowContext) UnmarshalJSON(data []byte) error {
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*c = NewWorkflowContext(values)
	return nil
}

// CloneMap deep-copies nested maps and slices of a free-form map.
func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = cloneValue(typed[i])
		}
		return out
	default:
		return v
	}
}

func toString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}

func toInt(v any) (int, bool) {
	switch typed := v.(type) {
	case int:
		return typed, true
	case int32:
		return int(typed), true
	case int64:
		return int(typed), true
	case float64:
		return int(math.Round(typed)), true
	case float32:
		return int(math.Round(float64(typed))), true
	case json.Number:
		n, err := typed.Int64()
		if err != nil {
			f, ferr := typed.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(math.Round(f)), true
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		return n, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	switch typed := v.(type) {
	case bool:
		return typed
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(typed))
		if err == nil {
			return b
		}
		n, ok := toCount(typed)
		return ok && n > 0
	}
	n, ok := toCount(v)
	return ok && n > 0
}

// toCount converts a marker counter. Positive fractions round up so any positive amount
// still counts.
func toCount(v any) (int, bool) {
	var f float64
	switch typed := v.(type) {
	case float64:
		f = typed
	case float32:
		f = float64(typed)
	case json.Number:
		n, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return toInt(v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > 0 {
		return int(math.Ceil(f)), true
	}
	return int(math.Round(f)), true
}

func toTime(v any) *time.Time {
	switch typed := v.(type) {
	case time.Time:
		t := typed
		return &t
	case *time.Time:
		return cloneTime(typed)
	case string:
		t, err := time.Parse(time.RFC3339Nano, typed)
		if err != nil {
			return nil
		}
		return &t
	}
	return nil
}
