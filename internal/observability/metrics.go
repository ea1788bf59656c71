package observability

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/itsm-core/incident-engine/internal/events"
)

type routeKey struct {
	route  string
	method string
}

type routeCounters struct {
	requests   int64
	latency    time.Duration
	maxLatency time.Duration
	statuses   map[int]int64
	errorCodes map[string]int64
}

// Metrics keeps per-route request counters and domain event counts in memory.
// A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	mu        sync.Mutex
	startedAt time.Time
	routes    map[routeKey]*routeCounters
	events    map[events.EventType]int64
}

// RouteStats is the exported view of one route's counters.
type RouteStats struct {
	Route        string           `json:"route"`
	Method       string           `json:"method"`
	Requests     int64            `json:"requests"`
	Statuses     map[int]int64    `json:"statuses"`
	ErrorCodes   map[string]int64 `json:"errorCodes,omitempty"`
	AvgLatencyMs int64            `json:"avgLatencyMs"`
	MaxLatencyMs int64            `json:"maxLatencyMs"`
}

// MetricsSnapshot is a point-in-time copy; mutating it does not touch the recorder.
type MetricsSnapshot struct {
	StartedAt time.Time                  `json:"startedAt"`
	Routes    []RouteStats               `json:"routes"`
	Events    map[events.EventType]int64 `json:"events"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		startedAt: time.Now().UTC(),
		routes:    make(map[routeKey]*routeCounters),
		events:    make(map[events.EventType]int64),
	}
}

func (m *Metrics) counters(route, method string) *routeCounters {
	key := routeKey{route: route, method: method}
	rc, ok := m.routes[key]
	if !ok {
		rc = &routeCounters{statuses: make(map[int]int64), errorCodes: make(map[string]int64)}
		m.routes[key] = rc
	}
	return rc
}

// RecordRequest counts a finished request against its route pattern.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rc := m.counters(route, method)
	rc.requests++
	rc.statuses[status]++
	rc.latency += duration
	if duration > rc.maxLatency {
		rc.maxLatency = duration
	}
}

// RecordError counts an error envelope by its code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters(route, method).errorCodes[code]++
}

// ObserveEvents subscribes a counter for each event type on the dispatcher.
func (m *Metrics) ObserveEvents(dispatcher events.Dispatcher, types ...events.EventType) {
	if m == nil || dispatcher == nil {
		return
	}
	for _, eventType := range types {
		dispatcher.Subscribe(eventType, func(_ context.Context, e events.Event) error {
			m.mu.Lock()
			m.events[e.Type]++
			m.mu.Unlock()
			return nil
		})
	}
}

// Snapshot copies the counters, routes sorted by pattern then method.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Routes: []RouteStats{}, Events: map[events.EventType]int64{}}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap.StartedAt = m.startedAt
	for key, rc := range m.routes {
		stats := RouteStats{
			Route:        key.route,
			Method:       key.method,
			Requests:     rc.requests,
			Statuses:     make(map[int]int64, len(rc.statuses)),
			MaxLatencyMs: rc.maxLatency.Milliseconds(),
		}
		if rc.requests > 0 {
			stats.AvgLatencyMs = (rc.latency / time.Duration(rc.requests)).Milliseconds()
		}
		for status, n := range rc.statuses {
			stats.Statuses[status] = n
		}
		if len(rc.errorCodes) > 0 {
			stats.ErrorCodes = make(map[string]int64, len(rc.errorCodes))
			for code, n := range rc.errorCodes {
				stats.ErrorCodes[code] = n
			}
		}
		snap.Routes = append(snap.Routes, stats)
	}
	sort.Slice(snap.Routes, func(i, j int) bool {
		if snap.Routes[i].Route != snap.Routes[j].Route {
			return snap.Routes[i].Route < snap.Routes[j].Route
		}
		return snap.Routes[i].Method < snap.Routes[j].Method
	})
	for eventType, n := range m.events {
		snap.Events[eventType] = n
	}
	return snap
}
