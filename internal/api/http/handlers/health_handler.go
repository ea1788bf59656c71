package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/itsm-core/incident-engine/internal/observability"
)

const readinessTimeout = 2 * time.Second

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the probe endpoints and the admin metrics view.
type HealthHandler struct {
	service string
	version string
	probes  map[string]Pinger
	metrics *observability.Metrics
}

// NewHealthHandler wires the probes. A nil redis means ticket numbers are issued
// in-process and Redis is left out of readiness.
func NewHealthHandler(service, version string, store, redis Pinger, metrics *observability.Metrics) *HealthHandler {
	probes := map[string]Pinger{"store": store}
	if redis != nil {
		probes["redis"] = redis
	}
	return &HealthHandler{service: service, version: version, probes: probes, metrics: metrics}
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": fiber.Map{
		"status":  "alive",
		"service": h.service,
		"version": h.version,
	}})
}

// Ready pings every dependency concurrently and reports each result.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]string, len(h.probes))
		g       errgroup.Group
	)
	for name, probe := range h.probes {
		name, probe := name, probe
		g.Go(func() error {
			status := "ok"
			err := probe.Ping(ctx)
			if err != nil {
				status = err.Error()
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": results,
		}})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "ready", "dependencies": results}})
}

func (h *HealthHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.metrics.Snapshot()})
}
