package http

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/itsm-core/incident-engine/internal/config"
	"github.com/itsm-core/incident-engine/internal/observability"
	apperrors "github.com/itsm-core/incident-engine/pkg/util/errorutil"
)

const (
	codeRateLimited      = "RATE_LIMITED"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// RegisterMiddlewares installs the global chain. Order matters: the request logger
// sits outside the error envelope so it sees the final status code.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration, limits config.RateLimitConfig) {
	app.Use(observability.RequestID())
	if timeout > 0 {
		app.Use(withDeadline(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(errorEnvelope(logger, metrics))
	if limits.RPS > 0 {
		app.Use(throttle(rate.NewLimiter(rate.Limit(limits.RPS), max(limits.Burst, 1))))
	}
}

func withDeadline(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// throttle applies one process-wide token bucket. Health probes bypass it.
func throttle(limiter *rate.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if strings.HasPrefix(c.Path(), "/health") || limiter.Allow() {
			return c.Next()
		}
		return apperrors.NewDomainError(codeRateLimited, "too many requests", fiber.StatusTooManyRequests, nil)
	}
}

// errorEnvelope turns returned errors and panics into {"error": {code, message, details}}.
func errorEnvelope(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("request_id", observability.RequestIDFrom(c)),
					zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			de := classify(err)
			metrics.RecordError(routePattern(c), c.Method(), de.Code)
			if de.HTTPStatus >= fiber.StatusInternalServerError {
				logger.Error("request failed",
					zap.String("request_id", observability.RequestIDFrom(c)),
					zap.Error(de))
			}
			err = writeError(c, de)
		}()
		return c.Next()
	}
}

func writeError(c *fiber.Ctx, de *apperrors.DomainError) error {
	body := fiber.Map{"code": de.Code, "message": de.Message}
	if len(de.Details) > 0 {
		body["details"] = de.Details
	}
	return c.Status(de.HTTPStatus).JSON(fiber.Map{"error": body})
}

// classify maps fiber's own errors (unknown route, bad method) onto domain codes.
func classify(err error) *apperrors.DomainError {
	var fe *fiber.Error
	if !errors.As(err, &fe) {
		return apperrors.ToDomainError(err)
	}
	code := apperrors.CodeInternal
	switch fe.Code {
	case fiber.StatusNotFound:
		code = apperrors.CodeNotFound
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		code = apperrors.CodeValidation
	case fiber.StatusMethodNotAllowed:
		code = codeMethodNotAllowed
	}
	return apperrors.NewDomainError(code, fe.Message, fe.Code, nil)
}

func routePattern(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}
