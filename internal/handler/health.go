package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-booking/internal/health"
)

// Health is the liveness endpoint.  It returns "ok" whenever the process
// serves HTTP.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// ReadinessChecker reports dependency status.
type ReadinessChecker interface {
	Check(ctx context.Context) health.Report
}

// Ready returns the readiness endpoint: a JSON map of dependency name to
// status, with 503 while a critical dependency is down.
func Ready(checker ReadinessChecker) echo.HandlerFunc {
	return func(c echo.Context) error {
		r := checker.Check(c.Request().Context())
		code := http.StatusOK
		if !r.Ready {
			code = http.StatusServiceUnavailable
		}
		return c.JSON(code, r.Status)
	}
}
