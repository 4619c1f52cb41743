// Package handler holds the Echo HTTP handlers.  Handlers bind and
// validate input, call a service and translate its errors to status codes.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/model"
)

// writeError maps the error taxonomy onto HTTP responses.  Anything
// unclassified is logged and answered with 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var unavailable *model.SeatsUnavailableError
	switch {
	case errors.As(err, &unavailable):
		conflicting := unavailable.Conflicting
		if conflicting == nil {
			conflicting = []uint64{}
		}
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable", "conflicting": conflicting})
	case errors.Is(err, model.ErrResourceConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable", "conflicting": []uint64{}})
	case errors.Is(err, model.ErrScreeningNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "screening not found"})
	case errors.Is(err, model.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	case errors.Is(err, model.ErrNotFoundOrTransitioned):
		return c.JSON(http.StatusConflict, echo.Map{"error": "booking already transitioned"})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, model.ErrTransient):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable, retry"})
	}
	log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
