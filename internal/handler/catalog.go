package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/model"
)

// CatalogAPI is the cached read path.
type CatalogAPI interface {
	Movies(ctx context.Context) ([]model.Movie, error)
	Seats(ctx context.Context, screeningID uint64) ([]model.SeatAvailability, error)
	Screening(ctx context.Context, id uint64) (*model.Screening, error)
}

type CatalogHandler struct {
	svc CatalogAPI
	log *zap.Logger
}

func NewCatalogHandler(svc CatalogAPI, log *zap.Logger) *CatalogHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogHandler{svc: svc, log: log.With(zap.String("component", "catalog_handler"))}
}

// Movies handles GET /v1/movies.
func (h *CatalogHandler) Movies(c echo.Context) error {
	movies, err := h.svc.Movies(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	if movies == nil {
		movies = []model.Movie{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": movies})
}

// Screening handles GET /v1/screenings/:id.
func (h *CatalogHandler) Screening(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	s, err := h.svc.Screening(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Seats handles GET /v1/screenings/:id/seats.
func (h *CatalogHandler) Seats(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid screening id"})
	}
	seats, err := h.svc.Seats(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if seats == nil {
		seats = []model.SeatAvailability{}
	}
	return c.JSON(http.StatusOK, echo.Map{"screening_id": id, "seats": seats})
}
