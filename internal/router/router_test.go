package router

import (
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/health"
)

func TestNew_RegistersRoutes(t *testing.T) {
	e := New(Deps{
		Bookings:  handler.NewBookingHandler(nil, nil),
		Catalog:   handler.NewCatalogHandler(nil, nil),
		Readiness: health.NewChecker(0),
		JWTSecret: "s",
		Log:       zap.NewNop(),
	})

	var got []string
	for _, r := range e.Routes() {
		got = append(got, r.Method+" "+r.Path)
	}
	sort.Strings(got)
	assert.Subset(t, got, []string{
		"GET /healthz",
		"GET /readyz",
		"GET /v1/bookings/:id",
		"GET /v1/movies",
		"GET /v1/screenings/:id",
		"GET /v1/screenings/:id/seats",
		"POST /v1/bookings/:id/cancel",
		"POST /v1/bookings/:id/confirm",
		"POST /v1/screenings/:id/bookings",
	})
}

func TestBookingRoutesRequireToken(t *testing.T) {
	e := New(Deps{
		Bookings:  handler.NewBookingHandler(nil, nil),
		Catalog:   handler.NewCatalogHandler(nil, nil),
		Readiness: health.NewChecker(0),
		JWTSecret: "s",
		Log:       zap.NewNop(),
	})
	for _, path := range []string{"/v1/screenings/7/bookings", "/v1/bookings/x/cancel", "/v1/bookings/x/confirm"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "no probes registered")
}
