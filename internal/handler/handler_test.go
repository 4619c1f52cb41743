package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/seat-booking/internal/health"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/service"
)

const bid = "3f2a1c9e-8d4b-4e6f-9a1b-2c3d4e5f6a7b"

type mockBookings struct{ mock.Mock }

func (m *mockBookings) Book(ctx context.Context, screeningID uint64, seatIDs []uint64, requester string) (*model.Booking, error) {
	args := m.Called(ctx, screeningID, seatIDs, requester)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Get(ctx context.Context, id string, caller service.Caller) (*model.Booking, error) {
	args := m.Called(ctx, id, caller)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Cancel(ctx context.Context, id string, caller service.Caller) (model.Transition, error) {
	args := m.Called(ctx, id, caller)
	return args.Get(0).(model.Transition), args.Error(1)
}

func (m *mockBookings) RequestConfirmation(ctx context.Context, id string) (*model.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*model.Booking)
	return b, args.Error(1)
}

// withCaller stands in for JWTAuth.
func withCaller(sub, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("requester", sub)
			c.Set("role", role)
			return next(c)
		}
	}
}

func newBookingServer(t *testing.T) (*echo.Echo, *mockBookings) {
	t.Helper()
	m := &mockBookings{}
	t.Cleanup(func() { m.AssertExpectations(t) })
	h := NewBookingHandler(m, zaptest.NewLogger(t))
	e := echo.New()
	g := e.Group("/v1", withCaller("alice", "CUSTOMER"))
	g.POST("/screenings/:id/bookings", h.Book)
	g.GET("/bookings/:id", h.Get)
	g.POST("/bookings/:id/cancel", h.Cancel)
	g.POST("/bookings/:id/confirm", h.RequestConfirmation)
	return e, m
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestBook_Created(t *testing.T) {
	e, m := newBookingServer(t)
	m.On("Book", mock.Anything, uint64(7), []uint64{1, 2}, "alice").
		Return(&model.Booking{ID: bid, Status: model.BookingPending, SeatIDs: []uint64{1, 2}}, nil).Once()

	rec := do(e, http.MethodPost, "/v1/screenings/7/bookings", `{"seat_ids":[1,2]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, bid, body["booking_id"])
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, []interface{}{1.0, 2.0}, body["seat_ids"])
}

func TestBook_EmptySeatSet(t *testing.T) {
	e, m := newBookingServer(t)
	m.On("Book", mock.Anything, uint64(7), []uint64(nil), "alice").
		Return(&model.Booking{ID: bid, Status: model.BookingPending}, nil).Once()

	rec := do(e, http.MethodPost, "/v1/screenings/7/bookings", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []interface{}{}, decode(t, rec)["seat_ids"])
}

func TestBook_Conflict(t *testing.T) {
	e, m := newBookingServer(t)
	m.On("Book", mock.Anything, uint64(7), []uint64{1, 2}, "alice").
		Return(nil, &model.SeatsUnavailableError{ScreeningID: 7, Conflicting: []uint64{2}}).Once()

	rec := do(e, http.MethodPost, "/v1/screenings/7/bookings", `{"seat_ids":[1,2]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []interface{}{2.0}, decode(t, rec)["conflicting"])
}

func TestBook_Rejects(t *testing.T) {
	e, m := newBookingServer(t)
	m.On("Book", mock.Anything, uint64(99), []uint64{1}, "alice").Return(nil, model.ErrScreeningNotFound).Once()
	m.On("Book", mock.Anything, uint64(8), []uint64{1}, "alice").Return(nil, model.ErrTransient).Once()

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/v1/screenings/99/bookings", `{"seat_ids":[1]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/screenings/abc/bookings", `{"seat_ids":[1]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/screenings/7/bookings", `{"seat_ids":[0]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/v1/screenings/7/bookings", `{"seat_ids":`).Code)

	rec := do(e, http.MethodPost, "/v1/screenings/8/bookings", `{"seat_ids":[1]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestGet_PassesCaller(t *testing.T) {
	e, m := newBookingServer(t)
	m.On("Get", mock.Anything, bid, service.Caller{Subject: "alice"}).
		Return(&model.Booking{ID: bid, Requester: "alice", Status: model.BookingConfirmed}, nil).Once()
	m.On("Get", mock.Anything, "00000000-0000-0000-0000-000000000001", service.Caller{Subject: "alice"}).
		Return(nil, model.ErrForbidden).Once()

	rec := do(e, http.MethodGet, "/v1/bookings/"+bid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONFIRMED", decode(t, rec)["status"])

	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/v1/bookings/00000000-0000-0000-0000-000000000001", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/bookings/not-a-uuid", "").Code)
}

func TestCancel_Statuses(t *testing.T) {
	e, m := newBookingServer(t)
	missing := "00000000-0000-0000-0000-000000000002"
	done := "00000000-0000-0000-0000-000000000003"
	m.On("Cancel", mock.Anything, bid, mock.Anything).
		Return(model.Transition{BookingID: bid, Applied: true, From: model.BookingPending, To: model.BookingCancelled, SeatIDs: []uint64{4}}, nil).Once()
	m.On("Cancel", mock.Anything, missing, mock.Anything).
		Return(model.Transition{}, errMissingBooking).Once()
	m.On("Cancel", mock.Anything, done, mock.Anything).
		Return(model.Transition{}, model.ErrNotFoundOrTransitioned).Once()

	rec := do(e, http.MethodPost, "/v1/bookings/"+bid+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.Equal(t, []interface{}{4.0}, body["released"])

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/v1/bookings/"+missing+"/cancel", "").Code)
	assert.Equal(t, http.StatusConflict, do(e, http.MethodPost, "/v1/bookings/"+done+"/cancel", "").Code)
}

var errMissingBooking = &wrapped{model.ErrNotFoundOrTransitioned, model.ErrBookingNotFound}

type wrapped struct{ a, b error }

func (w *wrapped) Error() string   { return w.a.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.a, w.b} }

func TestRequestConfirmation(t *testing.T) {
	e, m := newBookingServer(t)
	m.On("RequestConfirmation", mock.Anything, bid).
		Return(&model.Booking{ID: bid, Status: model.BookingPending}, nil).Once()

	rec := do(e, http.MethodPost, "/v1/bookings/"+bid+"/confirm", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

type fakeCatalog struct {
	err error
}

func (f fakeCatalog) Movies(context.Context) ([]model.Movie, error) {
	return []model.Movie{{ID: 1, Title: "Heat", DurationMinutes: 170}}, f.err
}

func (f fakeCatalog) Seats(_ context.Context, id uint64) ([]model.SeatAvailability, error) {
	if id != 7 {
		return nil, model.ErrScreeningNotFound
	}
	return []model.SeatAvailability{{ID: 1, RowLabel: "A", SeatNumber: 1, IsBooked: true}}, f.err
}

func (f fakeCatalog) Screening(_ context.Context, id uint64) (*model.Screening, error) {
	if id != 7 {
		return nil, model.ErrScreeningNotFound
	}
	return &model.Screening{ID: 7, MovieID: 1}, f.err
}

func TestCatalogHandlers(t *testing.T) {
	h := NewCatalogHandler(fakeCatalog{}, zaptest.NewLogger(t))
	e := echo.New()
	e.GET("/v1/movies", h.Movies)
	e.GET("/v1/screenings/:id", h.Screening)
	e.GET("/v1/screenings/:id/seats", h.Seats)

	rec := do(e, http.MethodGet, "/v1/movies", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = do(e, http.MethodGet, "/v1/screenings/7/seats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	seats := decode(t, rec)["seats"].([]interface{})
	require.Len(t, seats, 1)
	assert.Equal(t, true, seats[0].(map[string]interface{})["is_booked"])

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/v1/screenings/7", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/v1/screenings/8/seats", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/v1/screenings/0", "").Code)
}

func TestCatalog_UnclassifiedErrorIs500(t *testing.T) {
	h := NewCatalogHandler(fakeCatalog{err: assert.AnError}, zaptest.NewLogger(t))
	e := echo.New()
	e.GET("/v1/movies", h.Movies)
	assert.Equal(t, http.StatusInternalServerError, do(e, http.MethodGet, "/v1/movies", "").Code)
}

type fixedReport health.Report

func (f fixedReport) Check(context.Context) health.Report { return health.Report(f) }

func TestHealthEndpoints(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/ready", Ready(fixedReport{Ready: true, Status: map[string]bool{"store": true, "queue": true, "cache": false}}))
	e.GET("/notready", Ready(fixedReport{Ready: false, Status: map[string]bool{"store": false}}))

	rec := do(e, http.MethodGet, "/healthz", "")
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(e, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["cache"])

	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/notready", "").Code)
}
