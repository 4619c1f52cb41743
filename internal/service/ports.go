// Package service orchestrates the booking flow on top of the store,
// queue and cache packages: claim and create in one transaction, publish
// after commit, invalidate cached seat maps.
package service

import (
	"context"

	"github.com/iliyamo/seat-booking/internal/model"
)

type BookingStore interface {
	CreatePending(ctx context.Context, screeningID uint64, seatIDs []uint64, requester string) (*model.Booking, error)
	Confirm(ctx context.Context, bookingID string) (model.Transition, error)
	Cancel(ctx context.Context, bookingID string) (model.Transition, error)
	GetByID(ctx context.Context, bookingID string) (*model.Booking, error)
}

type CatalogStore interface {
	ListMovies(ctx context.Context) ([]model.Movie, error)
	GetScreening(ctx context.Context, id uint64) (*model.Screening, error)
}

type SeatStore interface {
	ListAvailability(ctx context.Context, screeningID uint64) ([]model.SeatAvailability, error)
}

// Publisher enqueues a booking id for confirmation.
type Publisher interface {
	Publish(ctx context.Context, bookingID string) error
}

// Invalidator drops cached entries.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Caller identifies who is acting on a booking.  Operators may act on
// any booking; everyone else only on their own.
type Caller struct {
	Subject  string
	Operator bool
}

func (c Caller) owns(b *model.Booking) bool {
	return c.Operator || b.Requester == c.Subject
}
