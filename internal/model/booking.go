package model

import "time"

// BookingStatus is the lifecycle state of a booking.  Values match the
// ENUM stored in bookings.status.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Booking records a requester's reservation of zero or more seats for a
// screening.  Bookings are never deleted; a cancelled booking keeps its
// seat list in booking_seats as an audit trail but no longer holds any
// claimed seat row.
//
// Fields:
//
//	ID          – UUID assigned at creation.
//	ScreeningID – screening the seats belong to.
//	Requester   – subject of the caller that created the booking.
//	Status      – PENDING, CONFIRMED or CANCELLED.
//	SeatIDs     – seats requested by the booking (empty for single-resource bookings).
//	CreatedAt   – creation timestamp (UTC).
//	UpdatedAt   – last transition timestamp (UTC).
type Booking struct {
	ID          string        `json:"id"`
	ScreeningID uint64        `json:"screening_id"`
	Requester   string        `json:"requester"`
	Status      BookingStatus `json:"status"`
	SeatIDs     []uint64      `json:"seat_ids"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Transition reports the outcome of a lifecycle change.  Applied is false
// when the booking was missing or not in a state the change accepts; it
// is not an error.  ScreeningID is set whenever the booking exists so the
// caller can invalidate the screening's cached seat map.
type Transition struct {
	BookingID   string
	ScreeningID uint64
	Applied     bool
	From        BookingStatus
	To          BookingStatus
	SeatIDs     []uint64
}
