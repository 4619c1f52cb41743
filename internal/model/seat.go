package model

// Seat is a seat row for one screening.  Seats are owned by the seat
// ledger; IsClaimed is true iff BookingID references a non-cancelled
// booking.
type Seat struct {
	ID          uint64  // seats.id
	ScreeningID uint64  // seats.screening_id
	RowLabel    string  // seats.row_label
	SeatNumber  uint32  // seats.seat_number
	IsClaimed   bool    // seats.is_claimed
	BookingID   *string // seats.booking_id (nullable)
}

// SeatAvailability is the public view of a seat served from the cached
// seat map of a screening.
type SeatAvailability struct {
	ID         uint64 `json:"id"`
	RowLabel   string `json:"row"`
	SeatNumber uint32 `json:"number"`
	IsBooked   bool   `json:"is_booked"`
}
