package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/seat-booking/internal/database"
	"github.com/iliyamo/seat-booking/internal/model"
)

// BookingRepo persists booking lifecycle rows.  Creation and cancellation
// run in one transaction together with the seat ledger, so a booking and
// its seat claims are always committed or rolled back as a unit.
//
// Locking contract: Confirm and Cancel lock the booking row with
// SELECT ... FOR UPDATE before reading its status.  Two transitions on the
// same booking are therefore serialized and the loser observes the
// winner's committed status.
type BookingRepo struct {
	db    *sql.DB
	seats *SeatRepo
	newID func() string
}

// NewBookingRepo returns a BookingRepo that claims and releases seats
// through seats.
func NewBookingRepo(db *sql.DB, seats *SeatRepo) *BookingRepo {
	return &BookingRepo{db: db, seats: seats, newID: uuid.NewString}
}

// CreatePending claims seatIDs for a new PENDING booking.  On a conflict
// nothing is written and the returned error matches
// model.ErrResourceConflict.
func (r *BookingRepo) CreatePending(ctx context.Context, screeningID uint64, seatIDs []uint64, requester string) (*model.Booking, error) {
	b := &model.Booking{
		ID:          r.newID(),
		ScreeningID: screeningID,
		Requester:   requester,
		Status:      model.BookingPending,
	}
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		claimed, err := r.seats.ClaimSeatsTx(ctx, tx, screeningID, seatIDs, b.ID)
		if err != nil {
			return err
		}
		b.SeatIDs = claimed

		const ins = `INSERT INTO bookings (id, screening_id, requester, status) VALUES (?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, ins, b.ID, b.ScreeningID, b.Requester, string(b.Status)); err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		if err := insertBookingSeatsTx(ctx, tx, b.ID, claimed); err != nil {
			return err
		}
		// Read back DB defaults.
		const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
		return tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Confirm moves a PENDING booking to CONFIRMED.  A missing booking or one
// in any other status yields Applied=false and no error, so redelivered
// confirmations are harmless.
func (r *BookingRepo) Confirm(ctx context.Context, bookingID string) (model.Transition, error) {
	t := model.Transition{BookingID: bookingID, To: model.BookingConfirmed}
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		screeningID, status, err := lockBookingTx(ctx, tx, bookingID)
		if errors.Is(err, model.ErrBookingNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		t.ScreeningID = screeningID
		t.From = status
		if status != model.BookingPending {
			return nil
		}
		const upd = `UPDATE bookings SET status = ? WHERE id = ? AND status = ?`
		if _, err := tx.ExecContext(ctx, upd, string(model.BookingConfirmed), bookingID, string(model.BookingPending)); err != nil {
			return fmt.Errorf("confirm booking: %w", err)
		}
		t.Applied = true
		return nil
	})
	if err != nil {
		return model.Transition{}, err
	}
	return t, nil
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED and releases
// its seats in the same transaction.  A missing or already cancelled
// booking yields Applied=false.
func (r *BookingRepo) Cancel(ctx context.Context, bookingID string) (model.Transition, error) {
	t := model.Transition{BookingID: bookingID, To: model.BookingCancelled}
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		screeningID, status, err := lockBookingTx(ctx, tx, bookingID)
		if errors.Is(err, model.ErrBookingNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		t.ScreeningID = screeningID
		t.From = status
		if status == model.BookingCancelled {
			return nil
		}
		const upd = `UPDATE bookings SET status = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, upd, string(model.BookingCancelled), bookingID); err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		released, err := r.seats.ReleaseSeatsTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		t.SeatIDs = released
		t.Applied = true
		return nil
	})
	if err != nil {
		return model.Transition{}, err
	}
	return t, nil
}

// GetByID loads a booking and the seats it requested.  model.ErrBookingNotFound
// is returned when no row exists.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID string) (*model.Booking, error) {
	const q = `SELECT id, screening_id, requester, status, created_at, updated_at
	           FROM bookings WHERE id = ?`
	var b model.Booking
	var status string
	err := r.db.QueryRowContext(ctx, q, bookingID).Scan(
		&b.ID, &b.ScreeningID, &b.Requester, &status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrBookingNotFound
	}
	if err != nil {
		return nil, database.Classify(err)
	}
	b.Status = model.BookingStatus(status)

	rows, err := r.db.QueryContext(ctx, `SELECT seat_id FROM booking_seats WHERE booking_id = ? ORDER BY seat_id`, bookingID)
	if err != nil {
		return nil, database.Classify(err)
	}
	defer rows.Close()
	b.SeatIDs = make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		b.SeatIDs = append(b.SeatIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &b, nil
}

// lockBookingTx locks a booking row and returns its screening and status.
func lockBookingTx(ctx context.Context, tx *sql.Tx, bookingID string) (uint64, model.BookingStatus, error) {
	var screeningID uint64
	var status string
	err := tx.QueryRowContext(ctx, `SELECT screening_id, status FROM bookings WHERE id = ? FOR UPDATE`, bookingID).
		Scan(&screeningID, &status)
	if err == sql.ErrNoRows {
		return 0, "", model.ErrBookingNotFound
	}
	if err != nil {
		return 0, "", fmt.Errorf("lock booking: %w", err)
	}
	return screeningID, model.BookingStatus(status), nil
}

// insertBookingSeatsTx writes the booking_seats audit rows in a single
// statement.  An empty seat list is a no-op.
func insertBookingSeatsTx(ctx context.Context, tx *sql.Tx, bookingID string, seatIDs []uint64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	query := `INSERT INTO booking_seats (booking_id, seat_id) VALUES `
	args := make([]interface{}, 0, len(seatIDs)*2)
	for i, id := range seatIDs {
		if i > 0 {
			query += ","
		}
		query += "(?, ?)"
		args = append(args, bookingID, id)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert booking seats: %w", err)
	}
	return nil
}
