package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/iliyamo/seat-booking/internal/model"
)

// SeatRepo is the seat ledger.  It owns seat availability and the
// claim/release statements.  Claim and release only run inside a
// caller-supplied transaction so they commit or roll back together with
// the booking row they belong to.
//
// Locking contract:
//   - ClaimSeatsTx takes a shared lock on the screening row and exclusive
//     row locks (SELECT ... FOR UPDATE) on every requested seat, in
//     ascending id order.  A concurrent claimant of any of those seats
//     blocks until this transaction commits or rolls back, then observes
//     the committed is_claimed value.
//   - ReleaseSeatsTx takes exclusive locks on the seats held by the booking.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// NormalizeSeatIDs removes zeros and duplicates and sorts the result so
// that overlapping claims always lock rows in the same order.
func NormalizeSeatIDs(ids []uint64) []uint64 {
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ClaimSeatsTx claims all seatIDs of a screening for bookingID, or none.
// It returns the claimed ids in lock order.  A seat that does not belong
// to the screening or is already claimed is reported in a
// *model.SeatsUnavailableError; the caller must roll back.  An empty seat
// set only verifies that the screening exists.
func (r *SeatRepo) ClaimSeatsTx(ctx context.Context, tx *sql.Tx, screeningID uint64, seatIDs []uint64, bookingID string) ([]uint64, error) {
	if err := lockScreeningTx(ctx, tx, screeningID); err != nil {
		return nil, err
	}
	ids := NormalizeSeatIDs(seatIDs)
	if len(ids) == 0 {
		return ids, nil
	}

	ph, args := inClause(ids)
	q := `SELECT id, is_claimed FROM seats
	      WHERE screening_id = ? AND id IN (` + ph + `)
	      ORDER BY id
	      FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, append([]interface{}{screeningID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}
	claimed := make(map[uint64]bool, len(ids))
	for rows.Next() {
		var id uint64
		var isClaimed bool
		if err := rows.Scan(&id, &isClaimed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		claimed[id] = isClaimed
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}

	var conflicting []uint64
	for _, id := range ids {
		if isClaimed, ok := claimed[id]; !ok || isClaimed {
			conflicting = append(conflicting, id)
		}
	}
	if len(conflicting) > 0 {
		return nil, &model.SeatsUnavailableError{ScreeningID: screeningID, Conflicting: conflicting}
	}

	upd := `UPDATE seats SET is_claimed = TRUE, booking_id = ?
	        WHERE screening_id = ? AND is_claimed = FALSE AND id IN (` + ph + `)`
	res, err := tx.ExecContext(ctx, upd, append([]interface{}{bookingID, screeningID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("claim seats: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim seats: %w", err)
	}
	if n != int64(len(ids)) {
		// Rows are locked, so this only happens if the lock contract is broken.
		return nil, fmt.Errorf("claim seats: updated %d of %d rows", n, len(ids))
	}
	return ids, nil
}

// ReleaseSeatsTx unclaims every seat held by bookingID and returns the
// released ids.  Releasing a booking that holds no seats is a no-op.
func (r *SeatRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, bookingID string) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM seats WHERE booking_id = ? ORDER BY id FOR UPDATE`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("lock booked seats: %w", err)
	}
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("lock booked seats: %w", err)
	}
	if len(ids) == 0 {
		return []uint64{}, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE seats SET is_claimed = FALSE, booking_id = NULL WHERE booking_id = ?`, bookingID); err != nil {
		return nil, fmt.Errorf("release seats: %w", err)
	}
	return ids, nil
}

// ListAvailability returns the seat map of a screening ordered by row and
// seat number.  It is the primary read behind the cached seat map.
func (r *SeatRepo) ListAvailability(ctx context.Context, screeningID uint64) ([]model.SeatAvailability, error) {
	const q = `SELECT id, row_label, seat_number, is_claimed
	           FROM seats
	           WHERE screening_id = ?
	           ORDER BY row_label, seat_number`
	rows, err := r.db.QueryContext(ctx, q, screeningID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SeatAvailability, 0)
	for rows.Next() {
		var s model.SeatAvailability
		if err := rows.Scan(&s.ID, &s.RowLabel, &s.SeatNumber, &s.IsBooked); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM screenings WHERE id = ?)`, screeningID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, model.ErrScreeningNotFound
		}
	}
	return out, nil
}

// lockScreeningTx verifies the screening exists and holds a shared lock
// on it for the rest of the transaction.  Shared mode lets claims for
// different seats of the same screening proceed in parallel.
func lockScreeningTx(ctx context.Context, tx *sql.Tx, screeningID uint64) error {
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM screenings WHERE id = ? FOR SHARE`, screeningID).Scan(&id)
	if err == sql.ErrNoRows {
		return model.ErrScreeningNotFound
	}
	if err != nil {
		return fmt.Errorf("lock screening: %w", err)
	}
	return nil
}

// inClause returns "?,?,?" and the matching args for ids.
func inClause(ids []uint64) (string, []interface{}) {
	ph := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}
	return strings.Join(ph, ","), args
}
