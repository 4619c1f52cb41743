// Package model defines the booking data model and the error taxonomy
// shared by the store, cache, queue and worker layers.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrResourceConflict is returned when requested seats are already
	// claimed.  The caller must retry with different seats or fail the
	// request; a booking is never partially created.
	ErrResourceConflict = errors.New("resource conflict")

	// ErrNotFoundOrTransitioned is returned to direct API callers when a
	// booking is missing or no longer in the state an operation expects.
	ErrNotFoundOrTransitioned = errors.New("booking not found or already transitioned")

	// ErrTransient marks temporary infrastructure failures (store lock
	// waits, broker or cache unavailability).  Callers may retry.
	ErrTransient = errors.New("transient infrastructure error")

	// ErrExhaustedRetries wraps the last error of a retry loop that ran
	// out of attempts.
	ErrExhaustedRetries = errors.New("retries exhausted")
)

var (
	ErrScreeningNotFound = errors.New("screening not found")
	ErrBookingNotFound   = errors.New("booking not found")

	// ErrForbidden is returned when the caller acts on a booking created
	// by another requester.
	ErrForbidden = errors.New("forbidden")
)

// SeatsUnavailableError lists the seats that prevented a claim.  It
// matches ErrResourceConflict with errors.Is.
type SeatsUnavailableError struct {
	ScreeningID uint64
	Conflicting []uint64
}

func (e *SeatsUnavailableError) Error() string {
	ids := make([]string, 0, len(e.Conflicting))
	for _, id := range e.Conflicting {
		ids = append(ids, strconv.FormatUint(id, 10))
	}
	return fmt.Sprintf("seats unavailable for screening %d: [%s]", e.ScreeningID, strings.Join(ids, ","))
}

func (e *SeatsUnavailableError) Is(target error) bool { return target == ErrResourceConflict }
