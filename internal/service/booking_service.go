package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/cache"
	"github.com/iliyamo/seat-booking/internal/model"
)

var errMissing = fmt.Errorf("%w: %w", model.ErrNotFoundOrTransitioned, model.ErrBookingNotFound)

type BookingService struct {
	store     BookingStore
	publisher Publisher
	cache     Invalidator
	log       *zap.Logger
}

func NewBookingService(store BookingStore, publisher Publisher, inv Invalidator, log *zap.Logger) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingService{
		store:     store,
		publisher: publisher,
		cache:     inv,
		log:       log.With(zap.String("service", "booking")),
	}
}

// Book claims seatIDs for a new PENDING booking and enqueues it for
// confirmation.  The booking is returned even when the publish fails; it
// then stays PENDING until an operator requests confirmation again.
func (s *BookingService) Book(ctx context.Context, screeningID uint64, seatIDs []uint64, requester string) (*model.Booking, error) {
	b, err := s.store.CreatePending(ctx, screeningID, seatIDs, requester)
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	s.log.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.Uint64("screening_id", screeningID),
		zap.String("requester", requester),
		zap.Int("seats", len(b.SeatIDs)),
	)
	s.invalidateSeats(ctx, screeningID)

	if err := s.publisher.Publish(ctx, b.ID); err != nil {
		s.log.Error("confirmation not enqueued, booking left pending",
			zap.String("booking_id", b.ID), zap.Error(err))
	}
	return b, nil
}

// Get returns a booking the caller may see.
func (s *BookingService) Get(ctx context.Context, bookingID string, caller Caller) (*model.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !caller.owns(b) {
		return nil, model.ErrForbidden
	}
	return b, nil
}

// Cancel cancels a booking and releases its seats.  A booking that is
// missing or already cancelled yields model.ErrNotFoundOrTransitioned;
// for a missing one the error also matches model.ErrBookingNotFound.
func (s *BookingService) Cancel(ctx context.Context, bookingID string, caller Caller) (model.Transition, error) {
	if _, err := s.Get(ctx, bookingID, caller); err != nil {
		if errors.Is(err, model.ErrBookingNotFound) {
			return model.Transition{}, errMissing
		}
		return model.Transition{}, err
	}
	tr, err := s.store.Cancel(ctx, bookingID)
	if err != nil {
		return model.Transition{}, fmt.Errorf("cancel booking: %w", err)
	}
	if !tr.Applied {
		return tr, model.ErrNotFoundOrTransitioned
	}
	s.log.Info("booking cancelled",
		zap.String("booking_id", bookingID),
		zap.String("from", string(tr.From)),
		zap.Uint64s("released", tr.SeatIDs),
	)
	s.invalidateSeats(ctx, tr.ScreeningID)
	return tr, nil
}

// Confirm applies a queued confirmation.  Applied=false is not an error
// here: redelivered or stale messages are expected.
func (s *BookingService) Confirm(ctx context.Context, bookingID string) (model.Transition, error) {
	tr, err := s.store.Confirm(ctx, bookingID)
	if err != nil {
		return model.Transition{}, err
	}
	if tr.Applied {
		s.invalidateSeats(ctx, tr.ScreeningID)
	}
	return tr, nil
}

// RequestConfirmation re-enqueues a PENDING booking.  It is the manual
// path for bookings whose first publish failed or whose message was
// dead-lettered.
func (s *BookingService) RequestConfirmation(ctx context.Context, bookingID string) (*model.Booking, error) {
	b, err := s.store.GetByID(ctx, bookingID)
	if errors.Is(err, model.ErrBookingNotFound) {
		return nil, errMissing
	}
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingPending {
		return b, model.ErrNotFoundOrTransitioned
	}
	if err := s.publisher.Publish(ctx, b.ID); err != nil {
		return nil, fmt.Errorf("enqueue confirmation: %w", err)
	}
	s.log.Info("confirmation re-enqueued", zap.String("booking_id", b.ID))
	return b, nil
}

func (s *BookingService) invalidateSeats(ctx context.Context, screeningID uint64) {
	if s.cache == nil || screeningID == 0 {
		return
	}
	// Invalidation errors are logged by the cache; entries expire on TTL.
	_ = s.cache.Invalidate(ctx, cache.SeatsKey(screeningID))
}
