// Package worker confirms pending bookings from the confirmation queue.
//
// Each delivery goes Received -> Processing -> Acked or DeadLettered.  The
// confirm call is retried in process with exponential backoff; when the
// last attempt fails the delivery is rejected without requeue and the
// broker moves it to the dead-letter queue.  A delivery interrupted by
// shutdown is requeued instead.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/retry"
)

// Confirmer applies the Pending -> Confirmed transition.  Applied=false
// with a nil error means there was nothing to do.
type Confirmer interface {
	Confirm(ctx context.Context, bookingID string) (model.Transition, error)
}

// Outcome is the final state of one delivery.
type Outcome int

const (
	Acked        Outcome = iota // booking confirmed
	AckedNoop                   // booking missing or already transitioned
	DeadLettered                // rejected without requeue
	Requeued                    // interrupted by shutdown
)

func (o Outcome) String() string {
	switch o {
	case Acked:
		return "acked"
	case AckedNoop:
		return "acked_noop"
	case DeadLettered:
		return "dead_lettered"
	case Requeued:
		return "requeued"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Stats counts outcomes since start.
type Stats struct {
	Acked        int64 `json:"acked"`
	AckedNoop    int64 `json:"acked_noop"`
	DeadLettered int64 `json:"dead_lettered"`
	Requeued     int64 `json:"requeued"`
	InFlight     int64 `json:"in_flight"`
}

// Worker processes confirmation deliveries with bounded concurrency.
type Worker struct {
	store    Confirmer
	strategy retry.Strategy
	limit    int
	log      *zap.Logger

	counts   [4]atomic.Int64
	inFlight atomic.Int64
}

// New returns a Worker running at most concurrency deliveries at once.
// concurrency should match the consumer prefetch.
func New(store Confirmer, strategy retry.Strategy, concurrency int, log *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		store:    store,
		strategy: strategy,
		limit:    concurrency,
		log:      log.With(zap.String("component", "worker")),
	}
}

// Run handles deliveries until the channel closes or ctx is done, then
// waits for in-flight deliveries.  It has the signature of queue.Handler.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	// A plain group: one failing delivery must not cancel the others.
	var g errgroup.Group
	g.SetLimit(w.limit)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				_ = g.Wait()
				return queue.ErrDeliveriesClosed
			}
			g.Go(func() error {
				w.handleSafely(ctx, d)
				return nil
			})
		}
	}
}

// handleSafely dead-letters a delivery whose handler panicked.
func (w *Worker) handleSafely(ctx context.Context, d amqp.Delivery) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("handler panicked", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Any("panic", r))
			w.reject(d, false)
			w.counts[DeadLettered].Add(1)
		}
	}()
	w.Handle(ctx, d)
}

// Handle processes one delivery and settles it with the broker.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) Outcome {
	out := w.handle(ctx, d)
	w.counts[out].Add(1)
	return out
}

func (w *Worker) handle(ctx context.Context, d amqp.Delivery) Outcome {
	msg, err := queue.DecodeMessage(d)
	if err != nil {
		w.log.Warn("dead-lettering malformed message", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
		w.reject(d, false)
		return DeadLettered
	}
	log := w.log.With(zap.String("booking_id", msg.BookingID), zap.Uint64("delivery_tag", msg.DeliveryTag))

	var tr model.Transition
	err = w.strategy.Do(ctx, func(ctx context.Context, attempt int) error {
		var err error
		tr, err = w.store.Confirm(ctx, msg.BookingID)
		if err != nil {
			log.Warn("confirm attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})

	switch {
	case err == nil && tr.Applied:
		w.ack(d, log)
		log.Info("booking confirmed", zap.Uint64("screening_id", tr.ScreeningID))
		return Acked
	case err == nil:
		w.ack(d, log)
		log.Info("nothing to confirm", zap.String("status", string(tr.From)), zap.Bool("redelivered", msg.Redelivered))
		return AckedNoop
	case ctx.Err() != nil:
		w.reject(d, true)
		log.Info("requeued on shutdown")
		return Requeued
	default:
		if !errors.Is(err, model.ErrExhaustedRetries) {
			err = fmt.Errorf("%w: %w", model.ErrExhaustedRetries, err)
		}
		w.reject(d, false)
		log.Error("dead-lettering after failed confirmation", zap.Error(err))
		return DeadLettered
	}
}

func (w *Worker) ack(d amqp.Delivery, log *zap.Logger) {
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// reject nacks a single delivery.  requeue=false routes it to the
// dead-letter exchange.
func (w *Worker) reject(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		w.log.Error("nack failed", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Bool("requeue", requeue), zap.Error(err))
	}
}

// Stats returns a snapshot of the outcome counters.
func (w *Worker) Stats() Stats {
	return Stats{
		Acked:        w.counts[Acked].Load(),
		AckedNoop:    w.counts[AckedNoop].Load(),
		DeadLettered: w.counts[DeadLettered].Load(),
		Requeued:     w.counts[Requeued].Load(),
		InFlight:     w.inFlight.Load(),
	}
}
