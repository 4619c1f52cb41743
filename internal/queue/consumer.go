package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/retry"
)

// ErrDeliveriesClosed is returned by a Handler when the broker closed the
// delivery channel.  The consumer reconnects.
var ErrDeliveriesClosed = errors.New("deliveries channel closed")

// Handler processes deliveries until the channel closes or ctx is done.
// Every delivery must be acked or nacked by the handler.
type Handler func(ctx context.Context, deliveries <-chan amqp.Delivery) error

// Consumer reads the main queue with manual acknowledgement and at most
// Prefetch unacknowledged messages.  It reconnects with exponential
// backoff whenever the connection or channel drops.
type Consumer struct {
	open      Opener
	topo      Topology
	prefetch  int
	tag       string
	log       *zap.Logger
	reconnect retry.Strategy
	consuming atomic.Bool
}

// NewConsumer returns a Consumer reading topo.Queue.
func NewConsumer(open Opener, topo Topology, prefetch int, tag string, log *zap.Logger) *Consumer {
	if prefetch < 1 {
		prefetch = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{
		open:      open,
		topo:      topo,
		prefetch:  prefetch,
		tag:       tag,
		log:       log.With(zap.String("component", "consumer")),
		reconnect: retry.Strategy{Delay: time.Second, Backoff: 2, MaxDelay: 30 * time.Second},
	}
}

// Run consumes until ctx is cancelled.  It returns nil on cancellation;
// connection failures are logged and retried.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		ch, err := c.open()
		if err != nil {
			failures++
			wait := c.reconnect.Wait(failures)
			c.log.Warn("failed to connect to broker", zap.Error(err), zap.Int("failures", failures), zap.Duration("retry_in", wait))
			if retry.Sleep(ctx, wait) != nil {
				return nil
			}
			continue
		}
		failures = 0

		err = c.consume(ctx, ch, handle)
		_ = ch.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if retry.Sleep(ctx, c.reconnect.Wait(1)) != nil {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, ch Channel, handle Handler) error {
	if err := c.topo.Declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.topo.Queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.topo.Queue, err)
	}
	c.log.Info("consuming", zap.String("queue", c.topo.Queue), zap.Int("prefetch", c.prefetch))
	c.consuming.Store(true)
	defer c.consuming.Store(false)
	return handle(ctx, msgs)
}

// Consuming reports whether a delivery channel is currently open.
func (c *Consumer) Consuming() bool { return c.consuming.Load() }
