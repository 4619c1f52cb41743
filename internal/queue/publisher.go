package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/seat-booking/internal/model"
)

// Publisher enqueues confirmation requests.  It keeps one channel open
// and reopens it after the broker closes it.  Publish is safe for
// concurrent use; calls are serialized on the channel and every wait
// honours the caller's context.
type Publisher struct {
	open Opener
	topo Topology
	log  *zap.Logger

	// sem serializes Publish.  It is a channel so waiting can be
	// abandoned when ctx ends.
	sem  chan struct{}
	dial singleflight.Group

	mu sync.Mutex // guards ch
	ch Channel
}

// NewPublisher returns a Publisher.  No connection is made until Connect
// or the first Publish.
func NewPublisher(open Opener, topo Topology, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		open: open,
		topo: topo,
		log:  log.With(zap.String("component", "publisher")),
		sem:  make(chan struct{}, 1),
	}
}

// Connect opens the channel and declares the topology unless a channel is
// already open.
func (p *Publisher) Connect(ctx context.Context) error {
	if p.current() != nil {
		return nil
	}
	_, err := p.connect(ctx)
	return err
}

func (p *Publisher) current() Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch
	}
	return nil
}

// connect dials a fresh channel.  Concurrent callers share one dial; a
// caller whose ctx ends stops waiting while the dial finishes in the
// background and still installs its channel.
func (p *Publisher) connect(ctx context.Context) (Channel, error) {
	res := p.dial.DoChan("dial", func() (interface{}, error) {
		if ch := p.current(); ch != nil {
			return ch, nil
		}
		ch, err := p.open()
		if err != nil {
			return nil, err
		}
		if err := p.topo.Declare(ch); err != nil {
			_ = ch.Close()
			return nil, err
		}
		p.mu.Lock()
		stale := p.ch
		p.ch = ch
		p.mu.Unlock()
		if stale != nil {
			_ = stale.Close()
		}
		p.log.Info("broker channel open", zap.String("queue", p.topo.Queue))
		return ch, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: connect: %w", model.ErrTransient, ctx.Err())
	case r := <-res:
		if r.Err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrTransient, r.Err)
		}
		return r.Val.(Channel), nil
	}
}

// drop forgets ch if it is still the current channel and closes it.
func (p *Publisher) drop(ch Channel) {
	p.mu.Lock()
	if p.ch == ch {
		p.ch = nil
	}
	p.mu.Unlock()
	_ = ch.Close()
}

// Publish enqueues bookingID on the main queue as a persistent message.
// It must only be called after the transaction that created the booking
// has committed.  Failures are wrapped with model.ErrTransient.
func (p *Publisher) Publish(ctx context.Context, bookingID string) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: publish: %w", model.ErrTransient, ctx.Err())
	}
	defer func() { <-p.sem }()

	ch := p.current()
	if ch == nil {
		var err error
		if ch, err = p.connect(ctx); err != nil {
			p.log.Error("broker unavailable", zap.String("booking_id", bookingID), zap.Error(err))
			return err
		}
	}
	if err := ch.PublishWithContext(ctx, "", p.topo.Queue, false, false, NewPublishing(bookingID)); err != nil {
		p.drop(ch)
		p.log.Error("publish failed", zap.String("booking_id", bookingID), zap.Error(err))
		return fmt.Errorf("%w: publish: %w", model.ErrTransient, err)
	}
	p.log.Debug("published", zap.String("booking_id", bookingID))
	return nil
}

// Maintain reopens the channel every interval while it is closed, so
// readiness recovers without waiting for a booking.  It returns when ctx
// ends.
func (p *Publisher) Maintain(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if p.Ready() {
			continue
		}
		tctx, cancel := context.WithTimeout(ctx, interval)
		if err := p.Connect(tctx); err != nil {
			p.log.Warn("broker reconnect failed", zap.Error(err))
		}
		cancel()
	}
}

// Ready reports whether the channel is open.  It never dials.
func (p *Publisher) Ready() bool {
	return p.current() != nil
}

// Close closes the channel and its connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	err := p.ch.Close()
	p.ch = nil
	return err
}
