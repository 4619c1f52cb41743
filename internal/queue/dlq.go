package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetter describes a message parked in the dead-letter queue.
type DeadLetter struct {
	BookingID string
	Type      string
	Reason    string // x-death reason: rejected, expired, maxlen
	Queue     string // queue the message was dead-lettered from
	Count     int64
	Time      time.Time
}

func deadLetterFrom(d amqp.Delivery) DeadLetter {
	dl := DeadLetter{BookingID: strings.TrimSpace(string(d.Body)), Type: d.Type}
	deaths, ok := d.Headers["x-death"].([]interface{})
	if !ok || len(deaths) == 0 {
		return dl
	}
	// The broker keeps the most recent death first.
	last, ok := deaths[0].(amqp.Table)
	if !ok {
		return dl
	}
	dl.Reason, _ = last["reason"].(string)
	dl.Queue, _ = last["queue"].(string)
	dl.Count, _ = last["count"].(int64)
	dl.Time, _ = last["time"].(time.Time)
	return dl
}

// PeekDeadLetters lists up to limit dead-lettered messages and returns
// them to the queue untouched.  Messages stay unacknowledged while the
// listing runs so none is read twice.
func PeekDeadLetters(ch Channel, topo Topology, limit int) ([]DeadLetter, error) {
	var held []amqp.Delivery
	defer func() {
		for _, d := range held {
			_ = d.Nack(false, true)
		}
	}()
	out := make([]DeadLetter, 0)
	for limit <= 0 || len(out) < limit {
		d, ok, err := ch.Get(topo.DeadLetterQueue, false)
		if err != nil {
			return out, fmt.Errorf("get %s: %w", topo.DeadLetterQueue, err)
		}
		if !ok {
			break
		}
		held = append(held, d)
		out = append(out, deadLetterFrom(d))
	}
	return out, nil
}

// ReplayDeadLetters moves up to limit messages from the dead-letter queue
// back to the main queue and returns how many were moved.  Each message is
// acknowledged on the dead-letter queue only after it was republished.
// Replay is an operator action; nothing in the pipeline calls it.
func ReplayDeadLetters(ctx context.Context, ch Channel, topo Topology, limit int) (int, error) {
	moved := 0
	for limit <= 0 || moved < limit {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		d, ok, err := ch.Get(topo.DeadLetterQueue, false)
		if err != nil {
			return moved, fmt.Errorf("get %s: %w", topo.DeadLetterQueue, err)
		}
		if !ok {
			return moved, nil
		}
		msg := amqp.Publishing{
			ContentType:  d.ContentType,
			DeliveryMode: amqp.Persistent,
			Type:         d.Type,
			MessageId:    d.MessageId,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"x-replayed-from": topo.DeadLetterQueue},
			Body:         d.Body,
		}
		if err := ch.PublishWithContext(ctx, "", topo.Queue, false, false, msg); err != nil {
			_ = d.Nack(false, true)
			return moved, fmt.Errorf("republish: %w", err)
		}
		if err := d.Ack(false); err != nil {
			return moved, fmt.Errorf("ack dead letter: %w", err)
		}
		moved++
	}
	return moved, nil
}
