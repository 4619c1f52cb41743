package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/seat-booking/internal/config"
)

// Topology names the broker objects of the confirmation pipeline.
// Messages rejected from Queue without requeue are routed through
// DeadLetterExchange with DeadLetterRoutingKey into DeadLetterQueue.
type Topology struct {
	Queue                string
	DeadLetterExchange   string
	DeadLetterRoutingKey string
	DeadLetterQueue      string
}

// DefaultTopology is the layout used when nothing is configured.
var DefaultTopology = Topology{
	Queue:                "booking_queue",
	DeadLetterExchange:   "dead_letter",
	DeadLetterRoutingKey: "booking_queue.dlq",
	DeadLetterQueue:      "booking_queue.dlq",
}

// TopologyFromConfig fills empty names from DefaultTopology.
func TopologyFromConfig(cfg config.QueueConfig) Topology {
	t := Topology{
		Queue:                cfg.Name,
		DeadLetterExchange:   cfg.DeadLetterExchange,
		DeadLetterRoutingKey: cfg.DeadLetterRoutingKey,
		DeadLetterQueue:      cfg.DeadLetterQueue,
	}
	if t.Queue == "" {
		t.Queue = DefaultTopology.Queue
	}
	if t.DeadLetterExchange == "" {
		t.DeadLetterExchange = DefaultTopology.DeadLetterExchange
	}
	if t.DeadLetterQueue == "" {
		t.DeadLetterQueue = DefaultTopology.DeadLetterQueue
	}
	if t.DeadLetterRoutingKey == "" {
		t.DeadLetterRoutingKey = t.DeadLetterQueue
	}
	return t
}

// Declare creates the exchange, both queues and the binding.  All objects
// are durable and redeclaring them with the same arguments is a no-op, so
// every process declares on startup.
func (t Topology) Declare(ch Channel) error {
	if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange, err)
	}
	if _, err := ch.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue, err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue, t.DeadLetterRoutingKey, t.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.DeadLetterQueue, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadLetterExchange,
		"x-dead-letter-routing-key": t.DeadLetterRoutingKey,
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	return nil
}
