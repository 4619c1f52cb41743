// Package queue owns the confirmation queue on RabbitMQ: the topology
// (main queue, dead-letter exchange and dead-letter queue), the message
// format, the publisher used after a booking commits and the reconnecting
// consumer the worker reads from.
package queue

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel this package uses.  Tests provide
// an in-memory implementation.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	IsClosed() bool
	Close() error
}

// Opener opens a fresh channel.  Closing the channel releases everything
// the opener created for it.
type Opener func() (Channel, error)

// connChannel ties a channel to the connection that was dialed for it.
type connChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c connChannel) IsClosed() bool { return c.conn.IsClosed() || c.Channel.IsClosed() }

func (c connChannel) Close() error {
	_ = c.Channel.Close()
	return c.conn.Close()
}

// DefaultDialTimeout bounds the TCP connect and AMQP handshake when no
// timeout is configured.
const DefaultDialTimeout = 5 * time.Second

// Dial returns an Opener that dials url and opens one channel per call.
// Each dial gives up after timeout.
func Dial(url string, timeout time.Duration) Opener {
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	return func() (Channel, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Dial:      amqp.DefaultDial(timeout),
		})
		if err != nil {
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("open channel: %w", err)
		}
		return connChannel{Channel: ch, conn: conn}, nil
	}
}
