// Package queuetest provides in-memory stand-ins for the broker channel
// and delivery acknowledgements.
package queuetest

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Nack records a negative acknowledgement.
type Nack struct {
	Tag     uint64
	Requeue bool
}

// Acknowledger records acks and nacks of deliveries.
type Acknowledger struct {
	mu      sync.Mutex
	acks    []uint64
	nacks   []Nack
	AckErr  error
	NackErr error
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return a.AckErr
}

func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks = append(a.nacks, Nack{Tag: tag, Requeue: requeue})
	return a.NackErr
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Acks returns the acknowledged delivery tags.
func (a *Acknowledger) Acks() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acks...)
}

// Nacks returns the recorded negative acknowledgements.
func (a *Acknowledger) Nacks() []Nack {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Nack(nil), a.nacks...)
}

// Delivery builds a delivery acknowledged through a.
func (a *Acknowledger) Delivery(tag uint64, typ string, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: a, DeliveryTag: tag, Type: typ, Body: []byte(body)}
}

// Published is a message sent through Channel.
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// Channel is an in-memory broker channel.  Queued messages for Get are
// taken from Pending; Consume returns Deliveries.
type Channel struct {
	mu sync.Mutex

	Ack        *Acknowledger
	Pending    map[string][]amqp.Delivery
	Deliveries chan amqp.Delivery
	PublishErr error
	DeclareErr error
	ConsumeErr error

	exchanges []string
	queues    map[string]amqp.Table
	bindings  []string
	published []Published
	prefetch  int
	closed    bool
	nextTag   uint64
}

// NewChannel returns an open Channel.
func NewChannel() *Channel {
	return &Channel{
		Ack:        &Acknowledger{},
		Pending:    map[string][]amqp.Delivery{},
		Deliveries: make(chan amqp.Delivery, 64),
		queues:     map[string]amqp.Table{},
	}
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return c.DeclareErr
	}
	c.exchanges = append(c.exchanges, name+":"+kind)
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	if args == nil {
		args = amqp.Table{}
	}
	c.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, exchange+"->"+key+"->"+name)
	return nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetch = prefetchCount
	return nil
}

func (c *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	if c.PublishErr != nil {
		return c.PublishErr
	}
	c.published = append(c.published, Published{Exchange: exchange, Key: key, Msg: msg})
	return nil
}

func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if c.ConsumeErr != nil {
		return nil, c.ConsumeErr
	}
	return c.Deliveries, nil
}

func (c *Channel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.Delivery{}, false, amqp.ErrClosed
	}
	q := c.Pending[queue]
	if len(q) == 0 {
		return amqp.Delivery{}, false, nil
	}
	d := q[0]
	c.Pending[queue] = q[1:]
	c.nextTag++
	d.DeliveryTag = c.nextTag
	if d.Acknowledger == nil {
		d.Acknowledger = c.Ack
	}
	return d, true, nil
}

func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("channel already closed")
	}
	c.closed = true
	return nil
}

// Published returns the messages published so far.
func (c *Channel) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// QueueArgs returns the arguments a queue was declared with.
func (c *Channel) QueueArgs(name string) (amqp.Table, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	args, ok := c.queues[name]
	return args, ok
}

// Exchanges returns declared exchanges as "name:kind".
func (c *Channel) Exchanges() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.exchanges...)
}

// Bindings returns bindings as "exchange->key->queue".
func (c *Channel) Bindings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bindings...)
}

// Prefetch returns the last Qos prefetch count.
func (c *Channel) Prefetch() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefetch
}
