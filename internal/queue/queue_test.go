package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/model"
	"github.com/iliyamo/seat-booking/internal/queue"
	"github.com/iliyamo/seat-booking/internal/queue/queuetest"
)

const bookingID = "3f2a1c9e-8d4b-4e6f-9a1b-2c3d4e5f6a7b"

func opener(chs ...*queuetest.Channel) (queue.Opener, *int32) {
	var n int32
	return func() (queue.Channel, error) {
		i := int(atomic.AddInt32(&n, 1)) - 1
		if i >= len(chs) {
			return nil, errors.New("dial refused")
		}
		return chs[i], nil
	}, &n
}

func TestTopologyDeclare(t *testing.T) {
	ch := queuetest.NewChannel()
	topo := queue.DefaultTopology
	require.NoError(t, topo.Declare(ch))

	assert.Equal(t, []string{"dead_letter:direct"}, ch.Exchanges())
	assert.Equal(t, []string{"dead_letter->booking_queue.dlq->booking_queue.dlq"}, ch.Bindings())
	args, ok := ch.QueueArgs("booking_queue")
	require.True(t, ok)
	assert.Equal(t, "dead_letter", args["x-dead-letter-exchange"])
	assert.Equal(t, "booking_queue.dlq", args["x-dead-letter-routing-key"])
	_, ok = ch.QueueArgs("booking_queue.dlq")
	assert.True(t, ok)
}

func TestTopologyFromConfigDefaults(t *testing.T) {
	topo := queue.TopologyFromConfig(config.QueueConfig{Name: "q", DeadLetterQueue: "q.dead"})
	assert.Equal(t, queue.Topology{
		Queue:                "q",
		DeadLetterExchange:   "dead_letter",
		DeadLetterRoutingKey: "q.dead",
		DeadLetterQueue:      "q.dead",
	}, topo)
}

func TestDecodeMessage(t *testing.T) {
	ack := &queuetest.Acknowledger{}

	msg, err := queue.DecodeMessage(ack.Delivery(4, queue.MessageType, bookingID))
	require.NoError(t, err)
	assert.Equal(t, bookingID, msg.BookingID)
	assert.Equal(t, uint64(4), msg.DeliveryTag)

	_, err = queue.DecodeMessage(ack.Delivery(5, "", " "+bookingID+"\n"))
	assert.NoError(t, err, "untyped bare id is accepted")

	_, err = queue.DecodeMessage(ack.Delivery(6, "booking.confirm.v2", bookingID))
	assert.ErrorIs(t, err, queue.ErrMalformedMessage)

	_, err = queue.DecodeMessage(ack.Delivery(7, queue.MessageType, "not-an-id"))
	assert.ErrorIs(t, err, queue.ErrMalformedMessage)
}

func TestNewPublishing(t *testing.T) {
	p := queue.NewPublishing(bookingID)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, queue.MessageType, p.Type)
	assert.Equal(t, bookingID, string(p.Body))
}

func TestPublisher_PublishDeclaresAndSends(t *testing.T) {
	ch := queuetest.NewChannel()
	open, dials := opener(ch)
	p := queue.NewPublisher(open, queue.DefaultTopology, zap.NewNop())
	assert.False(t, p.Ready())

	require.NoError(t, p.Publish(context.Background(), bookingID))
	require.NoError(t, p.Publish(context.Background(), bookingID))
	assert.True(t, p.Ready())
	assert.Equal(t, int32(1), atomic.LoadInt32(dials), "channel is reused")

	pub := ch.Published()
	require.Len(t, pub, 2)
	assert.Equal(t, "", pub[0].Exchange)
	assert.Equal(t, "booking_queue", pub[0].Key)
	assert.Equal(t, bookingID, string(pub[0].Msg.Body))

	require.NoError(t, p.Close())
	assert.False(t, p.Ready())
}

func TestPublisher_ReopensAfterFailure(t *testing.T) {
	bad := queuetest.NewChannel()
	bad.PublishErr = amqp.ErrClosed
	good := queuetest.NewChannel()
	open, _ := opener(bad, good)
	p := queue.NewPublisher(open, queue.DefaultTopology, nil)

	err := p.Publish(context.Background(), bookingID)
	require.ErrorIs(t, err, model.ErrTransient)
	assert.False(t, p.Ready())
	assert.True(t, bad.IsClosed())

	require.NoError(t, p.Publish(context.Background(), bookingID))
	assert.Len(t, good.Published(), 1)
}

func TestPublisher_BrokerDown(t *testing.T) {
	open, _ := opener()
	p := queue.NewPublisher(open, queue.DefaultTopology, nil)
	assert.ErrorIs(t, p.Connect(context.Background()), model.ErrTransient)
	assert.ErrorIs(t, p.Publish(context.Background(), bookingID), model.ErrTransient)
}

func TestPublisher_PublishHonoursDeadlineDuringSlowDial(t *testing.T) {
	ch := queuetest.NewChannel()
	slow := func() (queue.Channel, error) {
		time.Sleep(500 * time.Millisecond)
		return ch, nil
	}
	p := queue.NewPublisher(slow, queue.DefaultTopology, nil)

	connected := make(chan error, 1)
	go func() { connected <- p.Connect(context.Background()) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := p.Publish(ctx, bookingID)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, model.ErrTransient)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, elapsed, 250*time.Millisecond)
	assert.Empty(t, ch.Published())

	// The shared dial still completes and later publishes reuse it.
	require.NoError(t, <-connected)
	assert.True(t, p.Ready())
	require.NoError(t, p.Publish(context.Background(), bookingID))
	assert.Len(t, ch.Published(), 1)
}

func TestPublisher_ConcurrentConnectsShareOneDial(t *testing.T) {
	ch := queuetest.NewChannel()
	var dials int32
	open := func() (queue.Channel, error) {
		atomic.AddInt32(&dials, 1)
		time.Sleep(50 * time.Millisecond)
		return ch, nil
	}
	p := queue.NewPublisher(open, queue.DefaultTopology, nil)

	errs := make(chan error, 2)
	go func() { errs <- p.Connect(context.Background()) }()
	go func() { errs <- p.Publish(context.Background(), bookingID) }()
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dials))
	assert.Len(t, ch.Published(), 1)
}

func TestPublisher_MaintainReconnects(t *testing.T) {
	ch := queuetest.NewChannel()
	var n int32
	open := func() (queue.Channel, error) {
		if atomic.AddInt32(&n, 1) == 1 {
			return nil, errors.New("dial refused")
		}
		return ch, nil
	}
	p := queue.NewPublisher(open, queue.DefaultTopology, nil)
	require.Error(t, p.Connect(context.Background()))
	assert.False(t, p.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Maintain(ctx, 5*time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, p.Ready, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Maintain did not stop on cancel")
	}
}

func TestConsumer_RunHandsDeliveriesAndStopsOnCancel(t *testing.T) {
	ch := queuetest.NewChannel()
	open, _ := opener(ch)
	c := queue.NewConsumer(open, queue.DefaultTopology, 5, "test", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	ch.Deliveries <- ch.Ack.Delivery(1, queue.MessageType, bookingID)

	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(ctx context.Context, deliveries <-chan amqp.Delivery) error {
			d := <-deliveries
			got <- string(d.Body)
			_ = d.Ack(false)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	select {
	case body := <-got:
		assert.Equal(t, bookingID, body)
		assert.True(t, c.Consuming())
	case <-time.After(2 * time.Second):
		t.Fatal("delivery not handed to handler")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.Equal(t, 5, ch.Prefetch())
	assert.Equal(t, []uint64{1}, ch.Ack.Acks())
	assert.True(t, ch.IsClosed())
}

func TestPeekDeadLetters(t *testing.T) {
	ch := queuetest.NewChannel()
	death := amqp.Table{"reason": "rejected", "queue": "booking_queue", "count": int64(1)}
	ch.Pending["booking_queue.dlq"] = []amqp.Delivery{
		{Type: queue.MessageType, Body: []byte(bookingID), Headers: amqp.Table{"x-death": []interface{}{death}}},
		{Body: []byte("garbage")},
	}

	dls, err := queue.PeekDeadLetters(ch, queue.DefaultTopology, 0)
	require.NoError(t, err)
	require.Len(t, dls, 2)
	assert.Equal(t, bookingID, dls[0].BookingID)
	assert.Equal(t, "rejected", dls[0].Reason)
	assert.Equal(t, "booking_queue", dls[0].Queue)
	assert.Equal(t, int64(1), dls[0].Count)
	assert.Equal(t, "garbage", dls[1].BookingID)

	nacks := ch.Ack.Nacks()
	require.Len(t, nacks, 2)
	for _, n := range nacks {
		assert.True(t, n.Requeue)
	}
	assert.Empty(t, ch.Ack.Acks())
	assert.Empty(t, ch.Published())
}

func TestReplayDeadLetters(t *testing.T) {
	ch := queuetest.NewChannel()
	ch.Pending["booking_queue.dlq"] = []amqp.Delivery{
		{Type: queue.MessageType, Body: []byte(bookingID)},
		{Type: queue.MessageType, Body: []byte(bookingID)},
		{Type: queue.MessageType, Body: []byte(bookingID)},
	}

	n, err := queue.ReplayDeadLetters(context.Background(), ch, queue.DefaultTopology, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	pub := ch.Published()
	require.Len(t, pub, 2)
	assert.Equal(t, "booking_queue", pub[0].Key)
	assert.Equal(t, amqp.Persistent, pub[0].Msg.DeliveryMode)
	assert.Equal(t, []uint64{1, 2}, ch.Ack.Acks())
	assert.Len(t, ch.Pending["booking_queue.dlq"], 1)
}

func TestReplayDeadLetters_PublishFailureRequeues(t *testing.T) {
	ch := queuetest.NewChannel()
	ch.PublishErr = errors.New("blocked")
	ch.Pending["booking_queue.dlq"] = []amqp.Delivery{{Body: []byte(bookingID)}}

	n, err := queue.ReplayDeadLetters(context.Background(), ch, queue.DefaultTopology, 0)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, ch.Ack.Acks())
	assert.Equal(t, []queuetest.Nack{{Tag: 1, Requeue: true}}, ch.Ack.Nacks())
}
