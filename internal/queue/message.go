package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType versions the confirmation message.  The body is the raw
// booking id; any future change to the body gets a new type.
const MessageType = "booking.confirm.v1"

// ErrMalformedMessage is returned by DecodeMessage for deliveries that can
// never be processed.  Such messages are dead-lettered without retry.
var ErrMalformedMessage = errors.New("malformed confirmation message")

// Message is a decoded confirmation request.
type Message struct {
	BookingID   string
	DeliveryTag uint64
	Redelivered bool
}

// NewPublishing builds the persistent message for bookingID.
func NewPublishing(bookingID string) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Type:         MessageType,
		MessageId:    bookingID,
		Timestamp:    time.Now().UTC(),
		Body:         []byte(bookingID),
	}
}

// DecodeMessage validates a delivery.  Messages without a type are
// accepted so plain producers can enqueue a bare id.
func DecodeMessage(d amqp.Delivery) (Message, error) {
	if d.Type != "" && d.Type != MessageType {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, d.Type)
	}
	id := strings.TrimSpace(string(d.Body))
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Message{}, fmt.Errorf("%w: body is not a booking id: %v", ErrMalformedMessage, err)
	}
	return Message{
		BookingID:   parsed.String(),
		DeliveryTag: d.DeliveryTag,
		Redelivered: d.Redelivered,
	}, nil
}
