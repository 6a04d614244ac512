package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"availability-service/internal/booking"
)

const MessageTypeBookingConfirmed = "booking.confirmed"

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends booking confirmations to a durable RabbitMQ queue.
type Publisher struct {
	ch    channel
	queue string
	log   *zap.Logger
	mu    sync.Mutex
}

func Dial(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// NewPublisher opens a channel on conn and declares the queue.
func NewPublisher(conn *amqp.Connection, queue string, log *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return newPublisher(ch, queue, log), nil
}

func newPublisher(ch channel, queue string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{ch: ch, queue: queue, log: log}
}

func (p *Publisher) PublishBookingConfirmed(ctx context.Context, msg booking.Confirmation) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.BookingID.String(),
		Type:         MessageTypeBookingConfirmed,
		Timestamp:    time.Now().UTC(),
		Body:         body,
		Headers: amqp.Table{
			"message_type": MessageTypeBookingConfirmed,
		},
	}

	// amqp channels are not safe for concurrent publishes
	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, publishing)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	p.log.Info("notify.PublishBookingConfirmed published",
		zap.String("queue", p.queue),
		zap.String("booking_id", msg.BookingID.String()),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
