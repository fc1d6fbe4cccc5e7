package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueue is the durable queue the mail worker consumes.
const DefaultQueue = "auth.mail"

// QueueSender publishes messages to RabbitMQ for the mail worker to deliver.
// A successful Send means the broker accepted the message, not that it was
// delivered.
type QueueSender struct {
	url   string
	queue string
	dial  func(url string) (*amqp.Connection, error)
}

func NewQueueSender(url, queue string) *QueueSender {
	if queue == "" {
		queue = DefaultQueue
	}
	return &QueueSender{url: url, queue: queue, dial: amqp.Dial}
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshal: %v", ErrSendFailed, err)
	}

	conn, err := q.dial(q.url)
	if err != nil {
		return fmt.Errorf("%w: dial broker: %v", ErrSendFailed, err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %v", ErrSendFailed, err)
	}
	defer func() { _ = ch.Close() }()

	if err := declareQueue(ch, q.queue); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	err = ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Tag,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish: %v", ErrSendFailed, err)
	}
	return nil
}

func declareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	return nil
}
