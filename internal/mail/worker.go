package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glukogo/authsvc/internal/logging"
)

// Worker consumes the mail queue and hands each message to a delivering
// Sender.  It reconnects with exponential backoff until ctx is cancelled.
type Worker struct {
	URL    string
	Queue  string
	Sender Sender
	Log    *slog.Logger
}

// Run blocks until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	queue := w.Queue
	if queue == "" {
		queue = DefaultQueue
	}
	log := w.Log
	if log == nil {
		log = logging.FromContext(ctx)
	}

	backoff := time.Second
	for {
		conn, err := amqp.Dial(w.URL)
		if err != nil {
			log.Warn("mail-worker: dial failed", logging.Err(err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = w.consume(ctx, conn, queue, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("mail-worker: consume loop ended, reconnecting", logging.Err(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (w *Worker) consume(ctx context.Context, conn *amqp.Connection, queue string, log *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		log.Warn("mail-worker: set QoS failed", logging.Err(err))
	}
	if err := declareQueue(ch, queue); err != nil {
		return err
	}
	msgs, err := ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info("mail-worker: consuming", slog.String("queue", queue))

	for d := range msgs {
		if err := w.Handle(ctx, d.Body); err != nil {
			log.Error("mail-worker: delivery failed", logging.Err(err))
			// Malformed payloads are dropped; transport errors go back once.
			_ = d.Nack(false, !d.Redelivered && !errors.Is(err, ErrInvalidMessage))
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// Handle decodes one queued payload and delivers it.
func (w *Worker) Handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return w.Sender.Send(ctx, msg)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
