// Package rabbitmq carries activation emails from the API to the mailer.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"aquasense/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Client struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// New dials the broker and declares the queue durable, so queued mail
// survives a broker restart.
func New(url, queue string) (*Client, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to connect: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s: failed to open channel: %w", op, err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("%s: failed to declare queue: %w", op, err)
	}

	return &Client{conn: conn, ch: ch, queue: queue}, nil
}

// SendMessage publishes one activation email and waits for broker
// acceptance; the caller relies on that to know the mail is really queued.
func (c *Client) SendMessage(ctx context.Context, msg models.EmailMessage) error {
	const op = "rabbitmq.SendMessage"

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = c.ch.PublishWithContext(ctx, "", c.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%s: failed to publish: %w", op, err)
	}

	return nil
}

// Consume returns the delivery stream for the mailer. Deliveries are manually
// acked after the SMTP send succeeds.
func (c *Client) Consume() (<-chan amqp.Delivery, error) {
	const op = "rabbitmq.Consume"

	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to start consumer: %w", op, err)
	}

	return deliveries, nil
}

func (c *Client) Close() error {
	if err := c.ch.Close(); err != nil {
		_ = c.conn.Close()
		return err
	}

	return c.conn.Close()
}
