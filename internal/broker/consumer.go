package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/pkg/metrics"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	MailQueue      = "slotbook.mail.deliver"
	DeadMailQueue  = "slotbook.mail.dead"
	mailBindingKey = "mail.#"
	requeueDelay   = 5 * time.Second
	// deliveryLimit bounds requeues of a transiently failing email before it is dead-lettered
	deliveryLimit = 20
)

// DeadLetterExchange receives emails the consumer rejected for good
func DeadLetterExchange(exchange string) string {
	return exchange + ".dead"
}

// mailQueueArgs makes the delivery queue a quorum queue that dead-letters rejected and over-delivered emails
func mailQueueArgs(exchange string) amqp.Table {
	return amqp.Table{
		"x-queue-type":           "quorum",
		"x-dead-letter-exchange": DeadLetterExchange(exchange),
		"x-delivery-limit":       deliveryLimit,
	}
}

// MailConsumer drains the mail exchange and hands each email to the final transport
type MailConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	sender   outbox.Transport
	logger   *slog.Logger
}

func NewMailConsumer(url, exchange string, sender outbox.Transport, logger *slog.Logger) (*MailConsumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := ch.Qos(10, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	return &MailConsumer{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		sender:   sender,
		logger:   logger,
	}, nil
}

// Listen declares and binds the delivery queue and consumes until ctx ends or the channel drops
func (c *MailConsumer) Listen(ctx context.Context) error {
	if err := c.channel.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if err := c.declareDeadLetter(); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(MailQueue, true, false, false, false, mailQueueArgs(c.exchange))
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := c.channel.QueueBind(q.Name, mailBindingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := c.channel.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Mail consumer is online", "queue", q.Name, "binding", mailBindingKey)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

func (c *MailConsumer) declareDeadLetter() error {
	dlx := DeadLetterExchange(c.exchange)
	if err := c.channel.ExchangeDeclare(dlx, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}
	q, err := c.channel.QueueDeclare(DeadMailQueue, true, false, false, false, amqp.Table{"x-queue-type": "quorum"})
	if err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := c.channel.QueueBind(q.Name, "", dlx, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}
	return nil
}

func (c *MailConsumer) handle(ctx context.Context, d amqp.Delivery) {
	start := time.Now()

	var msg models.EmailMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("Failed to unmarshal email, dead-lettering", "message_id", d.MessageId, "error", err)
		c.observe("dead", "", start)
		d.Nack(false, false)
		return
	}

	l := c.logger.With("entry_id", msg.EntryID, "event_type", msg.EventType)

	if err := c.sender.Send(ctx, msg); err != nil {
		if outbox.IsPermanent(err) {
			l.Error("Email rejected permanently, dead-lettering", "error", err)
			c.observe("dead", msg.EventType, start)
			d.Nack(false, false)
			return
		}
		l.Error("Delivery failed, requeueing", "error", err)
		select {
		case <-time.After(requeueDelay):
		case <-ctx.Done():
		}
		c.observe("requeued", msg.EventType, start)
		d.Nack(false, true)
		return
	}

	c.observe("delivered", msg.EventType, start)
	if err := d.Ack(false); err != nil {
		l.Error("Failed to Ack email", "error", err)
	}
}

func (c *MailConsumer) observe(status string, t models.EventType, start time.Time) {
	metrics.MailerDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	metrics.MailerMessages.WithLabelValues(status, string(t)).Inc()
}

// Close gracefully terminates RabbitMQ resources
func (c *MailConsumer) Close() {
	c.logger.Info("Shutting down mail consumer")
	c.channel.Close()
	c.conn.Close()
}
