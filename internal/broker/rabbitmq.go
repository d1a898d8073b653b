package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/pkg/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

const confirmTimeout = 10 * time.Second

// MailPublisher hands rendered emails to the mail exchange. A downstream mailer
// consumes mail.* and talks to the email provider.
type MailPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	logger     *slog.Logger
	connClosed chan *amqp.Error
	chanClosed chan *amqp.Error
	closeOnce  sync.Once
	healthy    atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewMailPublisher connects, declares the topic exchange and enables Publisher Confirms
func NewMailPublisher(url, exchange string, l *slog.Logger) (*MailPublisher, error) {
	c, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to declare mail exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &MailPublisher{
		conn:       c,
		channel:    ch,
		exchange:   exchange,
		logger:     l,
		connClosed: make(chan *amqp.Error, 1),
		chanClosed: make(chan *amqp.Error, 1),
		ctx:        ctx,
		cancel:     cancel,
	}

	p.healthy.Store(true)
	metrics.HealthStatus.Set(1)

	p.conn.NotifyClose(p.connClosed)
	p.channel.NotifyClose(p.chanClosed)

	go p.monitor()

	l.Info("Connected to RabbitMQ mail exchange", "exchange", exchange)
	return p, nil
}

func (p *MailPublisher) monitor() {
	select {
	case err := <-p.connClosed:
		p.markUnhealthy()
		p.logger.Warn("RabbitMQ connection closed", "error", err)
	case err := <-p.chanClosed:
		p.markUnhealthy()
		p.logger.Warn("RabbitMQ channel closed", "error", err)
	case <-p.ctx.Done():
	}
}

func (p *MailPublisher) markUnhealthy() {
	p.healthy.Store(false)
	metrics.HealthStatus.Set(0)
}

// RoutingKey is mail.<event_type>, lowercased
func RoutingKey(t models.EventType) string {
	return "mail." + strings.ToLower(string(t))
}

// Send publishes msg and blocks until the broker confirms it
func (p *MailPublisher) Send(ctx context.Context, msg models.EmailMessage) error {
	if !p.IsHealthy() {
		return fmt.Errorf("broker connection is closed")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return outbox.Permanent(fmt.Errorf("failed to serialize email: %w", err))
	}

	routingKey := RoutingKey(msg.EventType)
	l := p.logger.With("entry_id", msg.EntryID, "routing_key", routingKey)

	deferred, err := p.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		p.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			Headers: amqp.Table{
				"outbox_id": msg.EntryID.String(),
			},
			MessageId:    msg.EntryID.String(),
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		l.Error("Failed to publish email to exchange", "error", err)
		return fmt.Errorf("publish call failed: %w", err)
	}

	timer := time.NewTimer(confirmTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received: message not persisted")
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("publisher confirm timeout")
	}
}

// Close gracefully shuts down the RabbitMQ resources
func (p *MailPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.logger.Info("Terminating RabbitMQ publisher")
		p.cancel()
		if p.channel != nil {
			p.channel.Close()
		}
		if p.conn != nil {
			p.conn.Close()
		}
	})
	return nil
}

// IsHealthy returns true if the connection and channel are active
func (p *MailPublisher) IsHealthy() bool {
	return p.healthy.Load()
}
