package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/internal/outbox"
	"github.com/Guizzs26/slotbook/internal/testutil"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

type ackRecorder struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked, a.requeue = true, requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type senderFunc func(ctx context.Context, msg models.EmailMessage) error

func (f senderFunc) Send(ctx context.Context, msg models.EmailMessage) error { return f(ctx, msg) }

func TestMailConsumerHandle(t *testing.T) {
	body, _ := json.Marshal(models.EmailMessage{To: "ana@example.com", Subject: "Hi", EntryID: uuid.New()})

	tests := []struct {
		name        string
		body        []byte
		err         error
		wantAck     bool
		wantRequeue bool
	}{
		{name: "delivered", body: body, wantAck: true},
		{name: "malformed body", body: []byte("{"), wantAck: false},
		{name: "permanent rejection", body: body, err: outbox.Permanent(errors.New("550 no such user"))},
		{name: "transient failure", body: body, err: errors.New("connection reset"), wantRequeue: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecorder{}
			c := &MailConsumer{
				sender: senderFunc(func(ctx context.Context, msg models.EmailMessage) error { return tt.err }),
				logger: testutil.Logger(),
			}

			// A cancelled context skips the requeue pause
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			c.handle(ctx, amqp.Delivery{Acknowledger: ack, Body: tt.body})

			if ack.acked != tt.wantAck {
				t.Fatalf("expected acked=%v, got %v", tt.wantAck, ack.acked)
			}
			if !tt.wantAck && (!ack.nacked || ack.requeue != tt.wantRequeue) {
				t.Fatalf("expected nack with requeue=%v, got nacked=%v requeue=%v", tt.wantRequeue, ack.nacked, ack.requeue)
			}
		})
	}
}

func TestMailQueueArgs(t *testing.T) {
	args := mailQueueArgs("slotbook.mail")
	if args["x-queue-type"] != "quorum" || args["x-dead-letter-exchange"] != "slotbook.mail.dead" {
		t.Fatalf("unexpected queue args: %v", args)
	}
}
