package mailer

import (
	"context"
	"log/slog"

	"github.com/Guizzs26/slotbook/internal/models"
)

// LogTransport writes emails to the log instead of delivering them. Used in development
// and as the relay transport when no broker is configured.
type LogTransport struct {
	logger *slog.Logger
}

func NewLogTransport(l *slog.Logger) *LogTransport {
	return &LogTransport{logger: l}
}

func (t *LogTransport) Send(ctx context.Context, msg models.EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.logger.Info("Email",
		"entry_id", msg.EntryID,
		"event_type", msg.EventType,
		"to", msg.To,
		"subject", msg.Subject,
	)
	t.logger.Debug("Email body", "entry_id", msg.EntryID, "text", msg.Text)
	return nil
}
