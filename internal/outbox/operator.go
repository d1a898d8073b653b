package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Guizzs26/slotbook/internal/clock"
	"github.com/Guizzs26/slotbook/internal/models"
	"github.com/Guizzs26/slotbook/pkg/metrics"
	"github.com/google/uuid"
)

type RetryResult string

const (
	RetryQueued         RetryResult = "queued"
	RetryAlreadySent    RetryResult = "already_sent"
	RetryAlreadyPending RetryResult = "already_pending"
)

// Operator holds the manual and housekeeping transitions of outbox rows
type Operator struct {
	repo   Repository
	clock  clock.Clock
	logger *slog.Logger
}

func NewOperator(r Repository, clk clock.Clock, l *slog.Logger) *Operator {
	return &Operator{repo: r, clock: clk, logger: l}
}

// Retry puts a failed row back to pending, due now, with a fresh attempt budget.
// Sent and pending rows are left untouched.
func (o *Operator) Retry(ctx context.Context, shopID, id uuid.UUID) (RetryResult, error) {
	entry, err := o.repo.GetOutbox(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get outbox entry: %w", err)
	}
	if entry == nil || entry.ShopID != shopID {
		return "", models.ErrOutboxNotFound
	}

	switch entry.Status {
	case models.OutboxSent:
		return RetryAlreadySent, nil
	case models.OutboxPending:
		return RetryAlreadyPending, nil
	case models.OutboxCancelled:
		return "", models.ErrOutboxNotRetriable
	}

	reset, err := o.repo.ResetForRetry(ctx, id, o.clock.Now())
	if err != nil {
		return "", fmt.Errorf("reset outbox entry: %w", err)
	}
	if !reset {
		// Lost a race with another operator; report what the row is now
		return o.Retry(ctx, shopID, id)
	}

	o.logger.Info("Outbox entry queued for manual retry", "entry_id", id, "previous_error", deref(entry.LastError))
	return RetryQueued, nil
}

// RefreshGauges publishes backlog and failure counts
func (o *Operator) RefreshGauges(ctx context.Context) error {
	counts, err := o.repo.CountOutboxByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count outbox: %w", err)
	}
	metrics.OutboxBacklog.Set(float64(counts[models.OutboxPending]))
	metrics.OutboxFailed.Set(float64(counts[models.OutboxFailed]))
	return nil
}

// PurgeSent deletes sent rows older than retention
func (o *Operator) PurgeSent(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := o.repo.PurgeSent(ctx, o.clock.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("purge sent: %w", err)
	}
	return n, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
