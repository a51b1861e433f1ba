package checkout

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// RecorderWorker drains the reconciliation journal: payment records whose
// synchronous save failed are retried in the background until the backend
// accepts them.
type RecorderWorker struct {
	journal  Journal
	payments PaymentRecorder
	interval time.Duration
	batch    int
}

// NewRecorderWorker creates a worker polling the journal every interval,
// retrying up to batch entries per tick.
func NewRecorderWorker(journal Journal, payments PaymentRecorder, interval time.Duration, batch int) *RecorderWorker {
	if batch <= 0 {
		batch = 10
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &RecorderWorker{
		journal:  journal,
		payments: payments,
		interval: interval,
		batch:    batch,
	}
}

// Run polls until the context is cancelled. It always returns nil on
// shutdown so it can live in an errgroup next to the HTTP server.
func (w *RecorderWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *RecorderWorker) drain(ctx context.Context) {
	lg := zctx.From(ctx)

	entries, err := w.journal.Pending(ctx, w.batch)
	if err != nil {
		lg.Error("journal poll failed", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if err := w.payments.Save(ctx, entry.Record); err != nil {
			lg.Warn("payment record retry failed",
				zap.Int64("journal_id", entry.ID),
				zap.String("order_id", entry.Record.OrderID),
				zap.Int("attempts", entry.Attempts),
				zap.Error(err),
			)
			if merr := w.journal.MarkFailed(ctx, entry.ID, err.Error()); merr != nil {
				lg.Error("journal mark failed", zap.Error(merr))
			}
			continue
		}

		if err := w.journal.MarkRecorded(ctx, entry.ID); err != nil {
			lg.Error("journal mark recorded failed",
				zap.Int64("journal_id", entry.ID), zap.Error(err))
			continue
		}
		lg.Info("payment record reconciled",
			zap.Int64("journal_id", entry.ID),
			zap.String("order_id", entry.Record.OrderID),
		)
	}
}
