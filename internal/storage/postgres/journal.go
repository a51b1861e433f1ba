package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/checkout/internal/domain/checkout"
)

var _ checkout.Journal = (*Journal)(nil)

// Journal implements checkout.Journal backed by PostgreSQL.
type Journal struct {
	pool *pgxpool.Pool
}

// NewJournal returns a Journal that uses the given pool.
func NewJournal(pool *pgxpool.Pool) *Journal {
	return &Journal{pool: pool}
}

// Enqueue stores a payment record whose synchronous save failed.
func (j *Journal) Enqueue(ctx context.Context, rec checkout.PaymentRecord, cause string) error {
	const q = `
		INSERT INTO payment_journal (provider, transaction_id, amount, order_id, status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := j.pool.Exec(ctx, q,
		rec.Provider, rec.TransactionID, rec.Amount, rec.OrderID, string(rec.Status), cause)
	if err != nil {
		return errors.Wrapf(err, "enqueue payment record for order %q", rec.OrderID)
	}
	return nil
}

// Pending returns up to limit unrecorded entries, oldest first.
func (j *Journal) Pending(ctx context.Context, limit int) ([]checkout.JournalEntry, error) {
	const q = `
		SELECT id, provider, transaction_id, amount, order_id, status, attempts, last_error
		FROM payment_journal
		WHERE recorded_at IS NULL
		ORDER BY created_at
		LIMIT $1`

	rows, err := j.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query pending journal entries")
	}
	defer rows.Close()

	var entries []checkout.JournalEntry
	for rows.Next() {
		var (
			entry  checkout.JournalEntry
			status string
		)
		err := rows.Scan(
			&entry.ID,
			&entry.Record.Provider,
			&entry.Record.TransactionID,
			&entry.Record.Amount,
			&entry.Record.OrderID,
			&status,
			&entry.Attempts,
			&entry.LastErr,
		)
		if err != nil {
			return nil, errors.Wrap(err, "scan journal entry")
		}
		entry.Record.Status = checkout.PaymentStatus(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// MarkRecorded marks an entry as successfully saved to the backend.
func (j *Journal) MarkRecorded(ctx context.Context, id int64) error {
	const q = `UPDATE payment_journal SET recorded_at = now() WHERE id = $1`
	if _, err := j.pool.Exec(ctx, q, id); err != nil {
		return errors.Wrapf(err, "mark journal entry %d recorded", id)
	}
	return nil
}

// MarkFailed bumps the attempt counter after another failed save.
func (j *Journal) MarkFailed(ctx context.Context, id int64, cause string) error {
	const q = `UPDATE payment_journal SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
	if _, err := j.pool.Exec(ctx, q, id, cause); err != nil {
		return errors.Wrapf(err, "mark journal entry %d failed", id)
	}
	return nil
}
