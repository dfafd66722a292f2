package repositories

import (
	"context"

	"github.com/google/uuid"
)

// ProcessedOutcomeRepository records which (transactionId) outcome
// reports have already mutated trust/reputation state, so an
// at-least-once redelivery of the same report is a no-op.
type ProcessedOutcomeRepository struct {
	db *Database
}

// NewProcessedOutcomeRepository creates a new processed outcome repository.
func NewProcessedOutcomeRepository(db *Database) *ProcessedOutcomeRepository {
	return &ProcessedOutcomeRepository{db: db}
}

// MarkProcessed records transactionID as processed. It returns false when
// a row already existed for this transaction, signaling the caller that
// the outcome was already applied and its delta must not be reapplied.
func (r *ProcessedOutcomeRepository) MarkProcessed(ctx context.Context, transactionID uuid.UUID, outcome string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO processed_outcomes (transaction_id, outcome)
		VALUES ($1, $2)
		ON CONFLICT (transaction_id) DO NOTHING
	`, transactionID, outcome)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
