package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/enterprise/riskcore/internal/models"
)

// ErrReceiverNotFound is returned when no reputation record exists yet for
// a receiver handle; callers treat this as a neutral prior.
var ErrReceiverNotFound = errors.New("receiver reputation not found")

// ReceiverReputationRepository handles ReceiverReputation persistence,
// keyed by normalized receiver handle.
type ReceiverReputationRepository struct {
	db *Database
}

// NewReceiverReputationRepository creates a new receiver reputation repository.
func NewReceiverReputationRepository(db *Database) *ReceiverReputationRepository {
	return &ReceiverReputationRepository{db: db}
}

// GetByReceiver retrieves a reputation record, or ErrReceiverNotFound if
// the receiver has never been seen.
func (r *ReceiverReputationRepository) GetByReceiver(ctx context.Context, receiver string) (*models.ReceiverReputation, error) {
	query := `
		SELECT receiver, total_transactions, fraud_count, chargeback_count,
			   successful_transactions, reputation_score, first_seen, last_updated
		FROM receiver_reputation
		WHERE receiver = $1
	`

	rep := &models.ReceiverReputation{}
	err := r.db.Pool.QueryRow(ctx, query, receiver).Scan(
		&rep.Receiver, &rep.TotalTransactions, &rep.FraudCount, &rep.ChargebackCount,
		&rep.SuccessfulTransactions, &rep.ReputationScore, &rep.FirstSeen, &rep.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}
	return rep, nil
}

// Upsert creates or updates a receiver's reputation counters and
// recomputed score, used by the Trust/Reputation Updater.
func (r *ReceiverReputationRepository) Upsert(ctx context.Context, tx pgx.Tx, rep *models.ReceiverReputation) error {
	query := `
		INSERT INTO receiver_reputation (
			receiver, total_transactions, fraud_count, chargeback_count,
			successful_transactions, reputation_score, first_seen, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (receiver) DO UPDATE SET
			total_transactions = $2,
			fraud_count = $3,
			chargeback_count = $4,
			successful_transactions = $5,
			reputation_score = $6,
			last_updated = NOW()
	`

	_, err := tx.Exec(ctx, query,
		rep.Receiver, rep.TotalTransactions, rep.FraudCount, rep.ChargebackCount,
		rep.SuccessfulTransactions, rep.ReputationScore,
	)
	return err
}
