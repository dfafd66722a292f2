package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/enterprise/riskcore/internal/errs"
	"github.com/enterprise/riskcore/internal/models"
)

// RiskEventRepository handles RiskEvent persistence. RiskEvent rows are
// append-only: never mutated after write.
type RiskEventRepository struct {
	db *Database
}

// NewRiskEventRepository creates a new risk event repository.
func NewRiskEventRepository(db *Database) *RiskEventRepository {
	return &RiskEventRepository{db: db}
}

// Create inserts a RiskEvent within the caller's store transaction, so it
// is written atomically with its Transaction: exactly one RiskEvent ever
// references a given transaction.
func (r *RiskEventRepository) Create(ctx context.Context, tx pgx.Tx, e *models.RiskEvent) error {
	query := `
		INSERT INTO risk_events (
			id, transaction_id, payer_id, flags, rule_score, ml_score, final_score,
			level, action, behavior_score, amount_score, receiver_score, factors,
			recommendations, feature_vector, model_version, ruleset_version,
			processing_ms, assessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	e.ID = uuid.New()
	e.AssessedAt = time.Now().UTC()

	featureBytes, err := e.FeatureVector.Value()
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, query,
		e.ID,
		e.TransactionID,
		e.PayerID,
		pq.Array(e.Flags),
		e.RuleScore,
		e.MLScore,
		e.FinalScore,
		e.Level,
		e.Action,
		e.BehaviorScore,
		e.AmountScore,
		e.ReceiverScore,
		pq.Array(e.Factors),
		pq.Array(e.Recommendations),
		featureBytes,
		e.ModelVersion,
		e.RulesetVersion,
		e.ProcessingMs,
		e.AssessedAt,
	)
	return err
}

// CreateIdempotent is used by the retry-queue consumer: it is a no-op
// when a RiskEvent for this transaction already exists, so redelivery
// never duplicates a row.
func (r *RiskEventRepository) CreateIdempotent(ctx context.Context, e *models.RiskEvent) error {
	existing, err := r.GetByTransactionID(ctx, e.TransactionID)
	if err == nil && existing != nil {
		return nil
	}
	if err != nil && !errors.Is(err, errs.ErrTransactionNotFound) {
		return err
	}

	query := `
		INSERT INTO risk_events (
			id, transaction_id, payer_id, flags, rule_score, ml_score, final_score,
			level, action, behavior_score, amount_score, receiver_score, factors,
			recommendations, feature_vector, model_version, ruleset_version,
			processing_ms, assessed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.AssessedAt.IsZero() {
		e.AssessedAt = time.Now().UTC()
	}

	featureBytes, err := e.FeatureVector.Value()
	if err != nil {
		return err
	}

	_, err = r.db.Pool.Exec(ctx, query,
		e.ID,
		e.TransactionID,
		e.PayerID,
		pq.Array(e.Flags),
		e.RuleScore,
		e.MLScore,
		e.FinalScore,
		e.Level,
		e.Action,
		e.BehaviorScore,
		e.AmountScore,
		e.ReceiverScore,
		pq.Array(e.Factors),
		pq.Array(e.Recommendations),
		featureBytes,
		e.ModelVersion,
		e.RulesetVersion,
		e.ProcessingMs,
		e.AssessedAt,
	)
	return err
}

// GetByTransactionID retrieves the RiskEvent for a transaction.
func (r *RiskEventRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.RiskEvent, error) {
	query := `
		SELECT id, transaction_id, payer_id, flags, rule_score, ml_score, final_score,
			   level, action, behavior_score, amount_score, receiver_score, factors,
			   recommendations, feature_vector, model_version, ruleset_version,
			   processing_ms, assessed_at
		FROM risk_events
		WHERE transaction_id = $1
	`

	e := &models.RiskEvent{}
	var featureBytes []byte

	err := r.db.Pool.QueryRow(ctx, query, transactionID).Scan(
		&e.ID, &e.TransactionID, &e.PayerID, pq.Array(&e.Flags), &e.RuleScore, &e.MLScore,
		&e.FinalScore, &e.Level, &e.Action, &e.BehaviorScore, &e.AmountScore, &e.ReceiverScore,
		pq.Array(&e.Factors), pq.Array(&e.Recommendations), &featureBytes, &e.ModelVersion,
		&e.RulesetVersion, &e.ProcessingMs, &e.AssessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrTransactionNotFound
		}
		return nil, err
	}

	if len(featureBytes) > 0 {
		_ = e.FeatureVector.Scan(featureBytes)
	}
	return e, nil
}
