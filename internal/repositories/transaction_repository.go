package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enterprise/riskcore/internal/errs"
	"github.com/enterprise/riskcore/internal/models"
)

// TransactionRepository handles transaction persistence.
type TransactionRepository struct {
	db *Database
}

// NewTransactionRepository creates a new transaction repository.
func NewTransactionRepository(db *Database) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction within an existing store transaction (used
// by the Orchestrator's atomic write alongside the RiskEvent). Duplicate
// idempotency keys are rejected by the unique constraint on that column.
func (r *TransactionRepository) Create(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, payer_id, receiver, receiver_type, amount_paise, timestamp_utc,
			device_fingerprint, latitude, longitude, payment_mode, status,
			idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	t.ID = uuid.New()
	t.CreatedAt = time.Now().UTC()

	_, err := tx.Exec(ctx, query,
		t.ID,
		t.PayerID,
		t.Receiver,
		t.ReceiverType,
		t.AmountPaise,
		t.TimestampUTC,
		t.DeviceFingerprint,
		t.Latitude,
		t.Longitude,
		t.PaymentMode,
		t.Status,
		t.IdempotencyKey,
		t.CreatedAt,
	)
	return err
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := `
		SELECT id, payer_id, receiver, receiver_type, amount_paise, timestamp_utc,
			   device_fingerprint, latitude, longitude, payment_mode, status,
			   idempotency_key, created_at
		FROM transactions
		WHERE id = $1
	`

	t := &models.Transaction{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.PayerID, &t.Receiver, &t.ReceiverType, &t.AmountPaise, &t.TimestampUTC,
		&t.DeviceFingerprint, &t.Latitude, &t.Longitude, &t.PaymentMode, &t.Status,
		&t.IdempotencyKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetByIdempotencyKey implements the idempotent-replay lookup: repeated
// Assess calls with the same key within the replay window must return
// the identical prior RiskAssessment.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	query := `
		SELECT id, payer_id, receiver, receiver_type, amount_paise, timestamp_utc,
			   device_fingerprint, latitude, longitude, payment_mode, status,
			   idempotency_key, created_at
		FROM transactions
		WHERE idempotency_key = $1 AND created_at >= $2
	`

	t := &models.Transaction{}
	err := r.db.Pool.QueryRow(ctx, query, key, time.Now().UTC().Add(-24*time.Hour)).Scan(
		&t.ID, &t.PayerID, &t.Receiver, &t.ReceiverType, &t.AmountPaise, &t.TimestampUTC,
		&t.DeviceFingerprint, &t.Latitude, &t.Longitude, &t.PaymentMode, &t.Status,
		&t.IdempotencyKey, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrTransactionNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetRecentByPayer retrieves a payer's transactions since a timestamp,
// newest first, used to compute velocity/aggregate features.
func (r *TransactionRepository) GetRecentByPayer(ctx context.Context, payerID uuid.UUID, since time.Time) ([]*models.Transaction, error) {
	query := `
		SELECT id, payer_id, receiver, receiver_type, amount_paise, timestamp_utc,
			   device_fingerprint, latitude, longitude, payment_mode, status,
			   idempotency_key, created_at
		FROM transactions
		WHERE payer_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, payerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		t := &models.Transaction{}
		if err := rows.Scan(
			&t.ID, &t.PayerID, &t.Receiver, &t.ReceiverType, &t.AmountPaise, &t.TimestampUTC,
			&t.DeviceFingerprint, &t.Latitude, &t.Longitude, &t.PaymentMode, &t.Status,
			&t.IdempotencyKey, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PayerAggregate is the single-round-trip aggregate the Context Engine
// needs to build a PayerContext.
type PayerAggregate struct {
	AvgAmount7d      float64
	AvgAmount30d     float64
	MaxAmount7d      float64
	TxnCount5min     int
	TxnCount1h       int
	TxnCount24h      int
	LastTxnAt        *time.Time
	LastLatitude     *float64
	LastLongitude    *float64
	NightTxnCount30d int
	TotalTxnCount30d int
	FailedTxnCount7d int
}

// GetPayerAggregate computes every windowed aggregate the PayerContext
// needs in one query.
func (r *TransactionRepository) GetPayerAggregate(ctx context.Context, payerID uuid.UUID, now time.Time) (*PayerAggregate, error) {
	query := `
		SELECT
			COALESCE(AVG(t.amount_paise) FILTER (WHERE t.timestamp_utc >= $2), 0) / 100.0 AS avg_7d,
			COALESCE(AVG(t.amount_paise) FILTER (WHERE t.timestamp_utc >= $3), 0) / 100.0 AS avg_30d,
			COALESCE(MAX(t.amount_paise) FILTER (WHERE t.timestamp_utc >= $2), 0) / 100.0 AS max_7d,
			COUNT(*) FILTER (WHERE t.timestamp_utc >= $4) AS cnt_5min,
			COUNT(*) FILTER (WHERE t.timestamp_utc >= $5) AS cnt_1h,
			COUNT(*) FILTER (WHERE t.timestamp_utc >= $6) AS cnt_24h,
			MAX(t.timestamp_utc) AS last_txn_at,
			(SELECT lt.latitude FROM transactions lt WHERE lt.payer_id = $1 ORDER BY lt.timestamp_utc DESC LIMIT 1) AS last_lat,
			(SELECT lt.longitude FROM transactions lt WHERE lt.payer_id = $1 ORDER BY lt.timestamp_utc DESC LIMIT 1) AS last_lon,
			COUNT(*) FILTER (WHERE t.timestamp_utc >= $3 AND (EXTRACT(HOUR FROM t.timestamp_utc) >= 23 OR EXTRACT(HOUR FROM t.timestamp_utc) <= 5)) AS night_cnt_30d,
			COUNT(*) FILTER (WHERE t.timestamp_utc >= $3) AS total_cnt_30d,
			COUNT(*) FILTER (WHERE t.timestamp_utc >= $7 AND t.status = 'BLOCKED') AS failed_cnt_7d
		FROM transactions t
		WHERE t.payer_id = $1
	`

	agg := &PayerAggregate{}
	err := r.db.Pool.QueryRow(ctx, query,
		payerID,
		now.Add(-7*24*time.Hour),
		now.Add(-30*24*time.Hour),
		now.Add(-5*time.Minute),
		now.Add(-1*time.Hour),
		now.Add(-24*time.Hour),
		now.Add(-7*24*time.Hour),
	).Scan(
		&agg.AvgAmount7d,
		&agg.AvgAmount30d,
		&agg.MaxAmount7d,
		&agg.TxnCount5min,
		&agg.TxnCount1h,
		&agg.TxnCount24h,
		&agg.LastTxnAt,
		&agg.LastLatitude,
		&agg.LastLongitude,
		&agg.NightTxnCount30d,
		&agg.TotalTxnCount30d,
		&agg.FailedTxnCount7d,
	)
	if err != nil {
		return nil, err
	}
	return agg, nil
}

// CountByPayerAndReceiver returns how many prior transactions this payer
// has sent to this receiver, for ReceiverContext.PayerReceiverTxnCount /
// IsNewForThisPayer.
func (r *TransactionRepository) CountByPayerAndReceiver(ctx context.Context, payerID uuid.UUID, receiver string) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE payer_id = $1 AND receiver = $2`
	var count int
	err := r.db.Pool.QueryRow(ctx, query, payerID, receiver).Scan(&count)
	return count, err
}
