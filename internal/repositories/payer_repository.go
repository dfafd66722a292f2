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

// PayerRepository handles payer persistence.
type PayerRepository struct {
	db *Database
}

// NewPayerRepository creates a new payer repository.
func NewPayerRepository(db *Database) *PayerRepository {
	return &PayerRepository{db: db}
}

// Create inserts a new payer with the caller's trustScore as given and the
// tier derived from it. No default trustScore is applied: a zero-valued
// TrustScore is stored as 0 (BRONZE).
func (r *PayerRepository) Create(ctx context.Context, payer *models.Payer) error {
	query := `
		INSERT INTO payers (id, created_at, trust_score, tier, known_device_set)
		VALUES ($1, $2, $3, $4, $5)
	`

	payer.ID = uuid.New()
	payer.CreatedAt = time.Now().UTC()
	payer.Tier = models.TierFromTrustScore(payer.TrustScore)

	_, err := r.db.Pool.Exec(ctx, query,
		payer.ID,
		payer.CreatedAt,
		payer.TrustScore,
		payer.Tier,
		pq.Array(payer.KnownDeviceSet),
	)

	return err
}

// GetByID retrieves a payer by ID.
func (r *PayerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Payer, error) {
	query := `
		SELECT id, created_at, trust_score, known_device_set
		FROM payers
		WHERE id = $1
	`

	payer := &models.Payer{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&payer.ID,
		&payer.CreatedAt,
		&payer.TrustScore,
		pq.Array(&payer.KnownDeviceSet),
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrPayerNotFound
		}
		return nil, err
	}

	payer.Tier = models.TierFromTrustScore(payer.TrustScore)
	return payer, nil
}

// UpdateTrustScore persists a new trustScore for a payer, clamped to
// [0,100] by the caller (the Trust Updater), and re-derives the tier.
func (r *PayerRepository) UpdateTrustScore(ctx context.Context, id uuid.UUID, trustScore int) error {
	query := `
		UPDATE payers
		SET trust_score = $2, tier = $3
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, id, trustScore, models.TierFromTrustScore(trustScore))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errs.ErrPayerNotFound
	}
	return nil
}

// AppendKnownDevice inserts a device fingerprint into a payer's known
// device set, bounded to maxSize most recent entries. Insertion order is
// not semantically significant beyond the bound; the most recently
// inserted device is kept at the end so the oldest is trimmed first once
// the bound is exceeded.
func (r *PayerRepository) AppendKnownDevice(ctx context.Context, id uuid.UUID, fingerprint string, maxSize int) error {
	payer, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, d := range payer.KnownDeviceSet {
		if d == fingerprint {
			return nil
		}
	}

	devices := append(payer.KnownDeviceSet, fingerprint)
	if len(devices) > maxSize {
		devices = devices[len(devices)-maxSize:]
	}

	query := `UPDATE payers SET known_device_set = $2 WHERE id = $1`
	_, err = r.db.Pool.Exec(ctx, query, id, pq.Array(devices))
	return err
}
