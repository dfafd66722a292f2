// Package trust implements the Trust/Reputation Updater: applies a
// payment Outcome to a payer's trustScore and a receiver's reputation
// counters, serialized per (payerId, receiver) behind a distributed lock
// held in Redis so two instances of this service never race on the same
// pair, and deduped per transactionId so an at-least-once redelivery of
// the same outcome report never double-applies its delta.
package trust

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/enterprise/riskcore/internal/cache"
	"github.com/enterprise/riskcore/internal/contextengine"
	"github.com/enterprise/riskcore/internal/models"
	"github.com/enterprise/riskcore/internal/repositories"
)

// deltaTable is the fixed trustScore adjustment per outcome.
var deltaTable = map[models.Outcome]int{
	models.OutcomeSuccess:       1,
	models.OutcomeFraudReported: -10,
	models.OutcomeChargeback:    -10,
	models.OutcomeOTPFailed:     -1,
	models.OutcomeKYCVerified:   5,
	models.OutcomeFailed:        0,
}

const (
	minTrustScore = 0
	maxTrustScore = 100
	lockTTL       = 5 * time.Second
)

// Updater applies outcomes and keeps payer trust / receiver reputation
// consistent with the context cache.
type Updater struct {
	cache      *cache.Client
	payers     *repositories.PayerRepository
	reputation *repositories.ReceiverReputationRepository
	processed  *repositories.ProcessedOutcomeRepository
	db         *repositories.Database
	ctxEngine  *contextengine.Engine
	log        zerolog.Logger
}

// NewUpdater builds a Trust/Reputation Updater from its dependencies.
func NewUpdater(
	cacheClient *cache.Client,
	payers *repositories.PayerRepository,
	reputation *repositories.ReceiverReputationRepository,
	processed *repositories.ProcessedOutcomeRepository,
	db *repositories.Database,
	ctxEngine *contextengine.Engine,
	log zerolog.Logger,
) *Updater {
	return &Updater{
		cache:      cacheClient,
		payers:     payers,
		reputation: reputation,
		processed:  processed,
		db:         db,
		ctxEngine:  ctxEngine,
		log:        log.With().Str("component", "trust").Logger(),
	}
}

func lockKey(payerID uuid.UUID, receiver string) string {
	return fmt.Sprintf("trust:lock:%s:%s", payerID.String(), receiver)
}

// ApplyOutcome mutates the payer's trustScore and the receiver's
// reputation counters for one payment outcome, serialized per
// (payerId, receiver) so concurrent outcome reports never interleave.
//
// Outcome delivery is at-least-once, so the mutation itself is deduped
// on transactionID: a redelivered (transactionId, outcome) pair must
// change state only once. The lock above only prevents concurrent
// races on the same payer/receiver pair, not a later replay of the same
// report, so the transactionID dedupe check runs independently of it.
func (u *Updater) ApplyOutcome(ctx context.Context, transactionID uuid.UUID, payerID uuid.UUID, receiver string, outcome models.Outcome) error {
	key := lockKey(payerID, receiver)

	acquired, err := u.cache.SetNX(ctx, key, lockTTL)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("trust: concurrent update in progress for payer %s / receiver %s", payerID, receiver)
	}
	defer func() {
		if delErr := u.cache.Delete(ctx, key); delErr != nil {
			u.log.Warn().Err(delErr).Str("key", key).Msg("failed to release trust update lock")
		}
	}()

	firstApplication, err := u.processed.MarkProcessed(ctx, transactionID, string(outcome))
	if err != nil {
		return err
	}
	if !firstApplication {
		u.log.Info().Str("transaction_id", transactionID.String()).Msg("outcome already processed, skipping duplicate delivery")
		return nil
	}

	if err := u.applyTrustScore(ctx, payerID, outcome); err != nil {
		return err
	}

	if err := u.applyReputation(ctx, receiver, outcome); err != nil {
		return err
	}

	if invErr := u.ctxEngine.InvalidatePayer(ctx, payerID); invErr != nil {
		u.log.Warn().Err(invErr).Msg("failed to invalidate payer context cache after outcome")
	}
	if invErr := u.ctxEngine.InvalidateReceiver(ctx, receiver); invErr != nil {
		u.log.Warn().Err(invErr).Msg("failed to invalidate receiver context cache after outcome")
	}

	return nil
}

func (u *Updater) applyTrustScore(ctx context.Context, payerID uuid.UUID, outcome models.Outcome) error {
	delta, ok := deltaTable[outcome]
	if !ok {
		return fmt.Errorf("trust: unrecognized outcome %q", outcome)
	}
	if delta == 0 {
		return nil
	}

	payer, err := u.payers.GetByID(ctx, payerID)
	if err != nil {
		return err
	}

	newScore := payer.TrustScore + delta
	if newScore < minTrustScore {
		newScore = minTrustScore
	}
	if newScore > maxTrustScore {
		newScore = maxTrustScore
	}

	return u.payers.UpdateTrustScore(ctx, payerID, newScore)
}

func (u *Updater) applyReputation(ctx context.Context, receiver string, outcome models.Outcome) error {
	rep, err := u.reputation.GetByReceiver(ctx, receiver)
	if err != nil {
		if err != repositories.ErrReceiverNotFound {
			return err
		}
		rep = &models.ReceiverReputation{Receiver: receiver}
	}

	rep.TotalTransactions++
	switch outcome {
	case models.OutcomeFraudReported:
		rep.FraudCount++
	case models.OutcomeChargeback:
		rep.ChargebackCount++
	case models.OutcomeSuccess:
		rep.SuccessfulTransactions++
	}
	rep.RecomputeReputationScore()

	return u.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return u.reputation.Upsert(ctx, tx, rep)
	})
}
