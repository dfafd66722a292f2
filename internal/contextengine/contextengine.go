// Package contextengine assembles PayerContext and ReceiverContext,
// cache-aside against Redis with a single-round-trip aggregated store
// query underneath. The payer and receiver fetches run concurrently via
// golang.org/x/sync/errgroup since they touch disjoint rows and have no
// ordering dependency.
package contextengine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/cache"
	"github.com/enterprise/riskcore/internal/errs"
	"github.com/enterprise/riskcore/internal/models"
	"github.com/enterprise/riskcore/internal/repositories"
)

// Engine assembles behavioral context for the Rules and ML engines.
type Engine struct {
	cache      *cache.Client
	payers     *repositories.PayerRepository
	txns       *repositories.TransactionRepository
	reputation *repositories.ReceiverReputationRepository
	cacheCfg   configs.CacheConfig
	deadline   configs.DeadlineConfig
	log        zerolog.Logger
}

// NewEngine builds a Context Engine from its dependencies.
func NewEngine(
	cacheClient *cache.Client,
	payers *repositories.PayerRepository,
	txns *repositories.TransactionRepository,
	reputation *repositories.ReceiverReputationRepository,
	cacheCfg configs.CacheConfig,
	deadline configs.DeadlineConfig,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cache:      cacheClient,
		payers:     payers,
		txns:       txns,
		reputation: reputation,
		cacheCfg:   cacheCfg,
		deadline:   deadline,
		log:        log.With().Str("component", "contextengine").Logger(),
	}
}

func payerCacheKey(payerID uuid.UUID) string {
	return fmt.Sprintf("payer:ctx:%s", payerID.String())
}

func receiverCacheKey(receiver string) string {
	return fmt.Sprintf("recv:ctx:%s", receiver)
}

// FetchBoth assembles the PayerContext and ReceiverContext concurrently.
// A store failure on either path, coincident with a cache miss, surfaces
// as ErrStoreUnavailable.
func (e *Engine) FetchBoth(ctx context.Context, payerID uuid.UUID, receiver string) (*models.PayerContext, *models.ReceiverContext, error) {
	var pc *models.PayerContext
	var rc *models.ReceiverContext

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		pc, err = e.GetPayerContext(gctx, payerID)
		return err
	})

	g.Go(func() error {
		var err error
		rc, err = e.GetReceiverContext(gctx, payerID, receiver)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return pc, rc, nil
}

// GetPayerContext returns the payer's behavioral profile, reading from
// cache first and falling back to the store within the configured
// deadlines.
func (e *Engine) GetPayerContext(ctx context.Context, payerID uuid.UUID) (*models.PayerContext, error) {
	key := payerCacheKey(payerID)

	var cached models.PayerContext
	cacheCtx, cancel := context.WithTimeout(ctx, e.deadline.Cache)
	cacheErr := e.cache.Get(cacheCtx, key, &cached)
	cancel()
	if cacheErr == nil {
		return &cached, nil
	}
	if !errors.Is(cacheErr, cache.ErrMiss) {
		e.log.Warn().Err(cacheErr).Str("key", key).Msg("payer context cache read failed, falling through to store")
	}

	storeCtx, storeCancel := context.WithTimeout(ctx, e.deadline.StoreRead)
	defer storeCancel()

	pc, err := e.buildPayerContext(storeCtx, payerID)
	if err != nil {
		if errors.Is(storeCtx.Err(), context.DeadlineExceeded) {
			return nil, errs.ErrStoreUnavailable
		}
		return nil, err
	}

	if setErr := e.cache.Set(ctx, key, pc, e.cacheCfg.PayerTTL); setErr != nil {
		e.log.Warn().Err(setErr).Str("key", key).Msg("payer context cache write failed")
	}

	return pc, nil
}

func (e *Engine) buildPayerContext(ctx context.Context, payerID uuid.UUID) (*models.PayerContext, error) {
	payer, err := e.payers.GetByID(ctx, payerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	agg, err := e.txns.GetPayerAggregate(ctx, payerID, now)
	if err != nil {
		return nil, err
	}

	accountAgeDays := int(now.Sub(payer.CreatedAt).Hours() / 24)

	daysSinceLastTxn := math.Inf(1)
	var lastKnownTs *time.Time
	if agg.LastTxnAt != nil {
		daysSinceLastTxn = now.Sub(*agg.LastTxnAt).Hours() / 24
		lastKnownTs = agg.LastTxnAt
	}

	nightRatio := 0.0
	if agg.TotalTxnCount30d > 0 {
		nightRatio = float64(agg.NightTxnCount30d) / float64(agg.TotalTxnCount30d)
	}

	return &models.PayerContext{
		PayerID:          payerID,
		Tier:             payer.Tier,
		TrustScore:       payer.TrustScore,
		AccountAgeDays:   accountAgeDays,
		AvgAmount7d:      agg.AvgAmount7d,
		AvgAmount30d:     agg.AvgAmount30d,
		MaxAmount7d:      agg.MaxAmount7d,
		TxnCount5min:     agg.TxnCount5min,
		TxnCount1h:       agg.TxnCount1h,
		TxnCount24h:      agg.TxnCount24h,
		DaysSinceLastTxn: daysSinceLastTxn,
		NightTxnRatio:    nightRatio,
		KnownDeviceSet:   payer.KnownDeviceSet,
		LastKnownLat:     agg.LastLatitude,
		LastKnownLon:     agg.LastLongitude,
		LastKnownTs:      lastKnownTs,
		FailedTxnCount7d: agg.FailedTxnCount7d,
	}, nil
}

// GetReceiverContext returns the receiver's behavioral profile combined
// with this payer's history against it.
func (e *Engine) GetReceiverContext(ctx context.Context, payerID uuid.UUID, receiver string) (*models.ReceiverContext, error) {
	key := receiverCacheKey(receiver)

	var cached models.ReceiverContext
	cacheCtx, cancel := context.WithTimeout(ctx, e.deadline.Cache)
	cacheErr := e.cache.Get(cacheCtx, key, &cached)
	cancel()

	var base models.ReceiverContext
	if cacheErr == nil {
		base = cached
	} else {
		if !errors.Is(cacheErr, cache.ErrMiss) {
			e.log.Warn().Err(cacheErr).Str("key", key).Msg("receiver context cache read failed, falling through to store")
		}

		storeCtx, storeCancel := context.WithTimeout(ctx, e.deadline.StoreRead)
		built, err := e.buildReceiverBase(storeCtx, receiver)
		storeCancel()
		if err != nil {
			if errors.Is(storeCtx.Err(), context.DeadlineExceeded) {
				return nil, errs.ErrStoreUnavailable
			}
			return nil, err
		}
		base = *built

		if setErr := e.cache.Set(ctx, key, base, e.cacheCfg.ReceiverTTL); setErr != nil {
			e.log.Warn().Err(setErr).Str("key", key).Msg("receiver context cache write failed")
		}
	}

	// Payer-specific history is never cached at the shared receiver key
	// (it would leak across payers), so it is always fetched fresh.
	payerCtx, payerCancel := context.WithTimeout(ctx, e.deadline.StoreRead)
	defer payerCancel()

	count, err := e.txns.CountByPayerAndReceiver(payerCtx, payerID, receiver)
	if err != nil {
		if errors.Is(payerCtx.Err(), context.DeadlineExceeded) {
			return nil, errs.ErrStoreUnavailable
		}
		return nil, err
	}

	base.PayerReceiverTxnCount = count
	base.IsNewForThisPayer = count == 0

	return &base, nil
}

func (e *Engine) buildReceiverBase(ctx context.Context, receiver string) (*models.ReceiverContext, error) {
	rep, err := e.reputation.GetByReceiver(ctx, receiver)
	if err != nil {
		if errors.Is(err, repositories.ErrReceiverNotFound) {
			// Neutral prior for a never-before-seen receiver.
			return &models.ReceiverContext{
				Receiver:          receiver,
				ReputationScore:   0.5,
				TotalTransactions: 0,
				FraudCount:        0,
			}, nil
		}
		return nil, err
	}

	return &models.ReceiverContext{
		Receiver:          rep.Receiver,
		ReputationScore:   rep.ReputationScore,
		TotalTransactions: rep.TotalTransactions,
		FraudCount:        rep.FraudCount,
	}, nil
}

// InvalidatePayer removes the cached payer context, used by the Trust
// Updater after a trustScore mutation.
func (e *Engine) InvalidatePayer(ctx context.Context, payerID uuid.UUID) error {
	return e.cache.Delete(ctx, payerCacheKey(payerID))
}

// InvalidateReceiver removes the cached receiver context, used by the
// Trust Updater after a reputation mutation.
func (e *Engine) InvalidateReceiver(ctx context.Context, receiver string) error {
	return e.cache.Delete(ctx, receiverCacheKey(receiver))
}
