// Package orchestrator implements the Risk Orchestrator: the single
// Assess entrypoint that sequences context assembly, rule evaluation, ML
// scoring, decisioning, and atomic persistence under a wall-clock
// deadline.
package orchestrator

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/contextengine"
	"github.com/enterprise/riskcore/internal/decision"
	"github.com/enterprise/riskcore/internal/errs"
	"github.com/enterprise/riskcore/internal/ml"
	"github.com/enterprise/riskcore/internal/models"
	"github.com/enterprise/riskcore/internal/repositories"
	"github.com/enterprise/riskcore/internal/retryqueue"
	"github.com/enterprise/riskcore/internal/rules"
)

// Request is the assessment ingress record.
type Request struct {
	PayerID           uuid.UUID
	Amount            float64
	Receiver          string
	ReceiverType      models.ReceiverType
	DeviceFingerprint string
	TimestampUTC      time.Time
	Latitude          *float64
	Longitude         *float64
	PaymentMode       models.PaymentMode
	IdempotencyKey    string
}

// Orchestrator sequences every engine behind one Assess call.
type Orchestrator struct {
	ctxEngine  *contextengine.Engine
	rules      *rules.Engine
	scorer     ml.Scorer
	decision   *decision.Engine
	payers     *repositories.PayerRepository
	txns       *repositories.TransactionRepository
	riskEvents *repositories.RiskEventRepository
	db         *repositories.Database
	retryProd  *retryqueue.Producer
	deadline   configs.DeadlineConfig
	knownMax   int
	log        zerolog.Logger
}

// New builds a Risk Orchestrator from its dependencies.
func New(
	ctxEngine *contextengine.Engine,
	rulesEngine *rules.Engine,
	scorer ml.Scorer,
	decisionEngine *decision.Engine,
	payers *repositories.PayerRepository,
	txns *repositories.TransactionRepository,
	riskEvents *repositories.RiskEventRepository,
	db *repositories.Database,
	retryProd *retryqueue.Producer,
	deadline configs.DeadlineConfig,
	knownDeviceSetMax int,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		ctxEngine:  ctxEngine,
		rules:      rulesEngine,
		scorer:     scorer,
		decision:   decisionEngine,
		payers:     payers,
		txns:       txns,
		riskEvents: riskEvents,
		db:         db,
		retryProd:  retryProd,
		deadline:   deadline,
		knownMax:   knownDeviceSetMax,
		log:        log.With().Str("component", "orchestrator").Logger(),
	}
}

// Assess runs the full risk assessment pipeline for one transaction.
func (o *Orchestrator) Assess(ctx context.Context, req Request) (*models.RiskAssessment, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, o.deadline.Total)
	defer cancel()

	req.Receiver = strings.ToLower(req.Receiver)

	if req.IdempotencyKey != "" {
		if existing, err := o.replay(ctx, req.IdempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	tx := &models.Transaction{
		PayerID:           req.PayerID,
		Receiver:          req.Receiver,
		ReceiverType:      req.ReceiverType,
		AmountPaise:       int64(math.Round(req.Amount * 100)),
		TimestampUTC:      req.TimestampUTC,
		DeviceFingerprint: req.DeviceFingerprint,
		Latitude:          req.Latitude,
		Longitude:         req.Longitude,
		PaymentMode:       req.PaymentMode,
		Status:            models.TransactionStatusPendingAssessment,
		IdempotencyKey:    req.IdempotencyKey,
	}

	// Step 1: context assembly, concurrently.
	pc, rc, err := o.ctxEngine.FetchBoth(ctx, req.PayerID, req.Receiver)
	if err != nil {
		return nil, o.translateTimeout(ctx, err)
	}

	// Step 2: rules.
	ruleResult := o.rules.Evaluate(tx, pc, rc)

	// Step 3: ML, skipped on hardBlock.
	fv := ml.Build(tx, pc, rc)
	mlScore := 0.0
	modelVersion := ml.FallbackModelVersion
	degraded := false

	if !ruleResult.HardBlock {
		mlCtx, mlCancel := context.WithTimeout(ctx, o.deadline.ML)
		score, version, predictErr := o.scorer.Predict(mlCtx, fv)
		mlCancel()

		if predictErr != nil {
			deviceChanged := hasFlag(ruleResult.Flags, rules.CodeDeviceChange)
			mlScore = ml.FallbackWithContext(fv, rc.FraudRatio(), deviceChanged)
			degraded = true
		} else {
			mlScore = score
			modelVersion = version
		}
	}

	// Step 4: decision.
	out := o.decision.Decide(decision.Input{
		Tier:       pc.Tier,
		RuleResult: ruleResult,
		MLScore:    mlScore,
	})

	flags := append([]string{}, ruleResult.Flags...)
	if degraded {
		flags = append(flags, "ML_DEGRADED")
	}

	tx.Status = models.TransactionStatusAssessed
	processingMs := time.Since(start).Milliseconds()

	assessment := &models.RiskAssessment{
		FinalScore:      out.FinalScore,
		Level:           out.Level,
		Action:          out.Action,
		BehaviorScore:   out.BehaviorScore,
		AmountScore:     out.AmountScore,
		ReceiverScore:   out.ReceiverScore,
		MLScore:         out.MLScore,
		Flags:           flags,
		Factors:         out.Factors,
		Recommendations: out.Recommendations,
		ModelVersion:    modelVersion,
		RulesetVersion:  o.rules.RulesetVersion(),
		ProcessingMs:    processingMs,
		CreatedAt:       time.Now().UTC(),
	}

	// The full assessment snapshot is persisted on the RiskEvent, not just
	// the rule/ml scores, so an idempotent replay can return it unchanged
	// instead of reconstructing a partial one.
	event := &models.RiskEvent{
		PayerID:         req.PayerID,
		Flags:           flags,
		RuleScore:       ruleResult.RuleScore,
		MLScore:         mlScore,
		FinalScore:      out.FinalScore,
		Level:           out.Level,
		Action:          out.Action,
		BehaviorScore:   out.BehaviorScore,
		AmountScore:     out.AmountScore,
		ReceiverScore:   out.ReceiverScore,
		Factors:         out.Factors,
		Recommendations: out.Recommendations,
		FeatureVector:   featureVectorJSON(fv),
		ModelVersion:    modelVersion,
		RulesetVersion:  o.rules.RulesetVersion(),
		ProcessingMs:    processingMs,
	}

	// Step 5: atomic persistence of Transaction + RiskEvent.
	writeCtx, writeCancel := context.WithTimeout(ctx, o.deadline.StoreWrite)
	writeErr := o.db.WithTransaction(writeCtx, func(dbTx pgx.Tx) error {
		if err := o.txns.Create(writeCtx, dbTx, tx); err != nil {
			return err
		}
		event.TransactionID = tx.ID
		return o.riskEvents.Create(writeCtx, dbTx, event)
	})
	writeCancel()

	if writeErr != nil {
		o.log.Error().Err(writeErr).Msg("atomic persistence failed, deferring risk event to retry queue")
		if event.TransactionID == uuid.Nil {
			event.TransactionID = tx.ID
		}
		if enqueueErr := o.retryProd.Enqueue(ctx, event); enqueueErr != nil {
			o.log.Error().Err(enqueueErr).Msg("failed to enqueue deferred risk event")
		}
	}

	if appendErr := o.payers.AppendKnownDevice(ctx, req.PayerID, req.DeviceFingerprint, o.knownMax); appendErr != nil {
		o.log.Warn().Err(appendErr).Msg("failed to append known device fingerprint")
	}

	assessment.TransactionID = tx.ID

	return assessment, nil
}

func (o *Orchestrator) replay(ctx context.Context, idempotencyKey string) (*models.RiskAssessment, error) {
	existing, err := o.txns.GetByIdempotencyKey(ctx, idempotencyKey)
	if err != nil {
		if errors.Is(err, errs.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}

	event, err := o.riskEvents.GetByTransactionID(ctx, existing.ID)
	if err != nil {
		return nil, err
	}

	return event.ToRiskAssessment(), nil
}

func (o *Orchestrator) translateTimeout(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errs.ErrTimeout
	}
	return err
}

func hasFlag(flags []string, code string) bool {
	for _, f := range flags {
		if f == code {
			return true
		}
	}
	return false
}

// featureVectorJSON converts the fixed-shape feature vector into the
// JSONB column format stored on the RiskEvent audit record.
func featureVectorJSON(fv ml.FeatureVector) models.JSONB {
	out := make(models.JSONB, len(fv))
	for i, v := range fv {
		out[ml.FeatureNames[i]] = v
	}
	return out
}
