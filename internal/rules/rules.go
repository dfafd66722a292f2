// Package rules implements the Rules Engine: deterministic evaluation of
// a fixed, versioned catalog (RULESET_V) against (Transaction,
// PayerContext, ReceiverContext), expressed as one ordered slice of pure
// evaluator functions.
package rules

import (
	"fmt"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/geo"
	"github.com/enterprise/riskcore/internal/models"
)

// Rule codes, in catalog order.
const (
	CodeVelocitySpike         = "VELOCITY_SPIKE"
	CodeBlacklisted           = "BLACKLISTED"
	CodeNewReceiverHighAmount = "NEW_RECEIVER_HIGH_AMOUNT"
	CodeAmountAnomaly         = "AMOUNT_ANOMALY"
	CodeDeviceChange          = "DEVICE_CHANGE"
	CodeHighFailedTxn         = "HIGH_FAILED_TXN"
	CodeImpossibleTravel      = "IMPOSSIBLE_TRAVEL"
	CodeSuspiciousTravel      = "SUSPICIOUS_TRAVEL"
)

// Result is the aggregate output of a single Evaluate call.
type Result struct {
	Rules     []models.RuleResult
	RuleScore float64
	Flags     []string
	HardBlock bool
}

// Engine evaluates the fixed rule catalog.
type Engine struct {
	rulesetVersion   string
	geoSupersonicKmh float64
	geoSuspiciousKmh float64
}

// NewEngine builds an Engine from operator configuration.
func NewEngine(cfg configs.RiskConfig) *Engine {
	return &Engine{
		rulesetVersion:   cfg.RulesetVersion,
		geoSupersonicKmh: cfg.GeoSupersonicKmh,
		geoSuspiciousKmh: cfg.GeoSuspiciousKmh,
	}
}

// RulesetVersion returns the versioned catalog identifier recorded on
// every RiskEvent.
func (e *Engine) RulesetVersion() string {
	return e.rulesetVersion
}

type evalFunc func(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult

// catalog is the fixed evaluation order. hardBlock short-circuits: once a
// rule with hardBlock=true triggers, no later rule in the catalog runs.
var catalog = []evalFunc{
	evalVelocitySpike,
	evalBlacklisted,
	evalNewReceiverHighAmount,
	evalAmountAnomaly,
	evalDeviceChange,
	evalHighFailedTxn,
	evalImpossibleTravel,
	evalSuspiciousTravel,
}

// Evaluate runs the catalog and returns the aggregate result. Every rule
// is total over its input domain: missing optional inputs (no
// geolocation) simply do not trigger, never error.
func (e *Engine) Evaluate(tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) Result {
	result := Result{}

	for _, fn := range catalog {
		rr := fn(e, tx, pc, rc)
		result.Rules = append(result.Rules, rr)
		if !rr.Triggered {
			continue
		}
		result.RuleScore += rr.Score
		result.Flags = append(result.Flags, rr.Code)
		if rr.Code == CodeBlacklisted {
			result.HardBlock = true
			break
		}
	}

	if result.RuleScore > 1 {
		result.RuleScore = 1
	}
	if result.RuleScore < 0 {
		result.RuleScore = 0
	}

	return result
}

func evalVelocitySpike(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	triggered := false
	score := 0.0

	switch {
	case pc.TxnCount1h >= 15:
		triggered = true
		score = 0.35
	case pc.TxnCount5min >= 5:
		triggered = true
		score = 0.30
	case pc.DaysSinceLastTxn > 7 && pc.TxnCount5min >= 3:
		triggered = true
		score = 0.25
	}

	return models.RuleResult{
		Code:      CodeVelocitySpike,
		Triggered: triggered,
		Severity:  models.SeverityHigh,
		Score:     score,
		Message:   fmt.Sprintf("velocity spike: %d txns in last 5m, %d in last 1h", pc.TxnCount5min, pc.TxnCount1h),
	}
}

func evalBlacklisted(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	triggered := rc.FraudCount >= 7 && rc.TotalTransactions >= 10 && rc.FraudRatio() > 0.70

	score := 0.0
	if triggered {
		score = 1.00
	}

	return models.RuleResult{
		Code:      CodeBlacklisted,
		Triggered: triggered,
		Severity:  models.SeverityCritical,
		Score:     score,
		Message:   "receiver on fraud blacklist",
	}
}

func evalNewReceiverHighAmount(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	triggered := rc.IsNewForThisPayer && tx.Amount() > 3*pc.AvgAmount30d

	score := 0.0
	if triggered {
		score = 0.30
	}

	return models.RuleResult{
		Code:      CodeNewReceiverHighAmount,
		Triggered: triggered,
		Severity:  models.SeverityMedium,
		Score:     score,
		Message:   "large payment to a receiver never paid before",
	}
}

func evalAmountAnomaly(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	amount := tx.Amount()
	score := 0.0

	if amount > 5*pc.AvgAmount30d {
		score += 0.25
	}
	if pc.MaxAmount7d > 0 && amount > 1.5*pc.MaxAmount7d {
		score += 0.10
	}

	return models.RuleResult{
		Code:      CodeAmountAnomaly,
		Triggered: score > 0,
		Severity:  models.SeverityMedium,
		Score:     score,
		Message:   "amount far exceeds recent spending pattern",
	}
}

func evalDeviceChange(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	// An empty known-device set means this is the payer's first
	// transaction; device absence is not a change.
	triggered := len(pc.KnownDeviceSet) > 0 && !pc.HasKnownDevice(tx.DeviceFingerprint)

	score := 0.0
	if triggered {
		score = 0.15
	}

	return models.RuleResult{
		Code:      CodeDeviceChange,
		Triggered: triggered,
		Severity:  models.SeverityMedium,
		Score:     score,
		Message:   "transaction from a previously unseen device",
	}
}

func evalHighFailedTxn(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	triggered := false
	score := 0.0
	severity := models.SeverityLow

	switch {
	case pc.FailedTxnCount7d >= 5:
		triggered = true
		score = 0.20
		severity = models.SeverityMedium
	case pc.FailedTxnCount7d >= 3:
		triggered = true
		score = 0.10
	}

	return models.RuleResult{
		Code:      CodeHighFailedTxn,
		Triggered: triggered,
		Severity:  severity,
		Score:     score,
		Message:   fmt.Sprintf("%d failed transactions in the last 7 days", pc.FailedTxnCount7d),
	}
}

func evalImpossibleTravel(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	speed, ok := travelSpeedKmh(tx, pc)
	triggered := ok && speed > e.geoSupersonicKmh

	score := 0.0
	if triggered {
		score = 0.45
	}

	return models.RuleResult{
		Code:      CodeImpossibleTravel,
		Triggered: triggered,
		Severity:  models.SeverityCritical,
		Score:     score,
		Message:   fmt.Sprintf("implied travel speed %.0f km/h exceeds physical limits", speed),
	}
}

func evalSuspiciousTravel(e *Engine, tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) models.RuleResult {
	speed, ok := travelSpeedKmh(tx, pc)
	triggered := ok && speed > e.geoSuspiciousKmh && speed <= e.geoSupersonicKmh

	score := 0.0
	if triggered {
		score = 0.20
	}

	return models.RuleResult{
		Code:      CodeSuspiciousTravel,
		Triggered: triggered,
		Severity:  models.SeverityHigh,
		Score:     score,
		Message:   fmt.Sprintf("implied travel speed %.0f km/h is unusually fast", speed),
	}
}

// travelSpeedKmh returns the implied speed between the payer's last known
// location and the current transaction's location, and whether both
// locations are present. Absence of either disables both geo rules
// rather than erroring.
func travelSpeedKmh(tx *models.Transaction, pc *models.PayerContext) (float64, bool) {
	if tx.Latitude == nil || tx.Longitude == nil {
		return 0, false
	}
	if pc.LastKnownLat == nil || pc.LastKnownLon == nil || pc.LastKnownTs == nil {
		return 0, false
	}

	elapsedHours := tx.TimestampUTC.Sub(*pc.LastKnownTs).Hours()
	if elapsedHours <= 0 {
		return 0, false
	}

	return geo.SpeedKmh(*pc.LastKnownLat, *pc.LastKnownLon, *tx.Latitude, *tx.Longitude, elapsedHours), true
}
