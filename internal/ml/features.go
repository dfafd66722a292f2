// Package ml implements the ML Scoring Engine: fixed-shape feature vector
// construction and a pluggable classifier with a deterministic fallback
// heuristic, computed entirely in Go with no external ML framework
// dependency (see DESIGN.md).
package ml

import (
	"math"
	"time"

	"github.com/enterprise/riskcore/internal/models"
)

// FeatureVector is the 22-feature, fixed-order input to the classifier.
// Field order must never change: the trained model artifact depends on
// it.
type FeatureVector [22]float64

// Feature indices, named for readability; values at indices 1 (payment
// mode), 2 (receiver type), and 21 (risk profile) are categorical
// integers stored as float64.
const (
	FeatAmount = iota
	FeatPaymentMode
	FeatReceiverType
	FeatIsNewReceiver
	FeatAvgAmount7d
	FeatAvgAmount30d
	FeatMaxAmount7d
	FeatTxnCount1h
	FeatTxnCount24h
	FeatDaysSinceLastTxn
	FeatNightTxnRatio
	FeatLocationMismatch
	FeatIsNight
	FeatIsRoundAmount
	FeatVelocityCheck
	FeatDeviationFromSenderAvg
	FeatExceedsRecentMax
	FeatAmountLog
	FeatHourSin
	FeatHourCos
	FeatRatio30d
	FeatRiskProfile
)

// FeatureNames labels each index for audit-trail serialization (RiskEvent
// FeatureVector column); order matches the Feat* constants above.
var FeatureNames = [22]string{
	"amount",
	"payment_mode",
	"receiver_type",
	"is_new_receiver",
	"avg_amount_7d",
	"avg_amount_30d",
	"max_amount_7d",
	"txn_count_1h",
	"txn_count_24h",
	"days_since_last_txn",
	"night_txn_ratio",
	"location_mismatch",
	"is_night",
	"is_round_amount",
	"velocity_check",
	"deviation_from_sender_avg",
	"exceeds_recent_max",
	"amount_log",
	"hour_sin",
	"hour_cos",
	"ratio_30d",
	"risk_profile",
}

// Build constructs the feature vector for one transaction.
func Build(tx *models.Transaction, pc *models.PayerContext, rc *models.ReceiverContext) FeatureVector {
	amount := tx.Amount()
	hour := float64(tx.TimestampUTC.Hour())
	isNight := isNightHour(tx.TimestampUTC)
	deviation := amount / (pc.AvgAmount30d + 1)

	var fv FeatureVector
	fv[FeatAmount] = amount
	fv[FeatPaymentMode] = float64(models.PaymentModeIndex(tx.PaymentMode))
	fv[FeatReceiverType] = float64(models.ReceiverTypeIndex(tx.ReceiverType))
	fv[FeatIsNewReceiver] = boolFeature(rc.IsNewForThisPayer)
	fv[FeatAvgAmount7d] = pc.AvgAmount7d
	fv[FeatAvgAmount30d] = pc.AvgAmount30d
	fv[FeatMaxAmount7d] = pc.MaxAmount7d
	fv[FeatTxnCount1h] = float64(pc.TxnCount1h)
	fv[FeatTxnCount24h] = float64(pc.TxnCount24h)
	fv[FeatDaysSinceLastTxn] = pc.DaysSinceLastTxn
	fv[FeatNightTxnRatio] = pc.NightTxnRatio
	fv[FeatLocationMismatch] = 0 // reserved for a future location-mismatch signal
	fv[FeatIsNight] = boolFeature(isNight)
	fv[FeatIsRoundAmount] = boolFeature(math.Mod(amount, 100) == 0)
	fv[FeatVelocityCheck] = boolFeature(pc.TxnCount1h > 5)
	fv[FeatDeviationFromSenderAvg] = deviation
	fv[FeatExceedsRecentMax] = boolFeature(pc.MaxAmount7d > 0 && amount > pc.MaxAmount7d)
	fv[FeatAmountLog] = math.Log(1 + amount)
	fv[FeatHourSin] = math.Sin(2 * math.Pi * hour / 24)
	fv[FeatHourCos] = math.Cos(2 * math.Pi * hour / 24)
	fv[FeatRatio30d] = deviation
	fv[FeatRiskProfile] = boolFeature(rc.ReputationScore >= 0.5)

	return fv
}

func isNightHour(t time.Time) bool {
	h := t.Hour()
	return h >= 23 || h <= 5
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
