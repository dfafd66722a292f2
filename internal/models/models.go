package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Tier is the coarse bucketing of payer trust used for score blending.
type Tier string

const (
	TierBronze Tier = "BRONZE"
	TierSilver Tier = "SILVER"
	TierGold   Tier = "GOLD"
)

// TierFromTrustScore buckets a trustScore in [0,100] into its tier.
func TierFromTrustScore(trustScore int) Tier {
	switch {
	case trustScore <= 30:
		return TierBronze
	case trustScore <= 70:
		return TierSilver
	default:
		return TierGold
	}
}

// PaymentMode enumerates how a transaction was initiated.
type PaymentMode string

const (
	PaymentModeQR     PaymentMode = "QR"
	PaymentModeMobile PaymentMode = "MOBILE"
	PaymentModeUPIApp PaymentMode = "UPI_APP"
)

// PaymentModeIndex returns the fixed categorical encoding used by the
// feature vector (0-based index 1, ml.FeatPaymentMode): QR=0, MOBILE=1,
// UPI_APP=2.
func PaymentModeIndex(m PaymentMode) int {
	switch m {
	case PaymentModeMobile:
		return 1
	case PaymentModeUPIApp:
		return 2
	default:
		return 0
	}
}

// ReceiverType enumerates the kind of receiver handle.
type ReceiverType string

const (
	ReceiverTypePhone ReceiverType = "PHONE"
	ReceiverTypeVPA   ReceiverType = "VPA"
)

// ReceiverTypeIndex returns the fixed categorical encoding (0-based
// index 2, ml.FeatReceiverType): PHONE=0, VPA=1.
func ReceiverTypeIndex(r ReceiverType) int {
	if r == ReceiverTypeVPA {
		return 1
	}
	return 0
}

// TransactionStatus is the lifecycle state of a Transaction.
type TransactionStatus string

const (
	TransactionStatusPendingAssessment TransactionStatus = "PENDING_ASSESSMENT"
	TransactionStatusAssessed          TransactionStatus = "ASSESSED"
	TransactionStatusExecuted          TransactionStatus = "EXECUTED"
	TransactionStatusBlocked           TransactionStatus = "BLOCKED"
	TransactionStatusCancelled         TransactionStatus = "CANCELLED"
)

// Level is the categorical risk level of an assessment.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelModerate Level = "MODERATE"
	LevelHigh     Level = "HIGH"
	LevelVeryHigh Level = "VERY_HIGH"
)

// Action is the decision produced for a transaction.
type Action string

const (
	ActionAllow       Action = "ALLOW"
	ActionWarn        Action = "WARN"
	ActionOTPRequired Action = "OTP_REQUIRED"
	ActionBlock       Action = "BLOCK"
)

// Outcome is the result of a payment execution attempt, fed back to the
// Trust/Reputation Updater.
type Outcome string

const (
	OutcomeSuccess       Outcome = "SUCCESS"
	OutcomeFailed        Outcome = "FAILED"
	OutcomeFraudReported Outcome = "FRAUD_REPORTED"
	OutcomeChargeback    Outcome = "CHARGEBACK"
	OutcomeOTPFailed     Outcome = "OTP_FAILED"
	OutcomeKYCVerified   Outcome = "KYC_VERIFIED"
)

// Severity of a triggered rule result.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Payer is the authenticated party initiating a transaction.
type Payer struct {
	ID             uuid.UUID `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	TrustScore     int       `json:"trust_score"`
	Tier           Tier      `json:"tier"`
	KnownDeviceSet []string  `json:"known_device_set"`
}

// Transaction is a single proposed payment.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	PayerID           uuid.UUID         `json:"payer_id"`
	Receiver          string            `json:"receiver"` // normalized lowercase
	ReceiverType      ReceiverType      `json:"receiver_type"`
	AmountPaise       int64             `json:"amount_paise"` // fixed-point: scaled integer paise
	TimestampUTC      time.Time         `json:"timestamp_utc"`
	DeviceFingerprint string            `json:"device_fingerprint"`
	Latitude          *float64          `json:"latitude,omitempty"`
	Longitude         *float64          `json:"longitude,omitempty"`
	PaymentMode       PaymentMode       `json:"payment_mode"`
	Status            TransactionStatus `json:"status"`
	IdempotencyKey    string            `json:"idempotency_key"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Amount returns the transaction amount as a float in major currency units.
func (t *Transaction) Amount() float64 {
	return float64(t.AmountPaise) / 100.0
}

// RiskAssessment is the immutable result of scoring a Transaction.
type RiskAssessment struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	FinalScore      float64   `json:"final_score"`
	Level           Level     `json:"level"`
	Action          Action    `json:"action"`
	BehaviorScore   float64   `json:"behavior_score"`
	AmountScore     float64   `json:"amount_score"`
	ReceiverScore   float64   `json:"receiver_score"`
	MLScore         float64   `json:"ml_score"`
	Flags           []string  `json:"flags"`
	Factors         []string  `json:"factors"`
	Recommendations []string  `json:"recommendations"`
	ModelVersion    string    `json:"model_version"`
	RulesetVersion  string    `json:"ruleset_version"`
	ProcessingMs    int64     `json:"processing_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReceiverReputation is keyed by normalized receiver handle.
type ReceiverReputation struct {
	Receiver               string    `json:"receiver"`
	TotalTransactions      int64     `json:"total_transactions"`
	FraudCount             int64     `json:"fraud_count"`
	ChargebackCount        int64     `json:"chargeback_count"`
	SuccessfulTransactions int64     `json:"successful_transactions"`
	ReputationScore        float64   `json:"reputation_score"`
	FirstSeen              time.Time `json:"first_seen"`
	LastUpdated            time.Time `json:"last_updated"`
}

// FraudRatio returns fraudCount/totalTransactions, or 0 when there have
// been no transactions yet.
func (r *ReceiverReputation) FraudRatio() float64 {
	if r.TotalTransactions == 0 {
		return 0
	}
	return float64(r.FraudCount) / float64(r.TotalTransactions)
}

// RecomputeReputationScore sets reputationScore = 1 - fraudRatio when
// transactions exist, else a 0.5 neutral prior.
func (r *ReceiverReputation) RecomputeReputationScore() {
	if r.TotalTransactions > 0 {
		r.ReputationScore = 1 - r.FraudRatio()
		return
	}
	r.ReputationScore = 0.5
}

// RiskEvent is the append-only audit record for one assessment. It
// carries the full RiskAssessment snapshot (not just the rule/ml scores),
// so a stored row is sufficient to rehydrate the exact response an
// idempotent replay must return.
type RiskEvent struct {
	ID              uuid.UUID `json:"id"`
	TransactionID   uuid.UUID `json:"transaction_id"`
	PayerID         uuid.UUID `json:"payer_id"`
	Flags           []string  `json:"flags"`
	RuleScore       float64   `json:"rule_score"`
	MLScore         float64   `json:"ml_score"`
	FinalScore      float64   `json:"final_score"`
	Level           Level     `json:"level"`
	Action          Action    `json:"action"`
	BehaviorScore   float64   `json:"behavior_score"`
	AmountScore     float64   `json:"amount_score"`
	ReceiverScore   float64   `json:"receiver_score"`
	Factors         []string  `json:"factors"`
	Recommendations []string  `json:"recommendations"`
	FeatureVector   JSONB     `json:"feature_vector"`
	ModelVersion    string    `json:"model_version"`
	RulesetVersion  string    `json:"ruleset_version"`
	ProcessingMs    int64     `json:"processing_ms"`
	AssessedAt      time.Time `json:"assessed_at"`
}

// ToRiskAssessment rehydrates the exact RiskAssessment snapshot this
// event was written from, used to serve an idempotent replay without
// recomputing anything.
func (e *RiskEvent) ToRiskAssessment() *RiskAssessment {
	return &RiskAssessment{
		TransactionID:   e.TransactionID,
		FinalScore:      e.FinalScore,
		Level:           e.Level,
		Action:          e.Action,
		BehaviorScore:   e.BehaviorScore,
		AmountScore:     e.AmountScore,
		ReceiverScore:   e.ReceiverScore,
		MLScore:         e.MLScore,
		Flags:           e.Flags,
		Factors:         e.Factors,
		Recommendations: e.Recommendations,
		ModelVersion:    e.ModelVersion,
		RulesetVersion:  e.RulesetVersion,
		ProcessingMs:    e.ProcessingMs,
		CreatedAt:       e.AssessedAt,
	}
}

// PayerContext is the behavioral profile assembled by the Context Engine
// for a single payer, sufficient for both Rules and ML feature engineering.
type PayerContext struct {
	PayerID          uuid.UUID
	Tier             Tier
	TrustScore       int
	AccountAgeDays   int
	AvgAmount7d      float64
	AvgAmount30d     float64
	MaxAmount7d      float64
	TxnCount5min     int
	TxnCount1h       int
	TxnCount24h      int
	DaysSinceLastTxn float64 // math.Inf(1) when there is no prior transaction
	NightTxnRatio    float64
	KnownDeviceSet   []string
	LastKnownLat     *float64
	LastKnownLon     *float64
	LastKnownTs      *time.Time
	FailedTxnCount7d int
}

// HasKnownDevice reports whether the fingerprint is in the known set.
func (c *PayerContext) HasKnownDevice(fingerprint string) bool {
	for _, d := range c.KnownDeviceSet {
		if d == fingerprint {
			return true
		}
	}
	return false
}

// ReceiverContext is the behavioral profile assembled for a receiver,
// combining the global reputation record with payer-specific history.
type ReceiverContext struct {
	Receiver              string
	ReputationScore       float64
	TotalTransactions     int64
	FraudCount            int64
	IsNewForThisPayer     bool
	PayerReceiverTxnCount int
}

// FraudRatio mirrors ReceiverReputation.FraudRatio for the assembled context.
func (c *ReceiverContext) FraudRatio() float64 {
	if c.TotalTransactions == 0 {
		return 0
	}
	return float64(c.FraudCount) / float64(c.TotalTransactions)
}

// RuleResult is the per-rule outcome produced by the Rules Engine.
type RuleResult struct {
	Code      string   `json:"code"`
	Triggered bool     `json:"triggered"`
	Severity  Severity `json:"severity"`
	Score     float64  `json:"score"`
	Message   string   `json:"message"`
}

// JSONB is a generic JSON document column, round-tripping through
// database/sql's Valuer/Scanner interfaces.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("models: JSONB.Scan: type assertion to []byte failed")
	}
	return json.Unmarshal(bytes, j)
}
