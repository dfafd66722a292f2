// Package decision implements the Decision Engine: combines rule and ML
// subscores, applies tier adjustment, maps to an action, and builds the
// human-readable explanation, following a tier-dependent weighted blend
// with additive flag bumps and a hard-block override.
package decision

import (
	"sort"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/models"
	"github.com/enterprise/riskcore/internal/rules"
)

// flag bump table: additive, clamped to 1.
var flagBumps = map[string]float64{
	rules.CodeImpossibleTravel: 0.30,
	rules.CodeVelocitySpike:    0.15,
	rules.CodeDeviceChange:     0.10,
}

// tier multiplier table.
var tierMultipliers = map[models.Tier]float64{
	models.TierGold:   0.9,
	models.TierBronze: 1.05,
	models.TierSilver: 1.0,
}

// factorMessages maps a triggered rule code to a human-readable factor
// string.
var factorMessages = map[string]string{
	rules.CodeVelocitySpike:         "Unusually high transaction velocity",
	rules.CodeBlacklisted:           "Receiver on fraud blacklist",
	rules.CodeNewReceiverHighAmount: "Large payment to a new receiver",
	rules.CodeAmountAnomaly:         "Amount far exceeds recent spending pattern",
	rules.CodeDeviceChange:          "Payment from an unrecognized device",
	rules.CodeHighFailedTxn:         "Multiple recent failed transactions",
	rules.CodeImpossibleTravel:      "Physically impossible travel speed detected",
	rules.CodeSuspiciousTravel:      "Unusually fast travel between locations",
}

// recommendationTable maps a triggered rule code to an operator-facing
// recommendation, generated from a fixed table keyed by factor code.
var recommendationTable = map[string]string{
	rules.CodeVelocitySpike:         "Consider rate-limiting further transactions from this payer",
	rules.CodeBlacklisted:           "Block and route to fraud investigation",
	rules.CodeNewReceiverHighAmount: "Confirm receiver identity before proceeding",
	rules.CodeAmountAnomaly:         "Verify transaction amount with payer",
	rules.CodeDeviceChange:          "Require step-up verification for this device",
	rules.CodeHighFailedTxn:         "Review recent failed attempts for account compromise",
	rules.CodeImpossibleTravel:      "Block and require manual review",
	rules.CodeSuspiciousTravel:      "Prompt additional verification before allowing",
}

const maxFactors = 5

// Engine combines engine outputs into the final RiskAssessment fields.
type Engine struct {
	cfg configs.RiskConfig
}

// NewEngine builds a Decision Engine from operator configuration.
func NewEngine(cfg configs.RiskConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Input bundles every upstream signal the Decision Engine needs.
type Input struct {
	Tier       models.Tier
	RuleResult rules.Result
	MLScore    float64
}

// Output is the Decision Engine's contribution to a RiskAssessment.
type Output struct {
	FinalScore      float64
	Level           models.Level
	Action          models.Action
	BehaviorScore   float64
	AmountScore     float64
	ReceiverScore   float64
	MLScore         float64
	Factors         []string
	Recommendations []string
}

// Decide computes the final score, action, and explanation.
func (e *Engine) Decide(in Input) Output {
	weights := e.cfg.RuleWeights[in.Tier]
	if weights.Rule == 0 && weights.ML == 0 {
		weights = configs.BlendWeights{Rule: 0.5, ML: 0.5}
	}

	base := weights.Rule*in.RuleResult.RuleScore + weights.ML*in.MLScore

	for _, flag := range in.RuleResult.Flags {
		if bump, ok := flagBumps[flag]; ok {
			base += bump
		}
	}
	base = clamp01(base)

	if mult, ok := tierMultipliers[in.Tier]; ok {
		base *= mult
	}
	base = clamp01(base)

	forcedBlock := in.RuleResult.HardBlock || hasFlag(in.RuleResult.Flags, rules.CodeBlacklisted) || hasFlag(in.RuleResult.Flags, rules.CodeImpossibleTravel)
	if forcedBlock {
		base = 1.0
	}

	level, action := e.mapAction(base, forcedBlock)

	out := Output{
		FinalScore:      base,
		Level:           level,
		Action:          action,
		MLScore:         in.MLScore,
		BehaviorScore:   subscoreFor(in.RuleResult, rules.CodeVelocitySpike, rules.CodeDeviceChange, rules.CodeHighFailedTxn),
		AmountScore:     subscoreFor(in.RuleResult, rules.CodeAmountAnomaly, rules.CodeNewReceiverHighAmount),
		ReceiverScore:   subscoreFor(in.RuleResult, rules.CodeBlacklisted, rules.CodeNewReceiverHighAmount),
		Factors:         buildFactors(in.RuleResult),
		Recommendations: buildRecommendations(in.RuleResult),
	}

	return out
}

// mapAction applies the half-open action-mapping intervals.
func (e *Engine) mapAction(score float64, forcedBlock bool) (models.Level, models.Action) {
	if forcedBlock {
		return models.LevelVeryHigh, models.ActionBlock
	}

	switch {
	case score < e.cfg.ThresholdModerate:
		return models.LevelLow, models.ActionAllow
	case score < e.cfg.ThresholdHigh:
		return models.LevelModerate, models.ActionWarn
	case score < e.cfg.ThresholdVeryHigh:
		return models.LevelHigh, models.ActionOTPRequired
	default:
		return models.LevelVeryHigh, models.ActionBlock
	}
}

func hasFlag(flags []string, code string) bool {
	for _, f := range flags {
		if f == code {
			return true
		}
	}
	return false
}

// subscoreFor sums the scores of the given rule codes that triggered,
// clamped to [0,1]. Breakdown sums are explanatory, not required to
// equal the final score.
func subscoreFor(result rules.Result, codes ...string) float64 {
	sum := 0.0
	for _, rr := range result.Rules {
		if !rr.Triggered {
			continue
		}
		for _, c := range codes {
			if rr.Code == c {
				sum += rr.Score
			}
		}
	}
	return clamp01(sum)
}

var severityRank = map[models.Severity]int{
	models.SeverityCritical: 0,
	models.SeverityHigh:     1,
	models.SeverityMedium:   2,
	models.SeverityLow:      3,
}

// catalogOrder preserves the fixed evaluation order; ties in severity
// are broken by this catalog order.
var catalogOrder = []string{
	rules.CodeVelocitySpike,
	rules.CodeBlacklisted,
	rules.CodeNewReceiverHighAmount,
	rules.CodeAmountAnomaly,
	rules.CodeDeviceChange,
	rules.CodeHighFailedTxn,
	rules.CodeImpossibleTravel,
	rules.CodeSuspiciousTravel,
}

func catalogIndex(code string) int {
	for i, c := range catalogOrder {
		if c == code {
			return i
		}
	}
	return len(catalogOrder)
}

// buildFactors produces at most 5 human-readable factors, ordered by
// severity then catalog order.
func buildFactors(result rules.Result) []string {
	triggered := triggeredInSeverityOrder(result)

	factors := make([]string, 0, maxFactors)
	for _, rr := range triggered {
		if len(factors) >= maxFactors {
			break
		}
		if msg, ok := factorMessages[rr.Code]; ok {
			factors = append(factors, msg)
		}
	}
	return factors
}

// buildRecommendations produces the recommendation list from the same
// fixed table, in the same order as the factors.
func buildRecommendations(result rules.Result) []string {
	triggered := triggeredInSeverityOrder(result)

	recs := make([]string, 0, maxFactors)
	for _, rr := range triggered {
		if len(recs) >= maxFactors {
			break
		}
		if rec, ok := recommendationTable[rr.Code]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

func triggeredInSeverityOrder(result rules.Result) []models.RuleResult {
	var triggered []models.RuleResult
	for _, rr := range result.Rules {
		if rr.Triggered {
			triggered = append(triggered, rr)
		}
	}

	sort.SliceStable(triggered, func(i, j int) bool {
		si, sj := severityRank[triggered[i].Severity], severityRank[triggered[j].Severity]
		if si != sj {
			return si < sj
		}
		return catalogIndex(triggered[i].Code) < catalogIndex(triggered[j].Code)
	})

	return triggered
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
