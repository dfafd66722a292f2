package decision

import (
	"testing"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/models"
	"github.com/enterprise/riskcore/internal/rules"
)

func testConfig() configs.RiskConfig {
	return configs.RiskConfig{
		RuleWeights: map[models.Tier]configs.BlendWeights{
			models.TierBronze: {Rule: 0.6, ML: 0.4},
			models.TierSilver: {Rule: 0.5, ML: 0.5},
			models.TierGold:   {Rule: 0.4, ML: 0.6},
		},
		ThresholdModerate: 0.30,
		ThresholdHigh:     0.60,
		ThresholdVeryHigh: 0.80,
	}
}

func ruleResult(code string, severity models.Severity, score float64) models.RuleResult {
	return models.RuleResult{Code: code, Triggered: true, Severity: severity, Score: score}
}

func TestDecideBlendByTier(t *testing.T) {
	tests := []struct {
		name string
		tier models.Tier
		rule float64
		ml   float64
		want float64
	}{
		{"bronze applies its tier multiplier", models.TierBronze, 0.5, 0.5, 0.525},
		{"silver applies its tier multiplier", models.TierSilver, 0.4, 0.6, 0.5},
		{"gold applies its tier multiplier", models.TierGold, 0.5, 0.5, 0.45},
	}

	e := NewEngine(testConfig())
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			out := e.Decide(Input{
				Tier:       tc.tier,
				RuleResult: rules.Result{RuleScore: tc.rule},
				MLScore:    tc.ml,
			})
			if out.FinalScore < tc.want-0.01 || out.FinalScore > tc.want+0.01 {
				t.Fatalf("expected final score near %.2f, got %.4f", tc.want, out.FinalScore)
			}
		})
	}
}

func TestDecideFlagBumpsAreAdditiveAndClamped(t *testing.T) {
	e := NewEngine(testConfig())
	out := e.Decide(Input{
		Tier: models.TierSilver,
		RuleResult: rules.Result{
			RuleScore: 0.9,
			Flags:     []string{rules.CodeVelocitySpike, rules.CodeDeviceChange},
		},
		MLScore: 0.9,
	})
	if out.FinalScore != 1.0 {
		t.Fatalf("expected clamped final score of 1.0, got %v", out.FinalScore)
	}
}

func TestDecideHardBlockForcesBlock(t *testing.T) {
	e := NewEngine(testConfig())
	out := e.Decide(Input{
		Tier: models.TierGold,
		RuleResult: rules.Result{
			RuleScore: 0.1,
			HardBlock: true,
		},
		MLScore: 0.0,
	})
	if out.FinalScore != 1.0 {
		t.Fatalf("expected forced final score of 1.0, got %v", out.FinalScore)
	}
	if out.Level != models.LevelVeryHigh || out.Action != models.ActionBlock {
		t.Fatalf("expected VERY_HIGH/BLOCK, got %v/%v", out.Level, out.Action)
	}
}

func TestDecideImpossibleTravelForcesBlockWithoutHardBlockFlag(t *testing.T) {
	e := NewEngine(testConfig())
	out := e.Decide(Input{
		Tier: models.TierGold,
		RuleResult: rules.Result{
			RuleScore: 0.2,
			Flags:     []string{rules.CodeImpossibleTravel},
		},
		MLScore: 0.1,
	})
	if out.Action != models.ActionBlock {
		t.Fatalf("expected IMPOSSIBLE_TRAVEL to force BLOCK, got %v", out.Action)
	}
}

func TestMapActionHalfOpenBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		score      float64
		wantLevel  models.Level
		wantAction models.Action
	}{
		{"just below moderate", 0.2999, models.LevelLow, models.ActionAllow},
		{"at moderate boundary", 0.30, models.LevelModerate, models.ActionWarn},
		{"just below high", 0.5999, models.LevelModerate, models.ActionWarn},
		{"at high boundary", 0.60, models.LevelHigh, models.ActionOTPRequired},
		{"just below very high", 0.7999, models.LevelHigh, models.ActionOTPRequired},
		{"at very high boundary", 0.80, models.LevelVeryHigh, models.ActionBlock},
	}

	e := NewEngine(testConfig())
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			level, action := e.mapAction(tc.score, false)
			if level != tc.wantLevel || action != tc.wantAction {
				t.Fatalf("score %v: expected %v/%v, got %v/%v", tc.score, tc.wantLevel, tc.wantAction, level, action)
			}
		})
	}
}

func TestBuildFactorsOrderedBySeverityThenCatalog(t *testing.T) {
	result := rules.Result{
		Rules: []models.RuleResult{
			ruleResult(rules.CodeVelocitySpike, models.SeverityMedium, 0.1),
			ruleResult(rules.CodeBlacklisted, models.SeverityCritical, 0.9),
			ruleResult(rules.CodeDeviceChange, models.SeverityMedium, 0.1),
		},
	}

	factors := buildFactors(result)
	if len(factors) != 3 {
		t.Fatalf("expected 3 factors, got %d: %v", len(factors), factors)
	}
	if factors[0] != factorMessages[rules.CodeBlacklisted] {
		t.Fatalf("expected critical-severity factor first, got %q", factors[0])
	}
	if factors[1] != factorMessages[rules.CodeVelocitySpike] {
		t.Fatalf("expected catalog-order tie-break to put VELOCITY_SPIKE before DEVICE_CHANGE, got %q", factors[1])
	}
}

func TestBuildFactorsCappedAtFive(t *testing.T) {
	result := rules.Result{
		Rules: []models.RuleResult{
			ruleResult(rules.CodeVelocitySpike, models.SeverityLow, 0.1),
			ruleResult(rules.CodeBlacklisted, models.SeverityLow, 0.1),
			ruleResult(rules.CodeNewReceiverHighAmount, models.SeverityLow, 0.1),
			ruleResult(rules.CodeAmountAnomaly, models.SeverityLow, 0.1),
			ruleResult(rules.CodeDeviceChange, models.SeverityLow, 0.1),
			ruleResult(rules.CodeHighFailedTxn, models.SeverityLow, 0.1),
			ruleResult(rules.CodeImpossibleTravel, models.SeverityLow, 0.1),
		},
	}

	factors := buildFactors(result)
	recs := buildRecommendations(result)
	if len(factors) != maxFactors {
		t.Fatalf("expected at most %d factors, got %d", maxFactors, len(factors))
	}
	if len(recs) != maxFactors {
		t.Fatalf("expected at most %d recommendations, got %d", maxFactors, len(recs))
	}
}

func TestSubscoreForClampsToOne(t *testing.T) {
	result := rules.Result{
		Rules: []models.RuleResult{
			ruleResult(rules.CodeVelocitySpike, models.SeverityHigh, 0.7),
			ruleResult(rules.CodeDeviceChange, models.SeverityMedium, 0.6),
		},
	}
	got := subscoreFor(result, rules.CodeVelocitySpike, rules.CodeDeviceChange)
	if got != 1.0 {
		t.Fatalf("expected clamped subscore of 1.0, got %v", got)
	}
}
