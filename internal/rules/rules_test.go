package rules

import (
	"testing"
	"time"

	"github.com/enterprise/riskcore/configs"
	"github.com/enterprise/riskcore/internal/models"
)

func testEngine() *Engine {
	return NewEngine(configs.RiskConfig{
		RulesetVersion:   "RULESET_V1",
		GeoSupersonicKmh: 900,
		GeoSuspiciousKmh: 300,
	})
}

func baseTransaction() *models.Transaction {
	return &models.Transaction{
		AmountPaise:       10000, // 100.00
		TimestampUTC:      time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC),
		DeviceFingerprint: "device-a",
	}
}

func basePayerContext() *models.PayerContext {
	return &models.PayerContext{
		AvgAmount30d:   100,
		KnownDeviceSet: []string{"device-a"},
	}
}

func baseReceiverContext() *models.ReceiverContext {
	return &models.ReceiverContext{}
}

func TestEvaluateNoRulesTriggerOnNeutralInput(t *testing.T) {
	e := testEngine()
	result := e.Evaluate(baseTransaction(), basePayerContext(), baseReceiverContext())
	if result.RuleScore != 0 {
		t.Fatalf("expected zero rule score, got %v", result.RuleScore)
	}
	if len(result.Flags) != 0 {
		t.Fatalf("expected no flags, got %v", result.Flags)
	}
	if result.HardBlock {
		t.Fatal("expected no hard block")
	}
	if len(result.Rules) != len(catalog) {
		t.Fatalf("expected every rule in the catalog to run, got %d results", len(result.Rules))
	}
}

func TestVelocitySpikeThresholds(t *testing.T) {
	tests := []struct {
		name      string
		pc        *models.PayerContext
		triggered bool
		score     float64
	}{
		{"below all thresholds", &models.PayerContext{TxnCount1h: 2, TxnCount5min: 1}, false, 0},
		{"5min burst triggers", &models.PayerContext{TxnCount5min: 5}, true, 0.30},
		{"1h volume triggers", &models.PayerContext{TxnCount1h: 15}, true, 0.35},
		{"dormant payer sudden burst triggers", &models.PayerContext{DaysSinceLastTxn: 8, TxnCount5min: 3}, true, 0.25},
	}

	e := testEngine()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rr := evalVelocitySpike(e, baseTransaction(), tc.pc, baseReceiverContext())
			if rr.Triggered != tc.triggered {
				t.Fatalf("expected triggered=%v, got %v", tc.triggered, rr.Triggered)
			}
			if rr.Score != tc.score {
				t.Fatalf("expected score=%v, got %v", tc.score, rr.Score)
			}
		})
	}
}

func TestBlacklistedRequiresVolumeAndRatio(t *testing.T) {
	tests := []struct {
		name      string
		rc        *models.ReceiverContext
		triggered bool
	}{
		{"too little volume", &models.ReceiverContext{FraudCount: 9, TotalTransactions: 9}, false},
		{"ratio too low", &models.ReceiverContext{FraudCount: 7, TotalTransactions: 20}, false},
		{"meets all thresholds", &models.ReceiverContext{FraudCount: 8, TotalTransactions: 10}, true},
	}

	e := testEngine()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rr := evalBlacklisted(e, baseTransaction(), basePayerContext(), tc.rc)
			if rr.Triggered != tc.triggered {
				t.Fatalf("expected triggered=%v, got %v", tc.triggered, rr.Triggered)
			}
		})
	}
}

func TestBlacklistedShortCircuitsCatalog(t *testing.T) {
	e := testEngine()
	tx := baseTransaction()
	pc := basePayerContext()
	pc.TxnCount1h = 20 // would also trigger velocity spike
	rc := &models.ReceiverContext{FraudCount: 8, TotalTransactions: 10}

	result := e.Evaluate(tx, pc, rc)
	if !result.HardBlock {
		t.Fatal("expected hard block once BLACKLISTED triggers")
	}
	// Velocity spike ran first (catalog order), BLACKLISTED second; nothing after it should run.
	if len(result.Rules) != 2 {
		t.Fatalf("expected evaluation to stop right after BLACKLISTED, got %d rule results", len(result.Rules))
	}
}

func TestNewReceiverHighAmount(t *testing.T) {
	e := testEngine()
	tx := baseTransaction() // amount 100
	pc := &models.PayerContext{AvgAmount30d: 10}
	rc := &models.ReceiverContext{IsNewForThisPayer: true}

	rr := evalNewReceiverHighAmount(e, tx, pc, rc)
	if !rr.Triggered {
		t.Fatal("expected large payment to a new receiver to trigger")
	}
}

func TestAmountAnomalyAccumulatesScore(t *testing.T) {
	e := testEngine()
	tx := baseTransaction() // amount 100
	pc := &models.PayerContext{AvgAmount30d: 10, MaxAmount7d: 50}

	rr := evalAmountAnomaly(e, tx, pc, baseReceiverContext())
	if !rr.Triggered {
		t.Fatal("expected amount anomaly to trigger")
	}
	if rr.Score != 0.35 {
		t.Fatalf("expected both conditions to add up to 0.35, got %v", rr.Score)
	}
}

func TestDeviceChangeIgnoresEmptyKnownSet(t *testing.T) {
	e := testEngine()
	tx := baseTransaction()
	pc := &models.PayerContext{KnownDeviceSet: nil}

	rr := evalDeviceChange(e, tx, pc, baseReceiverContext())
	if rr.Triggered {
		t.Fatal("expected first-ever transaction (empty known device set) not to trigger device change")
	}
}

func TestDeviceChangeTriggersOnUnknownDevice(t *testing.T) {
	e := testEngine()
	tx := baseTransaction()
	tx.DeviceFingerprint = "device-new"
	pc := &models.PayerContext{KnownDeviceSet: []string{"device-a", "device-b"}}

	rr := evalDeviceChange(e, tx, pc, baseReceiverContext())
	if !rr.Triggered {
		t.Fatal("expected an unrecognized device fingerprint to trigger")
	}
}

func TestHighFailedTxnTiers(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		severity models.Severity
	}{
		{"below threshold", 2, models.SeverityLow},
		{"moderate threshold", 3, models.SeverityLow},
		{"high threshold", 5, models.SeverityMedium},
	}

	e := testEngine()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			pc := &models.PayerContext{FailedTxnCount7d: tc.count}
			rr := evalHighFailedTxn(e, baseTransaction(), pc, baseReceiverContext())
			if tc.count < 3 && rr.Triggered {
				t.Fatalf("did not expect trigger at count=%d", tc.count)
			}
			if tc.count >= 3 && rr.Severity != tc.severity {
				t.Fatalf("expected severity %v at count=%d, got %v", tc.severity, tc.count, rr.Severity)
			}
		})
	}
}

func TestImpossibleAndSuspiciousTravel(t *testing.T) {
	lat, lon := 12.9716, 77.5946
	farLat, farLon := 19.0760, 72.8777 // ~840km from Bengaluru
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		elapsedHours  float64
		wantImpossibl bool
		wantSuspicios bool
	}{
		{"slow enough to be normal", 24, false, false},
		{"fast enough to be suspicious", 2, false, true},
		{"fast enough to be impossible", 0.1, true, false},
	}

	e := testEngine()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tx := &models.Transaction{Latitude: &farLat, Longitude: &farLon, TimestampUTC: ts}
			lastTs := ts.Add(-time.Duration(tc.elapsedHours * float64(time.Hour)))
			pc := &models.PayerContext{LastKnownLat: &lat, LastKnownLon: &lon, LastKnownTs: &lastTs}

			impossible := evalImpossibleTravel(e, tx, pc, baseReceiverContext())
			suspicious := evalSuspiciousTravel(e, tx, pc, baseReceiverContext())

			if impossible.Triggered != tc.wantImpossibl {
				t.Fatalf("impossible travel: expected triggered=%v, got %v", tc.wantImpossibl, impossible.Triggered)
			}
			if suspicious.Triggered != tc.wantSuspicios {
				t.Fatalf("suspicious travel: expected triggered=%v, got %v", tc.wantSuspicios, suspicious.Triggered)
			}
		})
	}
}

func TestTravelRulesDisabledWithoutGeolocation(t *testing.T) {
	e := testEngine()
	tx := baseTransaction() // no lat/lon
	pc := basePayerContext()

	impossible := evalImpossibleTravel(e, tx, pc, baseReceiverContext())
	suspicious := evalSuspiciousTravel(e, tx, pc, baseReceiverContext())
	if impossible.Triggered || suspicious.Triggered {
		t.Fatal("expected travel rules to stay silent when geolocation is absent")
	}
}

func TestEvaluateClampsRuleScoreToOne(t *testing.T) {
	e := testEngine()
	tx := baseTransaction()
	tx.AmountPaise = 100000 // 1000.00
	pc := &models.PayerContext{
		AvgAmount30d:     10,
		MaxAmount7d:      10,
		TxnCount1h:       20,
		FailedTxnCount7d: 6,
		KnownDeviceSet:   []string{"device-other"},
	}
	rc := baseReceiverContext()

	result := e.Evaluate(tx, pc, rc)
	if result.RuleScore != 1.0 {
		t.Fatalf("expected rule score clamped to 1.0, got %v", result.RuleScore)
	}
}
