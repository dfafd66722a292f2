package models

import "testing"

func TestTierFromTrustScoreBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  Tier
	}{
		{0, TierBronze},
		{30, TierBronze},
		{31, TierSilver},
		{70, TierSilver},
		{71, TierGold},
		{100, TierGold},
	}
	for _, tc := range tests {
		got := TierFromTrustScore(tc.score)
		if got != tc.want {
			t.Errorf("score %d: expected %v, got %v", tc.score, tc.want, got)
		}
	}
}

func TestPaymentModeIndex(t *testing.T) {
	tests := []struct {
		mode PaymentMode
		want int
	}{
		{PaymentModeQR, 0},
		{PaymentModeMobile, 1},
		{PaymentModeUPIApp, 2},
		{PaymentMode("unknown"), 0},
	}
	for _, tc := range tests {
		if got := PaymentModeIndex(tc.mode); got != tc.want {
			t.Errorf("mode %q: expected %d, got %d", tc.mode, tc.want, got)
		}
	}
}

func TestReceiverTypeIndex(t *testing.T) {
	if ReceiverTypeIndex(ReceiverTypePhone) != 0 {
		t.Fatal("expected PHONE to encode as 0")
	}
	if ReceiverTypeIndex(ReceiverTypeVPA) != 1 {
		t.Fatal("expected VPA to encode as 1")
	}
}

func TestTransactionAmount(t *testing.T) {
	tx := &Transaction{AmountPaise: 12345}
	if got := tx.Amount(); got != 123.45 {
		t.Fatalf("expected 123.45, got %v", got)
	}
}

func TestReceiverReputationFraudRatio(t *testing.T) {
	r := &ReceiverReputation{}
	if got := r.FraudRatio(); got != 0 {
		t.Fatalf("expected 0 fraud ratio with no transactions, got %v", got)
	}

	r.TotalTransactions = 10
	r.FraudCount = 3
	if got := r.FraudRatio(); got != 0.3 {
		t.Fatalf("expected 0.3, got %v", got)
	}
}

func TestRecomputeReputationScore(t *testing.T) {
	r := &ReceiverReputation{}
	r.RecomputeReputationScore()
	if r.ReputationScore != 0.5 {
		t.Fatalf("expected neutral 0.5 prior with no transactions, got %v", r.ReputationScore)
	}

	r.TotalTransactions = 10
	r.FraudCount = 2
	r.RecomputeReputationScore()
	if r.ReputationScore != 0.8 {
		t.Fatalf("expected 0.8, got %v", r.ReputationScore)
	}
}

func TestPayerContextHasKnownDevice(t *testing.T) {
	pc := &PayerContext{KnownDeviceSet: []string{"a", "b", "c"}}
	if !pc.HasKnownDevice("b") {
		t.Fatal("expected b to be a known device")
	}
	if pc.HasKnownDevice("z") {
		t.Fatal("did not expect z to be a known device")
	}
}

func TestJSONBRoundTrip(t *testing.T) {
	original := JSONB{"amount": 100.0, "flag": "VELOCITY_SPIKE"}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}

	bytes, ok := value.([]byte)
	if !ok {
		t.Fatalf("expected []byte from Value, got %T", value)
	}

	var roundTripped JSONB
	if err := roundTripped.Scan(bytes); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if roundTripped["flag"] != "VELOCITY_SPIKE" {
		t.Fatalf("expected flag to round-trip, got %v", roundTripped["flag"])
	}
}

func TestJSONBValueNilMap(t *testing.T) {
	var j JSONB
	value, err := j.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if value != nil {
		t.Fatalf("expected nil value for nil map, got %v", value)
	}
}

func TestJSONBScanNil(t *testing.T) {
	j := JSONB{"a": 1.0}
	if err := j.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if j != nil {
		t.Fatalf("expected Scan(nil) to clear the map, got %v", j)
	}
}
