package trust

import (
	"testing"

	"github.com/google/uuid"

	"github.com/enterprise/riskcore/internal/models"
)

func TestLockKeyFormat(t *testing.T) {
	payerID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	got := lockKey(payerID, "receiver@upi")
	want := "trust:lock:11111111-1111-1111-1111-111111111111:receiver@upi"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDeltaTableCoversEveryOutcome(t *testing.T) {
	tests := []struct {
		outcome models.Outcome
		want    int
	}{
		{models.OutcomeSuccess, 1},
		{models.OutcomeFraudReported, -10},
		{models.OutcomeChargeback, -10},
		{models.OutcomeOTPFailed, -1},
		{models.OutcomeKYCVerified, 5},
		{models.OutcomeFailed, 0},
	}

	for _, tc := range tests {
		delta, ok := deltaTable[tc.outcome]
		if !ok {
			t.Fatalf("outcome %q missing from deltaTable", tc.outcome)
		}
		if delta != tc.want {
			t.Fatalf("outcome %q: expected delta %d, got %d", tc.outcome, tc.want, delta)
		}
	}
}
