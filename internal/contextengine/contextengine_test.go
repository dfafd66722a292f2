package contextengine

import (
	"testing"

	"github.com/google/uuid"
)

func TestPayerCacheKeyFormat(t *testing.T) {
	id := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	got := payerCacheKey(id)
	want := "payer:ctx:22222222-2222-2222-2222-222222222222"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestReceiverCacheKeyFormat(t *testing.T) {
	got := receiverCacheKey("someone@upi")
	want := "recv:ctx:someone@upi"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
