package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enterprise/riskcore/internal/errs"
	"github.com/enterprise/riskcore/internal/ml"
)

func TestHasFlag(t *testing.T) {
	flags := []string{"VELOCITY_SPIKE", "DEVICE_CHANGE"}

	if !hasFlag(flags, "DEVICE_CHANGE") {
		t.Fatal("expected DEVICE_CHANGE to be found")
	}
	if hasFlag(flags, "BLACKLISTED") {
		t.Fatal("did not expect BLACKLISTED to be found")
	}
	if hasFlag(nil, "DEVICE_CHANGE") {
		t.Fatal("expected no match against a nil flag slice")
	}
}

func TestFeatureVectorJSONKeysEveryFeature(t *testing.T) {
	var fv ml.FeatureVector
	fv[ml.FeatIsNewReceiver] = 1
	fv[ml.FeatVelocityCheck] = 1

	out := featureVectorJSON(fv)

	if len(out) != len(fv) {
		t.Fatalf("expected %d keys, got %d", len(fv), len(out))
	}
	if out[ml.FeatureNames[ml.FeatIsNewReceiver]] != 1.0 {
		t.Fatalf("expected is_new_receiver feature to carry through as 1, got %v", out[ml.FeatureNames[ml.FeatIsNewReceiver]])
	}
}

func TestTranslateTimeoutMapsDeadlineExceeded(t *testing.T) {
	o := &Orchestrator{}

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	got := o.translateTimeout(ctx, errors.New("underlying store error"))
	if !errors.Is(got, errs.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", got)
	}
}

func TestTranslateTimeoutPassesThroughOtherErrors(t *testing.T) {
	o := &Orchestrator{}
	underlying := errors.New("some other failure")

	got := o.translateTimeout(context.Background(), underlying)
	if !errors.Is(got, underlying) {
		t.Fatalf("expected the underlying error to pass through unchanged, got %v", got)
	}
}
