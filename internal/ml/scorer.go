package ml

import (
	"context"
	"errors"
)

// FallbackModelVersion is recorded on the RiskAssessment whenever the
// classifier artifact is absent or erroring.
const FallbackModelVersion = "fallback"

// ErrModelUnavailable signals the classifier artifact could not be
// loaded or invoked; callers fall back to the heuristic.
var ErrModelUnavailable = errors.New("ml: model unavailable")

// Scorer maps a feature vector to a fraud probability.
type Scorer interface {
	Predict(ctx context.Context, features FeatureVector) (score float64, modelVersion string, err error)
}

// ArtifactScorer would invoke a pretrained classifier artifact. No
// gradient-boosted-model serving library (ONNX runtime, ML.NET-style
// binding, or similar) is available for this, so the score is computed
// in pure Go instead of loading an artifact. ArtifactScorer is left as
// the integration point for a real model file — the path is read from
// config but always treated as absent in this build.
type ArtifactScorer struct {
	ModelPath string
}

// NewArtifactScorer builds a scorer bound to a model artifact path. An
// empty path, or any path, currently always reports the model
// unavailable: no model-loading runtime is wired into this build.
func NewArtifactScorer(modelPath string) *ArtifactScorer {
	return &ArtifactScorer{ModelPath: modelPath}
}

func (s *ArtifactScorer) Predict(ctx context.Context, features FeatureVector) (float64, string, error) {
	return 0, "", ErrModelUnavailable
}

// FallbackWithContext computes the fallback heuristic including the two
// inputs that live outside the fixed feature vector: receiver fraud
// ratio and whether the Rules Engine flagged DEVICE_CHANGE.
func FallbackWithContext(fv FeatureVector, receiverFraudRatio float64, deviceChanged bool) float64 {
	score := 0.0

	if receiverFraudRatio >= 0.5 {
		score += 0.35
	}

	deviation := fv[FeatDeviationFromSenderAvg]
	switch {
	case deviation > 10:
		score += 0.40
	case deviation > 5:
		score += 0.25
	case deviation > 3:
		score += 0.10
	}

	if fv[FeatIsNewReceiver] == 1 {
		score += 0.15
	}
	if fv[FeatVelocityCheck] == 1 {
		score += 0.25
	}
	if deviceChanged {
		score += 0.15
	}

	return clamp01(score)
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

var _ Scorer = (*ArtifactScorer)(nil)
