package errs

import (
	"errors"
	"testing"
)

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		ErrStoreUnavailable,
		ErrCacheUnavailable,
		ErrTimeout,
		ErrInvalidRequest,
		ErrAssessmentFailed,
		ErrPayerNotFound,
		ErrTransactionNotFound,
	}

	for i, a := range all {
		for j, b := range all {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Fatalf("expected sentinel %d and %d to be distinct, both matched", i, j)
			}
		}
	}
}
