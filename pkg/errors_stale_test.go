package pkg

import (
	"errors"
	"testing"

	"github.com/nimbusline/platform-core/pkg/constant"
)

func TestValidateBusinessError_StaleProjectionUpdateSkipped(t *testing.T) {
	t.Parallel()

	result := ValidateBusinessError(constant.ErrStaleProjectionUpdateSkipped, "Projection")

	var failedPreconditionErr FailedPreconditionError
	if !errors.As(result, &failedPreconditionErr) {
		t.Fatalf("Expected FailedPreconditionError, got %T", result)
	}

	if failedPreconditionErr.Code != "0139" {
		t.Errorf("Code = %q, want %q", failedPreconditionErr.Code, "0139")
	}

	expectedTitle := "Stale Projection Update Skipped"
	if failedPreconditionErr.Title != expectedTitle {
		t.Errorf("Title = %q, want %q", failedPreconditionErr.Title, expectedTitle)
	}
}
