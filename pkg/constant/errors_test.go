package constant

import (
	"testing"
)

func TestErrStaleProjectionUpdateSkipped_Exists(t *testing.T) {
	t.Parallel()

	if ErrStaleProjectionUpdateSkipped == nil {
		t.Fatal("ErrStaleProjectionUpdateSkipped should be defined")
	}

	expected := "0129"
	if ErrStaleProjectionUpdateSkipped.Error() != expected {
		t.Errorf("ErrStaleProjectionUpdateSkipped.Error() = %q, want %q", ErrStaleProjectionUpdateSkipped.Error(), expected)
	}
}
