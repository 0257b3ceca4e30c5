package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrSourceUnavailable, "search index unreachable").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithSource("status")

	if GetErrorCode(err) != ErrSourceUnavailable {
		t.Fatalf("expected code %s, got %s", ErrSourceUnavailable, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrStoreWrite, "update failed")
	wrapped := fmt.Errorf("pipeline p1: %w", inner)

	if !IsErrorCode(wrapped, ErrStoreWrite) {
		t.Fatalf("expected wrapped code lookup to succeed")
	}
	if IsRetryable(wrapped) {
		t.Fatalf("expected non-retryable")
	}
	e, ok := AsError(wrapped)
	if !ok || e != inner {
		t.Fatalf("AsError mismatch: %v %v", e, ok)
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for plain error")
	}
}
