package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("connection refused")
	err := Wrap(CodeDependency, cause, "publish digest command")

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be discoverable via errors.Is")
	}
	if err.Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", err.Code())
	}
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	inner := New(CodeNotFound, "endpoint missing")
	wrapped := fmt.Errorf("resolving destinations: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected coded error to be recovered")
	}
	if typed.Code() != CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %s", typed.Code())
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(New(CodeValidation, "bad payload")) {
		t.Fatal("validation errors are not retryable")
	}
	if !IsRetryable(New(CodeDependency, "pubsub down")) {
		t.Fatal("dependency errors are retryable")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatal("plain errors carry no retry metadata")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("SOMETHING_ELSE"))
	if meta.PublicMessage != "internal error" {
		t.Fatalf("expected internal fallback, got %q", meta.PublicMessage)
	}
}
