package utils

import (
	"errors"
	"testing"
)

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, "context"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapPreservesUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(cause, "loading config")

	if wrapped.Error() != "loading config: boom" {
		t.Fatalf("unexpected message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}
}
