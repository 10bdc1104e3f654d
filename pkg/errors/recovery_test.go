package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestRecoverConvertsPanic(t *testing.T) {
	fitTask := func() (err error) {
		defer Recover(&err, "fitGridCell")
		panic("index out of range in split search")
	}

	err := fitTask()
	if err == nil {
		t.Fatal("expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
	if panicErr.Operation != "fitGridCell" {
		t.Errorf("operation = %q, want fitGridCell", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("expected captured stack trace")
	}
	if !strings.Contains(panicErr.String(), "stack:") {
		t.Error("String() should include the stack trace")
	}
}

func TestRecoverNoPanic(t *testing.T) {
	fitTask := func() (err error) {
		defer Recover(&err, "fitGridCell")
		return nil
	}
	if err := fitTask(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestRecoverPreservesExistingError(t *testing.T) {
	original := New("fit already failed")
	fitTask := func() (err error) {
		defer Recover(&err, "fitGridCell")
		err = original
		panic("then it panicked")
	}

	err := fitTask()
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, original) {
		t.Error("original error should be wrapped, not dropped")
	}
}

func TestSafeExecute(t *testing.T) {
	err := SafeExecute("aggregate", func() error {
		var surfaces []int
		_ = surfaces[3] // deliberate out-of-range
		return nil
	})
	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("expected PanicError, got %T", err)
	}
}
