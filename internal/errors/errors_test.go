package errors

import (
	"fmt"
	"testing"
)

func TestInputErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("decide: %w", NewInputError("close", 3, "must be positive"))
	if !Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput in chain: %v", err)
	}

	var inputErr *InputError
	if !As(err, &inputErr) {
		t.Fatal("expected As to find InputError")
	}
	if inputErr.Field != "close" || inputErr.Index != 3 {
		t.Errorf("unexpected InputError: %+v", inputErr)
	}
	if got := inputErr.Error(); got != "invalid input: close[3]: must be positive" {
		t.Errorf("Error() = %q", got)
	}
	if got := NewInputError("balance", -1, "must be positive").Error(); got != "invalid input: balance: must be positive" {
		t.Errorf("scalar Error() = %q", got)
	}
}

func TestValidationErrorMatchesConfigInvalid(t *testing.T) {
	err := NewValidationError("risk.max_position_pct", 1.5, "must be in (0, 1]")
	if !Is(err, ErrConfigInvalid) {
		t.Error("expected ErrConfigInvalid")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrapf(ErrDatabaseError, "save run %s", "abc")
	if !Is(err, ErrDatabaseError) {
		t.Error("expected wrapped sentinel")
	}
	if err.Error() != "save run abc: database error" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestRiskError(t *testing.T) {
	err := NewRiskError("max_position_pct", 0.25, 0.20, "position too large")
	want := "risk violation [max_position_pct]: position too large (current: 0.25, limit: 0.20)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
