package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrap_PreservesType(t *testing.T) {
	err := Wrap(NewNotFound("version not found"), "restore")

	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "NOT_FOUND: restore: version not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrap_ForeignErrorBecomesInternal(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, "load note")

	if TypeOf(err) != TypeInternal {
		t.Errorf("expected INTERNAL, got %s", TypeOf(err))
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if Wrap(nil, "noop") != nil {
		t.Error("expected nil for nil error")
	}
}

func TestIsHelpers_SeeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewTransientIO("couchdb unreachable", errors.New("dial tcp")))

	if !IsTransientIO(err) {
		t.Error("expected transient io")
	}
	if IsValidation(err) || IsForbidden(err) || IsNotFound(err) {
		t.Error("unexpected category match")
	}
}
