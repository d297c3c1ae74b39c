package result

import (
	"errors"
	"testing"
)

func TestFoldTakesMatchingArm(t *testing.T) {
	ok := Fold(Ok(2), func(v int) string { return "ok" }, func(error) string { return "err" })
	if ok != "ok" {
		t.Fatalf("expected ok arm, got %q", ok)
	}
	failed := Fold(Err[int](errors.New("boom")), func(v int) string { return "ok" }, func(err error) string { return err.Error() })
	if failed != "boom" {
		t.Fatalf("expected err arm, got %q", failed)
	}
}

func TestFromPair(t *testing.T) {
	if !From("x", nil).IsOk() {
		t.Fatalf("nil error should be ok")
	}
	r := From("x", errors.New("bad"))
	if r.IsOk() {
		t.Fatalf("non-nil error should not be ok")
	}
	if _, err := r.Unwrap(); err == nil || err.Error() != "bad" {
		t.Fatalf("unexpected unwrap error: %v", err)
	}
}
