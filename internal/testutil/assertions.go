package testutil

import (
	"testing"

	"github.com/dumpster/pkg/dumpster"
	"github.com/dumpster/pkg/errors"
)

// RequirePanicCode runs fn and fails the test unless it panics with an
// *errors.AppError carrying code.
func RequirePanicCode(t *testing.T, code string, fn func()) {
	t.Helper()

	var recovered interface{}
	func() {
		defer func() {
			recovered = recover()
		}()
		fn()
	}()

	if recovered == nil {
		t.Fatalf("expected panic with code %s, got none", code)
	}
	err, ok := recovered.(error)
	if !ok {
		t.Fatalf("expected panic with code %s, got %v", code, recovered)
	}
	if got := errors.GetErrorCode(err); got != code {
		t.Fatalf("expected panic with code %s, got %s (%v)", code, got, err)
	}
}

// AssertLive checks the number of allocations whose payload is not destroyed.
func AssertLive(t *testing.T, c *dumpster.Collector, want int64) {
	t.Helper()
	if got := c.Stats().Live; got != want {
		t.Errorf("expected %d live allocations, got %d", want, got)
	}
}

// AssertDestroyed checks the number of destroyed payloads.
func AssertDestroyed(t *testing.T, c *dumpster.Collector, want uint64) {
	t.Helper()
	if got := c.Stats().Destroyed; got != want {
		t.Errorf("expected %d destroyed payloads, got %d", want, got)
	}
}
