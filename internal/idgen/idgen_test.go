package idgen

import (
	"testing"
	"time"

	"github.com/arcwatch/sentinel/internal/clock"
)

func TestUUIDUnique(t *testing.T) {
	a := UUID()
	b := UUID()
	if a == b {
		t.Fatalf("UUID() returned the same value twice: %q", a)
	}
	if len(a) != 36 {
		t.Fatalf("UUID() = %q, want 36-character canonical form", a)
	}
}

func TestULIDSortableByTime(t *testing.T) {
	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	first := ULID(fc)
	fc.Advance(time.Second)
	second := ULID(fc)
	if !(first < second) {
		t.Fatalf("expected ULID generated earlier to sort before later one: %q vs %q", first, second)
	}
}
