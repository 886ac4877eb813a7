package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresAfter(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	ch := f.After(5 * time.Minute)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	f.Advance(5 * time.Minute)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(5 * time.Minute)) {
			t.Fatalf("got %v, want %v", got, start.Add(5*time.Minute))
		}
	default:
		t.Fatal("After did not fire after Advance")
	}
}

func TestFakeNowMonotonic(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Advance(time.Hour)
	if !f.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("Now() = %v, want %v", f.Now(), start.Add(time.Hour))
	}
}

func TestRealClockNowAdvances(t *testing.T) {
	c := New()
	a := c.Now()
	time.Sleep(time.Millisecond)
	b := c.Now()
	if !b.After(a) {
		t.Fatal("real clock did not advance")
	}
}
