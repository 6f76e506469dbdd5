package mirror

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncerOnlyLastTriggerRuns(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var got atomic.Int64
	d.Trigger("k", func() { got.Store(1) })
	d.Trigger("k", func() { got.Store(2) })

	time.Sleep(200 * time.Millisecond)
	if v := got.Load(); v != 2 {
		t.Fatalf("expected only the last trigger to run, got %d", v)
	}
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	var a, b atomic.Int64
	d.Trigger("a", func() { a.Add(1) })
	d.Trigger("b", func() { b.Add(1) })

	time.Sleep(200 * time.Millisecond)
	if a.Load() != 1 || b.Load() != 1 {
		t.Fatalf("expected both keys to fire once, got a=%d b=%d", a.Load(), b.Load())
	}
}

func TestDebouncerFlushRunsOnceAndOnly(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var runs atomic.Int64
	d.Trigger("k", func() { runs.Add(1) })
	d.Flush("k")

	if runs.Load() != 1 {
		t.Fatalf("expected flush to run the call, got %d runs", runs.Load())
	}
	if d.Pending("k") {
		t.Fatal("expected no pending call after flush")
	}
	time.Sleep(200 * time.Millisecond)
	if runs.Load() != 1 {
		t.Fatalf("expected the timer not to fire again after flush, got %d runs", runs.Load())
	}
}

func TestDebouncerCancelAll(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)

	var runs atomic.Int64
	d.Trigger("a", func() { runs.Add(1) })
	d.Trigger("b", func() { runs.Add(1) })
	d.CancelAll()

	time.Sleep(200 * time.Millisecond)
	if runs.Load() != 0 {
		t.Fatalf("expected no calls after CancelAll, got %d", runs.Load())
	}
}

func TestDebouncerFlushAll(t *testing.T) {
	d := NewDebouncer(time.Hour)

	var runs atomic.Int64
	d.Trigger("a", func() { runs.Add(1) })
	d.Trigger("b", func() { runs.Add(1) })
	d.FlushAll()

	if runs.Load() != 2 {
		t.Fatalf("expected both calls to run on FlushAll, got %d", runs.Load())
	}
}
