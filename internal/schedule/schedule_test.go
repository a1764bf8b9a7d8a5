package schedule

import (
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualRunsInDueOrder(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)

	var order []string
	_ = m.Every("tick", 3*time.Second, func() { order = append(order, "tick") })
	_ = m.Every("value", time.Second, func() { order = append(order, "value") })
	_ = m.Every("sweep", 6*time.Second, func() { order = append(order, "sweep") })

	m.Advance(6 * time.Second)
	if len(order) != 0 {
		t.Fatalf("expected nothing to run before Start, got %v", order)
	}

	m.Start()
	m.Advance(6 * time.Second)

	want := []string{"value", "value", "tick", "value", "value", "value", "tick", "value", "sweep"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	if !m.Now().Equal(start.Add(12 * time.Second)) {
		t.Fatalf("expected clock at 12s, got %v", m.Now().Sub(start))
	}
}

func TestManualStopHaltsRuns(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var runs int
	_ = m.Every("tick", time.Second, func() {
		runs++
		if runs == 2 {
			m.Stop()
		}
	})
	m.Start()
	m.Advance(10 * time.Second)
	if runs != 2 {
		t.Fatalf("expected 2 runs before stop, got %d", runs)
	}
}

func TestEveryRejectsNonPositive(t *testing.T) {
	if err := NewManual(time.Now()).Every("x", 0, func() {}); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	if err := NewCron(nil).Every("x", -time.Second, func() {}); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestCronRunsAndRecovers(t *testing.T) {
	c := NewCron(nil)
	var runs atomic.Int32
	_ = c.Every("panics", time.Second, func() {
		runs.Add(1)
		panic("boom")
	})
	c.Start()
	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	c.Stop()
	if runs.Load() < 2 {
		t.Fatalf("expected task to keep running after a panic, got %d runs", runs.Load())
	}
}
