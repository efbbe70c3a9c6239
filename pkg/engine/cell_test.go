package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openmatter/openmatter/pkg/telemetry"
)

func TestEagerCellIsForced(t *testing.T) {
	c := EagerCell(42)

	if !c.Forced() {
		t.Fatal("eager cell should start forced")
	}
	v, err := c.Force()
	if err != nil {
		t.Fatalf("Force failed: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestLazyCellForcesOnce(t *testing.T) {
	var calls int
	c := LazyCell(func() (interface{}, error) {
		calls++
		return "computed", nil
	})

	if c.Forced() {
		t.Fatal("lazy cell should start pending")
	}

	for i := 0; i < 3; i++ {
		v, err := c.Force()
		if err != nil {
			t.Fatalf("Force failed: %v", err)
		}
		if v != "computed" {
			t.Errorf("expected computed, got %v", v)
		}
	}

	if calls != 1 {
		t.Errorf("expected computation to run once, ran %d times", calls)
	}
	if !c.Forced() {
		t.Error("cell should be forced after Force")
	}
}

func TestConcurrentForceRunsComputationExactlyOnce(t *testing.T) {
	var calls int32
	c := LazyCell(func() (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 7, nil
	})

	const goroutines = 32
	var wg sync.WaitGroup
	results := make([]interface{}, goroutines)
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Force()
		}(i)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected exactly one computation, got %d", n)
	}
	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: Force failed: %v", i, errs[i])
		}
		if results[i] != 7 {
			t.Errorf("goroutine %d: expected 7, got %v", i, results[i])
		}
	}
}

func TestFailedForceLeavesCellRetryable(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	c := LazyCell(func() (interface{}, error) {
		attempts++
		if attempts == 1 {
			return nil, boom
		}
		return "second try", nil
	})

	_, err := c.Force()
	if err == nil {
		t.Fatal("expected first force to fail")
	}
	if KindOf(err) != ErrorKindComputation {
		t.Errorf("expected computation error, got %v", err)
	}
	if CodeOf(err) != CodeComputationFailed {
		t.Errorf("expected code %s, got %s", CodeComputationFailed, CodeOf(err))
	}
	if !errors.Is(err, boom) {
		t.Error("expected the computation's error to be wrapped")
	}
	if c.Forced() {
		t.Fatal("failed force must leave the cell pending")
	}

	v, err := c.Force()
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v != "second try" {
		t.Errorf("expected second try, got %v", v)
	}
}

func TestForceEmitsLazyForcedEvent(t *testing.T) {
	ep := testPublisher(t)
	counter := newEventCounter(ep)

	c := LazyCell(func() (interface{}, error) { return 1, nil }).WithPublisher(ep)

	for i := 0; i < 3; i++ {
		if _, err := c.Force(); err != nil {
			t.Fatalf("Force failed: %v", err)
		}
	}

	if counter.counts[telemetry.EventKindLazyForced] != 1 {
		t.Errorf("expected 1 lazy.forced event, got %d", counter.counts[telemetry.EventKindLazyForced])
	}
}

func TestSubscriberMayTouchCellDuringForce(t *testing.T) {
	ep := testPublisher(t)

	c := LazyCell(func() (interface{}, error) { return 1, nil }).WithPublisher(ep)

	var sawForced bool
	ep.Subscribe(func(e telemetry.Event) {
		if e.Kind == telemetry.EventKindLazyForced {
			sawForced = c.Forced()
		}
	}, nil)

	if _, err := c.Force(); err != nil {
		t.Fatalf("Force failed: %v", err)
	}
	if !sawForced {
		t.Error("subscriber should observe the cell forced without deadlocking")
	}
}

// Infinite lazy list of naturals: forcing the first k tails runs exactly k
// computations and no more.
func TestLazyChainForcesOnlyWhatIsAccessed(t *testing.T) {
	v := newTestValidator(t, nil, listDefinition())

	var forces int32
	var nats func(n int) *Cell
	nats = func(n int) *Cell {
		return LazyCell(func() (interface{}, error) {
			atomic.AddInt32(&forces, 1)
			return v.ConstructVariant("List", "Cons", map[string]interface{}{
				"head": n,
				"tail": nats(n + 1),
			})
		})
	}

	head := nats(0)
	const k = 5

	cur := head
	for i := 0; i < k; i++ {
		val, err := cur.Force()
		if err != nil {
			t.Fatalf("force %d failed: %v", i, err)
		}
		inst := val.(*Instance)
		h, _ := inst.Field("head")
		if h != i {
			t.Errorf("expected head %d, got %v", i, h)
		}
		tail, _ := inst.Field("tail")
		cur = tail.(*Cell)
	}

	if n := atomic.LoadInt32(&forces); n != k {
		t.Errorf("expected exactly %d computations, got %d", k, n)
	}

	// Re-walking the forced prefix runs nothing new.
	cur = head
	for i := 0; i < k; i++ {
		val, _ := cur.Force()
		tail, _ := val.(*Instance).Field("tail")
		cur = tail.(*Cell)
	}
	if n := atomic.LoadInt32(&forces); n != k {
		t.Errorf("memoized walk recomputed: %d computations", n)
	}
}
