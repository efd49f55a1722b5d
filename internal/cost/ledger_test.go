package cost

import (
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-12
}

func TestLedger_EstimatedCost(t *testing.T) {
	ledger := NewLedger(LedgerConfig{})

	// 1 GB for 1 second costs one GB-second plus the invocation fee.
	sample := ledger.RecordSample("report.generate", "read", 1000, 1024)
	want := DefaultGBSecondRate + DefaultPerInvocationRate
	if !approx(sample.EstimatedCost, want) {
		t.Errorf("cost %.10f, want %.10f", sample.EstimatedCost, want)
	}

	// Duration and memory both scale the GB-second part linearly.
	sample = ledger.RecordSample("report.generate", "read", 500, 512)
	want = 0.25*DefaultGBSecondRate + DefaultPerInvocationRate
	if !approx(sample.EstimatedCost, want) {
		t.Errorf("cost %.10f, want %.10f", sample.EstimatedCost, want)
	}
}

func TestLedger_RingBufferEviction(t *testing.T) {
	ledger := NewLedger(LedgerConfig{Capacity: 3})

	ledger.RecordSample("op1", "read", 10, 128)
	ledger.RecordSample("op2", "read", 10, 128)
	ledger.RecordSample("op3", "read", 10, 128)
	ledger.RecordSample("op4", "read", 10, 128)

	snapshot := ledger.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("snapshot holds %d samples, want the capacity of 3", len(snapshot))
	}
	if snapshot[0].Operation != "op2" || snapshot[2].Operation != "op4" {
		t.Errorf("oldest sample should be evicted, got %s..%s", snapshot[0].Operation, snapshot[2].Operation)
	}
}

func TestLedger_AnalyzeAggregates(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_100, 0))
	ledger := NewLedger(LedgerConfig{Clock: clock.Now})

	ledger.RecordSample("products.list", "read", 100, 256)
	ledger.RecordSample("products.list", "read", 300, 256)
	ledger.RecordSample("products.create", "write", 50, 128)

	report := ledger.Analyze(time.Hour)

	if report.SampleCount != 3 {
		t.Fatalf("sample count %d, want 3", report.SampleCount)
	}

	list, ok := report.Operations["products.list"]
	if !ok {
		t.Fatal("products.list missing from report")
	}
	if list.Invocations != 2 {
		t.Errorf("invocations %d, want 2", list.Invocations)
	}
	if !approx(list.AvgDurationMs, 200) {
		t.Errorf("avg duration %.2f, want 200", list.AvgDurationMs)
	}

	var wantTotal float64
	for _, s := range ledger.Snapshot() {
		wantTotal += s.EstimatedCost
	}
	if !approx(report.TotalCost, wantTotal) {
		t.Errorf("total cost %.10f, want the sum of sample costs %.10f", report.TotalCost, wantTotal)
	}
}

func TestLedger_AnalyzeWindowExcludesOldSamples(t *testing.T) {
	clock := newFakeClock(time.Unix(1_700_000_100, 0))
	ledger := NewLedger(LedgerConfig{Clock: clock.Now})

	ledger.RecordSample("old.op", "read", 100, 256)
	clock.Advance(2 * time.Hour)
	ledger.RecordSample("new.op", "read", 100, 256)

	report := ledger.Analyze(time.Hour)

	if report.SampleCount != 1 {
		t.Fatalf("sample count %d, want 1", report.SampleCount)
	}
	if _, ok := report.Operations["old.op"]; ok {
		t.Error("sample outside the window leaked into the report")
	}
}

func TestLedger_Trend(t *testing.T) {
	record := func(ledger *Ledger, op string, durations []float64) {
		for _, d := range durations {
			ledger.RecordSample(op, "read", d, 1024)
		}
	}

	t.Run("increasing", func(t *testing.T) {
		ledger := NewLedger(LedgerConfig{})
		durations := make([]float64, 10)
		for i := range durations {
			if i < 5 {
				durations[i] = 100
			} else {
				durations[i] = 500
			}
		}
		record(ledger, "op", durations)

		if got := ledger.Analyze(time.Hour).Operations["op"].Trend; got != "increasing" {
			t.Errorf("trend %q, want increasing", got)
		}
	})

	t.Run("decreasing", func(t *testing.T) {
		ledger := NewLedger(LedgerConfig{})
		durations := make([]float64, 10)
		for i := range durations {
			if i < 5 {
				durations[i] = 500
			} else {
				durations[i] = 100
			}
		}
		record(ledger, "op", durations)

		if got := ledger.Analyze(time.Hour).Operations["op"].Trend; got != "decreasing" {
			t.Errorf("trend %q, want decreasing", got)
		}
	})

	t.Run("stable within tolerance", func(t *testing.T) {
		ledger := NewLedger(LedgerConfig{})
		durations := make([]float64, 10)
		for i := range durations {
			if i < 5 {
				durations[i] = 100
			} else {
				durations[i] = 105
			}
		}
		record(ledger, "op", durations)

		if got := ledger.Analyze(time.Hour).Operations["op"].Trend; got != "stable" {
			t.Errorf("trend %q, want stable", got)
		}
	})

	t.Run("too few samples", func(t *testing.T) {
		ledger := NewLedger(LedgerConfig{})
		record(ledger, "op", []float64{100, 900, 100, 900})

		if got := ledger.Analyze(time.Hour).Operations["op"].Trend; got != "stable" {
			t.Errorf("trend %q, want stable under 10 samples", got)
		}
	})
}
