package cost

import (
	"sync"
	"time"
)

// Serverless billing model: cost per GB-second of memory-time plus a flat
// per-invocation fee.
const (
	DefaultGBSecondRate      = 0.0000025
	DefaultPerInvocationRate = 0.0000004
	DefaultCapacity          = 10000
)

// Sample is one recorded operation execution. Immutable once recorded.
type Sample struct {
	Operation     string    `json:"operation"`
	Category      string    `json:"category"`
	DurationMs    float64   `json:"duration_ms"`
	MemoryMB      float64   `json:"memory_mb"`
	EstimatedCost float64   `json:"estimated_cost"`
	Timestamp     time.Time `json:"timestamp"`
}

// Ledger records per-operation resource usage into a capped ring buffer and
// derives estimated spend per operation class. Per-instance and advisory
// only: it surfaces data for tuning rate limit policies, it never changes
// them itself.
type Ledger struct {
	mu      sync.Mutex
	samples []Sample
	next    int
	size    int

	gbSecondRate      float64
	perInvocationRate float64
	now               func() time.Time
}

type LedgerConfig struct {
	Capacity          int     // Default: 10000 samples
	GBSecondRate      float64 // USD per GB-second
	PerInvocationRate float64 // USD per invocation
	Clock             func() time.Time
}

func NewLedger(cfg LedgerConfig) *Ledger {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.GBSecondRate <= 0 {
		cfg.GBSecondRate = DefaultGBSecondRate
	}
	if cfg.PerInvocationRate <= 0 {
		cfg.PerInvocationRate = DefaultPerInvocationRate
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Ledger{
		samples:           make([]Sample, cfg.Capacity),
		gbSecondRate:      cfg.GBSecondRate,
		perInvocationRate: cfg.PerInvocationRate,
		now:               cfg.Clock,
	}
}

// RecordSample appends one measurement, evicting the oldest sample once the
// buffer is full, and returns it with the derived cost filled in.
func (l *Ledger) RecordSample(operation, category string, durationMs, memoryMB float64) Sample {
	sample := Sample{
		Operation:     operation,
		Category:      category,
		DurationMs:    durationMs,
		MemoryMB:      memoryMB,
		EstimatedCost: l.estimate(durationMs, memoryMB),
		Timestamp:     l.now(),
	}

	l.mu.Lock()
	l.samples[l.next] = sample
	l.next = (l.next + 1) % len(l.samples)
	if l.size < len(l.samples) {
		l.size++
	}
	l.mu.Unlock()

	return sample
}

func (l *Ledger) estimate(durationMs, memoryMB float64) float64 {
	gbSeconds := (memoryMB / 1024) * (durationMs / 1000)
	return gbSeconds*l.gbSecondRate + l.perInvocationRate
}

// Snapshot returns retained samples in chronological order.
func (l *Ledger) Snapshot() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Sample, 0, l.size)
	start := 0
	if l.size == len(l.samples) {
		start = l.next
	}
	for i := 0; i < l.size; i++ {
		out = append(out, l.samples[(start+i)%len(l.samples)])
	}
	return out
}

// OperationStats aggregates one operation's samples within a window.
type OperationStats struct {
	Operation            string  `json:"operation"`
	Invocations          int     `json:"invocations"`
	TotalCost            float64 `json:"total_cost"`
	AvgCostPerInvocation float64 `json:"avg_cost_per_invocation"`
	AvgDurationMs        float64 `json:"avg_duration_ms"`
	AvgMemoryMB          float64 `json:"avg_memory_mb"`
	Trend                string  `json:"trend"` // "increasing", "decreasing" or "stable"
}

// Report is the outcome of Analyze.
type Report struct {
	Window      time.Duration             `json:"window"`
	GeneratedAt time.Time                 `json:"generated_at"`
	SampleCount int                       `json:"sample_count"`
	TotalCost   float64                   `json:"total_cost"`
	Operations  map[string]OperationStats `json:"operations"`
}

// Analyze aggregates the samples recorded within the trailing window per
// operation. Trend compares the mean cost of the first half of an
// operation's samples against the second half: more than 10% apart flips it
// off "stable". Fewer than 10 samples is always "stable".
func (l *Ledger) Analyze(window time.Duration) Report {
	now := l.now()
	cutoff := now.Add(-window)

	report := Report{
		Window:      window,
		GeneratedAt: now,
		Operations:  make(map[string]OperationStats),
	}

	perOp := make(map[string][]Sample)
	for _, sample := range l.Snapshot() {
		if sample.Timestamp.Before(cutoff) {
			continue
		}
		report.SampleCount++
		report.TotalCost += sample.EstimatedCost
		perOp[sample.Operation] = append(perOp[sample.Operation], sample)
	}

	for op, samples := range perOp {
		stats := OperationStats{Operation: op, Invocations: len(samples)}
		for _, s := range samples {
			stats.TotalCost += s.EstimatedCost
			stats.AvgDurationMs += s.DurationMs
			stats.AvgMemoryMB += s.MemoryMB
		}
		n := float64(len(samples))
		stats.AvgCostPerInvocation = stats.TotalCost / n
		stats.AvgDurationMs /= n
		stats.AvgMemoryMB /= n
		stats.Trend = trend(samples)
		report.Operations[op] = stats
	}

	return report
}

func trend(samples []Sample) string {
	if len(samples) < 10 {
		return "stable"
	}

	mid := len(samples) / 2
	first := meanCost(samples[:mid])
	second := meanCost(samples[mid:])

	if first == 0 {
		return "stable"
	}

	change := (second - first) / first
	switch {
	case change > 0.10:
		return "increasing"
	case change < -0.10:
		return "decreasing"
	default:
		return "stable"
	}
}

func meanCost(samples []Sample) float64 {
	var total float64
	for _, s := range samples {
		total += s.EstimatedCost
	}
	return total / float64(len(samples))
}
