package cost

import (
	"sort"
	"time"
)

// Recommendation is an advisory tuning suggestion for one operation. The
// ledger never acts on these itself; policy changes stay a human decision.
type Recommendation struct {
	Operation           string `json:"operation"`
	Suggestion          string `json:"suggestion"`
	EstimatedSavingsPct int    `json:"estimated_savings_pct"`
	Priority            int    `json:"priority"` // higher is more urgent
}

// Heuristic thresholds, derived from the serverless billing shape: memory is
// billed for the full duration whether used or not, and per-invocation fees
// dominate for very short calls.
const (
	highMemoryMB    = 512
	shortDurationMs = 1000
	tinyDurationMs  = 100
	longDurationMs  = 5000
	highVolume      = 1000
	highUnitCost    = 0.00005 // USD per invocation
)

// Recommend derives suggestions from everything currently retained, sorted
// by priority descending.
func (l *Ledger) Recommend() []Recommendation {
	report := l.Analyze(24 * time.Hour)

	var recs []Recommendation
	for op, stats := range report.Operations {
		if stats.AvgMemoryMB > highMemoryMB && stats.AvgDurationMs < shortDurationMs {
			recs = append(recs, Recommendation{
				Operation:           op,
				Suggestion:          "high memory with short runtime - right-size the memory allocation",
				EstimatedSavingsPct: 30,
				Priority:            3,
			})
		}

		if stats.AvgCostPerInvocation > highUnitCost && stats.Invocations > highVolume {
			recs = append(recs, Recommendation{
				Operation:           op,
				Suggestion:          "expensive and high volume - cache the result",
				EstimatedSavingsPct: 40,
				Priority:            4,
			})
		}

		if stats.Invocations > highVolume && stats.AvgDurationMs < tinyDurationMs {
			recs = append(recs, Recommendation{
				Operation:           op,
				Suggestion:          "very many tiny invocations - batch requests to amortize the per-invocation fee",
				EstimatedSavingsPct: 25,
				Priority:            2,
			})
		}

		if stats.AvgDurationMs > longDurationMs {
			recs = append(recs, Recommendation{
				Operation:           op,
				Suggestion:          "long average runtime - lower the timeout or optimize the handler",
				EstimatedSavingsPct: 20,
				Priority:            1,
			})
		}
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority > recs[j].Priority
		}
		return recs[i].Operation < recs[j].Operation
	})

	return recs
}
