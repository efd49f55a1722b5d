package service

import (
	"context"
	"time"

	"github.com/cuisinezen/governor/internal/cost"
	"github.com/cuisinezen/governor/internal/models"
	"github.com/cuisinezen/governor/internal/repository"
)

// CostReportService fuses the in-memory ledger (recent, per-instance) with
// the durable postgres aggregates (long range, all instances) into one
// advisory report, and flags when projected daily spend crosses the budget.
type CostReportService struct {
	ledger         *cost.Ledger
	repository     *repository.CostSampleRepository // nil when postgres is not configured
	dailyBudgetUSD float64
}

func NewCostReportService(ledger *cost.Ledger, repo *repository.CostSampleRepository, dailyBudgetUSD float64) *CostReportService {
	return &CostReportService{
		ledger:         ledger,
		repository:     repo,
		dailyBudgetUSD: dailyBudgetUSD,
	}
}

// CostReport is the admin-facing spend summary
type CostReport struct {
	Live               cost.Report                `json:"live"`
	DurableByOperation []repository.OperationCost `json:"durable_by_operation,omitempty"`
	DurableTotal       float64                    `json:"durable_total,omitempty"`
	ProjectedDailyCost float64                    `json:"projected_daily_cost"`
	DailyBudgetUSD     float64                    `json:"daily_budget_usd"`
	BudgetExceeded     bool                       `json:"budget_exceeded"`
}

// GetReport builds a report over the trailing window. Postgres being down
// degrades the report to the live ledger rather than failing it.
func (s *CostReportService) GetReport(ctx context.Context, window time.Duration) *CostReport {
	live := s.ledger.Analyze(window)

	report := &CostReport{
		Live:           live,
		DailyBudgetUSD: s.dailyBudgetUSD,
	}

	if window > 0 {
		report.ProjectedDailyCost = live.TotalCost * float64(24*time.Hour) / float64(window)
	}
	report.BudgetExceeded = s.dailyBudgetUSD > 0 && report.ProjectedDailyCost > s.dailyBudgetUSD

	if s.repository != nil {
		to := time.Now()
		from := to.Add(-window)
		if durable, err := s.repository.AggregateByOperation(ctx, from, to); err == nil {
			report.DurableByOperation = durable
		}
		if total, err := s.repository.TotalCost(ctx, from, to); err == nil {
			report.DurableTotal = total
		}
	}

	return report
}

func (s *CostReportService) GetRecommendations() []cost.Recommendation {
	return s.ledger.Recommend()
}

// GetHourlyCosts returns durable spend bucketed by hour over the trailing
// window. Empty without postgres.
func (s *CostReportService) GetHourlyCosts(ctx context.Context, window time.Duration) ([]map[string]interface{}, error) {
	if s.repository == nil {
		return nil, nil
	}
	to := time.Now()
	return s.repository.GetHourlyCost(ctx, to.Add(-window), to)
}

// ListSamples pages through durable raw samples over the trailing window.
// Empty without postgres.
func (s *CostReportService) ListSamples(ctx context.Context, window time.Duration, limit, offset int) ([]models.CostSample, error) {
	if s.repository == nil {
		return nil, nil
	}
	to := time.Now()
	return s.repository.FindByTimeRange(ctx, to.Add(-window), to, limit, offset)
}

// Cleanup deletes durable samples older than the retention period.
func (s *CostReportService) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if s.repository == nil {
		return 0, nil
	}
	cutOffDate := time.Now().AddDate(0, 0, -retentionDays)
	return s.repository.DeleteOldSamples(ctx, cutOffDate)
}
