package repository

import (
	"context"
	"time"

	"github.com/cuisinezen/governor/internal/models"
	"github.com/cuisinezen/governor/internal/storage"
)

type CostSampleRepository struct {
	db *storage.Postgres
}

func NewCostSampleRepository(db *storage.Postgres) *CostSampleRepository {
	return &CostSampleRepository{db: db}
}

// Inserts a single cost sample
func (r *CostSampleRepository) Create(ctx context.Context, sample *models.CostSample) error {
	return r.db.DB.WithContext(ctx).Create(sample).Error
}

// Inserts multiple cost samples (used by the async flush worker)
func (r *CostSampleRepository) CreateBatch(ctx context.Context, samples []*models.CostSample) error {
	if len(samples) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&samples).Error
}

// Retrieves samples within a time range
func (r *CostSampleRepository) FindByTimeRange(ctx context.Context, from, to time.Time, limit, offset int) ([]models.CostSample, error) {
	var samples []models.CostSample

	err := r.db.DB.WithContext(ctx).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&samples).Error

	return samples, err
}

// OperationCost is one row of the per-operation aggregate
type OperationCost struct {
	Operation   string  `json:"operation"`
	Invocations int64   `json:"invocations"`
	TotalCost   float64 `json:"total_cost"`
	AvgDuration float64 `json:"avg_duration_ms"`
}

// Aggregates durable spend per operation within a time range
func (r *CostSampleRepository) AggregateByOperation(ctx context.Context, from, to time.Time) ([]OperationCost, error) {
	var results []OperationCost

	err := r.db.DB.WithContext(ctx).
		Model(&models.CostSample{}).
		Select("operation, COUNT(*) as invocations, SUM(estimated_cost) as total_cost, AVG(duration_ms) as avg_duration").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("operation").
		Order("total_cost DESC").
		Scan(&results).Error

	return results, err
}

// Sums total estimated spend in a time range
func (r *CostSampleRepository) TotalCost(ctx context.Context, from, to time.Time) (float64, error) {
	var total float64

	err := r.db.DB.WithContext(ctx).
		Model(&models.CostSample{}).
		Where("timestamp BETWEEN ? AND ?", from, to).
		Select("COALESCE(SUM(estimated_cost), 0)").
		Scan(&total).Error

	return total, err
}

// Returns spend grouped by hour
func (r *CostSampleRepository) GetHourlyCost(ctx context.Context, from, to time.Time) ([]map[string]interface{}, error) {
	var results []map[string]interface{}

	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.CostSample{}).
		Select("DATE_TRUNC('hour', timestamp) as hour, COUNT(*) as invocations, SUM(estimated_cost) as total_cost").
		Where("timestamp BETWEEN ? AND ?", from, to).
		Group("hour").
		Order("hour ASC").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var hour time.Time
		var invocations int64
		var totalCost float64
		if err := rows.Scan(&hour, &invocations, &totalCost); err != nil {
			return nil, err
		}
		results = append(results, map[string]interface{}{
			"hour":        hour,
			"invocations": invocations,
			"total_cost":  totalCost,
		})
	}

	return results, nil
}

// Deletes samples older than the specified time
func (r *CostSampleRepository) DeleteOldSamples(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.DB.WithContext(ctx).
		Where("timestamp < ?", before).
		Delete(&models.CostSample{})

	return result.RowsAffected, result.Error
}
