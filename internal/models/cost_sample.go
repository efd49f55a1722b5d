package models

import (
	"time"

	"github.com/google/uuid"
)

// Represents a persisted per-request cost measurement
type CostSample struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	RequestID     uuid.UUID `gorm:"type:uuid;index" json:"request_id"`
	Timestamp     time.Time `gorm:"index" json:"timestamp"`
	Operation     string    `gorm:"index" json:"operation"`
	Category      string    `gorm:"index" json:"category"`
	DurationMs    float64   `json:"duration_ms"`
	MemoryMB      float64   `json:"memory_mb"`
	EstimatedCost float64   `json:"estimated_cost"`
	StatusCode    int       `json:"status_code"`
	IPAddress     string    `json:"ip_address"`
	UserID        string    `gorm:"index" json:"user_id,omitempty"`
}

func (CostSample) TableName() string {
	return "cost_samples"
}
