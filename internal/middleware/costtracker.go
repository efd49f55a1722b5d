package middleware

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cuisinezen/governor/internal/cost"
	"github.com/cuisinezen/governor/internal/models"
	"github.com/cuisinezen/governor/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CostTracker records one ledger sample per request and streams samples to
// postgres through a buffered channel with a batching worker, so the durable
// write never sits on the request path.
type CostTracker struct {
	ledger           *cost.Ledger
	repository       *repository.CostSampleRepository // nil disables durable flush
	instanceMemoryMB float64

	samples  chan models.CostSample
	stop     chan struct{}
	stopOnce sync.Once
	done     sync.WaitGroup
}

func NewCostTracker(ledger *cost.Ledger, repo *repository.CostSampleRepository, instanceMemoryMB float64, bufferSize int) *CostTracker {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	t := &CostTracker{
		ledger:           ledger,
		repository:       repo,
		instanceMemoryMB: instanceMemoryMB,
		samples:          make(chan models.CostSample, bufferSize),
		stop:             make(chan struct{}),
	}

	if repo != nil {
		t.done.Add(1)
		go t.flushWorker()
	}

	return t
}

// Handler returns the gin middleware. operation and category tag the
// samples; typically one tracker handler per route group.
func (t *CostTracker) Handler(operation, category string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		sample := t.ledger.RecordSample(operation, category, durationMs, t.instanceMemoryMB)

		if t.repository == nil {
			return
		}

		requestID, _ := uuid.Parse(c.GetString("request_id"))
		record := models.CostSample{
			RequestID:     requestID,
			Timestamp:     sample.Timestamp,
			Operation:     sample.Operation,
			Category:      sample.Category,
			DurationMs:    sample.DurationMs,
			MemoryMB:      sample.MemoryMB,
			EstimatedCost: sample.EstimatedCost,
			StatusCode:    c.Writer.Status(),
			IPAddress:     c.ClientIP(),
			UserID:        UserID(c),
		}

		select {
		case t.samples <- record:
		default:
			// Channel full; drop rather than block the response.
			log.Printf("cost sample channel full, dropping sample for %s", operation)
		}
	}
}

// Close drains pending samples and stops the flush worker.
func (t *CostTracker) Close() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.done.Wait()
}

func (t *CostTracker) flushWorker() {
	defer t.done.Done()

	batch := make([]*models.CostSample, 0, 100)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := t.repository.CreateBatch(ctx, batch); err != nil {
			log.Printf("failed to persist cost samples: %v", err)
		}
		cancel()
		batch = make([]*models.CostSample, 0, 100)
	}

	for {
		select {
		case sample := <-t.samples:
			s := sample
			batch = append(batch, &s)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-t.stop:
			// Drain whatever is already queued, then flush once.
			for {
				select {
				case sample := <-t.samples:
					s := sample
					batch = append(batch, &s)
				default:
					flush()
					return
				}
			}
		}
	}
}
