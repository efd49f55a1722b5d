package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cuisinezen/governor/internal/service"
	"github.com/gin-gonic/gin"
)

type CostHandler struct {
	service       *service.CostReportService
	retentionDays int
}

func NewCostHandler(service *service.CostReportService, retentionDays int) *CostHandler {
	return &CostHandler{
		service:       service,
		retentionDays: retentionDays,
	}
}

// Handles GET /admin/cost/report?hours=24
func (h *CostHandler) GetReport(c *gin.Context) {
	hours := 24
	if hoursStr := c.Query("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 24*30 {
			hours = parsed
		}
	}

	report := h.service.GetReport(c.Request.Context(), time.Duration(hours)*time.Hour)
	c.JSON(http.StatusOK, report)
}

// Handles GET /admin/cost/recommendations
func (h *CostHandler) GetRecommendations(c *gin.Context) {
	recs := h.service.GetRecommendations()
	c.JSON(http.StatusOK, gin.H{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// Handles GET /admin/cost/hourly?hours=24
func (h *CostHandler) GetHourly(c *gin.Context) {
	hours := 24
	if hoursStr := c.Query("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 24*30 {
			hours = parsed
		}
	}

	buckets, err := h.service.GetHourlyCosts(c.Request.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hourly": buckets})
}

// Handles GET /admin/cost/samples?hours=24&limit=100&offset=0
func (h *CostHandler) ListSamples(c *gin.Context) {
	hours := 24
	if hoursStr := c.Query("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 && parsed <= 24*30 {
			hours = parsed
		}
	}

	limit := 100
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	samples, err := h.service.ListSamples(c.Request.Context(), time.Duration(hours)*time.Hour, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"samples": samples,
		"count":   len(samples),
	})
}

// Handles DELETE /admin/cost/samples
func (h *CostHandler) Cleanup(c *gin.Context) {
	retention := h.retentionDays
	if daysStr := c.Query("retention_days"); daysStr != "" {
		if parsed, err := strconv.Atoi(daysStr); err == nil && parsed > 0 {
			retention = parsed
		}
	}

	deleted, err := h.service.Cleanup(c.Request.Context(), retention)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":        deleted,
		"retention_days": retention,
	})
}
