package handler

import (
	"net/http"

	"github.com/cuisinezen/governor/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

type LimitsHandler struct {
	facade *ratelimit.Facade
}

func NewLimitsHandler(facade *ratelimit.Facade) *LimitsHandler {
	return &LimitsHandler{facade: facade}
}

// Handles GET /admin/limits/:user
func (h *LimitsHandler) GetStatus(c *gin.Context) {
	userID := c.Param("user")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
		return
	}

	class := ratelimit.OperationClass(c.DefaultQuery("class", string(ratelimit.ClassAPI)))
	info := h.facade.GetLimitStatus(c.Request.Context(), userID, class)

	c.JSON(http.StatusOK, gin.H{
		"user":   userID,
		"class":  string(class),
		"status": info,
	})
}

// Handles POST /admin/limits/:user/reset
func (h *LimitsHandler) Reset(c *gin.Context) {
	userID := c.Param("user")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
		return
	}

	if err := h.facade.ResetLimits(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": userID, "reset": true})
}
