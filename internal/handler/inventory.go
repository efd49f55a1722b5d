package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cuisinezen/governor/internal/cache"
	"github.com/cuisinezen/governor/internal/models"
	"github.com/gin-gonic/gin"
)

// InventoryBackend is the document-database boundary. The real implementation
// wraps the managed backend's product collection; the governance layer only
// needs reads to be cacheable and writes to be observable for invalidation.
type InventoryBackend interface {
	ListProducts(ctx context.Context) ([]models.Product, error)
	SearchProducts(ctx context.Context, query string) ([]models.Product, error)
	SaveProduct(ctx context.Context, product models.Product) error
}

// InventoryHandler serves the inventory read/write paths through the cache
// and stampede guard, so concurrent cold reads hit the backend once.
type InventoryHandler struct {
	backend InventoryBackend
	cache   *cache.DistributedCache
	guard   *cache.StampedeGuard
	ttl     time.Duration
	lockTTL time.Duration
}

func NewInventoryHandler(backend InventoryBackend, c *cache.DistributedCache, guard *cache.StampedeGuard, ttl, lockTTL time.Duration) *InventoryHandler {
	return &InventoryHandler{
		backend: backend,
		cache:   c,
		guard:   guard,
		ttl:     ttl,
		lockTTL: lockTTL,
	}
}

// Handles GET /api/products
func (h *InventoryHandler) List(c *gin.Context) {
	var products []models.Product

	err := h.guard.GetOrCompute(c.Request.Context(), "products:list", h.ttl, h.lockTTL, &products,
		func(ctx context.Context) (any, error) {
			return h.backend.ListProducts(ctx)
		})
	if err != nil {
		if errors.Is(err, cache.ErrLockWaitTimeout) {
			// Another instance's recomputation is wedged; serve a direct
			// uncached read instead of failing.
			direct, derr := h.backend.ListProducts(c.Request.Context())
			if derr == nil {
				c.JSON(http.StatusOK, gin.H{"products": direct})
				return
			}
			err = derr
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// Handles GET /api/products/search?q=
func (h *InventoryHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	var products []models.Product
	err := h.guard.GetOrCompute(c.Request.Context(), "products:search:"+query, h.ttl, h.lockTTL, &products,
		func(ctx context.Context) (any, error) {
			return h.backend.SearchProducts(ctx, query)
		})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products, "query": query})
}

// Handles POST /api/products
func (h *InventoryHandler) Create(c *gin.Context) {
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.backend.SaveProduct(c.Request.Context(), product); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Every cached product view is stale now.
	invalidated := h.cache.InvalidatePattern(c.Request.Context(), "products:*")

	c.JSON(http.StatusCreated, gin.H{
		"product":     product,
		"invalidated": invalidated,
	})
}
