package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/cuisinezen/governor/internal/cache"
	"github.com/cuisinezen/governor/internal/config"
	"github.com/cuisinezen/governor/internal/cost"
	"github.com/cuisinezen/governor/internal/handler"
	"github.com/cuisinezen/governor/internal/middleware"
	"github.com/cuisinezen/governor/internal/ratelimit"
	"github.com/cuisinezen/governor/internal/repository"
	"github.com/cuisinezen/governor/internal/service"
	"github.com/cuisinezen/governor/internal/storage"
	"github.com/gin-gonic/gin"
)

type Server struct {
	router   *gin.Engine
	config   *config.Config
	store    storage.Store
	postgres *storage.Postgres

	facade  *ratelimit.Facade
	cache   *cache.DistributedCache
	guard   *cache.StampedeGuard
	ledger  *cost.Ledger
	tracker *middleware.CostTracker

	httpServer *http.Server
}

// New assembles the governance layer around the given stores. postgres may
// be nil (cost samples then stay in the in-memory ledger only).
func New(cfg *config.Config, store storage.Store, postgres *storage.Postgres, inventory handler.InventoryBackend) (*Server, error) {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	facade, err := ratelimit.NewFacade(store, ratelimit.FacadeConfig{
		Policies:       cfg.Policies(),
		GlobalRPS:      cfg.RateLimit.GlobalRPS,
		MaxIdentifiers: cfg.RateLimit.MaxIdentifiers,
	})
	if err != nil {
		return nil, err
	}

	distCache := cache.NewDistributedCache(store, cfg.CacheTTL())
	guard := cache.NewStampedeGuard(distCache, store, cache.GuardConfig{
		MaxWait: cfg.LockMaxWait(),
	})

	ledger := cost.NewLedger(cost.LedgerConfig{})

	var costRepo *repository.CostSampleRepository
	if postgres != nil {
		costRepo = repository.NewCostSampleRepository(postgres)
	}
	tracker := middleware.NewCostTracker(ledger, costRepo, cfg.Cost.InstanceMemoryMB, 1000)
	costService := service.NewCostReportService(ledger, costRepo, cfg.Cost.DailyBudgetUSD)

	s := &Server{
		router:   router,
		config:   cfg,
		store:    store,
		postgres: postgres,
		facade:   facade,
		cache:    distCache,
		guard:    guard,
		ledger:   ledger,
		tracker:  tracker,
	}

	s.setupMiddleware()
	s.setupRoutes(inventory, costService)

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.Principal([]byte(s.config.Server.JWTSecret)))
}

func (s *Server) setupRoutes(inventory handler.InventoryBackend, costService *service.CostReportService) {
	s.router.GET("/health", s.healthCheck)

	limitsHandler := handler.NewLimitsHandler(s.facade)
	costHandler := handler.NewCostHandler(costService, s.config.Cost.RetentionDays)

	admin := s.router.Group("/admin")
	admin.Use(middleware.AdminAuth(s.config.Server.AdminTokenHash))
	{
		admin.GET("/limits/:user", limitsHandler.GetStatus)
		admin.POST("/limits/:user/reset", limitsHandler.Reset)
		admin.GET("/cost/report", costHandler.GetReport)
		admin.GET("/cost/recommendations", costHandler.GetRecommendations)
		admin.GET("/cost/hourly", costHandler.GetHourly)
		admin.GET("/cost/samples", costHandler.ListSamples)
		admin.DELETE("/cost/samples", costHandler.Cleanup)
	}

	if inventory == nil {
		return
	}

	inventoryHandler := handler.NewInventoryHandler(inventory, s.cache, s.guard, s.config.CacheTTL(), s.config.LockTTL())

	api := s.router.Group("/api")
	{
		api.GET("/products",
			middleware.RateLimit(s.facade, ratelimit.ClassAPI),
			s.tracker.Handler("products.list", "read"),
			inventoryHandler.List)

		api.GET("/products/search",
			middleware.RateLimit(s.facade, ratelimit.ClassSearch),
			s.tracker.Handler("products.search", "read"),
			inventoryHandler.Search)

		api.POST("/products",
			middleware.RateLimit(s.facade, ratelimit.ClassMutation),
			s.tracker.Handler("products.create", "write"),
			inventoryHandler.Create)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	ctx := c.Request.Context()

	storeHealthy := true
	if err := s.store.Ping(ctx); err != nil {
		storeHealthy = false
		log.Printf("Store health check failed: %v", err)
	}

	dbHealthy := true
	if s.postgres != nil {
		if err := s.postgres.Ping(ctx); err != nil {
			dbHealthy = false
			log.Printf("Database health check failed: %v", err)
		}
	}

	status := "healthy"
	statusCode := http.StatusOK

	if !storeHealthy || !dbHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "cuisinezen-governor",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"store":    storeHealthy,
			"database": dbHealthy,
		},
	})
}

// Facade exposes the rate limiter for callers embedding the server.
func (s *Server) Facade() *ratelimit.Facade {
	return s.facade
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	log.Printf("Starting governance server on %s", addr)
	log.Printf("Environment: %s", s.config.Server.Environment)

	// ErrServerClosed just means Shutdown was called; a graceful stop is
	// not a startup failure.
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")

	s.tracker.Close()
	s.facade.Close()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}
