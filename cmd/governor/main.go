package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuisinezen/governor/internal/config"
	"github.com/cuisinezen/governor/internal/server"
	"github.com/cuisinezen/governor/internal/storage"
	"github.com/joho/godotenv"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Redis being down at boot must not keep the service down: fall back
	// to the per-instance memory store and keep serving with weaker
	// guarantees.
	var store storage.Store
	store, err = storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Printf("Redis unavailable, degrading to in-process store: %v", err)
		store = storage.NewMemoryStore(nil)
	} else {
		log.Println("Connected to redis successfully")
	}
	defer store.Close()

	var postgres *storage.Postgres
	if cfg.Postgres.DSN != "" {
		postgres, err = storage.NewPostgres(cfg.Postgres.DSN)
		if err != nil {
			log.Printf("Postgres unavailable, cost samples stay in memory: %v", err)
		} else {
			if err := postgres.AutoMigrate(); err != nil {
				log.Fatalf("Failed to migrate database: %v", err)
			}
			defer postgres.Close()
		}
	}

	srv, err := server.New(cfg, store, postgres, newDemoInventory())
	if err != nil {
		log.Fatalf("Failed to build server: %v", err)
	}

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
