package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"collabhub/platform/internal/server/config"
	"collabhub/platform/internal/server/httpapi"
	"collabhub/platform/internal/server/jobs"
	"collabhub/platform/internal/server/realtime"
	"collabhub/platform/internal/server/store"
	"collabhub/platform/internal/server/store/memory"
	"collabhub/platform/internal/server/store/postgres"
	"collabhub/platform/internal/server/telemetry"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := telemetry.Setup("collabhub")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	var st store.Store
	if cfg.DatabaseURL == "memory" {
		log.Printf("using in-memory store")
		st = memory.New()
	} else {
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connection failed: %v", err)
		}
		defer pool.Close()
		st = postgres.NewStore(pool)
	}

	hub := realtime.NewHub()
	var publisher realtime.Publisher = hub
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		bridge := realtime.NewBridge(rdb, hub)
		go bridge.Run(ctx)
		publisher = bridge
	}

	poller := realtime.NewPoller(st, publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go poller.Run(ctx)
	jobs.StartProfileProvisioner(ctx, st, cfg.ProvisionInterval)

	server := httpapi.NewServer(cfg, st, realtime.NewHandler(hub, cfg.RealtimeWriteTimeout))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(server.Router(), "collabhub"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("collabhub listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
