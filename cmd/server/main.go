/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the points marketplace server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags (environment variables as fallback)
  2. Configure structured logging
  3. Initialize SQLite store
  4. Register Prometheus metrics
  5. Start the background job queue
  6. Configure HTTP router
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port     HTTP server port (default: 8080, env PORT)
  -db       SQLite database path (default: pointsmarket.db, env DB_PATH)
            Use ":memory:" for in-memory database
  -bonus    Points credited per user by a bulk grant (default: 1000)
  -queue    Background job queue capacity (default: 16)
  -rate     Requests per second allowed per actor (default: 10)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the job queue (waits for a running grant to finish)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/market.db"

  # Run with in-memory database on a different port
  ./server -db=":memory:" -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/pointsmarket/api"
	"github.com/warp/pointsmarket/jobs"
	"github.com/warp/pointsmarket/market"
	"github.com/warp/pointsmarket/metrics"
	"github.com/warp/pointsmarket/store/sqlite"
)

func main() {
	// Flags, with environment variables as fallback defaults.
	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("DB_PATH", "pointsmarket.db"), "SQLite database path")
	bonus := flag.Int64("bonus", market.DefaultBonus, "points credited per user by a bulk grant")
	queueSize := flag.Int("queue", 16, "background job queue capacity")
	perActor := flag.Float64("rate", 10, "requests per second allowed per actor")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Background job queue
	queue := jobs.NewQueue(*queueSize, logger)
	queue.Start()
	defer queue.Stop()

	// Handler
	handler := api.NewHandler(store, queue, nil, logger)
	handler.Grants.Bonus = market.NewAmount(*bonus)
	handler.Grants.Metrics = collector
	handler.Purchase.Metrics = collector

	limiter := api.NewRateLimiter(*perActor, int(*perActor)*2)
	router := api.NewRouter(handler, limiter, metrics.Handler(registry))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", server.Addr, "db", *dbPath)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
