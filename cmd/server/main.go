/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the progression engine server. Handles
  configuration, dependency injection, catalog seeding, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load environment configuration, then apply command-line flags
  2. Initialize SQLite store
  3. Seed the built-in skill and achievement catalog
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

CONFIGURATION:
  Environment variables (flags override):
    PORT              HTTP server port (default: 8080)
    DB_PATH           SQLite database path (default: progression.db)
    LEVEL_BASE        XP cost of level 1 (default: 100)
    LEVEL_MULTIPLIER  Per-level XP growth factor (default: "1.5")

COMMAND-LINE FLAGS:
  -port    HTTP server port
  -db      SQLite database path (":memory:" for in-memory)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/progression.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Configure the curve via environment
  LEVEL_BASE=200 LEVEL_MULTIPLIER=1.25 ./server

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
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/warp/progression-engine/api"
	"github.com/warp/progression-engine/catalog"
	"github.com/warp/progression-engine/progression"
	"github.com/warp/progression-engine/store/sqlite"
)

// Config holds environment-driven settings.
type Config struct {
	Port            int    `env:"PORT" envDefault:"8080"`
	DBPath          string `env:"DB_PATH" envDefault:"progression.db"`
	LevelBase       int64  `env:"LEVEL_BASE" envDefault:"100"`
	LevelMultiplier string `env:"LEVEL_MULTIPLIER" envDefault:"1.5"`
}

func main() {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}

	// Flags override the environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Seed built-in skills and achievements (existing rows are untouched)
	if err := catalog.Seed(context.Background(), store); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	// Initialize handler
	handler := api.NewHandler(store)
	handler.Ledger.Curve = progression.NewCurve(cfg.LevelBase, cfg.LevelMultiplier)

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", *port)
		log.Printf("📊 API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
