// Package main runs the NeptuneChain backend: the asset, credit and account
// orchestrators, the ledger projector and the reconciliation jobs, all
// served from one HTTP router.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/config"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
)

const (
	version          = "1.0.0"
	rpcTimeout       = 30 * time.Second
	rateLimiterSweep = time.Minute
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New("npcd", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New()

	n, err := wire(ctx, cfg, logger, m)
	if err != nil {
		log.Fatalf("Failed to wire services: %v", err)
	}
	if err := n.start(ctx); err != nil {
		n.stop()
		log.Fatalf("Failed to start services: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           n.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info(ctx, "npcd listening", map[string]interface{}{
			"addr":       cfg.Server.Addr,
			"ledger":     cfg.Ledger.Backend,
			"projection": cfg.Projection.Backend,
			"auth":       cfg.Auth.Enabled,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	cancel()
	n.stop()

	log.Println("Server stopped")
}
