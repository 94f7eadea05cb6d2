package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dukerupert/wellpoints/internal/auth"
	"github.com/dukerupert/wellpoints/internal/config"
	"github.com/dukerupert/wellpoints/internal/database"
	"github.com/dukerupert/wellpoints/internal/engine"
	"github.com/dukerupert/wellpoints/internal/ledger"
	"github.com/dukerupert/wellpoints/internal/logging"
	"github.com/dukerupert/wellpoints/internal/metrics"
	"github.com/dukerupert/wellpoints/internal/server"
	"github.com/dukerupert/wellpoints/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	ledgerStore := store.NewLedgerStore(db)
	recorder := ledger.NewRecorder(ledgerStore, cfg.LedgerBuffer, m, logger.With("component", "ledger"))

	eng := engine.New(
		store.NewCatalogStore(db),
		store.NewProfileStore(db),
		recorder,
		ledgerStore,
		engine.WithLocation(cfg.Location),
		engine.WithMetrics(m),
		engine.WithLogger(logger.With("component", "engine")),
	)

	srv := server.New(db, eng, auth.NewTokens(cfg.JWTSecret, 0), m, server.Options{
		MetricsUser:     cfg.MetricsUser,
		MetricsPassHash: cfg.MetricsPassHash,
		Gatherer:        prometheus.DefaultGatherer,
		RateLimit:       cfg.RateLimit,
		RateBurst:       cfg.RateBurst,
	}, logger)
	if !cfg.MetricsEnabled() {
		logger.Warn("metrics endpoint disabled, set WELLPOINTS_METRICS_USER and WELLPOINTS_METRICS_PASS_HASH")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder.Start(ctx)

	// Drop idle rate limiter buckets
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("wellpoints listening", "addr", httpServer.Addr, "timezone", cfg.Location.String())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Flush queued ledger entries before the database closes.
	recorder.Stop()
}

// issueToken prints a signed bearer token, for local testing and admin
// bootstrap.
func issueToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	user := fs.String("user", "", "user id (required)")
	name := fs.String("name", "", "display name")
	role := fs.String("role", "member", "role: member or admin")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return fmt.Errorf("-user is required")
	}

	token, err := auth.NewTokens(cfg.JWTSecret, *ttl).Issue(*user, *name, *role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
