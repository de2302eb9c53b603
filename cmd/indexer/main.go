package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/csic-platform/charms-indexer/internal/config"
	"github.com/csic-platform/charms-indexer/internal/events"
	"github.com/csic-platform/charms-indexer/internal/logging"
	"github.com/csic-platform/charms-indexer/internal/metrics"
	"github.com/csic-platform/charms-indexer/internal/netmanager"
	"github.com/csic-platform/charms-indexer/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.App.Debug)
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting charms indexer",
		zap.Int("enabled_networks", len(cfg.EnabledNetworks())))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := repository.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	repo := repository.New(pool, logger)

	pub := events.New(cfg.KafkaBrokers, logger)
	defer pub.Close()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	mgr, err := netmanager.New(cfg, repo, pub, m, logger)
	if err != nil {
		logger.Fatal("failed to build network manager", zap.Error(err))
	}

	go mgr.Run(ctx)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.HealthPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("liveness endpoint listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("liveness server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down charms indexer")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("liveness server forced to shutdown", zap.Error(err))
	}

	logger.Info("charms indexer stopped")
}
