package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"xui-shop-core/internal/cache"
	"xui-shop-core/internal/catalog"
	"xui-shop-core/internal/config"
	"xui-shop-core/internal/constants"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/httpapi"
	"xui-shop-core/internal/link"
	"xui-shop-core/internal/metrics"
	"xui-shop-core/internal/models"
	"xui-shop-core/internal/services"
	"xui-shop-core/internal/storage"
	"xui-shop-core/pkg/xuiclient"
)

func main() {
	// Setup logger
	logger := setupLogger(os.Getenv("LOG_LEVEL"))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: ", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if closer := setupLogFile(logger, cfg.LogFile); closer != nil {
		defer closer.Close()
	}

	c, err := catalog.New(cfg.Services)
	if err != nil {
		logger.Fatal("Invalid service catalog: ", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Caches
	sessionCache, lookupCache, redisClient, err := setupCaches(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to set up cache: ", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Registry
	registry, err := storage.Open(cfg.Registry.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open user registry: ", err)
	}
	defer registry.Close()

	// Initialize services
	panel := xuiclient.NewClient(cfg.Panel, cfg.Login, m, logger)
	sessions := services.NewSessionManager(panel, sessionCache, cfg.Login, logger)
	directory := services.NewClientDirectory(panel, lookupCache, cfg.Client.CacheTTL, m, logger)
	provisioner := services.NewProvisioner(directory, panel, cfg.Client, logger)
	reconciler := services.NewReconciliationEngine(c, directory, provisioner, registry, logger)

	entitlements := services.NewEntitlementService(services.EntitlementDeps{
		Catalog:     c,
		Sessions:    sessions,
		Directory:   directory,
		Provisioner: provisioner,
		Reconciler:  reconciler,
		Links:       link.NewSynthesizer(c, cfg.Link),
		QR:          services.NewQRService(logger),
		Registry:    registry,
		Metrics:     m,
	}, logger)

	router := httpapi.NewRouter(entitlements, httpapi.Options{
		Token:    cfg.HTTP.Token,
		Gatherer: reg,
		Users:    registry,
		Release:  logger.GetLevel() < logrus.DebugLevel,
	}, logger)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Handle graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	var wg sync.WaitGroup
	if cfg.Sync.Interval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSyncLoop(ctx, entitlements, cfg.Sync.Interval, logger)
		}()
	} else {
		logger.Info("Periodic reconcile disabled")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP server shutdown failed: %v", err)
		}
	}()

	logger.Infof("Starting xui-shop-core API on %s (%d services, cache=%s)", cfg.HTTP.Addr, len(c.All(true)), cfg.Cache.Backend)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("HTTP server failed: ", err)
	}

	wg.Wait()
	logger.Info("Stopped")
}

// setupCaches builds the session and client lookup caches for the configured backend
func setupCaches(ctx context.Context, cfg *config.Config) (cache.Cache[models.Session], cache.Cache[services.ClientLookup], *redis.Client, error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		db, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, nil, err
		}
		return cache.NewRedis[models.Session](db, "xui:session:"),
			cache.NewRedis[services.ClientLookup](db, "xui:lookup:"),
			db, nil
	}

	cleanup := constants.CacheCleanupInterval * time.Minute
	return cache.NewMemory[models.Session](cleanup), cache.NewMemory[services.ClientLookup](cleanup), nil, nil
}

// runSyncLoop reconciles once at start and then on every tick until ctx is done
func runSyncLoop(ctx context.Context, svc *services.EntitlementService, interval time.Duration, logger *logrus.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := svc.Reconcile(ctx)
		switch {
		case errors.Is(err, apperrors.ErrReconcileInProgress):
			logger.Info("Reconcile already running, skipping tick")
		case err != nil:
			logger.Errorf("Periodic reconcile failed: %v", err)
		default:
			logger.Debugf("Periodic reconcile stats: %+v", stats)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// setupLogger sets up the logger
func setupLogger(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Default to info
	if logLevel == "" {
		logLevel = "info"
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		log.Printf("Invalid log level %s, defaulting to info", logLevel)
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)

	// Set formatter
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: constants.TimestampFormat,
	})

	return logger
}

// setupLogFile mirrors log output into a rotated file
func setupLogFile(logger *logrus.Logger, path string) io.Closer {
	if path == "" {
		return nil
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, file))
	return file
}
