package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	"fundingflow/dashboard"
	"fundingflow/internal/metrics"
	"fundingflow/internal/source"
	"fundingflow/internal/source/binance"
	"fundingflow/internal/source/bybit"
	"fundingflow/internal/source/hyperliquid"
	"fundingflow/internal/source/okx"
	"fundingflow/internal/source/rabbitx"
	"fundingflow/logger"
	"fundingflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Fundingflow.Name,
		"version": cfg.Fundingflow.Version,
	}).Info("starting fundingflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := source.NewRegistry()
	register := func(enabled bool, src source.Source) {
		if !enabled {
			return
		}
		if err := registry.Register(src); err != nil {
			log.WithError(err).Error("failed to register exchange source")
			os.Exit(1)
		}
	}
	register(cfg.Exchanges.Binance.Enabled, binance.New(cfg))
	register(cfg.Exchanges.Bybit.Enabled, bybit.New(cfg))
	register(cfg.Exchanges.Okx.Enabled, okx.New(cfg))
	register(cfg.Exchanges.Hyperliquid.Enabled, hyperliquid.New(ctx, cfg))
	register(cfg.Exchanges.Rabbitx.Enabled, rabbitx.New(cfg))

	if registry.Len() == 0 {
		log.Error("no exchanges enabled")
		os.Exit(1)
	}
	log.WithFields(logger.Fields{"exchanges": registry.Names()}).Info("exchange sources registered")

	var publisher *metrics.Publisher
	if cfg.Metrics.Enabled {
		publisher, err = metrics.NewPublisher(cfg)
		if err != nil {
			log.WithError(err).Warn("failed to initialize CloudWatch metrics; continuing without")
			publisher = nil
		}
	}

	var archiver dashboard.Archiver
	if cfg.Storage.S3.Enabled {
		snapshotWriter, err := writer.NewSnapshotWriter(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create snapshot writer")
			os.Exit(1)
		}
		archiver = snapshotWriter
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping snapshot archiving")
	}

	var enginePublisher dashboard.MetricsPublisher
	if publisher != nil {
		enginePublisher = publisher
	}

	engine := dashboard.NewEngine(cfg, registry, enginePublisher, archiver)
	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start dashboard engine")
		os.Exit(1)
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		engine.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("fundingflow stopped")
}
