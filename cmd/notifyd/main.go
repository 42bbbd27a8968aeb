package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"notification-engine/internal/alerting"
	"notification-engine/internal/api"
	"notification-engine/internal/config"
	"notification-engine/internal/db"
	"notification-engine/internal/engine"
	"notification-engine/internal/health"
	"notification-engine/internal/kafka"
	"notification-engine/internal/logging"
	"notification-engine/internal/maintenance"
	"notification-engine/internal/models"
	"notification-engine/internal/ws"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Connect to database
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("Failed to connect to database: %v", err)
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbConn.Close()

	// Live channel hub; read receipts from clients are persisted here.
	hub := ws.NewHub(logger)
	hub.SetOnRead(func(notificationID, userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := dbConn.MarkRead(ctx, notificationID); err != nil {
			logger.Errorf("Failed to persist read receipt for %s: %v", notificationID, err)
		}
	})

	// Pipeline
	eng := engine.New(cfg, logger, dbConn, hub)
	var wg sync.WaitGroup
	eng.Start(&wg)

	// Health monitoring with ops forwarding for critical alerts
	monitor := health.NewMonitor(eng, hub, logger)
	notifier, err := alerting.NewNotifier(cfg, logger)
	if err != nil {
		logger.Errorf("Failed to init ops alerting: %v", err)
	}
	if notifier != nil {
		monitor.SetAlertSink(func(alert models.SystemAlert) {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := notifier.NotifyAlert(ctx, alert); err != nil {
				logger.Errorf("Failed to forward alert %s: %v", alert.ID, err)
			}
		})
	}
	monitor.StartMonitoring(cfg.Monitor.Interval)

	// Background housekeeping
	cleaner := maintenance.NewCleaner(eng, monitor, logger)
	if err := cleaner.Start(); err != nil {
		logger.Errorf("Failed to start maintenance scheduler: %v", err)
	}

	// Kafka consumer (optional; HTTP ingestion always works)
	consumeCtx, stopConsumer := context.WithCancel(context.Background())
	var consumer *kafka.Consumer
	if cfg.Kafka.Broker != "" {
		consumer = kafka.NewConsumer(cfg, eng, logger)
		consumer.Start(consumeCtx, &wg)
	} else {
		logger.Infof("KAFKA_BROKER not set, skipping Kafka consumer")
	}

	// API server
	router := api.NewRouter(dbConn, eng, hub, monitor, logger, cfg)
	server := &http.Server{Addr: cfg.API.Port, Handler: router}

	go func() {
		logger.Infof("Starting API server on %s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API server shutdown failed: %v", err)
	}

	stopConsumer()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.Errorf("Kafka consumer close failed: %v", err)
		}
	}

	monitor.StopMonitoring()
	<-cleaner.Stop().Done()

	// Flushes pending batches so nothing queued is lost.
	eng.Stop()
	wg.Wait()
	logger.Infof("Shutdown complete")
}
