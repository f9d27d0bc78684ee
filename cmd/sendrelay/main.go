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

	"github.com/sendrelay/sendrelay/internal/audit"
	"github.com/sendrelay/sendrelay/internal/config"
	"github.com/sendrelay/sendrelay/internal/dispatch"
	"github.com/sendrelay/sendrelay/internal/httpserver"
	"github.com/sendrelay/sendrelay/internal/notification"
	"github.com/sendrelay/sendrelay/internal/queue"
	"github.com/sendrelay/sendrelay/internal/telemetry"
	"github.com/sendrelay/sendrelay/internal/upload"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(&telemetry.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: cfg.LogOutput,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	otelProvider, err := telemetry.NewProvider(telemetry.LoadOTelConfig())
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	senders, err := buildSenders(cfg)
	if err != nil {
		log.Fatalf("Failed to configure channels: %v", err)
	}

	registry, err := notification.NewRegistry(senders...)
	if err != nil {
		log.Fatalf("Failed to build channel registry: %v", err)
	}

	startCtx := context.Background()

	// Postgres audit log is optional; without it sends are not persisted.
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.DatabaseURL != "" {
		pg, err := audit.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() { _ = pg.Close() }()

		if err := pg.EnsureSchema(startCtx); err != nil {
			log.Fatalf("Failed to prepare audit schema: %v", err)
		}
		recorder = pg
	}

	// Queued delivery needs both Redis and the audit log, because the
	// worker reloads each notification from the database.
	var dispatchQueue queue.Queue
	if cfg.RedisURL != "" {
		if cfg.DatabaseURL == "" {
			log.Fatal("REDIS_URL requires DATABASE_URL: queued notifications are loaded from the audit log")
		}
		q, err := queue.NewRedisQueue(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer func() { _ = q.Close() }()
		dispatchQueue = q
	}

	dispatcher := dispatch.New(registry, recorder, dispatchQueue, logger)

	uploads, err := upload.NewStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload storage: %v", err)
	}

	server := httpserver.New(httpserver.Config{
		ServiceName:    "sendrelay",
		DefaultChannel: cfg.Channel,
		Environment:    cfg.Environment,
	}, dispatcher, uploads, logger)

	// Start queue worker
	var worker *queue.Worker
	if dispatchQueue != nil {
		worker = queue.NewWorker(dispatchQueue, dispatcher.Process, queue.WorkerConfig{
			Concurrency: cfg.WorkerConcurrency,
			BatchSize:   cfg.WorkerBatchSize,
		}, logger)

		go func() {
			if err := worker.Start(context.Background()); err != nil && err != context.Canceled {
				logger.WithContext(startCtx).WithField("error", err).Error("worker stopped")
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Engine(),
	}

	go func() {
		logger.WithContext(startCtx).WithField("addr", cfg.HTTPAddr).
			Infof("starting server with channels %v (default %q)", registry.Channels(), cfg.Channel)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.WithContext(startCtx).Info("shutting down")

	if worker != nil {
		worker.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if err := otelProvider.Shutdown(ctx); err != nil {
		logger.WithContext(ctx).WithField("error", err).Warn("failed to shut down telemetry")
	}
}

// buildSenders constructs one sender per configured channel. Email is
// always present; SMS and Telegram join when their credentials are set.
func buildSenders(cfg config.Config) ([]notification.Sender, error) {
	emailSender, err := notification.NewEmailSender(notification.EmailSenderConfig{
		APIToken:  cfg.Email.APIToken,
		FromEmail: cfg.Email.FromEmail,
		FromName:  cfg.Email.FromName,
		Subject:   cfg.Email.Subject,
		BaseURL:   cfg.Email.APIURL,
		Timeout:   cfg.SendTimeout,
	})
	if err != nil {
		return nil, err
	}

	senders := []notification.Sender{emailSender}

	if cfg.SMSEnabled() {
		smsSender, err := notification.NewSMSSender(notification.SMSSenderConfig{
			AccountID: cfg.SMS.AccountID,
			AuthToken: cfg.SMS.AuthToken,
			From:      cfg.SMS.From,
			BaseURL:   cfg.SMS.APIURL,
			Timeout:   cfg.SendTimeout,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, smsSender)
	}

	if cfg.TelegramEnabled() {
		tgSender, err := notification.NewTelegramSender(notification.TelegramSenderConfig{
			BotToken: cfg.Telegram.BotToken,
			Timeout:  cfg.SendTimeout,
		})
		if err != nil {
			return nil, err
		}
		senders = append(senders, tgSender)
	}

	return senders, nil
}
