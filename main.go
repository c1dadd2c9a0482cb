package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutorhub/config"
	"tutorhub/infrastructure/backend"
	"tutorhub/notify"
	"tutorhub/pkg/logger"
	"tutorhub/pkg/metrics"
	"tutorhub/server"
	"tutorhub/server/routes"
	"tutorhub/server/websocket"
	"tutorhub/services/admin"
	"tutorhub/services/archive"
	"tutorhub/services/challenges"
	"tutorhub/services/content"
	"tutorhub/services/sessions"
	"tutorhub/services/settings"
	"tutorhub/services/tickets"
	"tutorhub/store"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	// Load environment
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.Println("✓ Configuration loaded and validated")
	cfg.PrintSummary()

	logCfg := logger.DefaultConfig(cfg.Server.LogFile)
	logCfg.Level = logger.ParseLevel(cfg.Server.LogLevel)
	appLog, err := logger.NewWithConfig(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLog.Close()
	logger.SetDefault(appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the shared namespace
	handles, err := backend.Open(ctx, cfg, appLog)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer handles.Close()
	metrics.RegisterCollectors(handles.DB, handles.Redis)
	log.Printf("✓ Opened %s store", handles.Backend.Name())

	notifier := notify.New(appLog)
	if watcher, ok := handles.Watcher(); ok {
		go func() {
			if err := notifier.Relay(ctx, watcher); err != nil {
				appLog.WithError(err).Error("change relay stopped")
			}
		}()
	}

	st := store.New(handles.Backend, notifier, store.Options{
		Logger:        appLog,
		MutateRetries: cfg.Store.MutateRetries,
	})

	// Ticket archive
	var sink archive.Sink = archive.Discard{}
	if cfg.Kafka.Enabled {
		ka, err := archive.NewKafkaArchive(cfg.Kafka, appLog)
		if err != nil {
			return fmt.Errorf("failed to initialize ticket archive: %w", err)
		}
		defer ka.Close()
		sink = ka
		log.Println("✓ Ticket archive enabled")
	}

	// Services
	sm := sessions.NewSessionManager(st, sessions.Options{
		HashPasswords: cfg.Auth.HashPasswords,
		Logger:        appLog,
	})
	registry := settings.NewRegistry(st, appLog)
	mailbox := tickets.NewMailbox(st, tickets.Options{Archive: sink, Logger: appLog})
	boards := content.NewService(st, content.Options{Logger: appLog})
	console := admin.NewConsole(sm, mailbox, registry, appLog)
	tutor := challenges.NewService(nil, sm, registry, challenges.Options{Logger: appLog})
	log.Println("✓ Initialized services")

	if _, err := sm.ResolveSession(ctx); err != nil {
		appLog.WithError(err).Warn("initial session resolution failed")
	}
	go resolveOnChange(ctx, notifier, sm, appLog)

	for _, p := range console.Pollers(cfg.Poll, appLog) {
		p.Start(ctx)
		defer p.Stop()
	}

	hub := websocket.NewManager(ctx, notifier, appLog)
	defer hub.Close()

	srv := server.NewServer(cfg, routes.Deps{
		Store:      st,
		Notifier:   notifier,
		Sessions:   sm,
		Settings:   registry,
		Tickets:    mailbox,
		Content:    boards,
		Admin:      console,
		Challenges: tutor,
		WebSockets: hub,
	}, server.Options{Logger: appLog, Redis: handles.Redis})

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()
	log.Printf("✓ Listening on %s", cfg.ServerAddress())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Printf("Received signal: %v. Shutting down gracefully...", sig)
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("✓ Server shutdown complete")
	return nil
}

// resolveOnChange re-derives the session on every change signal, so a
// block or removal made elsewhere signs this context out without waiting
// for the next poll. Signals coalesce, so the key is not filtered.
func resolveOnChange(ctx context.Context, notifier *notify.Notifier, sm *sessions.SessionManager, log *logger.Logger) {
	for sig := range notifier.Signals(ctx) {
		if _, err := sm.ResolveSession(ctx); err != nil {
			log.WithField("key", sig.Key).WithError(err).Warn("session resolution after change failed")
		}
	}
}
