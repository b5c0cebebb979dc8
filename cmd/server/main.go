package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/branchline/api/internal/broker"
	"github.com/branchline/api/internal/config"
	"github.com/branchline/api/internal/database"
	"github.com/branchline/api/internal/events"
	"github.com/branchline/api/internal/logger"
	"github.com/branchline/api/internal/router"
	"github.com/branchline/api/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(logger.Config{
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
		File:        cfg.LogFile,
	})
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("database connected")

	bus := events.NewBus(log.Named("events"))

	hub := ws.NewHub(log.Named("ws"))
	go hub.Run(ctx)
	defer hub.Subscribe(bus)()

	pub, err := broker.New(cfg, log.Named("broker"))
	if err != nil {
		return fmt.Errorf("connect event broker: %w", err)
	}
	relayDone := make(chan struct{})
	if pub != nil {
		relay := broker.NewRelay(pub, broker.DefaultQueueSize, log.Named("relay"))
		detach := relay.Attach(bus)
		go func() {
			relay.Run(ctx)
			close(relayDone)
		}()
		defer func() {
			detach()
			<-relayDone
			if err := pub.Close(); err != nil {
				log.Warn("close event broker", zap.Error(err))
			}
		}()
		log.Info("event relay started", zap.String("broker", cfg.EventBroker))
	}

	r, err := router.New(cfg, database.New(pool), pool, hub, bus, log)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
