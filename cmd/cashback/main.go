// Package main starts the cashback service HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rbarros/cashback-system/internal/cashback"
	"github.com/rbarros/cashback-system/internal/config"
	"github.com/rbarros/cashback-system/internal/handler"
	"github.com/rbarros/cashback-system/internal/middleware"
	"github.com/rbarros/cashback-system/internal/repository"
	"github.com/rbarros/cashback-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	// Monetary values are serialized as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The canonical statuses must exist before any purchase is created.
	if err := repo.EnsureStatuses(ctx); err != nil {
		sugar.Fatalw("status seeding error", "error", err.Error())
	}

	var externalClient *cashback.Client
	if cfg.ExternalCashbackAPI != "" {
		externalClient = cashback.NewClient(cfg.ExternalCashbackAPI, cfg.ExternalTimeout)
	}

	svc := service.NewService(repo, externalClient)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.TokenSecret, cfg.TokenTTL)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting cashback server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
