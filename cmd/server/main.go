package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"trendscribe/internal/app"
	"trendscribe/internal/config"
	"trendscribe/internal/jobs"
	"trendscribe/internal/server"
	"trendscribe/internal/util"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel, "trendscribe")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appCore, err := app.New(ctx, cfg, logger)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	defer func() {
		if err := appCore.Close(); err != nil {
			logger.Error("close backends", "err", err)
		}
	}()

	httpServer, err := server.New(server.Config{
		Pipeline:           appCore.Pipeline,
		Selector:           appCore.Selector,
		Related:            appCore.Related,
		Chat:               appCore.Chat,
		TokenVerifier:      appCore.Verifier,
		GenerateLimiter:    appCore.GenerateLimiter,
		TrendsLimiter:      appCore.TrendsLimiter,
		TrustedProxies:     appCore.TrustedProxies,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:            appCore.Metrics,
		Health:             appCore.Ping,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	monitor, err := jobs.NewStaleProjectMonitor(appCore.Store, appCore.Metrics, logger,
		config.Duration(cfg.StaleCheckInterval), config.Duration(cfg.StaleAfter))
	if err != nil {
		util.Fatal("failed to init stale project monitor", "err", err)
	}
	if err := monitor.Start(ctx); err != nil {
		util.Fatal("failed to start stale project monitor", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := monitor.Shutdown(); err != nil {
			logger.Warn("stop stale project monitor", "err", err)
		}
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
	logger.Info("server stopped")
}
