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

	"go.uber.org/zap"

	"fimbiz-sync/config"
	"fimbiz-sync/internal/api"
	"fimbiz-sync/internal/contractorsync"
	"fimbiz-sync/internal/database"
	"fimbiz-sync/internal/database/models"
	"fimbiz-sync/internal/erp"
	"fimbiz-sync/internal/logger"
	"fimbiz-sync/internal/notify"
	"fimbiz-sync/internal/outbound"
	"fimbiz-sync/internal/reconcile"
	"fimbiz-sync/internal/sessions"
	"fimbiz-sync/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.LoadConfig()

	zaplog, err := logger.NewZapLog(cfg.Logger)
	if err != nil {
		return err
	}
	defer zaplog.Sync()

	db, err := database.NewConnection(cfg.DB.DSN)
	if err != nil {
		return err
	}
	if err := models.MigrateOrderDB(db); err != nil {
		return err
	}
	if err := models.MigrateContractorDB(db); err != nil {
		return err
	}
	if err := models.MigrateSessionDB(db); err != nil {
		return err
	}

	redisClient, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	st := store.New(db)
	runner := reconcile.NewRunner(zaplog)
	pool := erp.NewPool(cfg.ERP.BaseURL, cfg.ERP.APIKey, cfg.ERP.RequestTimeout, zaplog)
	sessionSvc := sessions.NewService(st, redisClient, cfg.Session.JWTSecret, cfg.Session.TTL, zaplog)
	reconciler := reconcile.NewReconciler(st, runner, notify.NewLogMailer(zaplog), notify.NewPassthroughFileStore(), zaplog)
	pusher := outbound.NewPusher(st, pool, runner, zaplog)
	sweeper := outbound.NewSweeper(st, pusher, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize, zaplog)
	syncer := contractorsync.NewSyncer(st, pool, runner, sessionSvc, cfg.Feed.ReconnectBackoff, zaplog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := syncer.Bootstrap(ctx); err != nil {
		zaplog.Error("contractor bootstrap failed, continuing with feed only", zap.Error(err))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	shops, err := st.ActiveShops(ctx)
	if err != nil {
		return err
	}
	for _, shop := range shops {
		wg.Add(1)
		go func(shop models.Shop) {
			defer wg.Done()
			syncer.RunFeed(ctx, shop)
		}(shop)
	}

	handler := api.NewHandler(reconciler, sessionSvc, st, zaplog)
	router, err := api.NewRouter(cfg.API, handler, zaplog)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.API.ListenAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zaplog.Error("http shutdown failed", zap.Error(err))
		}
	}()

	zaplog.Info("fimbiz-sync listening", zap.String("addr", cfg.API.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	wg.Wait()
	return nil
}
