package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"plumenote-server/internal/collab"
	"plumenote-server/internal/config"
	"plumenote-server/internal/handler"
	"plumenote-server/internal/middleware"
	"plumenote-server/internal/service"
	"plumenote-server/internal/storage"
	"plumenote-server/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	opener, err := storage.OpenerFor(cfg.Storage, zlog.Named("storage"))
	if err != nil {
		zlog.Fatal("Invalid storage configuration", zap.Error(err))
	}

	store := storage.NewHandle(opener, zlog.Named("storage"))
	defer func() {
		if err := store.Close(); err != nil {
			zlog.Error("Failed to close storage", zap.Error(err))
		}
	}()

	authz := service.OwnerAuthorizer{}

	gateway := service.NewGateway(store.Notes(), zlog)
	snapshotService := service.NewSnapshotService(store.Notes(), store.Versions(), authz, zlog)
	versionService := service.NewVersionService(store.Notes(), store.Versions(), store, authz, zlog)

	hub := collab.NewHub(gateway, collab.Options{
		StoreDebounce:    cfg.Collab.StoreDebounce,
		StoreMaxDebounce: cfg.Collab.StoreMaxDebounce,
		MaxConnPerUser:   cfg.WebSocket.MaxConnPerUser,
		MaxMessageSize:   cfg.WebSocket.MaxMessageSize,
		WriteWait:        cfg.WebSocket.WriteWait,
		PongWait:         cfg.WebSocket.PongWait,
		PingPeriod:       cfg.WebSocket.PingPeriod,
	}, zlog)
	versionService.OnRestore(hub.Reset)

	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute)
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					limiter.Sweep()
				case <-hubCtx.Done():
					return
				}
			}
		}()
	}

	snapshotHandler := handler.NewSnapshotHandler(snapshotService, zlog)

	r := handler.NewRouter(handler.RouterConfig{
		Snapshots: snapshotHandler,
		Versions:  handler.NewVersionHandler(versionService),
		Collab: handler.NewCollabHandler(
			hub,
			store.Notes(),
			authz,
			cfg.JWT.Secret,
			cfg.WebSocket.ReadBufferSize,
			cfg.WebSocket.WriteBufferSize,
			zlog,
		),
		JWTSecret:   cfg.JWT.Secret,
		RateLimiter: limiter,
		CORS:        cfg.CORS,
		Logger:      zlog,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("Starting PlumeNote server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("storage", cfg.Storage.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("Server forced to shutdown", zap.Error(err))
	}

	snapshotHandler.Wait()

	stopHub()
	select {
	case <-hub.Done():
	case <-ctx.Done():
		zlog.Warn("Collaboration hub did not stop in time")
	}

	zlog.Info("Server stopped gracefully")
}
