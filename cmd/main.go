package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetbeam/tracker-hub/internal/config"
	"github.com/fleetbeam/tracker-hub/internal/handler"
	"github.com/fleetbeam/tracker-hub/internal/hub"
	"github.com/fleetbeam/tracker-hub/internal/registry"
	"github.com/fleetbeam/tracker-hub/internal/service"
	pkglog "github.com/fleetbeam/tracker-hub/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	pkglog.Init(cfg.Log)
	logger := pkglog.L()

	logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting tracker-hub")

	var reg registry.Registry = registry.Noop{}
	if cfg.Redis.Enabled {
		redisReg, err := registry.NewRedisRegistry(cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize redis registry")
		}
		defer redisReg.Close()
		logger.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")
		reg = redisReg
	}

	wsHub := hub.NewHub()
	svc := service.NewTrackerService(wsHub, reg)
	go wsHub.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start tracker service")
	}
	defer svc.Stop()

	wsHandler := handler.NewWSHandler(wsHub, svc, cfg.Server, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(wsHub, reg)

	router := mux.NewRouter()
	router.Use(pkglog.HTTPMiddleware(logger))
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("tracker-hub listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down tracker-hub")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("tracker-hub stopped")
}
