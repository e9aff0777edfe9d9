package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/transcope/fleet-auth/internal/api"
	"github.com/transcope/fleet-auth/internal/core/service"
	"github.com/transcope/fleet-auth/internal/infrastructure/config"
	"github.com/transcope/fleet-auth/internal/infrastructure/queue"
	"github.com/transcope/fleet-auth/pkg/logger"
)

// @title                       Transcope Auth API
// @version                     1.0
// @description                 Signup, login and session identity for Transcope fleet dashboards.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.New(logger.Options{Output: os.Stderr, Service: "transcope-auth"})
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "transcope-auth",
	})

	deps, err := connect(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer deps.close()

	// events
	dispatcherCtx, stopDispatcher := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.EventWorkers, deps.publisher, logger.For("dispatcher"))
	dispatcher.Start(dispatcherCtx)

	// services
	tokens := service.NewTokenService(cfg.JWTSecret, cfg.TokenTTL,
		service.WithRevocations(deps.revocations),
		service.WithLogger(logger.For("tokens")),
	)
	authService := service.NewAuthService(deps.users, tokens, dispatcher, cfg.BcryptCost, logger.For("auth"))

	// http
	e := api.NewRouter(api.Deps{
		AuthService: authService,
		Tokens:      tokens,
		Redis:       deps.redis,
		RateLimit:   cfg.RateLimit,
		Health:      deps.health,
		Log:         logger.For("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.StoreBackend).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	stopDispatcher()
	dispatcher.Wait()
	log.Info().Msg("shutdown complete")
}
