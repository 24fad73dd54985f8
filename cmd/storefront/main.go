package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/grocery-cart/internal/cart"
	"github.com/fjod/grocery-cart/internal/checkout"
	"github.com/fjod/grocery-cart/internal/config"
	"github.com/fjod/grocery-cart/internal/feed"
	h "github.com/fjod/grocery-cart/internal/http"
	"github.com/fjod/grocery-cart/internal/logger"
	"github.com/fjod/grocery-cart/internal/orderapi"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.Load()

	logg := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Logger = logg

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.StorageBackend).Msg("failed to open session storage")
	}
	log.Info().Str("backend", cfg.StorageBackend).Msg("session storage ready")

	changes, closeFeed, err := openFeed(ctx, cfg, logg)
	if err != nil {
		log.Fatal().Err(err).Str("feed", cfg.ChangeFeed).Msg("failed to open change feed")
	}

	sessionOpts := []cart.SessionsOption{
		cart.WithSessionsLogger(logg),
		cart.WithStoreOptions(cart.WithLogger(logg)),
	}
	if changes != nil {
		bridge := feed.NewBridge(changes, logg)
		sessionOpts = append(sessionOpts, cart.WithAttach(bridge.Attach))
		log.Info().Str("feed", cfg.ChangeFeed).Msg("cart change feed ready")
	}
	sessions := cart.NewSessions(st, cfg.SessionCacheSize, cfg.SessionIdleTTL, sessionOpts...)

	orders, err := orderapi.NewClient(orderapi.Config{
		BaseURL:          cfg.OrderAPIURL,
		Timeout:          cfg.OrderTimeout,
		FailureThreshold: cfg.OrderBreakerFailures,
		OpenTimeout:      cfg.OrderBreakerOpenDelay,
	}, logg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create order service client")
	}

	profiles := checkout.NewProfiles(st)
	checkoutSvc := checkout.NewService(orders, profiles, logg)

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:   cfg.RequestTimeout,
		MaxRequestBody:   cfg.MaxRequestBody,
		CORSAllowOrigins: cfg.CORSAllowOrigins,
	}, logg, sessions, checkoutSvc, profiles)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("order_api", cfg.OrderAPIURL).Msg("storefront starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	sessions.Close()
	cancel()
	if err := closeFeed(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to close change feed")
	}
	if err := closeStorage(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to close session storage")
	}

	log.Info().Msg("server exited")
}
