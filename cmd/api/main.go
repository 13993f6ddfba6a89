package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"call-insights-go/internal/api"
	"call-insights-go/internal/config"
	"call-insights-go/internal/credentials"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/mcube"
	"call-insights-go/internal/poller"
	"call-insights-go/internal/provider"
	"call-insights-go/internal/registry"
	"call-insights-go/internal/types"
	"call-insights-go/internal/vapi"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfg := config.Load()
	log := logger.New()
	log.WithField("service", "call-insights-go").Info("starting service")

	creds := credentials.NewStore(cfg.CredentialHandoutURL, cfg.CredentialCachePath, cfg.CredentialTTL)

	mcubeSvc := mcube.NewService(
		provider.NewClient("mcube", cfg.McubeBaseURL, cfg.McubeVariants, creds),
		registry.New(types.ProviderMCube),
	)
	vapiSvc := vapi.NewService(
		provider.NewClient("vapi", cfg.VapiBaseURL, cfg.VapiVariants, creds),
		registry.New(types.ProviderVapi),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pollers := map[types.Provider]*poller.Poller{
		types.ProviderMCube: poller.New("mcube", cfg.PollInterval, func(ctx context.Context) error {
			_, err := mcubeSvc.RefreshCalls(ctx, mcube.ListFilters{})
			return err
		}),
		types.ProviderVapi: poller.New("vapi", cfg.PollInterval, func(ctx context.Context) error {
			_, err := vapiSvc.RefreshCalls(ctx, vapi.ListFilters{})
			return err
		}),
	}
	for _, p := range pollers {
		p.Start(ctx)
	}

	server := api.NewServer(mcubeSvc, vapiSvc, creds, pollers, cfg.TopKeywords)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutdown signal received")
		for _, p := range pollers {
			p.Stop()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("server shutdown error")
		}
	}()

	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
	log.Info("server stopped")
}
