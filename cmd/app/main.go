// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"prepaid-subscription/internal/app"
	"prepaid-subscription/internal/config"
	"prepaid-subscription/internal/infra/api"
	"prepaid-subscription/internal/infra/logging"
	"prepaid-subscription/internal/infra/metrics"
	"prepaid-subscription/internal/infra/web"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, unredacted ids)")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("dotenv: %v", err)
	}
	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn().Err(err).Msg("shutdown: close failed")
		}
	}()

	// ---- Public/user API ----
	deps := api.Deps{
		Redemption:   a.Redemption,
		Entitlements: a.Entitlements,
		Reconciler:   a.Reconciler,
		Verifier:     a.Verifier,
		Auth:         api.NewUserAuth(cfg.Auth.UserJWTSecret),
	}
	if a.Limiter != nil {
		deps.Limiter = a.Limiter
	}
	if a.Verifier == nil {
		logger.Warn().Msg("billing.webhook_secret not set: webhook endpoint answers 503")
	}
	publicSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           api.NewServer(deps, cfg.HTTP, cfg.Billing.MaxBodyBytes, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---- Admin API ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, cfg.Admin.Secure, "", cfg.Admin.TokenTTL)
	adminSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler: web.NewServer(a.Purchases, a.Codes, a.Revocation, a.Entitlements, a.Reconciler,
			auth, cfg.Admin.APIKey, cfg.HTTP.RequestTimeout, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(ctx, publicSrv, "public", logger) })
	g.Go(func() error { return serve(ctx, adminSrv, "admin", logger) })
	g.Go(func() error { return a.Scheduler.Start(ctx) })
	g.Go(func() error {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				st := a.Pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	})

	logger.Info().Str("version", version).Msg("service started")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("service terminated with error")
		return
	}
	logger.Info().Msg("shutdown complete")
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("server", name).Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("%s server: %w", name, err)
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown: %w", name, err)
	}
	return <-errc
}
