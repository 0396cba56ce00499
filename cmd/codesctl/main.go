// Command codesctl administers subscription codes from the shell: schema
// migrations, grants, revocations and one-off maintenance sweeps.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"prepaid-subscription/internal/app"
	"prepaid-subscription/internal/config"
	"prepaid-subscription/internal/infra/logging"
)

var (
	cfgPath string
	envPath string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:           "codesctl",
	Short:         "Subscription code administration",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "optional dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "developer mode (console logs)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zerolog.Logger, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("dotenv: %w", err)
	}
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Log, cfg.Runtime.Dev), nil
}

// withApp builds the full object graph, runs fn and tears it down.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	return errors.Join(runErr, a.Close())
}
