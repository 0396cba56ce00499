package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"prepaid-subscription/internal/app"
	"prepaid-subscription/internal/infra/sched"
)

var sweepJobs = map[string]string{
	"recovery": sched.JobPurchaseRecovery,
	"expiry":   sched.JobCodeExpiry,
	"lapse":    sched.JobEntitlementLapse,
}

var sweepCmd = &cobra.Command{
	Use:       "sweep recovery|expiry|lapse",
	Short:     "Run one maintenance job now",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"recovery", "expiry", "lapse"},
	RunE: func(cmd *cobra.Command, args []string) error {
		job := sweepJobs[args[0]]
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			n, err := a.Scheduler.RunOnce(ctx, job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d handled\n", job, n)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
