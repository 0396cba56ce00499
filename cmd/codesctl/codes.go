package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"prepaid-subscription/internal/app"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/usecase"
)

var (
	grantAdmin    string
	grantQuantity int
	grantMonths   int
	grantDays     int
	grantPriceID  string

	revokeReason string
	actingAdmin  string
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Create a zero-amount batch of codes",
	Example: `  codesctl grant --admin admin-1 --quantity 10 --months 3
  codesctl grant --admin admin-1 --quantity 1 --days 14`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			p, codes, err := a.Purchases.GrantAdmin(ctx, usecase.AdminGrantInput{
				AdminID:      grantAdmin,
				Quantity:     grantQuantity,
				Months:       grantMonths,
				DurationDays: grantDays,
				PriceID:      grantPriceID,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "purchase %s: %d codes, %d days each\n", p.ID, len(codes), p.DurationDays)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCODE\tEXPIRES")
			for _, c := range codes {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Code, c.ExpiresAt.Format("2006-01-02"))
			}
			return tw.Flush()
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <code-id>",
	Short: "Revoke a code; a redeemed code keeps its holder for reactivation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return codeAction(cmd, func(ctx context.Context, a *app.App) (*model.Code, error) {
			return a.Revocation.Revoke(ctx, args[0], revokeReason, actingAdmin)
		})
	},
}

var reactivateCmd = &cobra.Command{
	Use:   "reactivate <code-id>",
	Short: "Give a revoked code back to its previous holder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return codeAction(cmd, func(ctx context.Context, a *app.App) (*model.Code, error) {
			return a.Revocation.Reactivate(ctx, args[0], actingAdmin)
		})
	},
}

var makeAvailableCmd = &cobra.Command{
	Use:   "make-available <code-id>",
	Short: "Return a revoked code to the redeemable pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return codeAction(cmd, func(ctx context.Context, a *app.App) (*model.Code, error) {
			return a.Revocation.MakeAvailable(ctx, args[0], actingAdmin)
		})
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantAdmin, "admin", "", "admin id that owns the batch")
	grantCmd.Flags().IntVar(&grantQuantity, "quantity", 1, "number of codes")
	grantCmd.Flags().IntVar(&grantMonths, "months", 0, "subscription length in 30-day months")
	grantCmd.Flags().IntVar(&grantDays, "days", 0, "subscription length in days (overrides --months)")
	grantCmd.Flags().StringVar(&grantPriceID, "price", "", "billing price the codes stand for")
	_ = grantCmd.MarkFlagRequired("admin")
	grantCmd.MarkFlagsOneRequired("months", "days")

	revokeCmd.Flags().StringVar(&revokeReason, "reason", "", "reason recorded on the code")
	for _, c := range []*cobra.Command{revokeCmd, reactivateCmd, makeAvailableCmd} {
		c.Flags().StringVar(&actingAdmin, "admin", "cli", "admin id recorded in the audit log")
	}

	rootCmd.AddCommand(grantCmd, revokeCmd, reactivateCmd, makeAvailableCmd)
}

func codeAction(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) (*model.Code, error)) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		c, err := fn(ctx, a)
		if err != nil {
			return err
		}
		holder := "-"
		if c.RedeemedBy != nil {
			holder = *c.RedeemedBy
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s status=%s holder=%s\n", c.ID, c.Code, c.Status, holder)
		return nil
	})
}
