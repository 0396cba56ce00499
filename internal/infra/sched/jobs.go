package sched

import (
	"context"
	"time"

	"prepaid-subscription/internal/usecase"
)

const (
	JobPurchaseRecovery = "purchase-recovery"
	JobCodeExpiry       = "code-expiry"
	JobEntitlementLapse = "entitlement-lapse"

	sweepBatch = 1000
)

// RecoveryJob generates codes for completed purchases that were left without them.
func RecoveryJob(spec string, grace time.Duration, purchases usecase.PurchaseUseCase) Job {
	return Job{
		Name: JobPurchaseRecovery,
		Spec: spec,
		Run: func(ctx context.Context) (int, error) {
			return purchases.RecoverPendingCodes(ctx, grace)
		},
	}
}

// ExpiryJob expires available codes past their redemption deadline, batch by batch.
func ExpiryJob(spec string, codes usecase.CodeUseCase) Job {
	return Job{
		Name: JobCodeExpiry,
		Spec: spec,
		Run: func(ctx context.Context) (int, error) {
			return drain(ctx, func(ctx context.Context) (int, error) {
				return codes.ExpireOverdue(ctx, sweepBatch)
			})
		},
	}
}

// LapseJob cancels code-based entitlements whose period ended and refreshes
// the entitlement gauges.
func LapseJob(spec string, entitlements usecase.EntitlementUseCase) Job {
	return Job{
		Name: JobEntitlementLapse,
		Spec: spec,
		Run: func(ctx context.Context) (int, error) {
			n, err := drain(ctx, func(ctx context.Context) (int, error) {
				return entitlements.ExpireLapsed(ctx, sweepBatch)
			})
			if err != nil {
				return n, err
			}
			_, err = entitlements.Stats(ctx)
			return n, err
		},
	}
}

// drain repeats step until it handles less than a full batch.
func drain(ctx context.Context, step func(ctx context.Context) (int, error)) (int, error) {
	total := 0
	for {
		n, err := step(ctx)
		total += n
		if err != nil || n < sweepBatch {
			return total, err
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
