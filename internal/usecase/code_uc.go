package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
	"prepaid-subscription/internal/infra/metrics"
)

// Compile-time check
var _ CodeUseCase = (*codeUC)(nil)

type CodeUseCase interface {
	// GenerateForPurchase creates and stores the batch for p inside tx.
	GenerateForPurchase(ctx context.Context, tx repository.Tx, p *model.Purchase) ([]*model.Code, error)
	Get(ctx context.Context, id string) (*model.Code, error)
	List(ctx context.Context, f model.CodeFilter) ([]*model.Code, int, error)
	Stats(ctx context.Context, purchaseID string) (map[model.CodeStatus]int, error)
	// Export returns every code matching f, ignoring its paging fields.
	Export(ctx context.Context, f model.CodeFilter) ([]*model.Code, error)
	// ExpireOverdue marks available codes past their deadline as expired.
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

type codeUC struct {
	codes  repository.CodeRepository
	gen    *CodeGenerator
	window time.Duration
	now    func() time.Time
	log    *zerolog.Logger
}

// NewCodeUseCase builds the code use case. window is the redemption deadline
// measured from generation.
func NewCodeUseCase(codes repository.CodeRepository, gen *CodeGenerator, window time.Duration, logger *zerolog.Logger) *codeUC {
	if gen == nil {
		gen = NewCodeGenerator(nil)
	}
	if window <= 0 {
		window = 365 * 24 * time.Hour
	}
	return &codeUC{codes: codes, gen: gen, window: window, now: time.Now, log: logger}
}

func (u *codeUC) GenerateForPurchase(ctx context.Context, tx repository.Tx, p *model.Purchase) ([]*model.Code, error) {
	if p == nil || p.Quantity <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	existing, err := u.codes.ListAllCodes(ctx, tx)
	if err != nil {
		return nil, err
	}
	values, err := u.gen.Generate(p.Quantity, existing)
	if err != nil {
		return nil, err
	}

	now := u.now().UTC()
	out := make([]*model.Code, 0, len(values))
	for _, v := range values {
		out = append(out, &model.Code{
			ID:           uuid.NewString(),
			PurchaseID:   p.ID,
			IssuerID:     p.IssuerID,
			Code:         v,
			Status:       model.CodeStatusAvailable,
			PriceID:      p.PriceID,
			ProductID:    p.ProductID,
			DurationDays: p.DurationDays,
			ExpiresAt:    now.Add(u.window),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err := u.codes.SaveBatch(ctx, tx, out); err != nil {
		return nil, err
	}
	metrics.AddCodesGenerated(len(out))
	u.log.Info().Str("purchase_id", p.ID).Int("count", len(out)).Msg("codes generated")
	return out, nil
}

func (u *codeUC) Get(ctx context.Context, id string) (*model.Code, error) {
	return u.codes.FindByID(ctx, repository.NoTX, id)
}

func (u *codeUC) List(ctx context.Context, f model.CodeFilter) ([]*model.Code, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, domain.ErrInvalidArgument
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return u.codes.List(ctx, repository.NoTX, f)
}

const (
	exportPage = 500
	maxExport  = 50000
)

func (u *codeUC) Export(ctx context.Context, f model.CodeFilter) ([]*model.Code, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	var out []*model.Code
	f.Limit, f.Offset = exportPage, 0
	for {
		page, total, err := u.codes.List(ctx, repository.NoTX, f)
		if err != nil {
			return nil, err
		}
		if total > maxExport {
			return nil, fmt.Errorf("%w: %d codes match, narrow the filter", domain.ErrInvalidArgument, total)
		}
		out = append(out, page...)
		if len(page) < exportPage || len(out) >= total {
			return out, nil
		}
		f.Offset += len(page)
	}
}

func (u *codeUC) Stats(ctx context.Context, purchaseID string) (map[model.CodeStatus]int, error) {
	return u.codes.CountByStatus(ctx, repository.NoTX, purchaseID)
}

func (u *codeUC) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 1000
	}
	n, err := u.codes.ExpireOverdue(ctx, repository.NoTX, u.now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddCodesExpired(n)
		u.log.Info().Int("count", n).Msg("expired overdue codes")
	}
	return n, nil
}
