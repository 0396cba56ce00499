package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"prepaid-subscription/internal/domain"
	"prepaid-subscription/internal/domain/model"
	"prepaid-subscription/internal/domain/ports/repository"
)

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timePtr(t time.Time) *time.Time { return &t }

func newTransaction(typ model.TransactionType, userID string, at time.Time) *model.Transaction {
	return &model.Transaction{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Type:      typ,
		Status:    model.TxStatusSucceeded,
		CreatedAt: at,
	}
}

// appendAudit writes t outside any transaction. Failures are logged only;
// a duplicate event id means the entry is already there.
func appendAudit(ctx context.Context, txs repository.TransactionRepository, log *zerolog.Logger, t *model.Transaction) {
	if txs == nil {
		return
	}
	if err := txs.Append(ctx, repository.NoTX, t); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		log.Warn().Err(err).Str("type", string(t.Type)).Str("user_id", t.UserID).Msg("audit append failed")
	}
}
