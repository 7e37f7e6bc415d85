package app

import (
	"context"

	"github.com/memora-music/server/internal/module/payment"
	"github.com/memora-music/server/internal/module/paywall"
)

// creditStoreAdapter exposes the payment repository to the paywall as
// its credit store.
type creditStoreAdapter struct {
	repo payment.Repository
}

func (a *creditStoreAdapter) FindActiveCredit(ctx context.Context, userID string, deviceIDs []string) (*paywall.Credit, error) {
	tx, err := a.repo.FindActiveCredit(ctx, userID, deviceIDs)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}
	return &paywall.Credit{
		TransactionID:    tx.ID,
		PaymentIntentID:  tx.PaymentIntentID,
		AvailableCredits: tx.AvailableCredits,
	}, nil
}

func (a *creditStoreAdapter) ConsumeCredit(ctx context.Context, transactionID string) (*paywall.CreditConsumption, error) {
	row, err := a.repo.ConsumeCredit(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &paywall.CreditConsumption{RemainingCredits: row.RemainingCredits}, nil
}
