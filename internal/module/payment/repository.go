package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository provides access to transactions and the webhook ledger.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Transaction, error)
	UpdateStatus(ctx context.Context, paymentIntentID string, status TransactionStatus) error
	UpdateMetadata(ctx context.Context, paymentIntentID string, metadata TransactionMetadata) error

	// FindActiveCredit returns the newest transaction granting
	// unlimited access for any of the identifiers, or nil.
	FindActiveCredit(ctx context.Context, userID string, deviceIDs []string) (*Transaction, error)

	// ConsumeCredit atomically marks one credit as consumed via the
	// consume_paid_credit stored procedure. Returns nil when the
	// credit was already consumed.
	ConsumeCredit(ctx context.Context, transactionID string) (*ConsumedCredit, error)

	ListPending(ctx context.Context, userID string, deviceIDs []string) ([]Transaction, error)

	HasProcessedEvent(ctx context.Context, eventID string) (bool, error)
	RecordEvent(ctx context.Context, eventID, eventType string) error
	MarkEventProcessed(ctx context.Context, eventID string) error
}

// ConsumedCredit is the row returned by the consume stored procedure.
type ConsumedCredit struct {
	TransactionID    string `gorm:"column:transaction_id"`
	RemainingCredits int    `gorm:"column:remaining_credits"`
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a GORM-backed payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, tx *Transaction) error {
	if err := r.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (r *gormRepository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Transaction, error) {
	var tx Transaction
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("find transaction: %w", err)
	}
	return &tx, nil
}

func (r *gormRepository) UpdateStatus(ctx context.Context, paymentIntentID string, status TransactionStatus) error {
	err := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	return nil
}

func (r *gormRepository) UpdateMetadata(ctx context.Context, paymentIntentID string, metadata TransactionMetadata) error {
	err := r.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("payment_intent_id = ?", paymentIntentID).
		Updates(map[string]any{
			"metadata":   datatypes.NewJSONType(metadata),
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update transaction metadata: %w", err)
	}
	return nil
}

// FindActiveCredit queries each identifier family separately and keeps
// the newest match. Device ids live in a single metadata location;
// legacy nested rows were normalized by migration 0003.
func (r *gormRepository) FindActiveCredit(ctx context.Context, userID string, deviceIDs []string) (*Transaction, error) {
	if userID == "" && len(deviceIDs) == 0 {
		return nil, nil
	}

	var newest *Transaction
	keepNewest := func(candidates []Transaction) {
		for i := range candidates {
			if newest == nil || candidates[i].CreatedAt.After(newest.CreatedAt) {
				newest = &candidates[i]
			}
		}
	}

	activeScope := func(db *gorm.DB) *gorm.DB {
		return db.
			Where("status = ?", StatusSucceeded).
			Where("available_credits > 0").
			Where("credit_consumed_at IS NULL").
			Order("created_at DESC").
			Limit(1)
	}

	if userID != "" {
		var byUser []Transaction
		err := r.db.WithContext(ctx).
			Scopes(activeScope).
			Where("user_id = ? OR metadata ->> 'userId' = ?", userID, userID).
			Find(&byUser).Error
		if err != nil {
			return nil, fmt.Errorf("find active credit by user: %w", err)
		}
		keepNewest(byUser)
	}

	if len(deviceIDs) > 0 {
		var byDevice []Transaction
		err := r.db.WithContext(ctx).
			Scopes(activeScope).
			Where("metadata ->> 'deviceId' IN ?", deviceIDs).
			Find(&byDevice).Error
		if err != nil {
			return nil, fmt.Errorf("find active credit by device: %w", err)
		}
		keepNewest(byDevice)
	}

	return newest, nil
}

func (r *gormRepository) ConsumeCredit(ctx context.Context, transactionID string) (*ConsumedCredit, error) {
	var rows []ConsumedCredit
	err := r.db.WithContext(ctx).
		Raw("SELECT transaction_id, remaining_credits FROM consume_paid_credit(?)", transactionID).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("consume credit: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *gormRepository) ListPending(ctx context.Context, userID string, deviceIDs []string) ([]Transaction, error) {
	if userID == "" && len(deviceIDs) == 0 {
		return []Transaction{}, nil
	}

	merged := make([]Transaction, 0, 4)
	seen := make(map[string]struct{})
	appendUnseen := func(items []Transaction) {
		for _, tx := range items {
			if _, ok := seen[tx.ID]; ok {
				continue
			}
			seen[tx.ID] = struct{}{}
			merged = append(merged, tx)
		}
	}

	if userID != "" {
		var byUser []Transaction
		err := r.db.WithContext(ctx).
			Where("status = ?", StatusProcessing).
			Where("user_id = ? OR metadata ->> 'userId' = ?", userID, userID).
			Order("created_at DESC").
			Find(&byUser).Error
		if err != nil {
			return nil, fmt.Errorf("list pending by user: %w", err)
		}
		appendUnseen(byUser)
	}

	if len(deviceIDs) > 0 {
		var byDevice []Transaction
		err := r.db.WithContext(ctx).
			Where("status = ?", StatusProcessing).
			Where("metadata ->> 'deviceId' IN ?", deviceIDs).
			Order("created_at DESC").
			Find(&byDevice).Error
		if err != nil {
			return nil, fmt.Errorf("list pending by device: %w", err)
		}
		appendUnseen(byDevice)
	}

	return merged, nil
}

func (r *gormRepository) HasProcessedEvent(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ? AND processed_at IS NOT NULL", eventID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return count > 0, nil
}

func (r *gormRepository) RecordEvent(ctx context.Context, eventID, eventType string) error {
	event := WebhookEvent{
		ID:         eventID,
		EventType:  eventType,
		ReceivedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).
		Where("id = ?", eventID).
		FirstOrCreate(&event).Error
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

func (r *gormRepository) MarkEventProcessed(ctx context.Context, eventID string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("id = ?", eventID).
		Update("processed_at", now).Error
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}
