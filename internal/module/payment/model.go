package payment

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionStatus mirrors the payment processor's intent lifecycle.
type TransactionStatus string

const (
	StatusCreated    TransactionStatus = "created"
	StatusProcessing TransactionStatus = "processing"
	StatusSucceeded  TransactionStatus = "succeeded"
	StatusFailed     TransactionStatus = "failed"
)

// TransactionMetadata is the single storage location for identifiers
// attached to a payment. Earlier schema revisions stored the device id
// in a second nested location; migration 0003 backfills those rows.
type TransactionMetadata struct {
	DeviceID      string `json:"deviceId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	Email         string `json:"email,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
	VoucherURL    string `json:"voucherUrl,omitempty"`
}

// Transaction represents a purchased entitlement.
type Transaction struct {
	ID               string                                  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PaymentIntentID  string                                  `gorm:"column:payment_intent_id;uniqueIndex;not null" json:"paymentIntentId"`
	UserID           *string                                 `gorm:"column:user_id;index" json:"userId"`
	Status           TransactionStatus                       `gorm:"column:status;not null;default:created" json:"status"`
	Amount           int64                                   `gorm:"column:amount;not null" json:"amount"`
	Currency         string                                  `gorm:"column:currency;not null" json:"currency"`
	AvailableCredits int                                     `gorm:"column:available_credits;not null;default:0" json:"availableCredits"`
	CreditConsumedAt *time.Time                              `gorm:"column:credit_consumed_at" json:"creditConsumedAt"`
	Metadata         datatypes.JSONType[TransactionMetadata] `gorm:"column:metadata" json:"metadata"`
	CreatedAt        time.Time                               `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt        time.Time                               `gorm:"column:updated_at" json:"updatedAt"`
}

// TableName returns the table name for Transaction.
func (Transaction) TableName() string {
	return "stripe_transactions"
}

func newMetadata(md TransactionMetadata) datatypes.JSONType[TransactionMetadata] {
	return datatypes.NewJSONType(md)
}

// IsActiveCredit reports whether the transaction grants unlimited
// access right now. All three conditions must hold.
func (t *Transaction) IsActiveCredit() bool {
	return t.Status == StatusSucceeded &&
		t.AvailableCredits > 0 &&
		t.CreditConsumedAt == nil
}

// WebhookEvent is the idempotency ledger for processor events. Events
// are recorded before dispatch so redeliveries are dropped.
type WebhookEvent struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	EventType   string     `gorm:"column:event_type;not null" json:"eventType"`
	ReceivedAt  time.Time  `gorm:"column:received_at" json:"receivedAt"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processedAt"`
}

// TableName returns the table name for WebhookEvent.
func (WebhookEvent) TableName() string {
	return "stripe_webhook_events"
}
