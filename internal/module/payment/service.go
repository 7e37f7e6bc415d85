package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/memora-music/server/internal/utils/metrics"
)

// Intent is the provider-agnostic view of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// Provider is the payment processor client.
type Provider interface {
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	ConfirmIntent(ctx context.Context, paymentIntentID, paymentMethodID string) (*Intent, error)
	GetIntent(ctx context.Context, paymentIntentID string) (*Intent, error)
}

// UsageResetter resets free-usage counters after a successful payment.
type UsageResetter interface {
	ResetUsageByUserID(ctx context.Context, userID string) (int64, error)
	ResetUsageByDeviceID(ctx context.Context, deviceID string) (int64, error)
	ResetUsageByIP(ctx context.Context, ip string) (int64, error)
}

// PendingPayment describes an asynchronous payment awaiting completion.
type PendingPayment struct {
	PaymentIntentID string
	Amount          int64
	Currency        string
	PaymentMethod   string
	VoucherURL      string
}

// Mailer sends payment notification emails.
type Mailer interface {
	SendPendingPayment(ctx context.Context, to string, info PendingPayment) error
}

// ResetResult reports one usage reset target of a finalization.
type ResetResult struct {
	Target       string `json:"target"`
	Value        string `json:"value"`
	Success      bool   `json:"success"`
	RecordsReset int64  `json:"recordsReset"`
	Error        string `json:"error,omitempty"`
}

// FinalizeInput identifies the payment and the identity to unlock.
type FinalizeInput struct {
	PaymentIntentID string
	DeviceID        string
	AuthUserID      string
	ClientIP        string
}

// FinalizeOutcome is the result of server-verifying a payment.
type FinalizeOutcome struct {
	Processing bool
	Status     string
	Results    []ResetResult
}

// Service implements payment processing and quota unlocking.
type Service struct {
	repo     Repository
	provider Provider
	usage    UsageResetter
	mailer   Mailer
	logger   *zap.Logger
}

// NewService creates the payment service.
func NewService(repo Repository, provider Provider, usage UsageResetter, mailer Mailer, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		usage:    usage,
		mailer:   mailer,
		logger:   logger,
	}
}

// CreateIntent starts a payment and stores the pending transaction.
// Each purchase grants one credit, usable once the payment succeeds.
func (s *Service) CreateIntent(ctx context.Context, amount int64, currency string, metadata TransactionMetadata) (*Intent, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if currency == "" {
		currency = "brl"
	}

	providerMetadata := map[string]string{}
	if metadata.DeviceID != "" {
		providerMetadata["deviceId"] = metadata.DeviceID
	}
	if metadata.UserID != "" {
		providerMetadata["userId"] = metadata.UserID
	}
	if metadata.Email != "" {
		providerMetadata["email"] = metadata.Email
	}

	intent, err := s.provider.CreateIntent(ctx, amount, currency, providerMetadata)
	if err != nil {
		return nil, fmt.Errorf("create intent: %w", err)
	}

	tx := &Transaction{
		PaymentIntentID:  intent.ID,
		Status:           StatusCreated,
		Amount:           amount,
		Currency:         currency,
		AvailableCredits: 1,
		Metadata:         newMetadata(metadata),
	}
	if metadata.UserID != "" {
		tx.UserID = &metadata.UserID
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		s.logger.Error("store transaction failed",
			zap.String("payment_intent_id", intent.ID),
			zap.Error(err))
		return nil, err
	}

	return intent, nil
}

// ConfirmPayment confirms the intent with a payment method and mirrors
// the resulting status into the stored transaction.
func (s *Service) ConfirmPayment(ctx context.Context, paymentIntentID, paymentMethodID string) (*Intent, error) {
	intent, err := s.provider.ConfirmIntent(ctx, paymentIntentID, paymentMethodID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, paymentIntentID, statusFromIntent(intent.Status)); err != nil {
		s.logger.Warn("mirror confirm status failed",
			zap.String("payment_intent_id", paymentIntentID),
			zap.Error(err))
	}
	return intent, nil
}

// Finalize verifies the payment's server-side status. Payments not yet
// succeeded (vouchers, bank transfers) stay locked until the webhook
// arrives. On success every matching identity gets its counter reset
// independently; partial success is accepted.
func (s *Service) Finalize(ctx context.Context, input FinalizeInput) (*FinalizeOutcome, error) {
	intent, err := s.provider.GetIntent(ctx, input.PaymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("finalize: %w", err)
	}

	if intent.Status != "succeeded" {
		return &FinalizeOutcome{Processing: true, Status: intent.Status}, nil
	}

	if err := s.repo.UpdateStatus(ctx, input.PaymentIntentID, StatusSucceeded); err != nil {
		s.logger.Warn("mirror succeeded status failed",
			zap.String("payment_intent_id", input.PaymentIntentID),
			zap.Error(err))
	}

	results := s.resetUsageTargets(ctx, resetTargets{
		authUserID:     input.AuthUserID,
		metadataUserID: intent.Metadata["userId"],
		deviceID:       firstNonEmpty(input.DeviceID, intent.Metadata["deviceId"]),
		clientIP:       input.ClientIP,
	})

	return &FinalizeOutcome{Status: intent.Status, Results: results}, nil
}

type resetTargets struct {
	authUserID     string
	metadataUserID string
	deviceID       string
	clientIP       string
}

// resetUsageTargets resets each target independently. A failed target
// is logged and reported; it never aborts the remaining targets.
func (s *Service) resetUsageTargets(ctx context.Context, targets resetTargets) []ResetResult {
	type target struct {
		name  string
		value string
		reset func(context.Context, string) (int64, error)
	}

	candidates := []target{
		{"user", targets.authUserID, s.usage.ResetUsageByUserID},
		{"metadata_user", targets.metadataUserID, s.usage.ResetUsageByUserID},
		{"device", targets.deviceID, s.usage.ResetUsageByDeviceID},
		{"ip", targets.clientIP, s.usage.ResetUsageByIP},
	}
	if targets.metadataUserID == targets.authUserID {
		candidates[1].value = ""
	}

	results := make([]ResetResult, 0, len(candidates))
	for _, t := range candidates {
		if t.value == "" {
			continue
		}
		rows, err := t.reset(ctx, t.value)
		result := ResetResult{
			Target:       t.name,
			Value:        t.value,
			Success:      err == nil,
			RecordsReset: rows,
		}
		if err != nil {
			result.Error = err.Error()
			s.logger.Error("usage reset failed",
				zap.String("target", t.name),
				zap.String("value", t.value),
				zap.Error(err))
		}
		results = append(results, result)
	}
	return results
}

// CreateMockPayment simulates a successful purchase. Only exposed in
// development deployments.
func (s *Service) CreateMockPayment(ctx context.Context, userID string, amount int64, paymentMethod string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx := &Transaction{
		PaymentIntentID:  "mock_" + uuid.NewString(),
		UserID:           &userID,
		Status:           StatusSucceeded,
		Amount:           amount,
		Currency:         "brl",
		AvailableCredits: 1,
		Metadata:         newMetadata(TransactionMetadata{UserID: userID, PaymentMethod: paymentMethod}),
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, err
	}

	if _, err := s.usage.ResetUsageByUserID(ctx, userID); err != nil {
		s.logger.Warn("mock payment usage reset failed",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return tx, nil
}

// ListPending lists the caller's payments still awaiting completion.
func (s *Service) ListPending(ctx context.Context, userID string, deviceIDs []string) ([]Transaction, error) {
	return s.repo.ListPending(ctx, userID, deviceIDs)
}

// HandleWebhookEvent dispatches a verified processor event. Events are
// recorded before dispatch; redeliveries of processed events are
// dropped.
func (s *Service) HandleWebhookEvent(ctx context.Context, event stripe.Event) error {
	processed, err := s.repo.HasProcessedEvent(ctx, event.ID)
	if err != nil {
		return err
	}
	if processed {
		s.logger.Info("webhook event already processed, skipping",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		metrics.RecordPaymentEvent(string(event.Type), "duplicate")
		return nil
	}
	if err := s.repo.RecordEvent(ctx, event.ID, string(event.Type)); err != nil {
		return err
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		metrics.RecordPaymentEvent(string(event.Type), "parse_error")
		return fmt.Errorf("parse webhook payload: %w", err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		err = s.handlePaymentSucceeded(ctx, &pi)
	case "payment_intent.processing":
		err = s.handlePaymentProcessing(ctx, &pi)
	case "payment_intent.payment_failed":
		err = s.handlePaymentFailed(ctx, &pi)
	default:
		s.logger.Debug("ignoring webhook event",
			zap.String("event_type", string(event.Type)))
		metrics.RecordPaymentEvent(string(event.Type), "ignored")
	}
	if err != nil {
		metrics.RecordPaymentEvent(string(event.Type), "error")
		return err
	}

	metrics.RecordPaymentEvent(string(event.Type), "processed")
	return s.repo.MarkEventProcessed(ctx, event.ID)
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, pi *stripe.PaymentIntent) error {
	if err := s.repo.UpdateStatus(ctx, pi.ID, StatusSucceeded); err != nil {
		return err
	}

	s.resetUsageTargets(ctx, resetTargets{
		metadataUserID: pi.Metadata["userId"],
		deviceID:       pi.Metadata["deviceId"],
	})

	s.logger.Info("payment succeeded, usage unlocked",
		zap.String("payment_intent_id", pi.ID))
	return nil
}

// handlePaymentProcessing records voucher details and notifies the
// buyer by email. Mailer failures never fail the webhook.
func (s *Service) handlePaymentProcessing(ctx context.Context, pi *stripe.PaymentIntent) error {
	if err := s.repo.UpdateStatus(ctx, pi.ID, StatusProcessing); err != nil {
		return err
	}

	metadata := TransactionMetadata{
		DeviceID:      pi.Metadata["deviceId"],
		UserID:        pi.Metadata["userId"],
		Email:         pi.Metadata["email"],
		PaymentMethod: paymentMethodType(pi),
		VoucherURL:    voucherURL(pi),
	}
	if err := s.repo.UpdateMetadata(ctx, pi.ID, metadata); err != nil {
		s.logger.Warn("store voucher metadata failed",
			zap.String("payment_intent_id", pi.ID),
			zap.Error(err))
	}

	if metadata.Email != "" {
		info := PendingPayment{
			PaymentIntentID: pi.ID,
			Amount:          pi.Amount,
			Currency:        string(pi.Currency),
			PaymentMethod:   metadata.PaymentMethod,
			VoucherURL:      metadata.VoucherURL,
		}
		if err := s.mailer.SendPendingPayment(ctx, metadata.Email, info); err != nil {
			s.logger.Warn("pending payment email failed",
				zap.String("payment_intent_id", pi.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, pi *stripe.PaymentIntent) error {
	if err := s.repo.UpdateStatus(ctx, pi.ID, StatusFailed); err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil
		}
		return err
	}
	s.logger.Info("payment failed",
		zap.String("payment_intent_id", pi.ID))
	return nil
}

func statusFromIntent(status string) TransactionStatus {
	switch status {
	case "succeeded":
		return StatusSucceeded
	case "processing":
		return StatusProcessing
	case "canceled", "requires_payment_method":
		return StatusFailed
	default:
		return StatusCreated
	}
}

func paymentMethodType(pi *stripe.PaymentIntent) string {
	if len(pi.PaymentMethodTypes) > 0 {
		return pi.PaymentMethodTypes[0]
	}
	return ""
}

func voucherURL(pi *stripe.PaymentIntent) string {
	if pi.NextAction != nil && pi.NextAction.BoletoDisplayDetails != nil {
		return pi.NextAction.BoletoDisplayDetails.HostedVoucherURL
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
