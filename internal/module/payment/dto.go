package payment

// CreateIntentRequest starts a payment.
type CreateIntentRequest struct {
	Amount   int64             `json:"amount" binding:"required,gt=0"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// CreateIntentResponse returns the client secret for the frontend.
type CreateIntentResponse struct {
	Success         bool   `json:"success"`
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// ConfirmPaymentRequest confirms a payment with a payment method.
type ConfirmPaymentRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	PaymentMethodID string `json:"paymentMethodId" binding:"required"`
}

// ConfirmPaymentResponse mirrors the processor's intent state.
type ConfirmPaymentResponse struct {
	Success       bool          `json:"success"`
	PaymentIntent IntentPayload `json:"paymentIntent"`
}

// IntentPayload is the intent subset exposed to the frontend.
type IntentPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	ClientSecret string `json:"client_secret"`
}

// FinalizeRequest asks the server to verify and unlock a payment.
type FinalizeRequest struct {
	PaymentIntentID string `json:"paymentIntentId" binding:"required"`
	DeviceID        string `json:"deviceId"`
}

// FinalizeResponse reports per-target reset outcomes.
type FinalizeResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Results []ResetResult `json:"results"`
}

// MockPaymentRequest simulates a payment in development.
type MockPaymentRequest struct {
	Amount        int64  `json:"amount" binding:"required,gt=0"`
	PaymentMethod string `json:"paymentMethod"`
}

// PendingItem is one pending payment in the listing.
type PendingItem struct {
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethod   string `json:"paymentMethod,omitempty"`
	VoucherURL      string `json:"voucherUrl,omitempty"`
	CreatedAt       string `json:"createdAt"`
}

// PendingListResponse lists pending payments.
type PendingListResponse struct {
	Success bool          `json:"success"`
	Items   []PendingItem `json:"items"`
}
