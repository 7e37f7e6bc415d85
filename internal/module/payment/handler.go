package payment

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memora-music/server/internal/shared/response"
	"github.com/memora-music/server/internal/utils/requestctx"
)

// Handler exposes the payment HTTP endpoints.
type Handler struct {
	service     *Service
	development bool
}

// NewHandler creates a payment handler.
func NewHandler(service *Service, development bool) *Handler {
	return &Handler{service: service, development: development}
}

// RegisterRoutes registers payment routes. rateLimit guards the
// intent creation and confirmation endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, requireAuth, rateLimit gin.HandlerFunc) {
	stripeGroup := rg.Group("/stripe")
	stripeGroup.POST("/create-payment-intent", rateLimit, h.CreateIntent)
	stripeGroup.POST("/confirm-payment", rateLimit, h.ConfirmPayment)
	stripeGroup.POST("/finalize", h.Finalize)
	stripeGroup.GET("/pending", h.ListPending)

	rg.POST("/confirm-mock-payment", requireAuth, h.MockPayment)
}

func deviceIDs(c *gin.Context) []string {
	ids := make([]string, 0, 2)
	if id := requestctx.DeviceID(c); id != "" {
		ids = append(ids, id)
	}
	if id := requestctx.GuestID(c); id != "" {
		ids = append(ids, id)
	}
	return ids
}

// CreateIntent starts a payment.
//
//	@Summary	Create a payment intent
//	@Tags		payment
//	@Accept		json
//	@Produce	json
//	@Param		request	body		CreateIntentRequest	true	"Payment details"
//	@Success	200		{object}	CreateIntentResponse
//	@Router		/api/stripe/create-payment-intent [post]
func (h *Handler) CreateIntent(c *gin.Context) {
	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Dados de pagamento inválidos", err)
		return
	}

	metadata := TransactionMetadata{
		DeviceID: req.Metadata["deviceId"],
		UserID:   req.Metadata["userId"],
		Email:    req.Metadata["email"],
	}
	if metadata.DeviceID == "" {
		metadata.DeviceID = requestctx.DeviceID(c)
	}
	if userID, ok := requestctx.UserID(c); ok {
		metadata.UserID = userID
	}
	if email, ok := requestctx.UserEmail(c); ok && metadata.Email == "" {
		metadata.Email = email
	}

	intent, err := h.service.CreateIntent(c.Request.Context(), req.Amount, req.Currency, metadata)
	if err != nil {
		if err == ErrInvalidAmount {
			response.Error(c, http.StatusBadRequest, "Valor de pagamento inválido", err)
			return
		}
		response.Error(c, http.StatusInternalServerError, "Erro ao iniciar pagamento", err)
		return
	}

	c.JSON(http.StatusOK, CreateIntentResponse{
		Success:         true,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
	})
}

// ConfirmPayment confirms a payment method against an intent.
//
//	@Summary	Confirm a payment
//	@Tags		payment
//	@Accept		json
//	@Produce	json
//	@Param		request	body		ConfirmPaymentRequest	true	"Confirmation details"
//	@Success	200		{object}	ConfirmPaymentResponse
//	@Router		/api/stripe/confirm-payment [post]
func (h *Handler) ConfirmPayment(c *gin.Context) {
	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Dados de confirmação inválidos", err)
		return
	}

	intent, err := h.service.ConfirmPayment(c.Request.Context(), req.PaymentIntentID, req.PaymentMethodID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Erro ao confirmar pagamento", err)
		return
	}

	c.JSON(http.StatusOK, ConfirmPaymentResponse{
		Success: true,
		PaymentIntent: IntentPayload{
			ID:           intent.ID,
			Status:       intent.Status,
			ClientSecret: intent.ClientSecret,
		},
	})
}

// Finalize server-verifies a payment and unlocks quota on success.
// Payments still processing return 202 and change nothing.
//
//	@Summary	Verify a payment and unlock quota
//	@Tags		payment
//	@Accept		json
//	@Produce	json
//	@Param		request	body		FinalizeRequest	true	"Payment reference"
//	@Success	200		{object}	FinalizeResponse
//	@Success	202		{object}	FinalizeResponse
//	@Router		/api/stripe/finalize [post]
func (h *Handler) Finalize(c *gin.Context) {
	var req FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Dados inválidos", err)
		return
	}

	input := FinalizeInput{
		PaymentIntentID: req.PaymentIntentID,
		DeviceID:        req.DeviceID,
		ClientIP:        c.ClientIP(),
	}
	if input.DeviceID == "" {
		input.DeviceID = requestctx.DeviceID(c)
	}
	if userID, ok := requestctx.UserID(c); ok {
		input.AuthUserID = userID
	}

	outcome, err := h.service.Finalize(c.Request.Context(), input)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Erro ao verificar pagamento", err)
		return
	}

	if outcome.Processing {
		c.JSON(http.StatusAccepted, FinalizeResponse{
			Success: true,
			Message: "Pagamento em processamento. Aguarde a confirmação.",
			Results: []ResetResult{},
		})
		return
	}

	c.JSON(http.StatusOK, FinalizeResponse{
		Success: true,
		Message: "Pagamento confirmado. Créditos liberados.",
		Results: outcome.Results,
	})
}

// ListPending lists the caller's payments awaiting completion.
//
//	@Summary	List pending payments
//	@Tags		payment
//	@Produce	json
//	@Success	200	{object}	PendingListResponse
//	@Router		/api/stripe/pending [get]
func (h *Handler) ListPending(c *gin.Context) {
	userID, _ := requestctx.UserID(c)
	transactions, err := h.service.ListPending(c.Request.Context(), userID, deviceIDs(c))
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Erro ao listar pagamentos pendentes", err)
		return
	}

	items := make([]PendingItem, 0, len(transactions))
	for _, tx := range transactions {
		metadata := tx.Metadata.Data()
		items = append(items, PendingItem{
			PaymentIntentID: tx.PaymentIntentID,
			Amount:          tx.Amount,
			Currency:        tx.Currency,
			PaymentMethod:   metadata.PaymentMethod,
			VoucherURL:      metadata.VoucherURL,
			CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, PendingListResponse{Success: true, Items: items})
}

// MockPayment simulates a successful purchase in development.
//
//	@Summary	Simulate a payment (development only)
//	@Tags		payment
//	@Accept		json
//	@Produce	json
//	@Param		request	body	MockPaymentRequest	true	"Mock payment"
//	@Success	200
//	@Router		/api/confirm-mock-payment [post]
func (h *Handler) MockPayment(c *gin.Context) {
	if !h.development {
		response.Error(c, http.StatusForbidden, "Recurso disponível apenas em desenvolvimento", nil)
		return
	}

	var req MockPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Dados inválidos", err)
		return
	}

	userID, _ := requestctx.UserID(c)
	tx, err := h.service.CreateMockPayment(c.Request.Context(), userID, req.Amount, req.PaymentMethod)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Erro ao simular pagamento", err)
		return
	}

	response.OK(c, response.Envelope{
		"transactionId": tx.ID,
		"message":       "Pagamento simulado com sucesso",
	})
}
