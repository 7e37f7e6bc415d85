package payment

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/memora-music/server/internal/shared/response"
)

// WebhookVerifier checks event signatures and parses the payload.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (stripe.Event, error)
}

// WebhookHandler receives payment processor events.
type WebhookHandler struct {
	service  *Service
	verifier WebhookVerifier
	logger   *zap.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(service *Service, verifier WebhookVerifier, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, verifier: verifier, logger: logger}
}

// RegisterRoutes registers the webhook endpoint.
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup, rateLimit gin.HandlerFunc) {
	rg.POST("/stripe/webhook", rateLimit, h.HandleWebhook)
}

// HandleWebhook verifies the signature and dispatches the event.
//
//	@Summary	Payment processor event delivery
//	@Tags		payment
//	@Accept		json
//	@Produce	json
//	@Param		stripe-signature	header	string	true	"Event signature"
//	@Success	200
//	@Router		/api/stripe/webhook [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "Corpo da requisição inválido", err)
		return
	}

	event, err := h.verifier.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook signature verification failed", zap.Error(err))
		response.Error(c, http.StatusBadRequest, "Assinatura inválida", err)
		return
	}

	if err := h.service.HandleWebhookEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("webhook event handling failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "Erro ao processar evento", err)
		return
	}

	response.OK(c, response.Envelope{"received": true})
}
