package paywall

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/memora-music/server/internal/utils/requestctx"
)

// Handler exposes the paywall HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a paywall handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers paywall routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/creation-status", h.CreationStatus)
	rg.GET("/creation-status/metrics", h.FallbackMetrics)
}

// IdentityFromRequest builds the request identity from the optional
// auth context, client headers and remote address.
func IdentityFromRequest(c *gin.Context) Identity {
	userID, _ := requestctx.UserID(c)
	return NewIdentity(userID, c.ClientIP(), requestctx.DeviceID(c), requestctx.GuestID(c))
}

// CreationStatus reports whether the caller's next song is free.
//
//	@Summary	Determine if the next song is free
//	@Tags		paywall
//	@Produce	json
//	@Param		x-device-id	header	string	false	"Device identifier"
//	@Param		x-guest-id	header	string	false	"Guest identifier"
//	@Success	200	{object}	CreationStatusResponse
//	@Router		/api/creation-status [get]
func (h *Handler) CreationStatus(c *gin.Context) {
	identity := IdentityFromRequest(c)
	decision := h.service.CreationStatus(c.Request.Context(), identity)

	c.JSON(http.StatusOK, CreationStatusResponse{
		Success:            true,
		IsFree:             decision.IsFree,
		FreeSongsUsed:      decision.FreeSongsUsed,
		Message:            decision.Message,
		UserType:           decision.UserType,
		HasUnlimitedAccess: decision.HasUnlimitedAccess,
	})
}

// FallbackMetrics returns the in-process IP fallback counters.
//
//	@Summary	IP fallback diagnostic counters
//	@Tags		paywall
//	@Produce	json
//	@Success	200	{object}	FallbackMetricsResponse
//	@Router		/api/creation-status/metrics [get]
func (h *Handler) FallbackMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, FallbackMetricsResponse{
		Success: true,
		Metrics: h.service.FallbackMetrics(),
	})
}
