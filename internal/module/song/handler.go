package song

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/memora-music/server/internal/module/paywall"
	"github.com/memora-music/server/internal/shared/response"
)

// Handler exposes the song HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler creates a song handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers song routes on the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/generate-preview", h.GeneratePreview)
	rg.GET("/check-music-status/:taskId", h.CheckStatus)
	rg.GET("/songs", h.ListSongs)
}

// GeneratePreview starts a gated song generation.
//
//	@Summary	Generate a song preview
//	@Tags		song
//	@Accept		json
//	@Produce	json
//	@Param		request	body		GenerateRequest	true	"Song brief"
//	@Success	200		{object}	GenerateResponse
//	@Failure	402		{object}	response.Envelope
//	@Router		/api/generate-preview [post]
func (h *Handler) GeneratePreview(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "Dados inválidos", err)
		return
	}

	identity := paywall.IdentityFromRequest(c)
	result, err := h.service.GeneratePreview(c.Request.Context(), GenerateInput{
		Recipient: req.Recipient,
		Occasion:  req.Occasion,
		Style:     req.Style,
		Details:   req.Details,
		Title:     req.Title,
		Lyrics:    req.Lyrics,
		Tags:      req.Tags,
	}, identity)
	if err != nil {
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, GenerateResponse{
		Success: true,
		TaskID:  result.TaskID,
		Title:   result.Title,
		Lyrics:  result.Lyrics,
	})
}

// CheckStatus reports the state of a generation task.
//
//	@Summary	Check generation task status
//	@Tags		song
//	@Produce	json
//	@Param		taskId	path		string	true	"Task id"
//	@Success	200		{object}	StatusResponse
//	@Router		/api/check-music-status/{taskId} [get]
func (h *Handler) CheckStatus(c *gin.Context) {
	result, err := h.service.CheckStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			response.Error(c, http.StatusNotFound, "Tarefa não encontrada", err)
			return
		}
		response.FromError(c, err)
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		Success:   true,
		TaskID:    result.TaskID,
		Status:    string(result.Status),
		Title:     result.Title,
		Lyrics:    result.Lyrics,
		AudioURLs: result.AudioURLs,
		Error:     result.Error,
	})
}

// ListSongs lists the caller's songs.
//
//	@Summary	List songs
//	@Tags		song
//	@Produce	json
//	@Success	200	{object}	ListResponse
//	@Router		/api/songs [get]
func (h *Handler) ListSongs(c *gin.Context) {
	identity := paywall.IdentityFromRequest(c)
	songs, err := h.service.ListSongs(c.Request.Context(), identity)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Erro ao listar músicas", err)
		return
	}

	items := make([]SongItem, 0, len(songs))
	for _, s := range songs {
		items = append(items, SongItem{
			ID:        s.ID,
			Title:     s.Title,
			Style:     s.Style,
			Tags:      s.Tags,
			AudioURL:  s.AudioURL,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, ListResponse{Success: true, Items: items})
}
