package paywall

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memora-music/server/internal/utils/requestctx"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(requestctx.KeyDeviceID, c.GetHeader("x-device-id"))
		c.Set(requestctx.KeyGuestID, c.GetHeader("x-guest-id"))
	})
	NewHandler(svc).RegisterRoutes(router.Group("/api"))
	return router
}

func TestCreationStatusEndpoint_NewDevice(t *testing.T) {
	router := newTestRouter(newTestService(&stubRepository{}, &stubCreditStore{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/creation-status", nil)
	req.Header.Set("x-device-id", "dev-new")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp CreationStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.IsFree)
	assert.Zero(t, resp.FreeSongsUsed)
	assert.Equal(t, UserTypeNewGuestDevice, resp.UserType)
}

func TestCreationStatusEndpoint_LimitReached(t *testing.T) {
	repo := &stubRepository{records: []UsageRecord{
		{ID: "a", DeviceID: strPtr("dev-1"), FreeSongsUsed: 1},
	}}
	router := newTestRouter(newTestService(repo, &stubCreditStore{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/creation-status", nil)
	req.Header.Set("x-device-id", "dev-1")
	router.ServeHTTP(w, req)

	var resp CreationStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.IsFree)
	assert.Equal(t, 1, resp.FreeSongsUsed)
	assert.Equal(t, "Próxima música será paga", resp.Message)
}

func TestFallbackMetricsEndpoint(t *testing.T) {
	svc := newTestService(&stubRepository{}, &stubCreditStore{})
	svc.recorder.RecordAttempt(7)
	router := newTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/creation-status/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp FallbackMetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.EqualValues(t, 1, resp.Metrics.TotalAttempts)
}
