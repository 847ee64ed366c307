package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"receipt-overseer/internal/mocks"
	"receipt-overseer/internal/telemetry"
	"receipt-overseer/internal/ws"
)

type sessionListerStub []ws.SessionInfo

func (s sessionListerStub) Sessions() []ws.SessionInfo { return s }
func (s sessionListerStub) Count() int { return len(s) }

func setupDebugRouter(emitter *telemetry.AuditEmitter, sessions SessionLister, enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", 1)
		c.Next()
	})
	RegisterDebugRoutes(r, emitter, sessions, enabled)
	return r
}

func TestDebugRoutesDisabled(t *testing.T) {
	router := setupDebugRouter(nil, sessionListerStub{}, false)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugAuditTest(t *testing.T) {
	broker := new(mocks.BrokerPublisherMock)
	emitter := telemetry.NewAuditEmitter(broker, "audit.events", "receipt-overseer", "test")
	router := setupDebugRouter(emitter, sessionListerStub{}, true)

	broker.On("Publish", mock.Anything, "audit.events", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Text == "audit test" && env.UserID != nil && *env.UserID == 1
	})).Return(nil).Once()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	broker.AssertExpectations(t)
}

func TestDebugSessions(t *testing.T) {
	sessions := sessionListerStub{
		{ConnID: "a", UserID: 1, State: "active", ConnectedAt: time.Unix(0, 0).UTC()},
		{ConnID: "b", UserID: 2, State: "active", ConnectedAt: time.Unix(0, 0).UTC()},
	}
	router := setupDebugRouter(nil, sessions, true)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Count    int              `json:"count"`
		Sessions []ws.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "b", resp.Sessions[1].ConnID)
}
