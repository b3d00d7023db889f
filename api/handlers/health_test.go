package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/queryflow/pipeline"
)

// stubChecker 可控的就绪探测替身。
type stubChecker struct {
	ready      bool
	components []pipeline.ComponentHealth
}

func (s *stubChecker) Ready(ctx context.Context) (bool, []pipeline.ComponentHealth) {
	return s.ready, s.components
}

func TestHandleHealth(t *testing.T) {
	h := NewHealthHandler(nil, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHandleReady_WithPipeline(t *testing.T) {
	h := NewHealthHandler(newTestPipeline(t), zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "ready", status.Status)

	names := make(map[string]string, len(status.Components))
	for _, comp := range status.Components {
		names[comp.Name] = comp.Status
	}
	assert.Equal(t, "ok", names["sessions"])
}

func TestHandleReady_Unready(t *testing.T) {
	checker := &stubChecker{
		ready: false,
		components: []pipeline.ComponentHealth{
			{Name: "sessions", Status: "ok"},
			{Name: "classification_cache", Status: "error", Error: "connection refused"},
		},
	}
	h := NewHealthHandler(checker, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "unready", status.Status)
	assert.Len(t, status.Components, 2)
}

func TestHandleReady_NilChecker(t *testing.T) {
	h := NewHealthHandler(nil, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleVersion(t *testing.T) {
	h := NewHealthHandler(nil, zaptest.NewLogger(t))
	handler := h.HandleVersion("1.2.3", "2025-06-01T00:00:00Z", "abc1234")

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var info VersionInfo
	require.NoError(t, json.NewDecoder(w.Body).Decode(&info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "abc1234", info.GitCommit)
}
