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

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/session"
	"github.com/BaSui01/queryflow/types"
	"github.com/BaSui01/queryflow/workflow"
)

type sessionEnvelope struct {
	Success bool            `json:"success"`
	Data    api.SessionView `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

func newSeededSessions(t *testing.T) *SessionsHandler {
	t.Helper()

	store := session.NewMemoryStore(session.StoreConfig{})
	err := store.Save(context.Background(), &session.Session{
		ID:         "s1",
		SchemaHint: "region (text), revenue (numeric)",
		FileContext: map[string]any{
			"name": "sales.csv",
			"csv":  "region,revenue\nnorth,1200\n",
		},
		LastIntent: "sql_query",
		LastTrace:  &workflow.ExecutionTrace{ExecutionID: "run-1"},
	})
	require.NoError(t, err)

	return NewSessionsHandler(store, zaptest.NewLogger(t))
}

func TestSessions_Get(t *testing.T) {
	h := newSeededSessions(t)

	w := httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var resp sessionEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "s1", resp.Data.ID)
	assert.Equal(t, "sql_query", resp.Data.LastIntent)
	assert.Equal(t, "run-1", resp.Data.LastExecutionID)
	assert.True(t, resp.Data.HasFileContext)
}

func TestSessions_GetNotFound(t *testing.T) {
	h := newSeededSessions(t)

	w := httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/s404", nil))

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp sessionEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrSessionNotFound), resp.Error.Code)
}

func TestSessions_Delete(t *testing.T) {
	h := newSeededSessions(t)

	w := httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessions_MethodNotAllowed(t *testing.T) {
	h := newSeededSessions(t)

	w := httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodPost, "/v1/sessions/s1", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, DELETE", w.Header().Get("Allow"))
}

func TestSessions_MissingID(t *testing.T) {
	h := newSeededSessions(t)

	w := httptest.NewRecorder()
	h.Handle(w, httptest.NewRequest(http.MethodGet, "/v1/sessions/", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
