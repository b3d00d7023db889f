package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/session"
	"github.com/BaSui01/queryflow/types"
)

// =============================================================================
// 💾 会话 Handler
// =============================================================================

// SessionsHandler 会话查询与清理处理器。
type SessionsHandler struct {
	store  session.Store
	logger *zap.Logger
}

// NewSessionsHandler 创建会话处理器
func NewSessionsHandler(store session.Store, logger *zap.Logger) *SessionsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionsHandler{
		store:  store,
		logger: logger.With(zap.String("handler", "sessions")),
	}
}

// Handle 处理 /v1/sessions/{id} 请求, 按方法分派。
// @Summary 会话查询与删除
// @Description GET 返回会话摘要, DELETE 清理会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话标识"
// @Success 200 {object} Response{data=api.SessionView} "会话摘要"
// @Failure 404 {object} Response "会话不存在"
// @Router /v1/sessions/{id} [get]
func (h *SessionsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/v1/sessions/")
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest,
			"session id is required", h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.handleGet(w, r, id)
	case http.MethodDelete:
		h.handleDelete(w, r, id)
	default:
		w.Header().Set("Allow", "GET, DELETE")
		WriteErrorMessage(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest,
			"method not allowed", h.logger)
	}
}

func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, api.NewSessionView(sess))
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	WriteSuccess(w, r, map[string]string{"deleted": id})
}

func (h *SessionsHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrSessionNotFound,
			"session not found", h.logger)
		return
	}
	WriteError(w, r, types.NewError(types.ErrInternalError, "session store failed").WithCause(err), h.logger)
}
