package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/archive"
	"github.com/BaSui01/queryflow/types"
)

// =============================================================================
// 🗄️ 运行归档 Handler
// =============================================================================

// RunsHandler 运行归档查询处理器。归档未启用时所有端点返回 503。
type RunsHandler struct {
	archive *archive.Archive
	logger  *zap.Logger
}

// NewRunsHandler 创建归档查询处理器
func NewRunsHandler(arc *archive.Archive, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{
		archive: arc,
		logger:  logger.With(zap.String("handler", "runs")),
	}
}

// HandleList 处理 /v1/runs 请求
// @Summary 运行归档列表
// @Description 按会话/意图/状态过滤, 归档时间倒序
// @Tags 归档
// @Produce json
// @Param session_id query string false "会话过滤"
// @Param intent query string false "意图过滤"
// @Param status query string false "状态过滤 (completed/degraded/failed)"
// @Param limit query int false "返回条数上限"
// @Success 200 {object} Response{data=api.RunListResponse} "运行列表"
// @Failure 503 {object} Response "归档未启用"
// @Router /v1/runs [get]
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	query := r.URL.Query()
	opts := archive.ListOptions{
		SessionID: query.Get("session_id"),
		Intent:    query.Get("intent"),
		Status:    archive.RunStatus(query.Get("status")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest,
				"limit must be a non-negative integer", h.logger)
			return
		}
		opts.Limit = limit
	}

	records, err := h.archive.List(r.Context(), opts)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	WriteSuccess(w, r, api.NewRunListResponse(records))
}

// HandleGet 处理 /v1/runs/{id} 请求
// @Summary 运行归档详情
// @Description 按执行标识返回完整运行快照
// @Tags 归档
// @Produce json
// @Param id path string true "执行标识"
// @Success 200 {object} Response{data=api.RunDetail} "运行详情"
// @Failure 404 {object} Response "运行不存在"
// @Failure 503 {object} Response "归档未启用"
// @Router /v1/runs/{id} [get]
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}

	executionID := pathID(r, "/v1/runs/")
	if executionID == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest,
			"execution id is required", h.logger)
		return
	}

	record, err := h.archive.Get(r.Context(), executionID)
	if err != nil {
		h.writeArchiveError(w, r, err)
		return
	}
	WriteSuccess(w, r, api.NewRunDetail(record))
}

// writeArchiveError 归档错误统一映射: 未启用 503, 不存在 404。
func (h *RunsHandler) writeArchiveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, archive.ErrDisabled):
		WriteErrorMessage(w, r, http.StatusServiceUnavailable, types.ErrArchiveDisabled,
			"run archive is not enabled", h.logger)
	case errors.Is(err, archive.ErrNotFound):
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrRunNotFound,
			"run record not found", h.logger)
	default:
		WriteError(w, r, types.NewError(types.ErrInternalError, "archive query failed").WithCause(err), h.logger)
	}
}

// pathID 提取路径末段标识。优先 Go 1.22+ PathValue,
// 兼容手工注册的前缀路由。
func pathID(r *http.Request, prefix string) string {
	if pv, ok := any(r).(interface{ PathValue(string) string }); ok {
		if id := pv.PathValue("id"); id != "" {
			return id
		}
	}
	id := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(id, "/")
}
