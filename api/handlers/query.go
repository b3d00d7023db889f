package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/types"
)

// =============================================================================
// 🎯 查询处理 Handler
// =============================================================================

// QueryHandler 业务查询处理器, 同步与 SSE 流式两个入口。
type QueryHandler struct {
	service *pipeline.Service
	logger  *zap.Logger
}

// NewQueryHandler 创建查询处理器
func NewQueryHandler(service *pipeline.Service, logger *zap.Logger) *QueryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "query")),
	}
}

// HandleQuery 处理同步查询请求
// @Summary 处理业务查询
// @Description 分类、规划并执行一次业务查询, 返回完整结果
// @Tags 查询
// @Accept json
// @Produce json
// @Param request body api.QueryRequest true "查询请求"
// @Success 200 {object} Response{data=api.QueryResponse} "查询结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 503 {object} Response "执行中止"
// @Router /v1/query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	result, err := h.service.ProcessQuery(r.Context(), req.ToPipeline())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteSuccess(w, r, api.NewQueryResponse(result))
}

// HandleStream 处理流式查询请求
// @Summary 流式处理业务查询
// @Description 执行查询并以 SSE 推送逐步进度, 终帧携带完整结果
// @Tags 查询
// @Accept json
// @Produce text/event-stream
// @Param request body api.QueryRequest true "查询请求"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Router /v1/query/stream [post]
func (h *QueryHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost, h.logger) {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErrorMessage(w, r, http.StatusInternalServerError, types.ErrInternalError,
			"streaming not supported", h.logger)
		return
	}

	finalCh := make(chan api.StreamResult, 1)
	events, err := h.service.StreamQuery(r.Context(), req.ToPipeline(), func(result *pipeline.Result, execErr error) {
		finalCh <- streamResultFrom(result, execErr)
	})
	if err != nil {
		// 执行前失败, 还没有任何事件发出, 走普通 JSON 错误
		WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲

	for event := range events {
		w.Write([]byte("data: "))
		if err := json.NewEncoder(w).Encode(event); err != nil {
			h.logger.Warn("SSE 事件写入失败, 客户端可能已断开", zap.Error(err))
			for range events {
			}
			return
		}
		w.Write([]byte("\n"))
		flusher.Flush()
	}

	// done 先于事件通道关闭调用, 终帧此刻必然已投递
	select {
	case final := <-finalCh:
		name := "result"
		if final.ErrorCode != "" {
			name = "error"
		}
		writeSSEEvent(w, name, final)
		flusher.Flush()
	default:
		h.logger.Warn("流式执行结束但缺少终帧")
	}

	w.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

// streamResultFrom 把执行终态折叠为流式终帧。
func streamResultFrom(result *pipeline.Result, err error) api.StreamResult {
	if err != nil {
		code := types.GetErrorCode(err)
		if code == "" {
			code = types.ErrInternalError
		}
		return api.StreamResult{
			ErrorCode:    string(code),
			ErrorMessage: err.Error(),
		}
	}
	return api.StreamResult{Result: api.NewQueryResponse(result)}
}

// writeSSEEvent 写出一条命名 SSE 事件, 载荷做 JSON 转义。
func writeSSEEvent(w io.Writer, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
