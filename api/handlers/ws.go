package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/pipeline"
)

// wsReadTimeout 等待首帧查询请求的时限。
const wsReadTimeout = 10 * time.Second

// =============================================================================
// 🌐 WebSocket 流式查询 Handler
// =============================================================================

// WSHandler WebSocket 流式查询处理器。协议: 客户端连上后发送
// 一帧 QueryRequest, 服务端逐条下发 progress 消息, 以 result
// 或 error 终帧收尾后正常关闭。
type WSHandler struct {
	service *pipeline.Service
	logger  *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(service *pipeline.Service, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger.With(zap.String("handler", "query_ws")),
	}
}

// HandleWS 处理 WebSocket 流式查询
// @Summary WebSocket 流式查询
// @Description 升级为 WebSocket, 首帧为查询请求, 下行为进度与终帧
// @Tags 查询
// @Router /v1/query/ws [get]
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket 升级失败", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	var req api.QueryRequest
	readCtx, cancelRead := context.WithTimeout(r.Context(), wsReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancelRead()
	if err != nil {
		h.logger.Debug("读取查询帧失败", zap.Error(err))
		conn.Close(websocket.StatusPolicyViolation, "expected a query request frame")
		return
	}

	// 首帧之后不再读取, CloseRead 负责在客户端断开时取消执行。
	ctx := conn.CloseRead(r.Context())

	finalCh := make(chan api.StreamResult, 1)
	events, err := h.service.StreamQuery(ctx, req.ToPipeline(), func(result *pipeline.Result, execErr error) {
		finalCh <- streamResultFrom(result, execErr)
	})
	if err != nil {
		final := streamResultFrom(nil, err)
		_ = wsjson.Write(ctx, conn, api.WSMessage{Type: "error", Final: &final})
		conn.Close(websocket.StatusNormalClosure, "request rejected")
		return
	}

	for event := range events {
		progress := event
		msg := api.WSMessage{Type: "progress", Event: &progress}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			h.logger.Debug("下行进度失败, 客户端可能已断开", zap.Error(err))
			for range events {
			}
			return
		}
	}

	select {
	case final := <-finalCh:
		msgType := "result"
		if final.ErrorCode != "" {
			msgType = "error"
		}
		if err := wsjson.Write(ctx, conn, api.WSMessage{Type: msgType, Final: &final}); err != nil {
			h.logger.Debug("下行终帧失败", zap.Error(err))
			return
		}
	default:
		h.logger.Warn("流式执行结束但缺少终帧")
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
