package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/pipeline"
)

// readyTimeout 就绪探测的总时限。
const readyTimeout = 5 * time.Second

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// ReadinessChecker 就绪探测依赖。
type ReadinessChecker interface {
	Ready(ctx context.Context) (bool, []pipeline.ComponentHealth)
}

// HealthHandler 健康检查处理器
type HealthHandler struct {
	checker ReadinessChecker
	logger  *zap.Logger
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status     string                     `json:"status"` // "healthy", "ready", "unready"
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components []pipeline.ComponentHealth `json:"components,omitempty"`
}

// VersionInfo 构建版本信息
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time,omitempty"`
	GitCommit string `json:"git_commit,omitempty"`
}

// NewHealthHandler 创建健康检查处理器。checker 为 nil 时
// 就绪探测恒返回就绪。
func NewHealthHandler(checker ReadinessChecker, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		checker: checker,
		logger:  logger.With(zap.String("handler", "health")),
	}
}

// HandleHealth 处理 /health 请求（存活检查, 不触依赖）
// @Summary 健康检查
// @Description 简单的存活检查端点
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 请求（就绪检查, 逐个探测依赖）
// @Summary 就绪检查
// @Description 探测会话存储、缓存、归档与 LLM 供应商
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "依赖就绪"
// @Failure 503 {object} HealthStatus "依赖未就绪"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "ready", Timestamp: time.Now()}

	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		ready, components := h.checker.Ready(ctx)
		status.Components = components
		if !ready {
			status.Status = "unready"
			h.logger.Warn("就绪检查未通过", zap.Any("components", components))
			WriteJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}

	WriteJSON(w, http.StatusOK, status)
}

// HandleVersion 返回 /version 处理函数
// @Summary 版本信息
// @Description 返回构建版本与提交信息
// @Tags 健康
// @Produce json
// @Success 200 {object} VersionInfo "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, VersionInfo{
			Version:   version,
			BuildTime: buildTime,
			GitCommit: gitCommit,
		})
	}
}
