package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/api"
	"github.com/BaSui01/queryflow/planning"
)

// =============================================================================
// 📋 步骤目录自省 Handler
// =============================================================================

// CatalogHandler 步骤目录自省处理器。
type CatalogHandler struct {
	catalog *planning.Catalog
	logger  *zap.Logger
}

// NewCatalogHandler 创建目录自省处理器
func NewCatalogHandler(catalog *planning.Catalog, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger.With(zap.String("handler", "catalog")),
	}
}

// HandleSteps 处理 /v1/steps 请求
// @Summary 步骤目录自省
// @Description 返回已注册意图的计划模板与全部步骤描述
// @Tags 目录
// @Produce json
// @Success 200 {object} Response{data=api.CatalogResponse} "步骤目录"
// @Router /v1/steps [get]
func (h *CatalogHandler) HandleSteps(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, h.logger) {
		return
	}
	WriteSuccess(w, r, api.NewCatalogResponse(h.catalog))
}
