package api

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/queryflow/archive"
	"github.com/BaSui01/queryflow/pipeline"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/session"
	"github.com/BaSui01/queryflow/workflow"
)

// =============================================================================
// 查询处理类型
// =============================================================================

// QueryRequest 代表一次业务查询请求。
// @Description 业务查询请求结构
type QueryRequest struct {
	// 会话标识, 由调用方提供
	SessionID string `json:"session_id" example:"sess-8f21" binding:"required"`
	// 用户的业务问题
	Query string `json:"query" example:"analyze revenue trends by region" binding:"required"`
	// 可选的意图覆盖 (data_exploration/visualization/insight_generation/sql_query/report_generation)
	QueryType string `json:"query_type,omitempty" example:"visualization"`
	// 数据集描述 (name 加 csv 文本或 rows/columns)
	FileContext map[string]any `json:"file_context,omitempty"`
	// 数据库 schema 提示
	SchemaHint string `json:"schema_hint,omitempty"`
}

// ToPipeline 转换为流水线请求。
func (r QueryRequest) ToPipeline() pipeline.Request {
	return pipeline.Request{
		SessionID:   r.SessionID,
		Query:       r.Query,
		QueryType:   r.QueryType,
		FileContext: r.FileContext,
		SchemaHint:  r.SchemaHint,
	}
}

// QueryResponse 代表查询处理结果。
// @Description 业务查询响应结构
type QueryResponse struct {
	// 终态: completed/degraded/failed
	Status string `json:"status" example:"completed"`
	// 会话标识
	SessionID string `json:"session_id" example:"sess-8f21"`
	// 本次运行的执行标识
	ExecutionID string `json:"execution_id" example:"run_5f3a"`
	// 分类结果
	Analysis *planning.QueryAnalysis `json:"analysis,omitempty"`
	// 执行计划
	ExecutionPlan *planning.ExecutionPlan `json:"execution_plan"`
	// 逐步执行轨迹
	Trace *workflow.ExecutionTrace `json:"trace"`
	// 最终产出, 按步骤产物键组织
	Result map[string]any `json:"result"`
	// 质量评审结果
	Assessment *quality.Assessment `json:"assessment,omitempty"`
	// 辩论裁决
	Resolution *quality.Resolution `json:"resolution,omitempty"`
}

// NewQueryResponse 由流水线结果构建响应。
func NewQueryResponse(res *pipeline.Result) *QueryResponse {
	return &QueryResponse{
		Status:        string(res.Status),
		SessionID:     res.SessionID,
		ExecutionID:   res.ExecutionID,
		Analysis:      res.Analysis,
		ExecutionPlan: res.Plan,
		Trace:         res.Trace,
		Result:        res.Output,
		Assessment:    res.Assessment,
		Resolution:    res.Resolution,
	}
}

// =============================================================================
// 流式事件类型
// =============================================================================

// StreamResult 流式处理的终帧: 完整查询结果或终态错误之一。
// @Description 流式查询终帧结构
type StreamResult struct {
	// 完整查询结果, 成功结束时设置
	Result *QueryResponse `json:"result,omitempty"`
	// 错误码, 计划级失败时设置
	ErrorCode string `json:"error_code,omitempty"`
	// 错误描述
	ErrorMessage string `json:"error_message,omitempty"`
}

// WSMessage WebSocket 下行消息。进度事件逐条下发,
// 终帧把 type 置为 result 或 error。
// @Description WebSocket 下行消息结构
type WSMessage struct {
	// 消息类型: progress/result/error
	Type string `json:"type" example:"progress"`
	// 进度事件, type=progress 时设置
	Event *workflow.ProgressEvent `json:"event,omitempty"`
	// 终帧, type=result 或 error 时设置
	Final *StreamResult `json:"final,omitempty"`
}

// =============================================================================
// 步骤目录自省类型
// =============================================================================

// IntentView 单个意图的计划模板。
type IntentView struct {
	Intent           string   `json:"intent"`
	Steps            []string `json:"steps"`
	EstimatedSeconds float64  `json:"estimated_seconds"`
	FallbackSteps    []string `json:"fallback_steps,omitempty"`
	FallbackOutput   string   `json:"fallback_output,omitempty"`
}

// StepView 单个步骤的目录描述。
type StepView struct {
	ID               string   `json:"id"`
	DependsOn        []string `json:"depends_on,omitempty"`
	EstimatedSeconds float64  `json:"estimated_seconds"`
}

// CatalogResponse 步骤目录自省结果。
// @Description 步骤目录结构
type CatalogResponse struct {
	Intents []IntentView `json:"intents"`
	Steps   []StepView   `json:"steps"`
}

// NewCatalogResponse 由步骤目录构建自省响应。
func NewCatalogResponse(catalog *planning.Catalog) *CatalogResponse {
	intents := catalog.Intents()
	resp := &CatalogResponse{
		Intents: make([]IntentView, 0, len(intents)),
	}
	for _, intent := range intents {
		view := IntentView{Intent: intent}
		if base, ok := catalog.BasePlan(intent); ok {
			view.Steps = base.Steps
			view.EstimatedSeconds = base.EstimatedSeconds
		}
		if fb, ok := catalog.Fallback(intent); ok {
			view.FallbackSteps = fb.Steps
			view.FallbackOutput = fb.Output
		}
		resp.Intents = append(resp.Intents, view)
	}
	for _, step := range catalog.Steps() {
		resp.Steps = append(resp.Steps, StepView{
			ID:               step.ID,
			DependsOn:        step.DependsOn,
			EstimatedSeconds: step.EstimatedSeconds,
		})
	}
	return resp
}

// =============================================================================
// 运行归档类型
// =============================================================================

// RunSummary 归档列表里的单条运行摘要, 不携带计划与轨迹全文。
type RunSummary struct {
	ExecutionID string    `json:"execution_id"`
	SessionID   string    `json:"session_id"`
	Intent      string    `json:"intent"`
	Status      string    `json:"status"`
	Query       string    `json:"query"`
	Score       float64   `json:"score"`
	Approved    bool      `json:"approved"`
	DurationMS  float64   `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunListResponse 运行归档列表。
type RunListResponse struct {
	Runs  []RunSummary `json:"runs"`
	Count int          `json:"count"`
}

// NewRunListResponse 由归档记录构建列表响应。
func NewRunListResponse(records []archive.RunRecord) *RunListResponse {
	resp := &RunListResponse{Runs: make([]RunSummary, 0, len(records))}
	for _, rec := range records {
		resp.Runs = append(resp.Runs, RunSummary{
			ExecutionID: rec.ExecutionID,
			SessionID:   rec.SessionID,
			Intent:      rec.Intent,
			Status:      string(rec.Status),
			Query:       rec.Query,
			Score:       rec.Score,
			Approved:    rec.Approved,
			DurationMS:  rec.DurationMS,
			CreatedAt:   rec.CreatedAt,
		})
	}
	resp.Count = len(resp.Runs)
	return resp
}

// RunDetail 单条归档运行的完整快照, 计划与轨迹以原始 JSON 透出。
type RunDetail struct {
	ExecutionID string          `json:"execution_id"`
	SessionID   string          `json:"session_id"`
	Intent      string          `json:"intent"`
	Status      string          `json:"status"`
	Query       string          `json:"query"`
	Plan        json.RawMessage `json:"plan,omitempty"`
	Trace       json.RawMessage `json:"trace,omitempty"`
	Assessment  json.RawMessage `json:"assessment,omitempty"`
	Resolution  json.RawMessage `json:"resolution,omitempty"`
	Score       float64         `json:"score"`
	Approved    bool            `json:"approved"`
	DurationMS  float64         `json:"duration_ms"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewRunDetail 由归档记录构建详情响应。归档列存的是序列化 JSON,
// 这里校验后按原文透出, 避免二次编码成转义字符串。
func NewRunDetail(rec *archive.RunRecord) *RunDetail {
	return &RunDetail{
		ExecutionID: rec.ExecutionID,
		SessionID:   rec.SessionID,
		Intent:      rec.Intent,
		Status:      string(rec.Status),
		Query:       rec.Query,
		Plan:        rawJSON(rec.Plan),
		Trace:       rawJSON(rec.Trace),
		Assessment:  rawJSON(rec.Assessment),
		Resolution:  rawJSON(rec.Resolution),
		Score:       rec.Score,
		Approved:    rec.Approved,
		DurationMS:  rec.DurationMS,
		CreatedAt:   rec.CreatedAt,
	}
}

func rawJSON(stored string) json.RawMessage {
	if stored == "" || !json.Valid([]byte(stored)) {
		return nil
	}
	return json.RawMessage(stored)
}

// =============================================================================
// 会话类型
// =============================================================================

// SessionView 会话摘要, 不携带完整轨迹。
type SessionView struct {
	ID              string    `json:"id"`
	SchemaHint      string    `json:"schema_hint,omitempty"`
	LastIntent      string    `json:"last_intent,omitempty"`
	HasFileContext  bool      `json:"has_file_context"`
	LastExecutionID string    `json:"last_execution_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewSessionView 由会话构建摘要响应。
func NewSessionView(sess *session.Session) *SessionView {
	view := &SessionView{
		ID:             sess.ID,
		SchemaHint:     sess.SchemaHint,
		LastIntent:     sess.LastIntent,
		HasFileContext: len(sess.FileContext) > 0,
		CreatedAt:      sess.CreatedAt,
		UpdatedAt:      sess.UpdatedAt,
	}
	if sess.LastTrace != nil {
		view.LastExecutionID = sess.LastTrace.ExecutionID
	}
	return view
}
