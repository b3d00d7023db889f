// 版权所有 2025 QueryFlow Authors

package pipeline

import (
	"fmt"
	"strings"

	"github.com/BaSui01/queryflow/agents"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/types"
	"github.com/BaSui01/queryflow/workflow"
)

// Request 一次查询处理请求。
type Request struct {
	// SessionID 会话标识, 必填。同一会话的后续请求可复用
	// 之前上传的文件上下文与 schema 提示。
	SessionID string `json:"session_id"`

	// Query 用户的业务问题, 必填。
	Query string `json:"query"`

	// QueryType 可选的意图覆盖。设置后跳过分类结果的意图,
	// 必须是步骤目录中注册过的意图。
	QueryType string `json:"query_type,omitempty"`

	// FileContext 本次请求携带的数据集描述 (name 加 csv 文本或
	// rows/columns)。为空时复用会话中保存的上下文。
	FileContext map[string]any `json:"file_context,omitempty"`

	// SchemaHint 数据库 schema 提示, 为空时复用会话保存值。
	SchemaHint string `json:"schema_hint,omitempty"`
}

// Validate 检查必填字段。
func (r Request) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return types.NewError(types.ErrInvalidRequest, "session_id is required")
	}
	if strings.TrimSpace(r.Query) == "" {
		return types.NewError(types.ErrInvalidRequest, "query is required")
	}
	return nil
}

// Status 查询处理的终态, 与归档记录使用同一组取值。
type Status string

const (
	// StatusCompleted 所有步骤成功。
	StatusCompleted Status = "completed"
	// StatusDegraded 有步骤失败但降级策略给出了结果。
	StatusDegraded Status = "degraded"
	// StatusFailed 有步骤失败且没有降级产出。
	StatusFailed Status = "failed"
)

// Result 一次查询处理的完整产出。
type Result struct {
	SessionID   string                  `json:"session_id"`
	ExecutionID string                  `json:"execution_id"`
	Status      Status                  `json:"status"`
	Analysis    *planning.QueryAnalysis `json:"analysis"`
	Plan        *planning.ExecutionPlan `json:"plan"`
	Trace       *workflow.ExecutionTrace `json:"trace"`

	// Output 面向用户的最终产出, 按步骤产物键组织
	// (report/narrative/chart_config/insight/sql_result)。
	Output map[string]any `json:"output"`

	Assessment *quality.Assessment `json:"assessment,omitempty"`
	Resolution *quality.Resolution `json:"resolution,omitempty"`
}

// statusFor 由执行轨迹推导终态。
func statusFor(trace *workflow.ExecutionTrace) Status {
	switch {
	case trace.FallbackApplied:
		return StatusDegraded
	case len(trace.FailedSteps()) > 0:
		return StatusFailed
	default:
		return StatusCompleted
	}
}

// outputKeys 进入 Result.Output 的最终产物键, 中间产物
// (dataset/retrieved_context 等) 不对外暴露。
var outputKeys = []string{
	agents.KeyReport,
	agents.KeyNarrative,
	agents.KeyChartConfig,
	agents.KeyInsight,
	agents.KeySQLResult,
}

func composeOutput(state *workflow.State, trace *workflow.ExecutionTrace) map[string]any {
	output := make(map[string]any, len(outputKeys))
	for _, key := range outputKeys {
		if value, ok := state.Get(key); ok {
			output[key] = value
		}
	}
	if trace.FallbackApplied {
		output["fallback_applied"] = true
		if trace.FallbackOutput != "" {
			output["fallback_output"] = trace.FallbackOutput
		}
	}
	return output
}

func assessmentFrom(state *workflow.State) *quality.Assessment {
	value, ok := state.Get(agents.KeyAssessment)
	if !ok {
		return nil
	}
	assessment, _ := value.(*quality.Assessment)
	return assessment
}

func resolutionFrom(state *workflow.State) *quality.Resolution {
	value, ok := state.Get(agents.KeyResolution)
	if !ok {
		return nil
	}
	resolution, _ := value.(*quality.Resolution)
	return resolution
}

func unknownIntentError(queryType string, valid []string) error {
	msg := fmt.Sprintf("unknown query type %q, valid intents: %s", queryType, strings.Join(valid, ", "))
	return types.NewError(types.ErrUnknownIntent, msg)
}
