package archive

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/workflow"
)

// RunStatus 归档运行的终态。
type RunStatus string

const (
	// RunStatusCompleted 所有步骤成功完成。
	RunStatusCompleted RunStatus = "completed"
	// RunStatusDegraded 有步骤失败, 但降级策略给出了结果。
	RunStatusDegraded RunStatus = "degraded"
	// RunStatusFailed 有步骤失败且没有降级产出。
	RunStatusFailed RunStatus = "failed"
)

// RunRecord 是一次完整执行的持久化快照。
// 计划、轨迹与质量评审以 JSON 文本列存储, 检索维度单独建列加索引。
type RunRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExecutionID string    `gorm:"size:64;uniqueIndex:idx_run_execution" json:"execution_id"`
	SessionID   string    `gorm:"size:128;index:idx_run_session" json:"session_id"`
	Intent      string    `gorm:"size:64;index:idx_run_intent" json:"intent"`
	Status      RunStatus `gorm:"size:16;index:idx_run_status" json:"status"`
	Query       string    `gorm:"type:text" json:"query"`
	Plan        string    `gorm:"type:text" json:"plan"`
	Trace       string    `gorm:"type:text" json:"trace"`
	Assessment  string    `gorm:"type:text" json:"assessment,omitempty"`
	Resolution  string    `gorm:"type:text" json:"resolution,omitempty"`
	Score       float64   `gorm:"default:0" json:"score"`
	Approved    bool      `gorm:"default:false" json:"approved"`
	DurationMS  float64   `gorm:"default:0" json:"duration_ms"`
	CreatedAt   time.Time `gorm:"index:idx_run_created" json:"created_at"`
}

func (RunRecord) TableName() string {
	return "run_records"
}

// DecodePlan 反序列化归档的执行计划。
func (r *RunRecord) DecodePlan() (*planning.ExecutionPlan, error) {
	if r.Plan == "" {
		return nil, nil
	}
	var plan planning.ExecutionPlan
	if err := json.Unmarshal([]byte(r.Plan), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// DecodeTrace 反序列化归档的执行轨迹。
func (r *RunRecord) DecodeTrace() (*workflow.ExecutionTrace, error) {
	if r.Trace == "" {
		return nil, nil
	}
	var trace workflow.ExecutionTrace
	if err := json.Unmarshal([]byte(r.Trace), &trace); err != nil {
		return nil, err
	}
	return &trace, nil
}

// DecodeAssessment 反序列化归档的质量评审, 未评审时返回 nil。
func (r *RunRecord) DecodeAssessment() (*quality.Assessment, error) {
	if r.Assessment == "" {
		return nil, nil
	}
	var assessment quality.Assessment
	if err := json.Unmarshal([]byte(r.Assessment), &assessment); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// DecodeResolution 反序列化归档的辩论裁决, 未辩论时返回 nil。
func (r *RunRecord) DecodeResolution() (*quality.Resolution, error) {
	if r.Resolution == "" {
		return nil, nil
	}
	var resolution quality.Resolution
	if err := json.Unmarshal([]byte(r.Resolution), &resolution); err != nil {
		return nil, err
	}
	return &resolution, nil
}

// RunSnapshot 是待归档的一次执行: 计划、轨迹与可选的质量结论。
type RunSnapshot struct {
	SessionID  string
	Query      string
	Plan       *planning.ExecutionPlan
	Trace      *workflow.ExecutionTrace
	Assessment *quality.Assessment
	Resolution *quality.Resolution
}

// statusFor 由轨迹推导运行终态。降级产出优先于单纯失败。
func statusFor(trace *workflow.ExecutionTrace) RunStatus {
	switch {
	case trace.FallbackApplied:
		return RunStatusDegraded
	case len(trace.FailedSteps()) > 0:
		return RunStatusFailed
	default:
		return RunStatusCompleted
	}
}
