package workflow

import "time"

// StepStatus 步骤终态。
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult 单步执行记录。
type StepResult struct {
	StepID    string        `json:"step_id"`
	Status    StepStatus    `json:"status"`
	Error     string        `json:"error,omitempty"`
	Produced  []string      `json:"produced,omitempty"`
	Parallel  bool          `json:"parallel,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ExecutionTrace 一次计划执行的完整追踪。
// 质量门的辩论重试轮也会以 StepResult 形式追加到 Steps 末尾。
type ExecutionTrace struct {
	ExecutionID      string        `json:"execution_id"`
	Intent           string        `json:"intent"`
	Steps            []StepResult  `json:"steps"`
	OrderingDegraded bool          `json:"ordering_degraded,omitempty"`
	FallbackApplied  bool          `json:"fallback_applied,omitempty"`
	FallbackOutput   string        `json:"fallback_output,omitempty"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
}

// Append 追加一条步骤记录。
func (t *ExecutionTrace) Append(result StepResult) {
	t.Steps = append(t.Steps, result)
}

// Find 返回指定步骤的首条记录, 不存在时返回 nil。
func (t *ExecutionTrace) Find(stepID string) *StepResult {
	for i := range t.Steps {
		if t.Steps[i].StepID == stepID {
			return &t.Steps[i]
		}
	}
	return nil
}

// FailedSteps 返回执行失败(非跳过)的步骤 id。
func (t *ExecutionTrace) FailedSteps() []string {
	var failed []string
	for _, s := range t.Steps {
		if s.Status == StepStatusFailed {
			failed = append(failed, s.StepID)
		}
	}
	return failed
}

// SkippedSteps 返回被跳过的步骤 id。
func (t *ExecutionTrace) SkippedSteps() []string {
	var skipped []string
	for _, s := range t.Steps {
		if s.Status == StepStatusSkipped {
			skipped = append(skipped, s.StepID)
		}
	}
	return skipped
}

// Clean 报告是否所有步骤都成功完成。
func (t *ExecutionTrace) Clean() bool {
	for _, s := range t.Steps {
		if s.Status != StepStatusCompleted {
			return false
		}
	}
	return true
}
