package planning

import (
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/types"
)

// Priority 表示执行计划的调度优先级。
type Priority string

const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// 规划阈值。复杂度只在阈值比较中使用, 规划结果对同一侧的任何分值一致。
const (
	qualityThreshold  = 0.7 // 超过则追加质量控制步骤并放大时间估计
	parallelThreshold = 0.5 // 超过且满足结构条件则启用并行组
	reviewThreshold   = 0.8 // 超过则要求人工复核
	complexTimeFactor = 1.5
)

// ExecutionPlan 是规划器的输出: 有序步骤、并行组、时间估计与降级策略。
// 创建后不可变, 执行器只读取不修改。
type ExecutionPlan struct {
	// Intent 实际用于查表的意图（未知意图已归一化为默认意图）
	Intent string `json:"intent"`
	// Steps 依赖有序的步骤列表, 无重复
	Steps []string `json:"steps"`
	// ParallelGroups 允许并发执行的不相交步骤组
	ParallelGroups [][]string `json:"parallel_groups,omitempty"`
	// EstimatedSeconds 计划总耗时估计
	EstimatedSeconds float64 `json:"estimated_seconds"`
	// Priority 调度优先级
	Priority Priority `json:"priority"`
	// RequiresHumanReview 是否需要人工复核
	RequiresHumanReview bool `json:"requires_human_review"`
	// Fallback 主计划失败时的简化降级策略
	Fallback FallbackStrategy `json:"fallback"`
	// OrderingDegraded 依赖排序是否触发了退化路径（环或不可满足依赖）。
	// 为 true 时 Steps 仍是输入集合的一个排列, 但不保证依赖先序。
	OrderingDegraded bool `json:"ordering_degraded,omitempty"`
}

// ParallelGroupFor 返回包含指定步骤的并行组, 不存在时返回 nil。
func (p *ExecutionPlan) ParallelGroupFor(step string) []string {
	for _, group := range p.ParallelGroups {
		for _, member := range group {
			if member == step {
				return append([]string(nil), group...)
			}
		}
	}
	return nil
}

// HasStep 报告计划是否包含指定步骤。
func (p *ExecutionPlan) HasStep(step string) bool {
	for _, s := range p.Steps {
		if s == step {
			return true
		}
	}
	return false
}

// Planner 执行规划器。规划是 (意图, 复杂度分档, 文件上下文标志) 的纯函数:
// 相同输入必然产出相同计划, 不访问任何外部服务。
type Planner struct {
	catalog *Catalog
	logger  *zap.Logger
}

// NewPlanner 构造规划器。
func NewPlanner(catalog *Catalog, logger *zap.Logger) (*Planner, error) {
	if catalog == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "planner requires a catalogue")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		catalog: catalog,
		logger:  logger.With(zap.String("component", "planner")),
	}, nil
}

// CreateExecutionPlan 根据分类结果与文件上下文标志生成执行计划。
// 未知意图归一化为默认意图条目, 不返回错误。
func (p *Planner) CreateExecutionPlan(analysis *QueryAnalysis, hasFileContext bool) *ExecutionPlan {
	intent := analysis.PrimaryIntent
	base, ok := p.catalog.BasePlan(intent)
	if !ok {
		p.logger.Debug("未知意图, 使用默认条目",
			zap.String("intent", intent),
			zap.String("default", DefaultIntent))
		intent = DefaultIntent
		base, _ = p.catalog.BasePlan(intent)
	}

	steps := append([]string(nil), base.Steps...)
	estimate := base.EstimatedSeconds

	// 高复杂度: 追加质量控制步骤并放大时间估计
	if analysis.ComplexityScore > qualityThreshold {
		steps = appendMissing(steps, StepCritique, StepDebate)
		estimate *= complexTimeFactor
	}

	// 文件上下文: data/cleaner 前置, 先于一切既有步骤
	if hasFileContext {
		steps = prependSteps(steps, StepData, StepCleaner)
	}

	ordered, degraded := orderSteps(steps, p.catalog)
	if degraded {
		p.logger.Warn("依赖排序触发退化路径, 剩余步骤按原序追加",
			zap.String("intent", intent),
			zap.Strings("steps", ordered))
	}

	plan := &ExecutionPlan{
		Intent:              intent,
		Steps:               ordered,
		EstimatedSeconds:    estimate,
		Priority:            PriorityMedium,
		RequiresHumanReview: analysis.ComplexityScore > reviewThreshold,
		OrderingDegraded:    degraded,
	}
	if analysis.ComplexityScore > qualityThreshold {
		plan.Priority = PriorityHigh
	}
	if fb, ok := p.catalog.Fallback(intent); ok {
		plan.Fallback = fb
	} else {
		plan.Fallback, _ = p.catalog.Fallback(DefaultIntent)
	}

	if analysis.ComplexityScore > parallelThreshold && len(ordered) > 3 &&
		plan.HasStep(StepSQL) && plan.HasStep(StepChart) {
		plan.ParallelGroups = [][]string{{StepSQL, StepChart}}
	}

	return plan
}

// appendMissing 追加列表中尚不存在的步骤, 保持给定顺序。
func appendMissing(steps []string, ids ...string) []string {
	present := make(map[string]bool, len(steps))
	for _, s := range steps {
		present[s] = true
	}
	for _, id := range ids {
		if !present[id] {
			steps = append(steps, id)
			present[id] = true
		}
	}
	return steps
}

// prependSteps 将给定步骤按序前置; 列表中已有的同名步骤先移除再前置。
func prependSteps(steps []string, ids ...string) []string {
	lead := make(map[string]bool, len(ids))
	for _, id := range ids {
		lead[id] = true
	}
	rest := make([]string, 0, len(steps))
	for _, s := range steps {
		if !lead[s] {
			rest = append(rest, s)
		}
	}
	return append(append([]string(nil), ids...), rest...)
}

// orderSteps 依赖先序排序。逐轮扫描未排序步骤, 放置首个满足
// "所有声明依赖已放置或不在本计划集合中" 的步骤; 某轮一个也放不下时
// (环或不可满足依赖), 剩余步骤按当前顺序整体追加并报告 degraded。
// 结果始终是输入的一个排列。
func orderSteps(steps []string, catalog *Catalog) ([]string, bool) {
	remaining := append([]string(nil), steps...)
	inSet := make(map[string]bool, len(steps))
	for _, s := range remaining {
		inSet[s] = true
	}

	ordered := make([]string, 0, len(steps))
	placed := make(map[string]bool, len(steps))

	for len(remaining) > 0 {
		progressed := false
		for i, s := range remaining {
			ready := true
			for _, dep := range catalog.Dependencies(s) {
				if inSet[dep] && !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				ordered = append(ordered, s)
				placed[s] = true
				remaining = append(remaining[:i], remaining[i+1:]...)
				progressed = true
				break
			}
		}
		if !progressed {
			return append(ordered, remaining...), true
		}
	}
	return ordered, false
}
