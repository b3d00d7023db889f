package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/internal/ctxkeys"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/types"
)

// ExecutorOptions 执行器行为参数。零值字段使用默认值。
type ExecutorOptions struct {
	// StepTimeoutFactor 单步超时 = 目录耗时估计 × 该系数
	StepTimeoutFactor float64
	// MinStepTimeout 单步超时下限
	MinStepTimeout time.Duration
	// PlanTimeout 整计划超时; 0 表示按计划耗时估计 × StepTimeoutFactor 推导
	PlanTimeout time.Duration
	// MinPlanTimeout 推导计划超时的下限
	MinPlanTimeout time.Duration
	// EventBuffer ExecuteStream 事件通道缓冲
	EventBuffer int
}

func (o *ExecutorOptions) applyDefaults() {
	if o.StepTimeoutFactor <= 0 {
		o.StepTimeoutFactor = 3
	}
	if o.MinStepTimeout <= 0 {
		o.MinStepTimeout = 10 * time.Second
	}
	if o.MinPlanTimeout <= 0 {
		o.MinPlanTimeout = 60 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 16
	}
}

// Executor 按 ExecutionPlan 驱动协作者执行。
//
// 执行语义:
//   - 严格按计划顺序调用, 并行组在首个成员位置整组并发派发,
//     等待全组结束后再推进, 后续成员位置跳过;
//   - 步骤失败(校验或执行)不中断计划, 记录后继续;
//   - 计划超时或 context 取消时剩余步骤记为 skipped, 以 error 终态收尾;
//   - 任一非跳过步骤失败时在追踪上标记降级输出, 不改变剩余步骤序列。
type Executor struct {
	catalog  *planning.Catalog
	registry *Registry
	opts     ExecutorOptions
	logger   *zap.Logger
}

// NewExecutor 构造执行器。
func NewExecutor(catalog *planning.Catalog, registry *Registry, opts ExecutorOptions, logger *zap.Logger) (*Executor, error) {
	if catalog == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "executor requires a catalogue")
	}
	if registry == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "executor requires a step registry")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()
	return &Executor{
		catalog:  catalog,
		registry: registry,
		opts:     opts,
		logger:   logger.With(zap.String("component", "executor")),
	}, nil
}

// Execute 执行计划全部步骤, 返回追踪。context 上挂有进度回调时同步发射
// 进度事件。返回 error 仅代表计划级中止(装配错误/超时/取消), 单步失败
// 通过追踪体现。
func (e *Executor) Execute(ctx context.Context, plan *planning.ExecutionPlan, state *State) (*ExecutionTrace, error) {
	if plan == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "execution plan is nil")
	}
	if state == nil {
		state = NewState(nil)
	}
	if err := e.registry.EnsureBound(plan.Steps); err != nil {
		return nil, err
	}

	runID, ok := ctxkeys.RunID(ctx)
	if !ok {
		runID = generateRunID()
		ctx = ctxkeys.WithRunID(ctx, runID)
	}
	logger := e.logger.With(zap.String("run_id", runID))

	started := time.Now()
	trace := &ExecutionTrace{
		ExecutionID:      runID,
		Intent:           plan.Intent,
		OrderingDegraded: plan.OrderingDegraded,
		StartedAt:        started,
	}

	planCtx, cancel := context.WithTimeout(ctx, e.planTimeout(plan))
	defer cancel()

	logger.Info("开始执行计划",
		zap.String("intent", plan.Intent),
		zap.Int("steps", len(plan.Steps)),
		zap.Float64("estimated_seconds", plan.EstimatedSeconds),
		zap.String("priority", string(plan.Priority)))

	executed := make(map[string]bool, len(plan.Steps))
	var terminal error

	for i, stepID := range plan.Steps {
		if executed[stepID] {
			continue
		}
		if err := planCtx.Err(); err != nil {
			e.skipRemaining(planCtx, logger, trace, plan.Steps[i:], executed, err)
			terminal = e.terminalError(err)
			break
		}

		if group := plan.ParallelGroupFor(stepID); len(group) > 1 {
			e.executeGroup(planCtx, logger, group, state, trace)
			for _, member := range group {
				executed[member] = true
			}
			continue
		}

		result, delta := e.runStep(planCtx, logger, stepID, state, false)
		if result.Status == StepStatusCompleted {
			state.MergeDelta(delta)
		}
		trace.Append(result)
		executed[stepID] = true
	}

	trace.Duration = time.Since(started)
	if failed := trace.FailedSteps(); len(failed) > 0 {
		trace.FallbackApplied = true
		trace.FallbackOutput = plan.Fallback.Output
		logger.Warn("计划带失败步骤结束, 标记降级输出",
			zap.Strings("failed", failed),
			zap.String("fallback_output", plan.Fallback.Output))
	}

	if terminal != nil {
		emitProgress(planCtx, "", EventError, terminal.Error())
		logger.Error("计划执行中止",
			zap.Error(terminal),
			zap.Duration("duration", trace.Duration))
		return trace, terminal
	}

	emitProgress(planCtx, "", EventComplete, "plan finished")
	logger.Info("计划执行完成",
		zap.Int("steps", len(trace.Steps)),
		zap.Int("failed", len(trace.FailedSteps())),
		zap.Duration("duration", trace.Duration))
	return trace, nil
}

// ExecuteStream 执行计划并把进度事件写入返回的通道, 终态事件后关闭通道。
// 追踪与计划级错误通过 done 回调交付, done 可为 nil。
// 消费者必须持续读取直到通道关闭, 或取消 ctx 放弃消费。
func (e *Executor) ExecuteStream(ctx context.Context, plan *planning.ExecutionPlan, state *State, done func(*ExecutionTrace, error)) <-chan ProgressEvent {
	events := make(chan ProgressEvent, e.opts.EventBuffer)
	emitCtx := WithProgressEmitter(ctx, func(ev ProgressEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	go func() {
		defer close(events)
		trace, err := e.Execute(emitCtx, plan, state)
		if done != nil {
			done(trace, err)
		}
	}()
	return events
}

// runStep 校验并调用单个协作者。不触碰共享追踪, 不合并状态,
// 并行组成员与顺序路径共用。
func (e *Executor) runStep(ctx context.Context, logger *zap.Logger, stepID string, state *State, parallel bool) (StepResult, map[string]any) {
	step, _ := e.registry.Get(stepID)
	started := time.Now()
	result := StepResult{StepID: stepID, Parallel: parallel, StartedAt: started}

	emitProgress(ctx, stepID, EventRunning, "step started")

	if missing := state.MissingKeys(step.RequiredFields()); len(missing) > 0 {
		result.Status = StepStatusFailed
		result.Error = fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))
		result.Duration = time.Since(started)
		logger.Warn("步骤入参校验失败",
			zap.String("step", stepID),
			zap.Strings("missing", missing))
		emitProgress(ctx, stepID, EventFailed, result.Error)
		return result, nil
	}
	if v, ok := step.(InputValidator); ok {
		if err := v.ValidateInput(state); err != nil {
			result.Status = StepStatusFailed
			result.Error = err.Error()
			result.Duration = time.Since(started)
			logger.Warn("步骤入参校验失败",
				zap.String("step", stepID),
				zap.Error(err))
			emitProgress(ctx, stepID, EventFailed, result.Error)
			return result, nil
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout(stepID))
	defer cancel()

	delta, err := invokeStep(stepCtx, step, state)
	result.Duration = time.Since(started)
	if err != nil {
		result.Status = StepStatusFailed
		result.Error = err.Error()
		logger.Warn("步骤执行失败",
			zap.String("step", stepID),
			zap.Duration("duration", result.Duration),
			zap.Error(err))
		emitProgress(ctx, stepID, EventFailed, result.Error)
		return result, nil
	}

	result.Status = StepStatusCompleted
	result.Produced = sortedKeys(delta)
	logger.Debug("步骤完成",
		zap.String("step", stepID),
		zap.Duration("duration", result.Duration),
		zap.Strings("produced", result.Produced))
	emitProgress(ctx, stepID, EventCompleted, "step completed")
	return result, delta
}

// executeGroup 并发执行一个并行组。成员只读组前快照, 全部结束后按
// 组迭代顺序合并结果; 键冲突后写覆盖并告警, 冲突说明步骤设计有歧义。
func (e *Executor) executeGroup(ctx context.Context, logger *zap.Logger, group []string, state *State, trace *ExecutionTrace) {
	snapshot := state.Clone()

	type memberOutcome struct {
		stepID string
		result StepResult
		delta  map[string]any
	}
	outcomes := make(chan memberOutcome, len(group))
	var wg sync.WaitGroup

	logger.Debug("并行组开始", zap.Strings("members", group))

	for _, stepID := range group {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			result, delta := e.runStep(ctx, logger, id, snapshot, true)
			outcomes <- memberOutcome{stepID: id, result: result, delta: delta}
		}(stepID)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	byID := make(map[string]memberOutcome, len(group))
	for o := range outcomes {
		byID[o.stepID] = o
	}

	written := make(map[string]string, 8)
	for _, stepID := range group {
		o := byID[stepID]
		trace.Append(o.result)
		for _, key := range sortedKeys(o.delta) {
			if first, dup := written[key]; dup {
				logger.Warn("并行组键冲突, 后写覆盖",
					zap.String("key", key),
					zap.String("first_writer", first),
					zap.String("overwriting", stepID))
			}
			written[key] = stepID
		}
		state.MergeDelta(o.delta)
	}
}

// skipRemaining 把尚未执行的剩余步骤记为 skipped。
func (e *Executor) skipRemaining(ctx context.Context, logger *zap.Logger, trace *ExecutionTrace, remaining []string, executed map[string]bool, cause error) {
	now := time.Now()
	var skipped []string
	for _, stepID := range remaining {
		if executed[stepID] {
			continue
		}
		executed[stepID] = true
		skipped = append(skipped, stepID)
		trace.Append(StepResult{
			StepID:    stepID,
			Status:    StepStatusSkipped,
			Error:     cause.Error(),
			StartedAt: now,
		})
		emitProgress(ctx, stepID, EventSkipped, cause.Error())
	}
	logger.Warn("计划中止, 跳过剩余步骤",
		zap.Strings("skipped", skipped),
		zap.Error(cause))
}

func (e *Executor) terminalError(cause error) error {
	code := types.ErrPlanCancelled
	if errors.Is(cause, context.DeadlineExceeded) {
		code = types.ErrPlanTimeout
	}
	return types.NewError(code, "plan execution aborted").WithCause(cause)
}

func (e *Executor) stepTimeout(stepID string) time.Duration {
	d := time.Duration(e.catalog.EstimatedSeconds(stepID) * e.opts.StepTimeoutFactor * float64(time.Second))
	if d < e.opts.MinStepTimeout {
		d = e.opts.MinStepTimeout
	}
	return d
}

func (e *Executor) planTimeout(plan *planning.ExecutionPlan) time.Duration {
	if e.opts.PlanTimeout > 0 {
		return e.opts.PlanTimeout
	}
	d := time.Duration(plan.EstimatedSeconds * e.opts.StepTimeoutFactor * float64(time.Second))
	if d < e.opts.MinPlanTimeout {
		d = e.opts.MinPlanTimeout
	}
	return d
}

func invokeStep(ctx context.Context, step Step, state *State) (delta map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			delta = nil
			err = types.NewError(types.ErrStepExecution, fmt.Sprintf("step panicked: %v", r))
		}
	}()
	return step.Execute(ctx, state)
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func generateRunID() string {
	return fmt.Sprintf("run_%d", time.Now().UnixNano())
}
