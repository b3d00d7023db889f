package workflow

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/queryflow/internal/ctxkeys"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/types"
)

func testExecutor(t *testing.T, registry *Registry, opts ExecutorOptions) *Executor {
	t.Helper()
	e, err := NewExecutor(planning.DefaultCatalog(), registry, opts, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return e
}

func simplePlan(steps ...string) *planning.ExecutionPlan {
	return &planning.ExecutionPlan{
		Intent:           planning.IntentSQLQuery,
		Steps:            steps,
		EstimatedSeconds: 20,
		Priority:         planning.PriorityMedium,
		Fallback:         planning.FallbackStrategy{Steps: []string{planning.StepSQL}, Output: "direct_answer"},
	}
}

func TestExecutor_SequentialFlow(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"query_text": "monthly revenue"}, nil
		}).WithProduced("query_text"),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			text, _ := state.GetString("query_text")
			return map[string]any{"sql_result": "rows for " + text}, nil
		}).WithRequired("query_text").WithProduced("sql_result"),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	trace, err := e.Execute(context.Background(), simplePlan("query", "sql"), NewState(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if len(trace.Steps) != 2 {
		t.Fatalf("trace has %d steps", len(trace.Steps))
	}
	if trace.Steps[0].StepID != "query" || trace.Steps[1].StepID != "sql" {
		t.Fatalf("wrong order: %+v", trace.Steps)
	}
	if !trace.Clean() {
		t.Fatalf("expected clean trace: %+v", trace.Steps)
	}
	if trace.FallbackApplied {
		t.Fatal("no fallback expected")
	}
	if trace.ExecutionID == "" {
		t.Fatal("missing execution id")
	}
	if got := trace.Steps[1].Produced; len(got) != 1 || got[0] != "sql_result" {
		t.Fatalf("produced = %v", got)
	}
}

// 必需键缺失: 不调用协作者, 直接记失败, 计划继续。
func TestExecutor_MissingRequiredFields(t *testing.T) {
	var sqlInvoked atomic.Int32
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			sqlInvoked.Add(1)
			return nil, nil
		}).WithRequired("query_text", "query_entities"),
		NewFuncStep("insight", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"insight": "ok"}, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	trace, err := e.Execute(context.Background(), simplePlan("sql", "insight"), NewState(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if sqlInvoked.Load() != 0 {
		t.Fatal("collaborator must not be invoked on validation failure")
	}
	if trace.Steps[0].Status != StepStatusFailed {
		t.Fatalf("status = %s", trace.Steps[0].Status)
	}
	// 错误信息点名全部缺失键
	if msg := trace.Steps[0].Error; !strings.Contains(msg, "query_text") || !strings.Contains(msg, "query_entities") {
		t.Fatalf("error does not name missing fields: %s", msg)
	}
	if trace.Steps[1].Status != StepStatusCompleted {
		t.Fatal("plan must continue after validation failure")
	}
	if !trace.FallbackApplied || trace.FallbackOutput != "direct_answer" {
		t.Fatalf("fallback: applied=%v output=%s", trace.FallbackApplied, trace.FallbackOutput)
	}
}

func TestExecutor_StepFailureContinues(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, errors.New("parser exploded")
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"sql_result": "partial"}, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	state := NewState(nil)
	trace, err := e.Execute(context.Background(), simplePlan("query", "sql"), state)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if trace.Steps[0].Status != StepStatusFailed || !strings.Contains(trace.Steps[0].Error, "parser exploded") {
		t.Fatalf("step 0: %+v", trace.Steps[0])
	}
	if trace.Steps[1].Status != StepStatusCompleted {
		t.Fatal("plan must continue after step failure")
	}
	if !state.Has("sql_result") {
		t.Fatal("later step output missing")
	}
	if !trace.FallbackApplied {
		t.Fatal("failed step must mark fallback")
	}
}

func TestExecutor_PanicRecovered(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			panic("unexpected nil")
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	trace, err := e.Execute(context.Background(), simplePlan("query", "sql"), NewState(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if trace.Steps[0].Status != StepStatusFailed || !strings.Contains(trace.Steps[0].Error, "panicked") {
		t.Fatalf("panic not recorded: %+v", trace.Steps[0])
	}
	if trace.Steps[1].Status != StepStatusCompleted {
		t.Fatal("plan must continue after panic")
	}
}

type validatingStep struct {
	*FuncStep
	validate func(*State) error
}

func (s *validatingStep) ValidateInput(state *State) error { return s.validate(state) }

// 自定义校验在 RequiredFields 检查之外生效。
func TestExecutor_CustomValidation(t *testing.T) {
	var invoked atomic.Int32
	r := NewRegistry()
	r.MustRegister(&validatingStep{
		FuncStep: NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			invoked.Add(1)
			return nil, nil
		}),
		validate: func(state *State) error {
			return errors.New("query text is empty")
		},
	})
	e := testExecutor(t, r, ExecutorOptions{})

	trace, err := e.Execute(context.Background(), simplePlan("sql"), NewState(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if invoked.Load() != 0 {
		t.Fatal("collaborator must not run when custom validation fails")
	}
	if trace.Steps[0].Status != StepStatusFailed || !strings.Contains(trace.Steps[0].Error, "query text is empty") {
		t.Fatalf("validation failure not recorded: %+v", trace.Steps[0])
	}
}

func parallelPlan() *planning.ExecutionPlan {
	return &planning.ExecutionPlan{
		Intent:           planning.IntentVisualization,
		Steps:            []string{"query", "sql", "chart", "insight"},
		ParallelGroups:   [][]string{{"sql", "chart"}},
		EstimatedSeconds: 60,
		Priority:         planning.PriorityHigh,
		Fallback:         planning.FallbackStrategy{Steps: []string{"query", "sql"}, Output: "data_table"},
	}
}

// 并行组: 成员只读组前快照, 结果按组顺序合并, 后写覆盖。
func TestExecutor_ParallelGroupMerge(t *testing.T) {
	var chartSawSQLResult atomic.Bool
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"query_text": "sales"}, nil
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			// 直接写入自己的状态视图, 必须被丢弃
			state.Set("direct_write", true)
			return map[string]any{"sql_result": "rows", "shared": "from_sql"}, nil
		}).WithRequired("query_text"),
		NewFuncStep("chart", func(ctx context.Context, state *State) (map[string]any, error) {
			time.Sleep(30 * time.Millisecond)
			chartSawSQLResult.Store(state.Has("sql_result"))
			return map[string]any{"chart_config": "bar", "shared": "from_chart"}, nil
		}).WithRequired("query_text"),
		NewFuncStep("insight", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"insight": "done"}, nil
		}).WithRequired("sql_result", "chart_config"),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	state := NewState(nil)
	trace, err := e.Execute(context.Background(), parallelPlan(), state)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !trace.Clean() {
		t.Fatalf("expected clean trace: %+v", trace.Steps)
	}

	// 组成员看不到彼此的输出
	if chartSawSQLResult.Load() {
		t.Fatal("group member observed sibling output")
	}
	// 对快照的直接写入不进入共享状态
	if state.Has("direct_write") {
		t.Fatal("direct state write from group member leaked")
	}
	// 按组顺序合并: chart 在 sql 之后, 冲突键后写覆盖
	if v, _ := state.GetString("shared"); v != "from_chart" {
		t.Fatalf("shared = %q, want from_chart", v)
	}
	// 组后续步骤能看到全部组输出
	if got := trace.Find("insight"); got == nil || got.Status != StepStatusCompleted {
		t.Fatalf("insight = %+v", got)
	}

	// 追踪按组迭代顺序排列组成员, 并标记并行
	order := []string{"query", "sql", "chart", "insight"}
	for i, want := range order {
		if trace.Steps[i].StepID != want {
			t.Fatalf("trace order: %v", trace.Steps)
		}
	}
	if !trace.Steps[1].Parallel || !trace.Steps[2].Parallel {
		t.Fatal("group members must be marked parallel")
	}
	if trace.Steps[0].Parallel || trace.Steps[3].Parallel {
		t.Fatal("sequential steps must not be marked parallel")
	}
}

// 组内单成员失败: 其余成员正常合并, 计划继续, 下游校验自然失败。
func TestExecutor_ParallelMemberFailure(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"query_text": "sales"}, nil
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"sql_result": "rows"}, nil
		}).WithRequired("query_text"),
		NewFuncStep("chart", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, errors.New("render backend offline")
		}).WithRequired("query_text"),
		NewFuncStep("insight", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, nil
		}).WithRequired("sql_result", "chart_config"),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	state := NewState(nil)
	trace, err := e.Execute(context.Background(), parallelPlan(), state)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if got := trace.Find("sql"); got.Status != StepStatusCompleted {
		t.Fatalf("sql = %+v", got)
	}
	if !state.Has("sql_result") {
		t.Fatal("surviving member output missing")
	}
	if got := trace.Find("chart"); got.Status != StepStatusFailed {
		t.Fatalf("chart = %+v", got)
	}
	// insight 的必需键 chart_config 缺失
	if got := trace.Find("insight"); got.Status != StepStatusFailed || !strings.Contains(got.Error, "chart_config") {
		t.Fatalf("insight = %+v", got)
	}
	if !trace.FallbackApplied || trace.FallbackOutput != "data_table" {
		t.Fatalf("fallback: %v %s", trace.FallbackApplied, trace.FallbackOutput)
	}
}

func TestExecutor_PlanTimeout(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			select {
			case <-time.After(150 * time.Millisecond):
				return map[string]any{"query_text": "late"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{PlanTimeout: 40 * time.Millisecond})

	trace, err := e.Execute(context.Background(), simplePlan("query", "sql"), NewState(nil))
	if err == nil {
		t.Fatal("expected plan timeout error")
	}
	var typed *types.Error
	if !errors.As(err, &typed) || typed.Code != types.ErrPlanTimeout {
		t.Fatalf("error = %v", err)
	}

	if got := trace.Find("query"); got.Status != StepStatusFailed {
		t.Fatalf("query = %+v", got)
	}
	if got := trace.Find("sql"); got.Status != StepStatusSkipped {
		t.Fatalf("sql = %+v", got)
	}
}

// 单步超时: 目录无耗时估计的步骤吃到下限超时, 失败后计划继续。
func TestExecutor_StepTimeout(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("ghost", func(ctx context.Context, state *State) (map[string]any, error) {
			select {
			case <-time.After(150 * time.Millisecond):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{MinStepTimeout: 20 * time.Millisecond})

	trace, err := e.Execute(context.Background(), simplePlan("ghost", "query"), NewState(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := trace.Find("ghost"); got.Status != StepStatusFailed {
		t.Fatalf("ghost = %+v", got)
	}
	if got := trace.Find("query"); got.Status != StepStatusCompleted {
		t.Fatalf("query = %+v", got)
	}
}

func TestExecutor_ContextCancelled(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFuncStep("query", nil), NewFuncStep("sql", nil))
	e := testExecutor(t, r, ExecutorOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	trace, err := e.Execute(ctx, simplePlan("query", "sql"), NewState(nil))
	var typed *types.Error
	if !errors.As(err, &typed) || typed.Code != types.ErrPlanCancelled {
		t.Fatalf("error = %v", err)
	}
	if len(trace.SkippedSteps()) != 2 {
		t.Fatalf("skipped = %v", trace.SkippedSteps())
	}
	// 跳过不算失败, 不触发降级标记
	if trace.FallbackApplied {
		t.Fatal("skip-only trace must not mark fallback")
	}
}

func TestExecutor_UnboundStep(t *testing.T) {
	e := testExecutor(t, NewRegistry(), ExecutorOptions{})

	trace, err := e.Execute(context.Background(), simplePlan("query"), NewState(nil))
	if err == nil || trace != nil {
		t.Fatalf("expected unbound error, got trace=%v err=%v", trace, err)
	}
	var typed *types.Error
	if !errors.As(err, &typed) || typed.Code != types.ErrStepNotBound {
		t.Fatalf("error = %v", err)
	}
}

func TestExecutor_NilPlan(t *testing.T) {
	e := testExecutor(t, NewRegistry(), ExecutorOptions{})
	if _, err := e.Execute(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil plan")
	}
}

func TestExecutor_StreamEvents(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			return map[string]any{"query_text": "q"}, nil
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{})

	type outcome struct {
		trace *ExecutionTrace
		err   error
	}
	doneCh := make(chan outcome, 1)

	events := e.ExecuteStream(context.Background(), simplePlan("query", "sql"), NewState(nil),
		func(trace *ExecutionTrace, err error) {
			doneCh <- outcome{trace, err}
		})

	var got []ProgressEvent
	for ev := range events {
		if ev.Timestamp.IsZero() {
			t.Fatal("event missing timestamp")
		}
		got = append(got, ev)
	}

	want := []struct {
		stepID string
		status EventStatus
	}{
		{"query", EventRunning},
		{"query", EventCompleted},
		{"sql", EventRunning},
		{"sql", EventCompleted},
		{"", EventComplete},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	for i, w := range want {
		if got[i].StepID != w.stepID || got[i].Status != w.status {
			t.Fatalf("event %d = %+v, want %+v", i, got[i], w)
		}
	}

	final := <-doneCh
	if final.err != nil || final.trace == nil || !final.trace.Clean() {
		t.Fatalf("done: %+v", final)
	}
}

// 计划超时的事件序列以 error 终态收尾, 跳过步骤也有事件。
func TestExecutor_StreamPlanTimeout(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(
		NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
			select {
			case <-time.After(150 * time.Millisecond):
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
		NewFuncStep("sql", func(ctx context.Context, state *State) (map[string]any, error) {
			return nil, nil
		}),
	)
	e := testExecutor(t, r, ExecutorOptions{PlanTimeout: 40 * time.Millisecond})

	doneCh := make(chan error, 1)
	events := e.ExecuteStream(context.Background(), simplePlan("query", "sql"), NewState(nil),
		func(_ *ExecutionTrace, err error) { doneCh <- err })

	var statuses []EventStatus
	for ev := range events {
		statuses = append(statuses, ev.Status)
	}

	wantStatuses := []EventStatus{EventRunning, EventFailed, EventSkipped, EventError}
	if len(statuses) != len(wantStatuses) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i, w := range wantStatuses {
		if statuses[i] != w {
			t.Fatalf("statuses = %v, want %v", statuses, wantStatuses)
		}
	}
	if err := <-doneCh; err == nil {
		t.Fatal("expected plan timeout error via done callback")
	}
}

func TestExecutor_TracePropagation(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewFuncStep("query", func(ctx context.Context, state *State) (map[string]any, error) {
		return nil, nil
	}))
	e := testExecutor(t, r, ExecutorOptions{})

	plan := simplePlan("query")
	plan.OrderingDegraded = true
	ctx := ctxkeys.WithRunID(context.Background(), "run_fixture")

	trace, err := e.Execute(ctx, plan, NewState(nil))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !trace.OrderingDegraded {
		t.Fatal("ordering degradation must reach the trace")
	}
	if trace.ExecutionID != "run_fixture" {
		t.Fatalf("execution id = %q", trace.ExecutionID)
	}
	if trace.Intent != planning.IntentSQLQuery {
		t.Fatalf("intent = %q", trace.Intent)
	}
}
