package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlanner(t *testing.T, catalog *Catalog) *Planner {
	t.Helper()
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	p, err := NewPlanner(catalog, nil)
	require.NoError(t, err)
	return p
}

func analysisFixture(intent string, complexity float64) *QueryAnalysis {
	return &QueryAnalysis{
		Query:           "fixture",
		PrimaryIntent:   intent,
		ComplexityScore: complexity,
		Source:          SourceParsed,
	}
}

// 简单结构化查询: 无文件上下文、低复杂度。
// sql 对 retrieval 的依赖不在步骤集合内, 必须被忽略。
func TestPlanner_SimpleSQLQuery(t *testing.T) {
	p := newTestPlanner(t, nil)

	plan := p.CreateExecutionPlan(analysisFixture(IntentSQLQuery, 0.4), false)

	assert.Equal(t, []string{StepQuery, StepSQL}, plan.Steps)
	assert.Equal(t, 20.0, plan.EstimatedSeconds)
	assert.Empty(t, plan.ParallelGroups)
	assert.Equal(t, PriorityMedium, plan.Priority)
	assert.False(t, plan.RequiresHumanReview)
	assert.False(t, plan.OrderingDegraded)
	assert.Equal(t, []string{StepSQL}, plan.Fallback.Steps)
	assert.Equal(t, "direct_answer", plan.Fallback.Output)
}

// 复杂报告查询: 文件上下文 + 高复杂度。
// 质量控制步骤追加、data/cleaner 前置、时间放大、sql/chart 并行。
func TestPlanner_ComplexReportWithFile(t *testing.T) {
	p := newTestPlanner(t, nil)

	plan := p.CreateExecutionPlan(analysisFixture(IntentReportGeneration, 0.75), true)

	assert.Equal(t, []string{
		StepData, StepCleaner,
		StepQuery, StepRetrieval, StepSQL,
		StepInsight, StepChart, StepNarrative, StepReport,
		StepCritique, StepDebate,
	}, plan.Steps)
	assert.Equal(t, 180.0, plan.EstimatedSeconds)
	assert.Equal(t, PriorityHigh, plan.Priority)
	assert.False(t, plan.RequiresHumanReview)
	assert.False(t, plan.OrderingDegraded)
	assert.Equal(t, [][]string{{StepSQL, StepChart}}, plan.ParallelGroups)
	assert.Equal(t, []string{StepSQL, StepChart}, plan.ParallelGroupFor(StepChart))
	assert.Nil(t, plan.ParallelGroupFor(StepReport))
}

func TestPlanner_UnknownIntentUsesDefault(t *testing.T) {
	p := newTestPlanner(t, nil)

	plan := p.CreateExecutionPlan(analysisFixture("mystery", 0.3), false)

	assert.Equal(t, DefaultIntent, plan.Intent)
	assert.Equal(t, []string{StepQuery, StepRetrieval, StepSQL, StepInsight, StepNarrative}, plan.Steps)
	assert.Equal(t, 60.0, plan.EstimatedSeconds)
	assert.Equal(t, "basic_summary", plan.Fallback.Output)
}

// 阈值是严格大于: 正好落在阈值上不触发。
func TestPlanner_ThresholdBoundaries(t *testing.T) {
	p := newTestPlanner(t, nil)

	tests := []struct {
		name        string
		complexity  float64
		wantQuality bool
		wantReview  bool
	}{
		{name: "below all", complexity: 0.5},
		{name: "at quality threshold", complexity: 0.7},
		{name: "above quality threshold", complexity: 0.71, wantQuality: true},
		{name: "at review threshold", complexity: 0.8, wantQuality: true},
		{name: "above review threshold", complexity: 0.81, wantQuality: true, wantReview: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := p.CreateExecutionPlan(analysisFixture(IntentSQLQuery, tt.complexity), false)

			assert.Equal(t, tt.wantQuality, plan.HasStep(StepCritique))
			assert.Equal(t, tt.wantQuality, plan.HasStep(StepDebate))
			if tt.wantQuality {
				assert.Equal(t, 30.0, plan.EstimatedSeconds)
				assert.Equal(t, PriorityHigh, plan.Priority)
			} else {
				assert.Equal(t, 20.0, plan.EstimatedSeconds)
				assert.Equal(t, PriorityMedium, plan.Priority)
			}
			assert.Equal(t, tt.wantReview, plan.RequiresHumanReview)
		})
	}
}

// 并行组需要同时满足: 复杂度 > 0.5、步骤数 > 3、sql 与 chart 均在计划内。
func TestPlanner_ParallelGroupConditions(t *testing.T) {
	p := newTestPlanner(t, nil)

	// 可视化基础计划只有 3 步, 不触发
	plan := p.CreateExecutionPlan(analysisFixture(IntentVisualization, 0.6), false)
	assert.Empty(t, plan.ParallelGroups)

	// 文件上下文把步骤数推过 3, 触发
	plan = p.CreateExecutionPlan(analysisFixture(IntentVisualization, 0.6), true)
	assert.Equal(t, []string{StepData, StepCleaner, StepQuery, StepSQL, StepChart}, plan.Steps)
	assert.Equal(t, [][]string{{StepSQL, StepChart}}, plan.ParallelGroups)

	// 复杂度不够, 不触发
	plan = p.CreateExecutionPlan(analysisFixture(IntentVisualization, 0.5), true)
	assert.Empty(t, plan.ParallelGroups)

	// 无 chart 的计划不触发
	plan = p.CreateExecutionPlan(analysisFixture(IntentDataExploration, 0.6), true)
	assert.Empty(t, plan.ParallelGroups)
}

// 排序对集合外依赖宽容: 步骤的依赖不在集合内时直接视为满足。
func TestPlanner_OrderingIgnoresAbsentDependencies(t *testing.T) {
	p := newTestPlanner(t, nil)

	// insight 依赖 sql, sql 依赖 query+retrieval; 探索计划无 chart
	plan := p.CreateExecutionPlan(analysisFixture(IntentDataExploration, 0.2), false)
	assert.Equal(t, []string{StepQuery, StepRetrieval, StepSQL, StepInsight}, plan.Steps)
	assert.False(t, plan.OrderingDegraded)
}

// 环依赖触发退化路径: 剩余步骤按原序追加, 计划仍是输入的排列。
func TestPlanner_CyclicDependenciesDegrade(t *testing.T) {
	spec := CatalogSpec{
		Steps: []StepDescriptor{
			{ID: "a", DependsOn: []string{"b"}, EstimatedSeconds: 1},
			{ID: "b", DependsOn: []string{"a"}, EstimatedSeconds: 1},
			{ID: "c", EstimatedSeconds: 1},
		},
		BasePlans: map[string]BasePlan{
			DefaultIntent: {Steps: []string{"a", "b", "c"}, EstimatedSeconds: 3},
		},
		Fallbacks: map[string]FallbackStrategy{
			DefaultIntent: {Steps: []string{"c"}, Output: "partial"},
		},
	}
	catalog, err := NewCatalog(spec)
	require.NoError(t, err)
	p := newTestPlanner(t, catalog)

	plan := p.CreateExecutionPlan(analysisFixture(DefaultIntent, 0.2), false)

	assert.True(t, plan.OrderingDegraded)
	// c 无依赖先放置, a/b 构成环按原序追加
	assert.Equal(t, []string{"c", "a", "b"}, plan.Steps)
}

func TestPlanner_Deterministic(t *testing.T) {
	p := newTestPlanner(t, nil)
	analysis := analysisFixture(IntentReportGeneration, 0.75)

	first := p.CreateExecutionPlan(analysis, true)
	second := p.CreateExecutionPlan(analysis, true)

	assert.Equal(t, first, second)
}

func TestAppendMissing(t *testing.T) {
	got := appendMissing([]string{StepCritique}, StepCritique, StepDebate)
	assert.Equal(t, []string{StepCritique, StepDebate}, got)

	got = appendMissing([]string{StepQuery}, StepCritique, StepDebate)
	assert.Equal(t, []string{StepQuery, StepCritique, StepDebate}, got)
}

func TestPrependSteps(t *testing.T) {
	// 已有的同名步骤先移除再前置, 不产生重复
	got := prependSteps([]string{StepData, StepQuery, StepCleaner}, StepData, StepCleaner)
	assert.Equal(t, []string{StepData, StepCleaner, StepQuery}, got)

	got = prependSteps([]string{StepQuery, StepSQL}, StepData, StepCleaner)
	assert.Equal(t, []string{StepData, StepCleaner, StepQuery, StepSQL}, got)
}
