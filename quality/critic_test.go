package quality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/queryflow/planning"
)

func TestScoreTable(t *testing.T) {
	cases := []struct {
		issues    int
		strengths int
		want      float64
	}{
		{issues: 0, strengths: 1, want: 0.95},
		{issues: 0, strengths: 5, want: 0.95},
		{issues: 1, strengths: 2, want: 0.85},
		{issues: 1, strengths: 4, want: 0.85},
		{issues: 0, strengths: 0, want: 0.80},
		{issues: 1, strengths: 1, want: 0.70},
		{issues: 2, strengths: 1, want: 0.70},
		{issues: 2, strengths: 2, want: 0.70},
		{issues: 1, strengths: 0, want: 0.65},
		{issues: 2, strengths: 0, want: 0.50},
		{issues: 3, strengths: 4, want: 0.35},
		{issues: 4, strengths: 0, want: 0.30},
		{issues: 10, strengths: 0, want: 0.30},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("i%d_s%d", tc.issues, tc.strengths), func(t *testing.T) {
			assert.InDelta(t, tc.want, Score(tc.issues, tc.strengths), 1e-9)
		})
	}
}

// 一个问题、零个优点: 0.65 分, 不放行, 置信 low。
func TestScore_SingleIssueNoStrengths(t *testing.T) {
	score := Score(1, 0)

	assert.InDelta(t, 0.65, score, 1e-12)
	assert.False(t, ApprovedFor(score, 1))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(score))
}

// 零问题、一个优点: 0.95 分, 放行, 置信 high。
func TestScore_NoIssuesOneStrength(t *testing.T) {
	score := Score(0, 1)

	assert.InDelta(t, 0.95, score, 1e-12)
	assert.True(t, ApprovedFor(score, 0))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(score))
}

func TestApprovalBoundary(t *testing.T) {
	assert.True(t, ApprovedFor(0.75, 0))
	assert.True(t, ApprovedFor(0.75, 1))
	assert.False(t, ApprovedFor(0.75, 2))
	assert.False(t, ApprovedFor(0.74, 0))
}

func TestConfidenceBuckets(t *testing.T) {
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(0.95))
	assert.Equal(t, ConfidenceHigh, ConfidenceFor(0.85))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(0.84))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(0.70))
	assert.Equal(t, ConfidenceMedium, ConfidenceFor(0.66))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(0.65))
	assert.Equal(t, ConfidenceLow, ConfidenceFor(0.30))
}

func TestCategoryForStep(t *testing.T) {
	assert.Equal(t, CategoryStructuredQuery, CategoryForStep(planning.StepSQL))
	assert.Equal(t, CategoryInsight, CategoryForStep(planning.StepInsight))
	assert.Equal(t, CategoryInsight, CategoryForStep(planning.StepNarrative))
	assert.Equal(t, CategoryChart, CategoryForStep(planning.StepChart))
	assert.Equal(t, CategoryGeneric, CategoryForStep(planning.StepQuery))
	assert.Equal(t, CategoryGeneric, CategoryForStep("anything"))
}

func TestCritic_StructuredQueryHappy(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "sql",
		Category: CategoryStructuredQuery,
		Query:    "How many orders came from Berlin?",
		Payload: map[string]any{
			"sql_result": map[string]any{
				"sql":         "SELECT COUNT(*) FROM orders WHERE city = 'Berlin'",
				"rows":        []any{map[string]any{"count": 42}},
				"row_count":   1,
				"duration_ms": 120.0,
			},
		},
	})

	assert.Empty(t, a.IssuesFound)
	require.Len(t, a.Strengths, 2)
	assert.Len(t, a.ChecksPerformed, 4)
	assert.InDelta(t, 0.95, a.Score, 1e-9)
	assert.True(t, a.Approved)
	assert.Equal(t, ConfidenceHigh, a.Confidence)
}

// 执行错误、零行结果、查询词零覆盖同时命中。
func TestCritic_StructuredQueryProblems(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "sql",
		Category: CategoryStructuredQuery,
		Query:    "total revenue for march",
		Payload: map[string]any{
			"sql_result": map[string]any{
				"sql":   "SELEC",
				"error": "syntax error near FROM",
				"rows":  []any{},
			},
		},
	})

	require.Len(t, a.IssuesFound, 3)
	assert.Empty(t, a.Strengths)
	assert.Len(t, a.Recommendations, 3)
	assert.InDelta(t, 0.35, a.Score, 1e-9)
	assert.False(t, a.Approved)
	assert.Equal(t, ConfidenceLow, a.Confidence)
}

func TestCritic_InsightHappy(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "insight",
		Category: CategoryInsight,
		Payload: map[string]any{
			"insight": "Revenue grew 18% quarter over quarter; we recommend doubling the ad budget for Q3.",
		},
	})

	assert.Empty(t, a.IssuesFound)
	require.Len(t, a.Strengths, 2)
	assert.InDelta(t, 0.95, a.Score, 1e-9)
	assert.True(t, a.Approved)
}

func TestCritic_InsightShortWithoutEvidence(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "insight",
		Category: CategoryInsight,
		Payload:  map[string]any{"insight": "Sales went up."},
	})

	require.Len(t, a.IssuesFound, 2)
	assert.Empty(t, a.Strengths)
	assert.InDelta(t, 0.50, a.Score, 1e-9)
	assert.False(t, a.Approved)
}

// 文本嵌套在映射里时同样可评审。
func TestCritic_InsightNestedText(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "narrative",
		Category: CategoryInsight,
		Payload: map[string]any{
			"narrative": map[string]any{
				"text": "Churn fell from 4.2% to 3.1% after onboarding changes; consider rolling them out to all regions.",
			},
		},
	})

	assert.Empty(t, a.IssuesFound)
	assert.True(t, a.Approved)
}

func TestCritic_ChartComplete(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "chart",
		Category: CategoryChart,
		Payload: map[string]any{
			"chart_config": map[string]any{
				"type":   "bar",
				"data":   []any{1.0, 2.0, 3.0},
				"x_axis": "month",
				"y_axis": "revenue",
			},
		},
	})

	assert.Empty(t, a.IssuesFound)
	require.Len(t, a.Strengths, 2)
	assert.InDelta(t, 0.95, a.Score, 1e-9)
	assert.True(t, a.Approved)
}

func TestCritic_ChartNonStandardType(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "chart",
		Category: CategoryChart,
		Payload: map[string]any{
			"chart_config": map[string]any{"type": "hologram"},
		},
	})

	require.Len(t, a.IssuesFound, 2)
	assert.Contains(t, a.IssuesFound[0], "hologram")
	assert.Contains(t, a.IssuesFound[1], "data")
	assert.InDelta(t, 0.50, a.Score, 1e-9)
	assert.False(t, a.Approved)
}

// 饼图不要求坐标轴; 未嵌套的配置直接作为载荷也可评审。
func TestCritic_ChartPieWithoutAxes(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "chart",
		Category: CategoryChart,
		Payload: map[string]any{
			"type": "pie",
			"data": []any{map[string]any{"label": "north", "value": 10.0}},
		},
	})

	assert.Empty(t, a.IssuesFound)
	require.Len(t, a.Strengths, 2)
	assert.True(t, a.Approved)
}

func TestCritic_GenericEmptyPayload(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{Target: "query", Category: CategoryGeneric})

	require.Len(t, a.IssuesFound, 1)
	assert.InDelta(t, 0.65, a.Score, 1e-9)
	assert.False(t, a.Approved)
	assert.Equal(t, ConfidenceLow, a.Confidence)
}

func TestCritic_GenericNonEmptyPayload(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "data",
		Category: CategoryGeneric,
		Payload:  map[string]any{"rows_loaded": 42},
	})

	assert.Empty(t, a.IssuesFound)
	assert.InDelta(t, 0.95, a.Score, 1e-9)
	assert.True(t, a.Approved)
}

func TestCritic_UnknownCategoryFallsToGeneric(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)

	a := c.Assess(AssessmentInput{
		Target:   "report",
		Category: Category("mystery"),
		Payload:  map[string]any{"report": map[string]any{"title": "Q3"}},
	})

	assert.Equal(t, CategoryGeneric, a.Category)
	assert.True(t, a.Approved)
}

func TestCritic_Deterministic(t *testing.T) {
	c := NewCritic(CriticOptions{}, nil)
	input := AssessmentInput{
		Target:   "sql",
		Category: CategoryStructuredQuery,
		Query:    "average order value by region",
		Payload: map[string]any{
			"sql_result": map[string]any{
				"sql":       "SELECT region, AVG(total) FROM orders GROUP BY region",
				"row_count": 4,
			},
		},
	}

	first := c.Assess(input)
	second := c.Assess(input)

	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Approved, second.Approved)
	assert.Equal(t, first.Confidence, second.Confidence)
	assert.Equal(t, first.ChecksPerformed, second.ChecksPerformed)
	assert.Equal(t, first.IssuesFound, second.IssuesFound)
	assert.Equal(t, first.Strengths, second.Strengths)
	assert.Equal(t, first.Recommendations, second.Recommendations)
}
