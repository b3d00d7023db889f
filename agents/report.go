package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// ReportAgent 汇总洞察、叙述与图表成最终报告。图表是软依赖,
// 计划里没排 chart 时报告直接省略该板块。
type ReportAgent struct {
	logger *zap.Logger
}

// NewReportAgent 创建报告协作者。
func NewReportAgent(logger *zap.Logger) *ReportAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportAgent{logger: logger.With(zap.String("agent", planning.StepReport))}
}

func (a *ReportAgent) ID() string { return planning.StepReport }

func (a *ReportAgent) RequiredFields() []string { return []string{KeyInsight, KeyNarrative} }

func (a *ReportAgent) ProducedFields() []string { return []string{KeyReport} }

func (a *ReportAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	query, _ := state.GetString(KeyQueryText)
	insight, _ := state.GetString(KeyInsight)
	narrative, _ := state.GetString(KeyNarrative)

	sections := []map[string]any{
		{"heading": "Overview", "body": insight},
		{"heading": "Narrative", "body": narrative},
	}
	if result := mapValue(state, KeySQLResult); result != nil {
		sections = append(sections, map[string]any{
			"heading": "Data",
			"body":    fmt.Sprintf("%d rows returned by the underlying query.", tableRowCount(result)),
		})
	}

	report := map[string]any{
		"id":           uuid.NewString(),
		"title":        reportTitle(query),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
		"sections":     sections,
	}
	if chart := mapValue(state, KeyChartConfig); chart != nil {
		report["chart"] = chart
	}

	a.logger.Info("report assembled", zap.Int("sections", len(sections)))
	return map[string]any{KeyReport: report}, nil
}

func reportTitle(query string) string {
	if strings.TrimSpace(query) == "" {
		return "Analysis Report"
	}
	return "Report: " + truncateRunes(query, 60)
}
