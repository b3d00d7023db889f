package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// chartTypeKeywords 查询措辞到图表类型的映射, 命中即止。
var chartTypeKeywords = []struct {
	chartType string
	keywords  []string
}{
	{"line", []string{"trend", "over time", "timeline", "趋势", "折线", "走势"}},
	{"pie", []string{"share", "proportion", "percentage", "pie", "占比", "份额", "饼图"}},
	{"scatter", []string{"correlat", "scatter", "relationship", "相关", "散点"}},
}

// ChartAgent 根据查询语义和已有数据产出图表配置。SQL 结果只是软依赖:
// 与 sql 并行调度时读不到兄弟写入, 此时序列为空但配置结构仍完整。
type ChartAgent struct {
	logger *zap.Logger
}

// NewChartAgent 创建图表协作者。
func NewChartAgent(logger *zap.Logger) *ChartAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChartAgent{logger: logger.With(zap.String("agent", planning.StepChart))}
}

func (a *ChartAgent) ID() string { return planning.StepChart }

func (a *ChartAgent) RequiredFields() []string { return []string{KeyQueryEntities} }

func (a *ChartAgent) ProducedFields() []string { return []string{KeyChartConfig} }

func (a *ChartAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	query, _ := state.GetString(KeyQueryText)
	entities := stringSlice(state, KeyQueryEntities)
	metrics := stringSlice(state, KeyQueryMetrics)

	rows := chartRows(state)
	series := buildSeries(rows)
	xAxis, yAxis := pickAxes(entities, metrics, rows)
	chartType := pickChartType(query)

	cfg := map[string]any{
		"type":   chartType,
		"title":  chartTitle(query),
		"data":   series,
		"x_axis": xAxis,
		"y_axis": yAxis,
	}

	a.logger.Debug("chart config built",
		zap.String("type", chartType),
		zap.Int("points", len(series)),
	)
	return map[string]any{KeyChartConfig: cfg}, nil
}

// chartRows 优先用 SQL 结果行, 其次退回数据集行。
func chartRows(state *workflow.State) []map[string]any {
	if result := mapValue(state, KeySQLResult); result != nil {
		if rows := rowsOf(result); len(rows) > 0 {
			return rows
		}
	}
	if dataset := firstDataset(state); dataset != nil {
		return rowsOf(dataset)
	}
	return nil
}

// buildSeries 把行数据投影成 label/value 序列, 上限 50 个点。
func buildSeries(rows []map[string]any) []any {
	series := make([]any, 0, len(rows))
	if len(rows) == 0 {
		return series
	}
	columns := deriveColumns(rows[:1])
	labelCol := pickLabelColumn(rows[0], columns)
	valueCol := firstNumericColumn(rows, columns)
	if valueCol == "" {
		return series
	}
	for i, row := range rows {
		if i == 50 {
			break
		}
		value, ok := numericValue(row[valueCol])
		if !ok {
			continue
		}
		label := ""
		if labelCol != "" {
			label = stringField(row, labelCol)
		}
		if label == "" {
			label = fmt.Sprintf("row %d", i+1)
		}
		series = append(series, map[string]any{"label": label, "value": value})
	}
	return series
}

func pickLabelColumn(first map[string]any, columns []string) string {
	for _, col := range columns {
		if s, ok := first[col].(string); ok && s != "" {
			return col
		}
	}
	return ""
}

func pickAxes(entities, metrics []string, rows []map[string]any) (string, string) {
	xAxis := "category"
	if len(entities) > 0 {
		xAxis = entities[0]
	} else if len(rows) > 0 {
		if col := pickLabelColumn(rows[0], deriveColumns(rows[:1])); col != "" {
			xAxis = col
		}
	}

	yAxis := "value"
	if len(metrics) > 0 {
		yAxis = metrics[0]
	} else if len(rows) > 0 {
		if col := firstNumericColumn(rows, deriveColumns(rows[:1])); col != "" {
			yAxis = col
		}
	}
	return xAxis, yAxis
}

func pickChartType(query string) string {
	lowered := strings.ToLower(query)
	for _, entry := range chartTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lowered, kw) {
				return entry.chartType
			}
		}
	}
	return "bar"
}

func chartTitle(query string) string {
	if strings.TrimSpace(query) == "" {
		return "Query result"
	}
	return truncateRunes(query, 80)
}
