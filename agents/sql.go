package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/structured"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// generatedSQL 模型侧 SQL 生成载荷。
type generatedSQL struct {
	SQL         string `json:"sql"`
	Explanation string `json:"explanation"`
}

const sqlSchema = `{
  "type": "object",
  "properties": {
    "sql": {
      "type": "string",
      "description": "a single SQL SELECT statement answering the question"
    },
    "explanation": {
      "type": "string",
      "description": "one sentence describing what the statement computes"
    }
  },
  "required": ["sql"]
}`

// SQLAgentOptions SQL 生成调用参数。
type SQLAgentOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (o *SQLAgentOptions) applyDefaults() {
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.1
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

// SQLAgent 生成 SQL 并在内存数据集上执行聚合。模型只负责生成语句文本;
// 实际计算走确定性引擎, 模型不可用时语句由模板拼出。
type SQLAgent struct {
	output *structured.StructuredOutput[generatedSQL]
	opts   SQLAgentOptions
	logger *zap.Logger
}

// NewSQLAgent 创建 SQL 协作者。
func NewSQLAgent(provider llm.Provider, opts SQLAgentOptions, logger *zap.Logger) (*SQLAgent, error) {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &SQLAgent{
		opts:   opts,
		logger: logger.With(zap.String("agent", planning.StepSQL)),
	}
	if provider != nil {
		out, err := structured.NewStructuredOutput[generatedSQL](provider, sqlSchema, "sql")
		if err != nil {
			return nil, err
		}
		a.output = out.
			WithModel(opts.Model).
			WithTemperature(float32(opts.Temperature)).
			WithMaxTokens(opts.MaxTokens)
	}
	return a, nil
}

func (a *SQLAgent) ID() string { return planning.StepSQL }

func (a *SQLAgent) RequiredFields() []string { return []string{KeyQueryText} }

func (a *SQLAgent) ProducedFields() []string { return []string{KeySQLResult} }

func (a *SQLAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	start := time.Now()

	text, _ := state.GetString(KeyQueryText)
	entities := stringSlice(state, KeyQueryEntities)
	metrics := stringSlice(state, KeyQueryMetrics)
	timeRange, _ := state.GetString(KeyTimeRange)
	dataset := firstDataset(state)

	sqlText := a.generateSQL(ctx, text, entities, metrics, dataset)
	columns, rows := executeAggregation(dataset, metrics)

	result := map[string]any{
		"sql":         sqlText,
		"columns":     columns,
		"rows":        rows,
		"row_count":   len(rows),
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if timeRange != "" {
		result["time_range"] = timeRange
	}

	a.logger.Info("sql step executed",
		zap.Int("rows", len(rows)),
		zap.Bool("dataset_present", dataset != nil),
	)
	return map[string]any{KeySQLResult: result}, nil
}

// generateSQL 先问模型, 失败或缺 Provider 时退回模板语句。
func (a *SQLAgent) generateSQL(ctx context.Context, text string, entities, metrics []string, dataset map[string]any) string {
	if a.output == nil {
		return templateSQL(text, entities, metrics, dataset)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	generated, err := a.output.Generate(callCtx, a.buildPrompt(text, entities, metrics, dataset))
	if err != nil || strings.TrimSpace(generated.SQL) == "" {
		a.logger.Warn("sql generation degraded to template", zap.Error(err))
		return templateSQL(text, entities, metrics, dataset)
	}
	return strings.TrimSpace(generated.SQL)
}

func (a *SQLAgent) buildPrompt(text string, entities, metrics []string, dataset map[string]any) string {
	var b strings.Builder
	b.WriteString("Generate a single SQL SELECT statement answering the question.\n\n")
	fmt.Fprintf(&b, "Question: %s\n", text)
	if dataset != nil {
		fmt.Fprintf(&b, "Table: %s(%s)\n", datasetName(dataset), strings.Join(columnsOf(dataset), ", "))
	}
	if len(entities) > 0 {
		fmt.Fprintf(&b, "Entities: %s\n", strings.Join(entities, ", "))
	}
	if len(metrics) > 0 {
		fmt.Fprintf(&b, "Metrics: %s\n", strings.Join(metrics, ", "))
	}
	return b.String()
}

// templateSQL 无模型时的确定性语句。
func templateSQL(text string, entities, metrics []string, dataset map[string]any) string {
	table := datasetName(dataset)
	if table == "" && len(entities) > 0 {
		table = entities[0]
	}
	if table == "" {
		table = "data"
	}

	selectList := "*"
	if len(metrics) > 0 {
		parts := make([]string, 0, len(metrics))
		for _, m := range metrics {
			if agg := aggregateFunc(m); agg != "" {
				parts = append(parts, fmt.Sprintf("%s AS %s_value", agg, m))
			}
		}
		if len(parts) > 0 {
			selectList = strings.Join(parts, ", ")
		}
	}
	return fmt.Sprintf("SELECT %s FROM %s", selectList, table)
}

func datasetName(dataset map[string]any) string {
	if dataset == nil {
		return ""
	}
	return stringField(dataset, "name")
}

// aggregateFunc 统计词对应的 SQL 聚合函数, 未知词返回空。
func aggregateFunc(metric string) string {
	switch metric {
	case "count", "total":
		return "COUNT(*)"
	case "sum":
		return "SUM(value)"
	case "average", "mean", "avg":
		return "AVG(value)"
	case "maximum", "max":
		return "MAX(value)"
	case "minimum", "min":
		return "MIN(value)"
	}
	return ""
}

// executeAggregation 在数据集行上执行请求的聚合; 没有聚合词时返回预览行。
func executeAggregation(dataset map[string]any, metrics []string) ([]string, []map[string]any) {
	if dataset == nil {
		return []string{}, []map[string]any{}
	}
	rows := rowsOf(dataset)
	columns := columnsOf(dataset)
	if columns == nil {
		columns = deriveColumns(rows)
	}

	aggregates := requestedAggregates(metrics)
	if len(aggregates) == 0 {
		preview := rows
		if len(preview) > 20 {
			preview = preview[:20]
		}
		return columns, preview
	}

	numericCol := firstNumericColumn(rows, columns)
	out := make([]map[string]any, 0, len(aggregates))
	for _, agg := range aggregates {
		value, ok := computeAggregate(agg, rows, numericCol)
		if !ok {
			continue
		}
		out = append(out, map[string]any{"metric": agg, "value": value})
	}
	return []string{"metric", "value"}, out
}

// requestedAggregates 保序去重地归一化聚合词。
func requestedAggregates(metrics []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range metrics {
		normalized := normalizeAggregate(m)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}

func normalizeAggregate(metric string) string {
	switch metric {
	case "count", "total":
		return "count"
	case "sum":
		return "sum"
	case "average", "mean", "avg":
		return "average"
	case "maximum", "max":
		return "max"
	case "minimum", "min":
		return "min"
	}
	return ""
}

func computeAggregate(agg string, rows []map[string]any, numericCol string) (float64, bool) {
	if agg == "count" {
		return float64(len(rows)), true
	}
	if numericCol == "" {
		return 0, false
	}

	var (
		sum   float64
		count int
		max   float64
		min   float64
	)
	for _, row := range rows {
		v, ok := numericValue(row[numericCol])
		if !ok {
			continue
		}
		if count == 0 {
			max, min = v, v
		} else {
			if v > max {
				max = v
			}
			if v < min {
				min = v
			}
		}
		sum += v
		count++
	}
	if count == 0 {
		return 0, false
	}

	switch agg {
	case "sum":
		return sum, true
	case "average":
		return sum / float64(count), true
	case "max":
		return max, true
	case "min":
		return min, true
	}
	return 0, false
}
