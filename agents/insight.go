package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/internal/ctxkeys"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// TextAgentOptions 文本生成类协作者共享的调用参数。
type TextAgentOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (o *TextAgentOptions) applyDefaults(temperature float64) {
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.Temperature <= 0 {
		o.Temperature = temperature
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	if o.Timeout <= 0 {
		o.Timeout = 45 * time.Second
	}
}

const insightSystemPrompt = "You are a data analyst. Summarize the query result in two or three sentences, " +
	"cite the concrete numbers, and end with one actionable recommendation."

// InsightAgent 把查询结果提炼成业务洞察。没有 Provider 或调用失败时
// 退回确定性摘要, 摘要自带数字与建议句。
type InsightAgent struct {
	provider llm.Provider
	opts     TextAgentOptions
	logger   *zap.Logger
}

// NewInsightAgent 创建洞察协作者。
func NewInsightAgent(provider llm.Provider, opts TextAgentOptions, logger *zap.Logger) *InsightAgent {
	opts.applyDefaults(0.4)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightAgent{
		provider: provider,
		opts:     opts,
		logger:   logger.With(zap.String("agent", planning.StepInsight)),
	}
}

func (a *InsightAgent) ID() string { return planning.StepInsight }

func (a *InsightAgent) RequiredFields() []string { return []string{KeySQLResult} }

func (a *InsightAgent) ProducedFields() []string { return []string{KeyInsight} }

func (a *InsightAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	query, _ := state.GetString(KeyQueryText)
	result := mapValue(state, KeySQLResult)

	insight := a.generate(ctx, query, result)
	a.logger.Info("insight produced", zap.Int("runes", utf8.RuneCountInString(insight)))
	return map[string]any{KeyInsight: insight}, nil
}

func (a *InsightAgent) generate(ctx context.Context, query string, result map[string]any) string {
	if a.provider == nil {
		return fallbackInsight(query, result)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	req := &llm.ChatRequest{
		Model:       a.opts.Model,
		Temperature: float32(a.opts.Temperature),
		MaxTokens:   a.opts.MaxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: insightSystemPrompt},
			{Role: llm.RoleUser, Content: resultPrompt(query, result)},
		},
	}
	if traceID, ok := ctxkeys.TraceID(ctx); ok {
		req.TraceID = traceID
	}
	if sessionID, ok := ctxkeys.SessionID(ctx); ok {
		req.SessionID = sessionID
	}

	resp, err := a.provider.Completion(callCtx, req)
	if err != nil {
		a.logger.Warn("insight generation degraded to summary", zap.Error(err))
		return fallbackInsight(query, result)
	}
	content := strings.TrimSpace(resp.FirstContent())
	if content == "" {
		a.logger.Warn("insight generation returned empty content")
		return fallbackInsight(query, result)
	}
	return content
}

// resultPrompt 把查询结果压缩成模型可读的上下文。
func resultPrompt(query string, result map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", query)
	if sql := stringField(result, "sql"); sql != "" {
		fmt.Fprintf(&b, "SQL: %s\n", sql)
	}
	rows := rowsOf(result)
	fmt.Fprintf(&b, "Rows returned: %d\n", len(rows))
	if len(rows) > 8 {
		rows = rows[:8]
	}
	if len(rows) > 0 {
		if encoded, err := json.Marshal(rows); err == nil {
			fmt.Fprintf(&b, "Sample: %s\n", encoded)
		}
	}
	return b.String()
}

// fallbackInsight 无模型时的确定性摘要。
func fallbackInsight(query string, result map[string]any) string {
	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "The query %q returned %d rows.", query, tableRowCount(result))
	} else {
		fmt.Fprintf(&b, "The query returned %d rows.", tableRowCount(result))
	}
	if metric, value, ok := leadingFigure(result); ok {
		fmt.Fprintf(&b, " The leading figure is %s at %.2f.", metric, value)
	}
	b.WriteString(" Consider tracking these figures over the next period to confirm the direction.")
	return b.String()
}

// leadingFigure 取结果首行里最先出现的数值列。
func leadingFigure(result map[string]any) (string, float64, bool) {
	rows := rowsOf(result)
	if len(rows) == 0 {
		return "", 0, false
	}
	first := rows[0]
	if name := stringField(first, "metric"); name != "" {
		if v, ok := numericValue(first["value"]); ok {
			return name, v, true
		}
	}
	for _, col := range deriveColumns(rows[:1]) {
		if v, ok := numericValue(first[col]); ok {
			return col, v, true
		}
	}
	return "", 0, false
}
