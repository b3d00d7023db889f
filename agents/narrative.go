package agents

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/internal/ctxkeys"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

const narrativeSystemPrompt = "You are a business writer. Expand the analysis into a short narrative for stakeholders: " +
	"open with the headline finding, support it with the numbers provided, and close with the suggested next step."

// NarrativeAgent 把洞察扩写成面向读者的叙述文本。
type NarrativeAgent struct {
	provider llm.Provider
	opts     TextAgentOptions
	logger   *zap.Logger
}

// NewNarrativeAgent 创建叙述协作者。
func NewNarrativeAgent(provider llm.Provider, opts TextAgentOptions, logger *zap.Logger) *NarrativeAgent {
	opts.applyDefaults(0.5)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NarrativeAgent{
		provider: provider,
		opts:     opts,
		logger:   logger.With(zap.String("agent", planning.StepNarrative)),
	}
}

func (a *NarrativeAgent) ID() string { return planning.StepNarrative }

func (a *NarrativeAgent) RequiredFields() []string { return []string{KeyInsight} }

func (a *NarrativeAgent) ProducedFields() []string { return []string{KeyNarrative} }

func (a *NarrativeAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	query, _ := state.GetString(KeyQueryText)
	insight, _ := state.GetString(KeyInsight)
	result := mapValue(state, KeySQLResult)

	narrative := a.generate(ctx, query, insight, result)
	a.logger.Info("narrative produced", zap.Int("runes", utf8.RuneCountInString(narrative)))
	return map[string]any{KeyNarrative: narrative}, nil
}

func (a *NarrativeAgent) generate(ctx context.Context, query, insight string, result map[string]any) string {
	if a.provider == nil {
		return fallbackNarrative(query, insight, result)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n", query)
	fmt.Fprintf(&prompt, "Analysis: %s\n", insight)
	fmt.Fprintf(&prompt, "Rows available: %d\n", tableRowCount(result))

	req := &llm.ChatRequest{
		Model:       a.opts.Model,
		Temperature: float32(a.opts.Temperature),
		MaxTokens:   a.opts.MaxTokens,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: narrativeSystemPrompt},
			{Role: llm.RoleUser, Content: prompt.String()},
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
		a.logger.Warn("narrative generation degraded to composition", zap.Error(err))
		return fallbackNarrative(query, insight, result)
	}
	content := strings.TrimSpace(resp.FirstContent())
	if content == "" {
		a.logger.Warn("narrative generation returned empty content")
		return fallbackNarrative(query, insight, result)
	}
	return content
}

// fallbackNarrative 无模型时基于洞察拼出叙述。
func fallbackNarrative(query, insight string, result map[string]any) string {
	var b strings.Builder
	if query != "" {
		fmt.Fprintf(&b, "In response to %q, the analysis completed with %d supporting rows. ", query, tableRowCount(result))
	} else {
		fmt.Fprintf(&b, "The analysis completed with %d supporting rows. ", tableRowCount(result))
	}
	b.WriteString(strings.TrimSpace(insight))
	if !strings.HasSuffix(b.String(), ".") {
		b.WriteString(".")
	}
	b.WriteString(" These figures should be revisited once the next reporting cycle lands.")
	return b.String()
}
