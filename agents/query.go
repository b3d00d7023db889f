package agents

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/workflow"
)

// 实体抽取时忽略的常见虚词。
var queryStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "from": true, "with": true,
	"show": true, "give": true, "list": true, "what": true, "which": true,
	"how": true, "many": true, "much": true, "per": true, "all": true,
	"our": true, "their": true, "this": true, "that": true, "last": true,
	"next": true, "over": true, "draw": true, "plot": true, "chart": true,
	"graph": true, "report": true, "data": true, "query": true, "about": true,
	"came": true, "were": true, "was": true, "are": true, "did": true,
	"请": true, "帮我": true, "一下": true, "我们": true,
}

var queryTimeRe = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|last\s+\w+|next\s+\w+|this\s+(?:week|month|quarter|year)|recent\s+\w+|q[1-4]\s*20[0-9]{2}|20[0-9]{2})\b|今天|昨天|明天|最近|上个月|上[一]?季度|本月|本周|今年|去年|[0-9]{4}年|[0-9]{1,2}月`)

// QueryAgent 解析原始查询, 抽取规范文本、实体、指标与时间范围。
type QueryAgent struct {
	catalog *planning.Catalog
	logger  *zap.Logger
}

// NewQueryAgent 创建查询解析协作者。
func NewQueryAgent(catalog *planning.Catalog, logger *zap.Logger) *QueryAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryAgent{
		catalog: catalog,
		logger:  logger.With(zap.String("agent", planning.StepQuery)),
	}
}

func (a *QueryAgent) ID() string { return planning.StepQuery }

func (a *QueryAgent) RequiredFields() []string { return []string{KeyUserQuery} }

func (a *QueryAgent) ProducedFields() []string {
	return []string{KeyQueryText, KeyQueryEntities, KeyQueryMetrics, KeyTimeRange}
}

func (a *QueryAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	raw, _ := state.GetString(KeyUserQuery)
	text := strings.Join(strings.Fields(raw), " ")

	metrics := a.catalog.MatchStatTerms(text)
	entities := a.extractEntities(text, metrics)
	timeRange := strings.TrimSpace(queryTimeRe.FindString(text))

	a.logger.Debug("query parsed",
		zap.Int("entities", len(entities)),
		zap.Int("metrics", len(metrics)),
		zap.String("time_range", timeRange),
	)

	return map[string]any{
		KeyQueryText:     text,
		KeyQueryEntities: entities,
		KeyQueryMetrics:  metrics,
		KeyTimeRange:     timeRange,
	}, nil
}

// extractEntities 去掉虚词、统计词与时间词后留下的实词即候选实体。
func (a *QueryAgent) extractEntities(text string, metrics []string) []string {
	metricSet := make(map[string]bool, len(metrics))
	for _, m := range metrics {
		metricSet[m] = true
	}

	seen := make(map[string]bool)
	var entities []string
	for _, tok := range splitTokens(text) {
		if utf8.RuneCountInString(tok) < 3 {
			continue
		}
		if queryStopwords[tok] || metricSet[tok] || seen[tok] {
			continue
		}
		if queryTimeRe.MatchString(tok) {
			continue
		}
		seen[tok] = true
		entities = append(entities, tok)
		if len(entities) == 8 {
			break
		}
	}
	return entities
}
