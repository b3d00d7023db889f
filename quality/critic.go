package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
)

// Category 选择评审目标适用的规则集。
type Category string

const (
	CategoryStructuredQuery Category = "structured_query"
	CategoryInsight         Category = "insight"
	CategoryChart           Category = "chart"
	CategoryGeneric         Category = "generic"
)

// Confidence 评审结论的置信档位。
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// 评分表与放行条件的固定参数。
const (
	baseScore         = 0.8
	issuePenalty      = 0.15
	scoreFloor        = 0.3
	approvalThreshold = 0.75
	maxApprovedIssues = 1

	highConfidenceMin   = 0.85
	mediumConfidenceMin = 0.65
)

// Score 按固定评分表把问题数与优点数折算为质量分。
func Score(issues, strengths int) float64 {
	switch {
	case issues == 0 && strengths > 0:
		return 0.95
	case issues <= 1 && strengths >= 2:
		return 0.85
	case issues <= 2 && strengths >= 1:
		return 0.70
	default:
		return math.Max(scoreFloor, baseScore-issuePenalty*float64(issues))
	}
}

// ApprovedFor 判定一个质量分与问题数组合是否放行。
func ApprovedFor(score float64, issues int) bool {
	return score >= approvalThreshold && issues <= maxApprovedIssues
}

// ConfidenceFor 把质量分折算为置信档位。medium 的下界是开区间:
// 恰好 0.65 的分数（一个问题、零个优点）落在 low 档。
func ConfidenceFor(score float64) Confidence {
	switch {
	case score >= highConfidenceMin:
		return ConfidenceHigh
	case score > mediumConfidenceMin:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// CategoryForStep 返回步骤输出的默认评审类别。
func CategoryForStep(stepID string) Category {
	switch stepID {
	case planning.StepSQL:
		return CategoryStructuredQuery
	case planning.StepInsight, planning.StepNarrative:
		return CategoryInsight
	case planning.StepChart:
		return CategoryChart
	default:
		return CategoryGeneric
	}
}

// Assessment 一次评审的完整结论。
type Assessment struct {
	Target          string     `json:"target"`
	Category        Category   `json:"category"`
	Score           float64    `json:"score"`
	Approved        bool       `json:"approved"`
	Confidence      Confidence `json:"confidence"`
	ChecksPerformed []string   `json:"checks_performed"`
	IssuesFound     []string   `json:"issues_found"`
	Strengths       []string   `json:"strengths"`
	Recommendations []string   `json:"recommendations"`
	AssessedAt      time.Time  `json:"assessed_at"`
}

// AssessmentInput 待评审的目标输出。Payload 是目标步骤产出的键值集合。
type AssessmentInput struct {
	Target   string
	Category Category
	Query    string
	Payload  map[string]any
}

// CriticOptions 规则集的可调参数。
type CriticOptions struct {
	// 洞察文本低于该字符数视为过短
	MinInsightRunes int
	// 快于该毫秒数的查询执行记为优点
	FastQueryMillis float64
	// 认可的标准图表类型
	StandardChartTypes []string
}

func (o *CriticOptions) applyDefaults() {
	if o.MinInsightRunes <= 0 {
		o.MinInsightRunes = 40
	}
	if o.FastQueryMillis <= 0 {
		o.FastQueryMillis = 1000
	}
	if len(o.StandardChartTypes) == 0 {
		o.StandardChartTypes = []string{"bar", "line", "pie", "scatter", "area", "heatmap"}
	}
}

// Critic 按类别规则集评审单个步骤的输出。评审是确定性的, 不触网。
type Critic struct {
	opts           CriticOptions
	standardCharts map[string]bool
	logger         *zap.Logger
}

// NewCritic 创建评审器。
func NewCritic(opts CriticOptions, logger *zap.Logger) *Critic {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	charts := make(map[string]bool, len(opts.StandardChartTypes))
	for _, t := range opts.StandardChartTypes {
		charts[strings.ToLower(t)] = true
	}
	return &Critic{
		opts:           opts,
		standardCharts: charts,
		logger:         logger.With(zap.String("component", "critic")),
	}
}

// Assess 评审一个目标输出。未知类别走通用规则集。
func (c *Critic) Assess(input AssessmentInput) *Assessment {
	category := input.Category
	switch category {
	case CategoryStructuredQuery, CategoryInsight, CategoryChart:
	default:
		category = CategoryGeneric
	}

	r := &ruleResult{}
	switch category {
	case CategoryStructuredQuery:
		c.structuredQueryRules(input, r)
	case CategoryInsight:
		c.insightRules(input, r)
	case CategoryChart:
		c.chartRules(input, r)
	default:
		c.genericRules(input, r)
	}

	score := Score(len(r.issues), len(r.strengths))
	assessment := &Assessment{
		Target:          input.Target,
		Category:        category,
		Score:           score,
		Approved:        ApprovedFor(score, len(r.issues)),
		Confidence:      ConfidenceFor(score),
		ChecksPerformed: r.checks,
		IssuesFound:     r.issues,
		Strengths:       r.strengths,
		Recommendations: r.recommendations,
		AssessedAt:      time.Now(),
	}

	c.logger.Info("quality assessment completed",
		zap.String("target", input.Target),
		zap.String("category", string(category)),
		zap.Float64("score", assessment.Score),
		zap.Bool("approved", assessment.Approved),
		zap.Int("issues", len(assessment.IssuesFound)),
		zap.Int("strengths", len(assessment.Strengths)),
	)
	return assessment
}

// ruleResult 收集单次评审过程中的检查项与发现。
type ruleResult struct {
	checks          []string
	issues          []string
	strengths       []string
	recommendations []string
}

func (r *ruleResult) check(name string)    { r.checks = append(r.checks, name) }
func (r *ruleResult) issue(msg string)     { r.issues = append(r.issues, msg) }
func (r *ruleResult) strength(msg string)  { r.strengths = append(r.strengths, msg) }
func (r *ruleResult) recommend(msg string) { r.recommendations = append(r.recommendations, msg) }

// 结构化查询规则: 零行结果、执行错误、查询词覆盖、执行耗时。
func (c *Critic) structuredQueryRules(in AssessmentInput, r *ruleResult) {
	table := nestedMap(in.Payload, "sql_result")

	r.check("execution_error")
	if errText := stringValue(table, "error"); errText != "" {
		r.issue("query execution reported an error: " + errText)
		r.recommend("inspect the generated SQL for syntax or schema mismatches")
	}

	r.check("result_rows")
	if rows := rowCount(table); rows == 0 {
		r.issue("query returned zero rows")
		r.recommend("broaden the filters or verify the requested time range")
	} else {
		r.strength(fmt.Sprintf("query returned %d rows", rows))
	}

	r.check("query_term_coverage")
	if sqlText := stringValue(table, "sql"); sqlText != "" && in.Query != "" {
		if tokens := queryTokens(in.Query); len(tokens) > 0 && !anyTokenIn(tokens, sqlText) {
			r.issue("generated SQL shares no terms with the question")
			r.recommend("regenerate the SQL using column names taken from the question")
		}
	}

	r.check("execution_latency")
	if ms, ok := floatValue(table, "duration_ms"); ok && ms >= 0 && ms < c.opts.FastQueryMillis {
		r.strength("query executed quickly")
	}
}

// 洞察规则: 文本长度、数字证据、可执行建议。
func (c *Critic) insightRules(in AssessmentInput, r *ruleResult) {
	text := extractText(in.Payload, "insight", "narrative", "summary", "text")

	r.check("content_length")
	if utf8.RuneCountInString(strings.TrimSpace(text)) < c.opts.MinInsightRunes {
		r.issue("insight text is too short to be informative")
		r.recommend("expand the analysis with supporting detail")
	}

	r.check("numeric_evidence")
	if !digitRe.MatchString(text) {
		r.issue("insight cites no numeric evidence")
		r.recommend("ground each claim in a concrete figure")
	} else {
		r.strength("insight is grounded in concrete figures")
	}

	r.check("actionable_language")
	if actionableRe.MatchString(text) {
		r.strength("insight offers actionable recommendations")
	}
}

// 图表规则: 类型是否标准、必填配置是否齐全。
func (c *Critic) chartRules(in AssessmentInput, r *ruleResult) {
	cfg := nestedMap(in.Payload, "chart_config")
	chartType := strings.ToLower(stringValue(cfg, "type"))

	r.check("chart_type")
	switch {
	case chartType == "":
		r.issue("chart configuration declares no type")
		r.recommend("set the chart type explicitly")
	case !c.standardCharts[chartType]:
		r.issue(fmt.Sprintf("non-standard chart type %q", chartType))
		r.recommend("use one of the standard chart types: " + strings.Join(c.opts.StandardChartTypes, ", "))
	default:
		r.strength(fmt.Sprintf("standard chart type %q", chartType))
	}

	r.check("required_config")
	if missing := missingChartFields(cfg, chartType); len(missing) > 0 {
		r.issue("chart configuration missing required fields: " + strings.Join(missing, ", "))
		r.recommend("populate the missing chart fields before rendering")
	} else if chartType != "" {
		r.strength("chart configuration is complete")
	}
}

// 通用规则: 有无产出。
func (c *Critic) genericRules(in AssessmentInput, r *ruleResult) {
	r.check("output_present")
	if payloadEmpty(in.Payload) {
		r.issue("step produced no output")
		r.recommend("verify the collaborator wiring for this step")
	} else {
		r.strength("step produced output")
	}
}

var (
	digitRe      = regexp.MustCompile(`[0-9]`)
	actionableRe = regexp.MustCompile(`(?i)\b(recommend|should|suggest|consider|propose)\b|建议|应当|应该|可考虑`)
)

// 带轴的图表类型额外要求 x_axis 与 y_axis。
var axisChartTypes = map[string]bool{
	"bar":     true,
	"line":    true,
	"scatter": true,
	"area":    true,
	"heatmap": true,
}

func missingChartFields(cfg map[string]any, chartType string) []string {
	required := []string{"data"}
	if axisChartTypes[chartType] {
		required = append(required, "x_axis", "y_axis")
	}
	var missing []string
	for _, field := range required {
		v, ok := cfg[field]
		if !ok || v == nil {
			missing = append(missing, field)
			continue
		}
		switch t := v.(type) {
		case string:
			if strings.TrimSpace(t) == "" {
				missing = append(missing, field)
			}
		case []any:
			if len(t) == 0 {
				missing = append(missing, field)
			}
		case map[string]any:
			if len(t) == 0 {
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// nestedMap 返回 payload[key] 下嵌套的映射; 若未嵌套则返回 payload 本身。
func nestedMap(payload map[string]any, key string) map[string]any {
	if payload == nil {
		return nil
	}
	if m, ok := payload[key].(map[string]any); ok {
		return m
	}
	return payload
}

func stringValue(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func floatValue(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func rowCount(table map[string]any) int {
	if n, ok := floatValue(table, "row_count"); ok {
		return int(n)
	}
	switch rows := table["rows"].(type) {
	case []any:
		return len(rows)
	case []map[string]any:
		return len(rows)
	}
	return 0
}

// extractText 取首个非空文本值; 嵌套映射内再查一层常见文本键。
func extractText(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			for _, inner := range []string{"text", "content", "summary"} {
				if s, ok := v[inner].(string); ok && strings.TrimSpace(s) != "" {
					return s
				}
			}
		}
	}
	return ""
}

// queryTokens 提取查询中长度不小于 3 个字符的词元, 全部小写。
func queryTokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func anyTokenIn(tokens []string, target string) bool {
	lower := strings.ToLower(target)
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

func payloadEmpty(payload map[string]any) bool {
	for _, v := range payload {
		switch t := v.(type) {
		case nil:
		case string:
			if strings.TrimSpace(t) != "" {
				return false
			}
		case []any:
			if len(t) > 0 {
				return false
			}
		case map[string]any:
			if len(t) > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
