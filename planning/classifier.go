package planning

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/structured"
	"github.com/BaSui01/queryflow/llm/tokenizer"
	"github.com/BaSui01/queryflow/types"
)

// ClassificationSource 标识分类结果的来源。
type ClassificationSource string

const (
	// SourceParsed 表示模型结构化响应解析成功且意图有效。
	SourceParsed ClassificationSource = "parsed"
	// SourceFallback 表示走了模式匹配回退路径。
	SourceFallback ClassificationSource = "fallback"
)

// ModelClassification 是语言模型返回的结构化分类载荷。
type ModelClassification struct {
	PrimaryIntent   string   `json:"primary_intent"`
	ComplexityScore float64  `json:"complexity_score"`
	RequiredData    []string `json:"required_data,omitempty"`
	OutputFormat    string   `json:"output_format,omitempty"`
	BusinessContext string   `json:"business_context,omitempty"`
}

// QueryMetadata 记录查询文本的表层特征, 供下游与日志使用。
type QueryMetadata struct {
	Length      int  `json:"length"`
	WordCount   int  `json:"word_count"`
	HasNumbers  bool `json:"has_numbers"`
	HasTimeRefs bool `json:"has_time_refs"`
}

// QueryAnalysis 是分类器的完整输出。
// Source 区分两种结果形态: 模型解析成功(parsed)与降级回退(fallback);
// 回退时若模型载荷仍可读则保留在 Model 字段供诊断。
type QueryAnalysis struct {
	Query           string               `json:"query"`
	PrimaryIntent   string               `json:"primary_intent"`
	DetectedIntents []string             `json:"detected_intents"`
	ComplexityScore float64              `json:"complexity_score"`
	Source          ClassificationSource `json:"source"`
	Model           *ModelClassification `json:"model,omitempty"`
	Metadata        QueryMetadata        `json:"metadata"`
}

// Degraded 报告本次分类是否走了回退路径。
func (a *QueryAnalysis) Degraded() bool {
	return a.Source == SourceFallback
}

// ClassifierOptions 控制模型调用参数。零值字段使用默认值。
type ClassifierOptions struct {
	// Model 分类所用模型名
	Model string
	// Temperature 采样温度, 分类任务宜低
	Temperature float64
	// MaxTokens 响应 token 上限
	MaxTokens int
	// Timeout 单次模型调用超时
	Timeout time.Duration
	// PromptBudget 查询文本在提示词中的 token 预算
	PromptBudget int
}

func (o *ClassifierOptions) applyDefaults() {
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.Temperature == 0 {
		o.Temperature = 0.1
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 512
	}
	if o.Timeout == 0 {
		o.Timeout = 20 * time.Second
	}
	if o.PromptBudget == 0 {
		o.PromptBudget = 2048
	}
}

// classificationSchema 是分类调用的 JSON Schema。
const classificationSchema = `{
  "type": "object",
  "properties": {
    "primary_intent": {
      "type": "string",
      "description": "One of: data_exploration, visualization, insight_generation, sql_query, report_generation"
    },
    "complexity_score": {
      "type": "number",
      "minimum": 0,
      "maximum": 1,
      "description": "Estimated difficulty of answering the query"
    },
    "required_data": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Data sources or tables the query needs"
    },
    "output_format": {
      "type": "string",
      "description": "Preferred output shape, e.g. table, chart, narrative"
    },
    "business_context": {
      "type": "string",
      "description": "Short restatement of the business question"
    }
  },
  "required": ["primary_intent", "complexity_score"]
}`

var (
	numberRe = regexp.MustCompile(`[0-9]`)
	// 时间引用: 英文常见时间词 + 中文年/月/日/周/季度表达
	timeRefRe = regexp.MustCompile(`(?i)(today|yesterday|tomorrow|last|next|recent|quarter|month|week|year|daily|weekly|monthly|20[0-9]{2}|今天|昨天|明天|最近|上个|下个|本月|本周|今年|去年|季度|[0-9]+月|[0-9]+日|[0-9]+年)`)
)

// Classifier 查询分类器: 模式匹配 + 模型结构化分类 + 启发式复杂度混合。
//
// 模型服务被视为不可靠外部依赖: 调用失败、超时、响应不可解析、
// 返回未知意图, 全部降级为模式回退, AnalyzeQuery 永不返回错误。
type Classifier struct {
	catalog *Catalog
	output  *structured.StructuredOutput[ModelClassification]
	opts    ClassifierOptions
	logger  *zap.Logger
}

// NewClassifier 构造分类器。provider 为 nil 时分类器仅走模式回退路径,
// 适用于离线模式与测试。
func NewClassifier(catalog *Catalog, provider llm.Provider, opts ClassifierOptions, logger *zap.Logger) (*Classifier, error) {
	if catalog == nil {
		return nil, types.NewError(types.ErrInvalidRequest, "classifier requires a catalogue")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.applyDefaults()

	c := &Classifier{
		catalog: catalog,
		opts:    opts,
		logger:  logger.With(zap.String("component", "classifier")),
	}
	if provider != nil {
		out, err := structured.NewStructuredOutput[ModelClassification](
			provider, classificationSchema, "primary_intent", "complexity_score")
		if err != nil {
			return nil, err
		}
		c.output = out.
			WithModel(opts.Model).
			WithTemperature(float32(opts.Temperature)).
			WithMaxTokens(opts.MaxTokens)
	}
	return c, nil
}

// AnalyzeQuery 分析一条业务查询。永不返回错误: 任何模型侧故障都降级为
// 模式回退结果, Source 字段标明走了哪条路径。
func (c *Classifier) AnalyzeQuery(ctx context.Context, query, schemaHint string) *QueryAnalysis {
	detected := c.catalog.DetectIntents(query)
	heuristic := c.heuristicComplexity(query, detected)

	analysis := &QueryAnalysis{
		Query:           query,
		DetectedIntents: detected,
		Metadata:        buildMetadata(query),
	}

	model, err := c.classifyWithModel(ctx, query, schemaHint)
	switch {
	case err != nil:
		c.logger.Warn("模型分类失败, 使用模式回退",
			zap.Error(err),
			zap.Strings("detected_intents", detected))
		c.applyFallback(analysis, heuristic)

	case !c.catalog.HasIntent(model.PrimaryIntent):
		c.logger.Warn("模型返回未知意图, 使用模式回退",
			zap.String("model_intent", model.PrimaryIntent),
			zap.Strings("detected_intents", detected))
		analysis.Model = model
		c.applyFallback(analysis, heuristic)

	default:
		analysis.Model = model
		analysis.PrimaryIntent = model.PrimaryIntent
		analysis.Source = SourceParsed
		analysis.ComplexityScore = clamp01((heuristic + model.ComplexityScore) / 2)
		c.logger.Debug("分类完成",
			zap.String("primary_intent", analysis.PrimaryIntent),
			zap.Float64("complexity", analysis.ComplexityScore))
	}
	return analysis
}

// applyFallback 填充回退结果: 首个模式命中意图, 无命中时取默认意图;
// 复杂度退化为纯启发式分数。
func (c *Classifier) applyFallback(analysis *QueryAnalysis, heuristic float64) {
	if len(analysis.DetectedIntents) > 0 {
		analysis.PrimaryIntent = analysis.DetectedIntents[0]
	} else {
		analysis.PrimaryIntent = DefaultIntent
	}
	analysis.Source = SourceFallback
	analysis.ComplexityScore = clamp01(heuristic)
}

func (c *Classifier) classifyWithModel(ctx context.Context, query, schemaHint string) (*ModelClassification, error) {
	if c.output == nil {
		return nil, types.NewError(types.ErrProviderUnavailable, "no classification provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	return c.output.Generate(ctx, c.buildPrompt(query, schemaHint))
}

func (c *Classifier) buildPrompt(query, schemaHint string) string {
	tok := tokenizer.GetTokenizerOrEstimator(c.opts.Model)
	trimmed, err := tok.Truncate(query, c.opts.PromptBudget)
	if err != nil {
		trimmed = query
	}

	var b strings.Builder
	b.WriteString("Classify the following business data query.\n\n")
	b.WriteString("Intent categories: ")
	b.WriteString(strings.Join(c.catalog.Intents(), ", "))
	b.WriteString("\n\nQuery: ")
	b.WriteString(trimmed)
	if schemaHint != "" {
		b.WriteString("\n\nAvailable schema:\n")
		b.WriteString(schemaHint)
	}
	return b.String()
}

// heuristicComplexity 计算三因子启发式复杂度:
// 查询长度/500、命中意图数/5、统计词汇数/10, 各自截断到 1 后取平均。
func (c *Classifier) heuristicComplexity(query string, detected []string) float64 {
	lengthFactor := minFloat(float64(utf8.RuneCountInString(query))/500, 1)
	intentFactor := minFloat(float64(len(detected))/5, 1)
	statFactor := minFloat(float64(c.catalog.StatTermCount(query))/10, 1)
	return (lengthFactor + intentFactor + statFactor) / 3
}

func buildMetadata(query string) QueryMetadata {
	return QueryMetadata{
		Length:      utf8.RuneCountInString(query),
		WordCount:   len(strings.Fields(query)),
		HasNumbers:  numberRe.MatchString(query),
		HasTimeRefs: timeRefRe.MatchString(query),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
