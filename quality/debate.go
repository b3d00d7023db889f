package quality

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/llm/structured"
)

// Verdict 辩论裁决。
type Verdict string

const (
	// VerdictUpheld 维持原评审结论
	VerdictUpheld Verdict = "upheld"
	// VerdictRevised 采纳辩论后的修正分数
	VerdictRevised Verdict = "revised"
	// VerdictUnresolved 辩论未能进行, 原结论原样生效
	VerdictUnresolved Verdict = "unresolved"
)

// Resolution 单次辩论后的最终裁决。Score 与 Approved 是辩论后生效的值。
type Resolution struct {
	Verdict    Verdict    `json:"verdict"`
	Score      float64    `json:"score"`
	Approved   bool       `json:"approved"`
	Confidence Confidence `json:"confidence"`
	Rationale  string     `json:"rationale"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// debateVerdict 模型侧结构化裁决载荷。
type debateVerdict struct {
	Verdict      string  `json:"verdict"`
	RevisedScore float64 `json:"revised_score"`
	Rationale    string  `json:"rationale"`
}

const debateSchema = `{
  "type": "object",
  "properties": {
    "verdict": {
      "type": "string",
      "enum": ["upheld", "revised"],
      "description": "upheld keeps the original assessment, revised replaces its score"
    },
    "revised_score": {
      "type": "number",
      "minimum": 0,
      "maximum": 1,
      "description": "replacement quality score, only honoured when verdict is revised"
    },
    "rationale": {
      "type": "string",
      "description": "short justification for the verdict"
    }
  },
  "required": ["verdict", "rationale"]
}`

// ResolverOptions 辩论调用参数。
type ResolverOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (o *ResolverOptions) applyDefaults() {
	if o.Model == "" {
		o.Model = "gpt-4o-mini"
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.3
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 768
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
}

// Resolver 对未放行的评审执行一次辩论式复核。复核只发生一次,
// 不构成循环; 模型不可用或裁决不可解析时原评审结论原样生效。
type Resolver struct {
	output *structured.StructuredOutput[debateVerdict]
	opts   ResolverOptions
	logger *zap.Logger
}

// NewResolver 创建辩论复核器。provider 为 nil 时复核直接返回 unresolved。
func NewResolver(provider llm.Provider, opts ResolverOptions, logger *zap.Logger) (*Resolver, error) {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		opts:   opts,
		logger: logger.With(zap.String("component", "debate")),
	}
	if provider != nil {
		out, err := structured.NewStructuredOutput[debateVerdict](
			provider, debateSchema, "verdict", "rationale")
		if err != nil {
			return nil, err
		}
		r.output = out.
			WithModel(opts.Model).
			WithTemperature(float32(opts.Temperature)).
			WithMaxTokens(opts.MaxTokens)
	}
	return r, nil
}

// Resolve 对一份评审执行单次辩论复核。永不返回错误: 任何故障都以
// unresolved 裁决收场, 原评审的分数与放行结论保持不变。
func (r *Resolver) Resolve(ctx context.Context, query string, assessment *Assessment) *Resolution {
	if assessment == nil {
		return &Resolution{
			Verdict:    VerdictUnresolved,
			Confidence: ConfidenceLow,
			Rationale:  "no assessment available to debate",
			ResolvedAt: time.Now(),
		}
	}
	if r.output == nil {
		r.logger.Debug("no resolution provider configured, assessment stands",
			zap.String("target", assessment.Target))
		return r.unresolved(assessment, "no resolution provider configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	verdict, err := r.output.Generate(callCtx, r.buildPrompt(query, assessment))
	if err != nil {
		r.logger.Warn("debate resolution failed, assessment stands",
			zap.String("target", assessment.Target),
			zap.Error(err))
		return r.unresolved(assessment, "debate call failed, original assessment stands")
	}

	resolution := r.apply(assessment, verdict)
	r.logger.Info("debate resolution completed",
		zap.String("target", assessment.Target),
		zap.String("verdict", string(resolution.Verdict)),
		zap.Float64("score", resolution.Score),
		zap.Bool("approved", resolution.Approved),
	)
	return resolution
}

func (r *Resolver) unresolved(assessment *Assessment, rationale string) *Resolution {
	return &Resolution{
		Verdict:    VerdictUnresolved,
		Score:      assessment.Score,
		Approved:   assessment.Approved,
		Confidence: assessment.Confidence,
		Rationale:  rationale,
		ResolvedAt: time.Now(),
	}
}

// apply 把模型裁决落到最终结论上。修正分数裁剪到 [0,1],
// 放行条件按原问题数重新判定。
func (r *Resolver) apply(assessment *Assessment, verdict *debateVerdict) *Resolution {
	issues := len(assessment.IssuesFound)
	resolution := &Resolution{
		Verdict:    VerdictUpheld,
		Score:      assessment.Score,
		Approved:   assessment.Approved,
		Confidence: assessment.Confidence,
		Rationale:  strings.TrimSpace(verdict.Rationale),
		ResolvedAt: time.Now(),
	}
	if strings.EqualFold(strings.TrimSpace(verdict.Verdict), string(VerdictRevised)) {
		score := verdict.RevisedScore
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		resolution.Verdict = VerdictRevised
		resolution.Score = score
		resolution.Approved = ApprovedFor(score, issues)
		resolution.Confidence = ConfidenceFor(score)
	}
	return resolution
}

func (r *Resolver) buildPrompt(query string, assessment *Assessment) string {
	var b strings.Builder
	b.WriteString("A quality critique of a business-data pipeline output was not approved. ")
	b.WriteString("Act as the opposing side of a debate: either uphold the critique or revise its score.\n\n")
	fmt.Fprintf(&b, "Original question: %s\n", query)
	fmt.Fprintf(&b, "Reviewed step: %s (category %s)\n", assessment.Target, assessment.Category)
	fmt.Fprintf(&b, "Critique score: %.2f, approved: %v\n", assessment.Score, assessment.Approved)
	if len(assessment.IssuesFound) > 0 {
		b.WriteString("Issues raised:\n")
		for _, issue := range assessment.IssuesFound {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}
	if len(assessment.Strengths) > 0 {
		b.WriteString("Strengths noted:\n")
		for _, s := range assessment.Strengths {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if len(assessment.Recommendations) > 0 {
		b.WriteString("Recommendations:\n")
		for _, rec := range assessment.Recommendations {
			fmt.Fprintf(&b, "- %s\n", rec)
		}
	}
	return b.String()
}
