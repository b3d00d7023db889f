package agents

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/workflow"
)

// DebateAgent 对未通过的评审做单轮复议。评审已通过时直接维持原结论,
// 不再花一次模型调用。
type DebateAgent struct {
	resolver *quality.Resolver
	logger   *zap.Logger
}

// NewDebateAgent 创建复议协作者。
func NewDebateAgent(resolver *quality.Resolver, logger *zap.Logger) *DebateAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebateAgent{
		resolver: resolver,
		logger:   logger.With(zap.String("agent", planning.StepDebate)),
	}
}

func (a *DebateAgent) ID() string { return planning.StepDebate }

func (a *DebateAgent) RequiredFields() []string { return []string{KeyAssessment} }

func (a *DebateAgent) ProducedFields() []string { return []string{KeyResolution} }

func (a *DebateAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	value, _ := state.Get(KeyAssessment)
	assessment, ok := value.(*quality.Assessment)
	if !ok {
		return nil, fmt.Errorf("quality assessment has unexpected type %T", value)
	}

	var resolution *quality.Resolution
	switch {
	case assessment.Approved:
		resolution = &quality.Resolution{
			Verdict:    quality.VerdictUpheld,
			Score:      assessment.Score,
			Approved:   true,
			Confidence: assessment.Confidence,
			Rationale:  "assessment already approved; debate not required",
			ResolvedAt: time.Now(),
		}
	case a.resolver == nil:
		resolution = &quality.Resolution{
			Verdict:    quality.VerdictUnresolved,
			Score:      assessment.Score,
			Approved:   assessment.Approved,
			Confidence: assessment.Confidence,
			Rationale:  "no resolver configured",
			ResolvedAt: time.Now(),
		}
	default:
		query, _ := state.GetString(KeyQueryText)
		resolution = a.resolver.Resolve(ctx, query, assessment)
	}

	a.logger.Info("debate resolved",
		zap.String("verdict", string(resolution.Verdict)),
		zap.Float64("score", resolution.Score),
		zap.Bool("approved", resolution.Approved),
	)
	return map[string]any{KeyResolution: resolution}, nil
}
