package agents

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/workflow"
)

// reviewOrder 评审目标的选取顺序, 一次只评一个产出。
var reviewOrder = []struct {
	stepID string
	key    string
}{
	{planning.StepInsight, KeyInsight},
	{planning.StepReport, KeyReport},
	{planning.StepNarrative, KeyNarrative},
	{planning.StepSQL, KeySQLResult},
	{planning.StepChart, KeyChartConfig},
}

// CritiqueAgent 对上游产出跑规则评审, 写出质量评估。
type CritiqueAgent struct {
	critic *quality.Critic
	logger *zap.Logger
}

// NewCritiqueAgent 创建评审协作者。
func NewCritiqueAgent(critic *quality.Critic, logger *zap.Logger) *CritiqueAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if critic == nil {
		critic = quality.NewCritic(quality.CriticOptions{}, logger)
	}
	return &CritiqueAgent{
		critic: critic,
		logger: logger.With(zap.String("agent", planning.StepCritique)),
	}
}

func (a *CritiqueAgent) ID() string { return planning.StepCritique }

// RequiredFields 为空: 评审目标按 reviewOrder 动态选取,
// 可评产出是否存在由 ValidateInput 把关。
func (a *CritiqueAgent) RequiredFields() []string { return nil }

func (a *CritiqueAgent) ProducedFields() []string { return []string{KeyAssessment} }

// ValidateInput 确认至少有一个可评审的产出。
func (a *CritiqueAgent) ValidateInput(state *workflow.State) error {
	for _, target := range reviewOrder {
		if _, ok := state.Get(target.key); ok {
			return nil
		}
	}
	return errors.New("no reviewable output available for critique")
}

func (a *CritiqueAgent) Execute(ctx context.Context, state *workflow.State) (map[string]any, error) {
	query, _ := state.GetString(KeyQueryText)
	for _, target := range reviewOrder {
		value, ok := state.Get(target.key)
		if !ok {
			continue
		}
		assessment := a.critic.Assess(quality.AssessmentInput{
			Target:   target.stepID,
			Category: quality.CategoryForStep(target.stepID),
			Query:    query,
			Payload:  map[string]any{target.key: value},
		})
		a.logger.Info("critique completed",
			zap.String("target", target.stepID),
			zap.Float64("score", assessment.Score),
			zap.Bool("approved", assessment.Approved),
		)
		return map[string]any{KeyAssessment: assessment}, nil
	}
	return nil, errors.New("no reviewable output available for critique")
}
