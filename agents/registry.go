package agents

import (
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/workflow"
)

// Dependencies 装配全部协作者所需的外部依赖。零值可用:
// 缺 Provider 时文本类协作者走确定性降级路径。
type Dependencies struct {
	Provider  llm.Provider
	Catalog   *planning.Catalog
	Critic    *quality.Critic
	Resolver  *quality.Resolver
	Retriever Retriever
	Logger    *zap.Logger

	SQL       SQLAgentOptions
	Insight   TextAgentOptions
	Narrative TextAgentOptions
}

// NewRegistry 构建绑定了全部步骤协作者的注册表。
// 注册表覆盖目录里的每个步骤, 任何合法计划都能被执行器解析。
func NewRegistry(deps Dependencies) (*workflow.Registry, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Catalog == nil {
		deps.Catalog = planning.DefaultCatalog()
	}
	if deps.Critic == nil {
		deps.Critic = quality.NewCritic(quality.CriticOptions{}, deps.Logger)
	}
	if deps.Resolver == nil {
		resolver, err := quality.NewResolver(deps.Provider, quality.ResolverOptions{}, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.Resolver = resolver
	}
	if deps.Retriever == nil {
		deps.Retriever = NewKeywordIndex(deps.Logger)
	}

	sqlAgent, err := NewSQLAgent(deps.Provider, deps.SQL, deps.Logger)
	if err != nil {
		return nil, err
	}

	registry := workflow.NewRegistry()
	registry.MustRegister(
		NewQueryAgent(deps.Catalog, deps.Logger),
		NewDataAgent(deps.Logger),
		NewCleanerAgent(deps.Logger),
		NewRetrievalAgent(deps.Retriever, deps.Logger),
		sqlAgent,
		NewInsightAgent(deps.Provider, deps.Insight, deps.Logger),
		NewChartAgent(deps.Logger),
		NewNarrativeAgent(deps.Provider, deps.Narrative, deps.Logger),
		NewReportAgent(deps.Logger),
		NewCritiqueAgent(deps.Critic, deps.Logger),
		NewDebateAgent(deps.Resolver, deps.Logger),
	)
	return registry, nil
}
