// 版权所有 2025 QueryFlow Authors

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/queryflow/agents"
	"github.com/BaSui01/queryflow/archive"
	"github.com/BaSui01/queryflow/internal/cache"
	"github.com/BaSui01/queryflow/internal/ctxkeys"
	"github.com/BaSui01/queryflow/internal/metrics"
	"github.com/BaSui01/queryflow/llm"
	"github.com/BaSui01/queryflow/planning"
	"github.com/BaSui01/queryflow/quality"
	"github.com/BaSui01/queryflow/session"
	"github.com/BaSui01/queryflow/workflow"
)

// persistTimeout 执行结束后会话保存与归档的时间上限。
// 流式场景客户端可能在最后一个事件后立即断开, 这两步
// 不随请求取消, 但也不允许无限阻塞。
const persistTimeout = 5 * time.Second

// Options 装配查询服务所需的全部依赖。
// 只有 Query 处理的核心组件是必备的, 其余 (缓存/归档/指标/检索器)
// 为 nil 时对应能力静默关闭。
type Options struct {
	// Catalog 步骤目录, nil 时使用内置目录。
	Catalog *planning.Catalog
	// Provider LLM 供应商, nil 时分类器与辩论走确定性降级路径。
	Provider llm.Provider
	// Sessions 会话存储, nil 时使用进程内存储。
	Sessions session.Store
	// Cache 分类结果缓存, 可选。
	Cache *cache.ClassificationCache
	// Archive 运行归档, 可选。
	Archive *archive.Archive
	// Metrics 指标采集器, 可选。
	Metrics *metrics.Collector
	// Retriever 知识检索器, 可选。
	Retriever agents.Retriever

	Classifier planning.ClassifierOptions
	Critic     quality.CriticOptions
	Resolver   quality.ResolverOptions
	Executor   workflow.ExecutorOptions
	SQL        agents.SQLAgentOptions
	Insight    agents.TextAgentOptions
	Narrative  agents.TextAgentOptions

	Logger *zap.Logger
}

// Service 查询处理门面。所有方法并发安全。
type Service struct {
	catalog    *planning.Catalog
	classifier *planning.Classifier
	planner    *planning.Planner
	executor   *workflow.Executor
	sessions   session.Store
	cache      *cache.ClassificationCache
	archive    *archive.Archive
	metrics    *metrics.Collector
	provider   llm.Provider
	logger     *zap.Logger
}

// New 装配查询服务。
func New(opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = planning.DefaultCatalog()
	}

	classifier, err := planning.NewClassifier(catalog, opts.Provider, opts.Classifier, logger)
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}
	planner, err := planning.NewPlanner(catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("build planner: %w", err)
	}
	resolver, err := quality.NewResolver(opts.Provider, opts.Resolver, logger)
	if err != nil {
		return nil, fmt.Errorf("build resolver: %w", err)
	}
	registry, err := agents.NewRegistry(agents.Dependencies{
		Provider:  opts.Provider,
		Catalog:   catalog,
		Critic:    quality.NewCritic(opts.Critic, logger),
		Resolver:  resolver,
		Retriever: opts.Retriever,
		Logger:    logger,
		SQL:       opts.SQL,
		Insight:   opts.Insight,
		Narrative: opts.Narrative,
	})
	if err != nil {
		return nil, fmt.Errorf("build agent registry: %w", err)
	}
	executor, err := workflow.NewExecutor(catalog, registry, opts.Executor, logger)
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions, err = session.NewStore(session.StoreConfig{})
		if err != nil {
			return nil, fmt.Errorf("build session store: %w", err)
		}
	}

	return &Service{
		catalog:    catalog,
		classifier: classifier,
		planner:    planner,
		executor:   executor,
		sessions:   sessions,
		cache:      opts.Cache,
		archive:    opts.Archive,
		metrics:    opts.Metrics,
		provider:   opts.Provider,
		logger:     logger.With(zap.String("component", "pipeline")),
	}, nil
}

// preparedRun 聚合执行前阶段 (会话合并/分类/规划/播种) 的产物。
type preparedRun struct {
	session     *session.Session
	analysis    *planning.QueryAnalysis
	plan        *planning.ExecutionPlan
	state       *workflow.State
	fileContext map[string]any
	schemaHint  string
}

// ProcessQuery 同步处理一次查询: 分类、规划、执行、质量评审,
// 然后更新会话并归档。计划级超时或取消返回错误, 此时不更新
// 会话也不归档; 单步失败不是错误, 通过 Result.Status 体现。
func (s *Service) ProcessQuery(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	work, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	runCtx := s.runContext(ctx, req.SessionID)
	trace, execErr := s.executor.Execute(runCtx, work.plan, work.state)
	s.recordRun(work.plan, trace, execErr)
	if execErr != nil {
		return nil, execErr
	}
	return s.finish(runCtx, req, work, trace), nil
}

// StreamQuery 流式处理一次查询。返回的通道逐步产出进度事件,
// 执行结束后调用 done (在事件通道关闭之前), 最后关闭通道。
// 执行前阶段的错误直接返回, 不产生通道。
func (s *Service) StreamQuery(ctx context.Context, req Request, done func(*Result, error)) (<-chan workflow.ProgressEvent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	work, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.StreamStarted()
	}
	runCtx := s.runContext(ctx, req.SessionID)
	events := s.executor.ExecuteStream(runCtx, work.plan, work.state, func(trace *workflow.ExecutionTrace, execErr error) {
		if s.metrics != nil {
			defer s.metrics.StreamEnded()
		}
		s.recordRun(work.plan, trace, execErr)
		if execErr != nil {
			if done != nil {
				done(nil, execErr)
			}
			return
		}
		result := s.finish(runCtx, req, work, trace)
		if done != nil {
			done(result, nil)
		}
	})
	return events, nil
}

// prepare 执行前阶段: 读会话、合并上下文、分类、规划、播种状态。
func (s *Service) prepare(ctx context.Context, req Request) (*preparedRun, error) {
	sess := s.loadSession(ctx, req.SessionID)

	fileContext := req.FileContext
	if len(fileContext) == 0 {
		fileContext = sess.FileContext
	}
	schemaHint := req.SchemaHint
	if schemaHint == "" {
		schemaHint = sess.SchemaHint
	}

	analysis, err := s.classify(ctx, req, schemaHint)
	if err != nil {
		return nil, err
	}

	plan := s.planner.CreateExecutionPlan(analysis, len(fileContext) > 0)

	seed := map[string]any{
		agents.KeyUserQuery: req.Query,
		agents.KeyAnalysis:  analysis,
	}
	if schemaHint != "" {
		seed[agents.KeySchemaHint] = schemaHint
	}
	if len(fileContext) > 0 {
		seed[agents.KeyFileContext] = fileContext
	}

	return &preparedRun{
		session:     sess,
		analysis:    analysis,
		plan:        plan,
		state:       workflow.NewState(seed),
		fileContext: fileContext,
		schemaHint:  schemaHint,
	}, nil
}

// classify 经缓存做意图分类, 并施加 query_type 覆盖。
func (s *Service) classify(ctx context.Context, req Request, schemaHint string) (*planning.QueryAnalysis, error) {
	if req.QueryType != "" && !s.catalog.HasIntent(req.QueryType) {
		return nil, unknownIntentError(req.QueryType, s.catalog.Intents())
	}

	analysis, hit := s.cache.Analyze(ctx, req.Query, schemaHint, func(ctx context.Context) *planning.QueryAnalysis {
		return s.classifier.AnalyzeQuery(ctx, req.Query, schemaHint)
	})
	if s.cache != nil && s.metrics != nil {
		if hit {
			s.metrics.RecordCacheHit("classification")
		} else {
			s.metrics.RecordCacheMiss("classification")
		}
	}

	if req.QueryType != "" && req.QueryType != analysis.PrimaryIntent {
		// 缓存把同一份分析共享给并发调用方, 改写意图前先拷贝。
		override := *analysis
		override.PrimaryIntent = req.QueryType
		analysis = &override
	}
	return analysis, nil
}

func (s *Service) loadSession(ctx context.Context, id string) *session.Session {
	sess, err := s.sessions.Get(ctx, id)
	if err == nil {
		return sess
	}
	if !errors.Is(err, session.ErrNotFound) {
		s.logger.Warn("会话读取失败, 本次执行不带历史上下文",
			zap.String("session_id", id), zap.Error(err))
	}
	return &session.Session{ID: id}
}

func (s *Service) runContext(ctx context.Context, sessionID string) context.Context {
	runCtx := ctxkeys.WithSessionID(ctx, sessionID)
	return ctxkeys.WithRunID(runCtx, "run_"+uuid.NewString())
}

// finish 执行后阶段: 读取质量评审、落指标、更新会话、归档、组装结果。
func (s *Service) finish(ctx context.Context, req Request, work *preparedRun, trace *workflow.ExecutionTrace) *Result {
	assessment := assessmentFrom(work.state)
	resolution := resolutionFrom(work.state)
	s.recordQuality(assessment, resolution)

	result := &Result{
		SessionID:   req.SessionID,
		ExecutionID: trace.ExecutionID,
		Status:      statusFor(trace),
		Analysis:    work.analysis,
		Plan:        work.plan,
		Trace:       trace,
		Output:      composeOutput(work.state, trace),
		Assessment:  assessment,
		Resolution:  resolution,
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	s.persistSession(saveCtx, work, trace)
	s.archiveRun(saveCtx, req, work, trace, assessment, resolution)
	return result
}

// persistSession 把本次运行的上下文写回会话。失败只记日志。
func (s *Service) persistSession(ctx context.Context, work *preparedRun, trace *workflow.ExecutionTrace) {
	sess := work.session
	sess.FileContext = work.fileContext
	sess.SchemaHint = work.schemaHint
	sess.LastIntent = work.plan.Intent
	sess.LastTrace = trace
	if err := s.sessions.Save(ctx, sess); err != nil {
		s.logger.Warn("会话保存失败",
			zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// archiveRun 归档完成的运行。归档未启用或失败都不影响结果。
func (s *Service) archiveRun(ctx context.Context, req Request, work *preparedRun, trace *workflow.ExecutionTrace, assessment *quality.Assessment, resolution *quality.Resolution) {
	_, err := s.archive.Save(ctx, &archive.RunSnapshot{
		SessionID:  req.SessionID,
		Query:      req.Query,
		Plan:       work.plan,
		Trace:      trace,
		Assessment: assessment,
		Resolution: resolution,
	})
	if err != nil && !errors.Is(err, archive.ErrDisabled) {
		s.logger.Warn("运行归档失败",
			zap.String("execution_id", trace.ExecutionID), zap.Error(err))
	}
}

func (s *Service) recordRun(plan *planning.ExecutionPlan, trace *workflow.ExecutionTrace, execErr error) {
	if s.metrics == nil || trace == nil {
		return
	}
	status := string(statusFor(trace))
	if execErr != nil {
		status = "aborted"
	}
	s.metrics.RecordQuery(plan.Intent, status, trace.Duration)
	for _, step := range trace.Steps {
		s.metrics.RecordStep(step.StepID, string(step.Status), step.Duration)
	}
}

func (s *Service) recordQuality(assessment *quality.Assessment, resolution *quality.Resolution) {
	if s.metrics == nil {
		return
	}
	if assessment != nil {
		s.metrics.RecordQualityScore(string(assessment.Category), assessment.Score)
	}
	if resolution != nil {
		s.metrics.RecordDebateVerdict(string(resolution.Verdict))
	}
}

// ComponentHealth 就绪检查中单个依赖的状态。
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ready 检查服务依赖是否就绪。未配置的可选依赖跳过,
// 已配置但探测失败的依赖使整体返回 false。
func (s *Service) Ready(ctx context.Context) (bool, []ComponentHealth) {
	checks := make([]ComponentHealth, 0, 4)
	ready := true

	record := func(name string, err error) {
		health := ComponentHealth{Name: name, Status: "ok"}
		if err != nil {
			health.Status = "error"
			health.Error = err.Error()
			ready = false
		}
		checks = append(checks, health)
	}

	record("sessions", s.sessions.Ping(ctx))
	if s.cache != nil {
		record("classification_cache", s.cache.Ping(ctx))
	}
	if s.archive != nil {
		err := s.archive.Ping(ctx)
		if errors.Is(err, archive.ErrDisabled) {
			checks = append(checks, ComponentHealth{Name: "archive", Status: "disabled"})
		} else {
			record("archive", err)
		}
	}
	if s.provider != nil {
		status, err := s.provider.HealthCheck(ctx)
		switch {
		case err != nil:
			record("llm_provider", err)
		case !status.Healthy:
			record("llm_provider", fmt.Errorf("provider %s reports unhealthy", s.provider.Name()))
		default:
			record("llm_provider", nil)
		}
	}
	return ready, checks
}

// Catalog 返回服务使用的步骤目录, 供 API 层的自省接口使用。
func (s *Service) Catalog() *planning.Catalog { return s.catalog }

// Archive 返回运行归档, 未启用时为 nil。
func (s *Service) Archive() *archive.Archive { return s.archive }

// Sessions 返回会话存储。
func (s *Service) Sessions() session.Store { return s.sessions }
