package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/queryflow/types"
)

// Step 是一个命名的工作单元(外部协作者)。执行器按计划顺序调用 Execute,
// 返回的增量键值在成功后合并进共享状态。
type Step interface {
	// ID 返回目录步骤标识
	ID() string
	// Execute 在当前状态上运行, 返回要合并进状态的增量键值
	Execute(ctx context.Context, state *State) (map[string]any, error)
	// RequiredFields 声明调用前必须存在于状态中的键;
	// 缺失时执行器直接记录校验失败, 不调用 Execute
	RequiredFields() []string
	// ProducedFields 声明成功后会写入状态的键(文档性质, 不强制)
	ProducedFields() []string
}

// InputValidator 可选扩展: 在 RequiredFields 检查之外做自定义入参校验。
type InputValidator interface {
	ValidateInput(state *State) error
}

// FuncStep 用函数适配 Step 接口, 主要服务测试与轻量步骤。
type FuncStep struct {
	id       string
	required []string
	produced []string
	fn       func(ctx context.Context, state *State) (map[string]any, error)
}

// NewFuncStep 创建函数步骤。
func NewFuncStep(id string, fn func(ctx context.Context, state *State) (map[string]any, error)) *FuncStep {
	return &FuncStep{id: id, fn: fn}
}

// WithRequired 声明必需输入键。
func (s *FuncStep) WithRequired(fields ...string) *FuncStep {
	s.required = append(s.required, fields...)
	return s
}

// WithProduced 声明产出键。
func (s *FuncStep) WithProduced(fields ...string) *FuncStep {
	s.produced = append(s.produced, fields...)
	return s
}

func (s *FuncStep) ID() string { return s.id }

func (s *FuncStep) Execute(ctx context.Context, state *State) (map[string]any, error) {
	if s.fn == nil {
		return nil, nil
	}
	return s.fn(ctx, state)
}

func (s *FuncStep) RequiredFields() []string { return s.required }

func (s *FuncStep) ProducedFields() []string { return s.produced }

// Registry 把目录步骤 id 绑定到具体协作者实现。并发安全。
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// Register 注册一个协作者; 同名步骤重复注册报错。
func (r *Registry) Register(step Step) error {
	if step == nil || step.ID() == "" {
		return types.NewError(types.ErrInvalidRequest, "step must have a non-empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.steps[step.ID()]; dup {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("step %q already registered", step.ID()))
	}
	r.steps[step.ID()] = step
	return nil
}

// MustRegister 注册失败时 panic, 服务启动期装配用。
func (r *Registry) MustRegister(steps ...Step) {
	for _, s := range steps {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

// Get 按 id 查找协作者。
func (r *Registry) Get(id string) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[id]
	return s, ok
}

// IDs 返回已注册步骤 id, 排序稳定。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.steps))
	for id := range r.steps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnsureBound 校验计划中的每个步骤都有绑定的协作者。
func (r *Registry) EnsureBound(stepIDs []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var missing []string
	for _, id := range stepIDs {
		if _, ok := r.steps[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return types.NewError(types.ErrStepNotBound,
			fmt.Sprintf("no collaborator bound for steps: %s", strings.Join(missing, ", ")))
	}
	return nil
}
