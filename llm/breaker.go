package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// breakerState 熔断器状态。
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断参数。零值字段取默认值。
type BreakerConfig struct {
	// FailureThreshold 连续失败次数阈值, 达到后熔断, 默认 5。
	FailureThreshold int
	// RecoveryTimeout 熔断后进入半开探测前的等待, 默认 30s。
	RecoveryTimeout time.Duration
	// HalfOpenMaxProbes 半开状态放行的探测请求数, 默认 3。
	HalfOpenMaxProbes int
	// HalfOpenSuccesses 半开状态连续成功多少次后闭合, 默认 2。
	HalfOpenSuccesses int
}

func (c *BreakerConfig) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = 3
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = 2
	}
}

// Breaker 包装 Provider 的熔断器。连续上游失败达到阈值后直接拒绝
// 请求, 让调用方立刻走各自的降级路径, 而不是逐个请求等到超时。
//
// 取消类错误 (调用方断开) 与参数、内容类错误 (LLM_INVALID_REQUEST、
// LLM_CONTENT_FILTERED) 不计入失败; 健康检查直连内层, 不经过熔断
// 判定。熔断拒绝返回 LLM_MODEL_OVERLOADED, 可重试。
type Breaker struct {
	inner  Provider
	cfg    BreakerConfig
	logger *zap.Logger

	mu          sync.Mutex
	state       breakerState
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
}

// NewBreaker 在 provider 外层加熔断。
func NewBreaker(inner Provider, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		inner:  inner,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm.breaker"), zap.String("provider", inner.Name())),
	}
}

// Name 返回内层 Provider 的标识。
func (b *Breaker) Name() string { return b.inner.Name() }

// Completion 同步请求, 经熔断判定后转发。
func (b *Breaker) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	resp, err := b.inner.Completion(ctx, req)
	b.record(err)
	return resp, err
}

// Stream 流式请求。流内终态错误同样计入熔断统计, 因此下行通道
// 被转发一层, 在内层通道关闭后结算本次成败。
func (b *Breaker) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if err := b.allow(); err != nil {
		return nil, err
	}
	ch, err := b.inner.Stream(ctx, req)
	if err != nil {
		b.record(err)
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var streamErr error
		for chunk := range ch {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			out <- chunk
		}
		b.record(streamErr)
	}()
	return out, nil
}

// HealthCheck 直连内层探测。
func (b *Breaker) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	return b.inner.HealthCheck(ctx)
}

// allow 判定是否放行, 拒绝时返回熔断错误。
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil

	case breakerOpen:
		if wait := b.cfg.RecoveryTimeout - time.Since(b.lastFailure); wait > 0 {
			return b.rejectionLocked(fmt.Sprintf("%d consecutive failures, retry in %s", b.failures, wait.Round(time.Second)))
		}
		b.transitionLocked(breakerHalfOpen, "recovery timeout elapsed")
		b.probes = 1
		b.successes = 0
		return nil

	case breakerHalfOpen:
		if b.probes < b.cfg.HalfOpenMaxProbes {
			b.probes++
			return nil
		}
		return b.rejectionLocked(fmt.Sprintf("half-open probe limit (%d) reached", b.cfg.HalfOpenMaxProbes))

	default:
		return b.rejectionLocked("unknown breaker state")
	}
}

// record 结算一次调用。计入规则见类型注释。
func (b *Breaker) record(err error) {
	if err == nil {
		b.onSuccess()
		return
	}
	if !tripping(err) {
		return
	}
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		b.failures = 0
	case breakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenSuccesses {
			b.transitionLocked(breakerClosed, fmt.Sprintf("%d consecutive successes in half-open", b.successes))
			b.failures = 0
			b.successes = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case breakerClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transitionLocked(breakerOpen, fmt.Sprintf("%d consecutive failures", b.failures))
		}
	case breakerHalfOpen:
		b.successes = 0
		b.transitionLocked(breakerOpen, "failure in half-open state")
	}
}

// tripping 判定错误是否计入熔断。
func tripping(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var perr *Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case ErrInvalidRequest, ErrContentFiltered:
			return false
		}
	}
	return true
}

// rejectionLocked 构造熔断拒绝错误, 须持锁调用。
func (b *Breaker) rejectionLocked(reason string) error {
	return &Error{
		Code:       ErrModelOverloaded,
		Message:    fmt.Sprintf("provider %s rejected by circuit breaker: %s", b.inner.Name(), reason),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Provider:   b.inner.Name(),
	}
}

// transitionLocked 状态转换, 须持锁调用。
func (b *Breaker) transitionLocked(next breakerState, reason string) {
	prev := b.state
	b.state = next
	b.logger.Info("circuit breaker state change",
		zap.String("old_state", prev.String()),
		zap.String("new_state", next.String()),
		zap.String("reason", reason),
		zap.Int("failures", b.failures))
}
