package workflow

import (
	"context"
	"time"
)

// EventStatus 进度事件状态。
type EventStatus string

const (
	// EventRunning 步骤开始执行
	EventRunning EventStatus = "running"
	// EventCompleted 步骤成功完成
	EventCompleted EventStatus = "completed"
	// EventFailed 步骤失败(校验失败或执行失败)
	EventFailed EventStatus = "failed"
	// EventSkipped 步骤因取消或超时被跳过
	EventSkipped EventStatus = "skipped"
	// EventComplete 终态: 计划执行结束
	EventComplete EventStatus = "complete"
	// EventError 终态: 计划级失败(超时/取消/装配错误)
	EventError EventStatus = "error"
)

// ProgressEvent 单条进度事件。事件通过单消费者有序通道投递,
// 序列以 complete 或 error 终态事件收尾。
type ProgressEvent struct {
	StepID    string      `json:"step_id,omitempty"`
	Status    EventStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ProgressEmitter 接收进度事件的回调。执行器可能从并行组成员的
// goroutine 并发调用, 实现必须并发安全。
type ProgressEmitter func(ProgressEvent)

type progressEmitterKey struct{}

// WithProgressEmitter 把进度回调挂到 context 上。
func WithProgressEmitter(ctx context.Context, emitter ProgressEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, progressEmitterKey{}, emitter)
}

func progressEmitterFromContext(ctx context.Context) (ProgressEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(progressEmitterKey{})
	if v == nil {
		return nil, false
	}
	emit, ok := v.(ProgressEmitter)
	return emit, ok && emit != nil
}

// emitProgress 发射事件; context 上没有回调时为空操作。
func emitProgress(ctx context.Context, stepID string, status EventStatus, message string) {
	emit, ok := progressEmitterFromContext(ctx)
	if !ok {
		return
	}
	emit(ProgressEvent{
		StepID:    stepID,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	})
}
