// Package session 管理跨请求的会话上下文。
//
// 会话记录每个调用方会话上传过的数据上下文与最近一次执行结果,
// 供后续查询复用。核心流水线自身无状态, 凡是跨请求的东西都住在这里。
//
// 支持三种后端:
//   - memory: 开发与测试 (默认)
//   - file:   单节点部署
//   - redis:  分布式部署
package session

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/queryflow/workflow"
)

// 各后端共享的哨兵错误。
var (
	ErrNotFound     = errors.New("session not found")
	ErrStoreClosed  = errors.New("session store is closed")
	ErrInvalidInput = errors.New("invalid session input")
)

// StoreType 存储后端类型。
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// Session 单个调用方会话的持久上下文。
type Session struct {
	// ID 由调用方提供, 核心不生成会话标识。
	ID string `json:"id"`

	// FileContext 会话内上传的数据上下文, 后续查询直接复用。
	FileContext map[string]any `json:"file_context,omitempty"`

	// SchemaHint 调用方声明的数据结构提示。
	SchemaHint string `json:"schema_hint,omitempty"`

	// LastIntent 最近一次执行的意图。
	LastIntent string `json:"last_intent,omitempty"`

	// LastTrace 最近一次执行的完整追踪。
	LastTrace *workflow.ExecutionTrace `json:"last_trace,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store 会话存储接口。实现必须可并发使用。
type Store interface {
	// Get 按 ID 读取会话, 不存在或已过期时返回 ErrNotFound。
	Get(ctx context.Context, id string) (*Session, error)

	// Save 写入会话 (upsert), 自动维护时间戳。
	Save(ctx context.Context, sess *Session) error

	// Delete 删除会话, 不存在时静默成功。
	Delete(ctx context.Context, id string) error

	// List 返回全部会话 ID, 升序。
	List(ctx context.Context) ([]string, error)

	// Close 关闭存储并释放资源。
	Close() error

	// Ping 健康检查。
	Ping(ctx context.Context) error
}

// RedisStoreConfig Redis 后端连接参数。
type RedisStoreConfig struct {
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	PoolSize  int    `json:"pool_size" yaml:"pool_size"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// StoreConfig 存储配置, 零值回落到内存后端。
type StoreConfig struct {
	// Type 后端类型。
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir 文件后端的根目录。
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// TTL 会话保留时长, 0 表示不过期。
	// 内存与文件后端在读取时惰性判定过期, Redis 后端用原生键过期。
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// Redis 后端连接参数, Type 为 redis 时生效。
	Redis RedisStoreConfig `json:"redis" yaml:"redis"`
}

// DefaultStoreConfig 返回默认存储配置。
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/sessions",
		TTL:     24 * time.Hour,
		Redis: RedisStoreConfig{
			Host:      "localhost",
			Port:      6379,
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "queryflow:",
		},
	}
}

// expired 判定会话在给定 TTL 下是否已过期。
func expired(sess *Session, ttl time.Duration, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(sess.UpdatedAt) > ttl
}
