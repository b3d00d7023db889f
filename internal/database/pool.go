// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范, 该许可可以
// 在 LICENSE 文件中找到。

package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// probeTimeout 单次探活的时间上限。
const probeTimeout = 5 * time.Second

// =============================================================================
// 🗄️ 连接池
// =============================================================================

// Options 连接池参数。零值字段取默认值。
type Options struct {
	// MaxOpenConns 最大打开连接数, 默认 25。
	MaxOpenConns int
	// MaxIdleConns 最大空闲连接数, 默认 5。
	MaxIdleConns int
	// ConnMaxLifetime 连接最大生命周期, 默认 1h。
	ConnMaxLifetime time.Duration
	// ProbeInterval 后台探活间隔, 零值关闭探活。
	ProbeInterval time.Duration
}

// Pool 池化的归档库句柄。
type Pool struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	logger *zap.Logger
	stop   chan struct{}
	once   sync.Once
}

// NewPool 在已打开的 gorm 连接上应用池参数, 并按需启动探活循环。
func NewPool(db *gorm.DB, opts Options, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	p := &Pool{
		db:     db,
		sqlDB:  sqlDB,
		logger: logger.With(zap.String("component", "db_pool")),
		stop:   make(chan struct{}),
	}
	if opts.ProbeInterval > 0 {
		go p.probeLoop(opts.ProbeInterval)
	}

	p.logger.Info("database pool configured",
		zap.Int("max_open_conns", opts.MaxOpenConns),
		zap.Int("max_idle_conns", opts.MaxIdleConns),
		zap.Duration("conn_max_lifetime", opts.ConnMaxLifetime),
	)
	return p, nil
}

// DB 返回 gorm 句柄。
func (p *Pool) DB() *gorm.DB { return p.db }

// Ping 检查数据库连通性。
func (p *Pool) Ping(ctx context.Context) error {
	return p.sqlDB.PingContext(ctx)
}

// Close 停止探活并关闭底层连接。重复调用安全。
func (p *Pool) Close() error {
	var err error
	p.once.Do(func() {
		close(p.stop)
		err = p.sqlDB.Close()
	})
	return err
}

// =============================================================================
// 📊 统计与探活
// =============================================================================

// Stats 连接池统计快照。
type Stats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// Stats 返回当前连接池统计。
func (p *Pool) Stats() Stats {
	s := p.sqlDB.Stats()
	return Stats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}

func (p *Pool) probeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
			if err := p.Ping(ctx); err != nil {
				p.logger.Warn("database probe failed", zap.Error(err))
			} else {
				s := p.Stats()
				p.logger.Debug("database probe ok",
					zap.Int("open_connections", s.OpenConnections),
					zap.Int("in_use", s.InUse),
					zap.Int("idle", s.Idle),
				)
			}
			cancel()
		}
	}
}
