// Package archive 将完成的执行快照落库, 供事后审计与回放。
//
// 归档是可选能力: 服务在未配置数据库时持 nil Archive, 所有方法
// 对 nil 接收者安全返回 ErrDisabled。落库失败只记日志, 不影响
// 当次查询的返回。
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/internal/database"
)

// =============================================================================
// 🗄️ 运行归档
// =============================================================================

var (
	// ErrDisabled 归档未启用 (nil Archive)。
	ErrDisabled = errors.New("run archive disabled")
	// ErrNotFound 指定执行不存在。
	ErrNotFound = errors.New("run record not found")
	// ErrInvalidSnapshot 快照缺少必要字段。
	ErrInvalidSnapshot = errors.New("invalid run snapshot")
)

// poolProbeInterval 服务方式打开时的连接探活间隔。
const poolProbeInterval = 30 * time.Second

// Archive 基于 gorm 的运行归档存储。
type Archive struct {
	db     *gorm.DB
	pool   *database.Pool
	logger *zap.Logger
}

// Open 按配置打开归档数据库并迁移表结构。
// 支持 postgres、mysql 与 sqlite (纯 Go 驱动, 无需 cgo)。
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*Archive, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "mysql":
		dialector = mysql.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported archive driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}

	archive, err := newArchive(db, database.Options{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ProbeInterval:   poolProbeInterval,
	}, logger)
	if err != nil {
		return nil, err
	}

	archive.logger.Info("run archive ready", zap.String("driver", cfg.Driver))
	return archive, nil
}

// New 在已打开的 gorm 连接上构建归档并迁移表结构。测试与嵌入场景用,
// 池参数取默认值且不做后台探活。
func New(db *gorm.DB, logger *zap.Logger) (*Archive, error) {
	return newArchive(db, database.Options{}, logger)
}

func newArchive(db *gorm.DB, poolOpts database.Options, logger *zap.Logger) (*Archive, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate run records: %w", err)
	}

	pool, err := database.NewPool(db, poolOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("configure archive pool: %w", err)
	}

	return &Archive{
		db:     db,
		pool:   pool,
		logger: logger.With(zap.String("component", "archive")),
	}, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// Save 归档一次执行。终态由轨迹推导, 质量分以辩论裁决为准
// (有裁决时), 否则取评审结论。
func (a *Archive) Save(ctx context.Context, snap *RunSnapshot) (*RunRecord, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: snapshot is nil", ErrInvalidSnapshot)
	}
	if snap.Trace == nil || snap.Trace.ExecutionID == "" {
		return nil, fmt.Errorf("%w: trace with execution id is required", ErrInvalidSnapshot)
	}

	record := &RunRecord{
		ExecutionID: snap.Trace.ExecutionID,
		SessionID:   snap.SessionID,
		Intent:      snap.Trace.Intent,
		Status:      statusFor(snap.Trace),
		Query:       snap.Query,
		DurationMS:  float64(snap.Trace.Duration.Microseconds()) / 1000.0,
	}

	var err error
	if snap.Plan != nil {
		if record.Plan, err = encodeJSON(snap.Plan); err != nil {
			return nil, fmt.Errorf("encode plan: %w", err)
		}
	}
	if record.Trace, err = encodeJSON(snap.Trace); err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	if snap.Assessment != nil {
		if record.Assessment, err = encodeJSON(snap.Assessment); err != nil {
			return nil, fmt.Errorf("encode assessment: %w", err)
		}
		record.Score = snap.Assessment.Score
		record.Approved = snap.Assessment.Approved
	}
	if snap.Resolution != nil {
		if record.Resolution, err = encodeJSON(snap.Resolution); err != nil {
			return nil, fmt.Errorf("encode resolution: %w", err)
		}
		record.Score = snap.Resolution.Score
		record.Approved = snap.Resolution.Approved
	}

	if err := a.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("save run record: %w", err)
	}

	a.logger.Debug("run archived",
		zap.String("execution_id", record.ExecutionID),
		zap.String("status", string(record.Status)),
		zap.Float64("score", record.Score),
	)
	return record, nil
}

// Get 按执行 id 取回归档记录。
func (a *Archive) Get(ctx context.Context, executionID string) (*RunRecord, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	var record RunRecord
	err := a.db.WithContext(ctx).Where("execution_id = ?", executionID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run record: %w", err)
	}
	return &record, nil
}

// ListOptions 过滤与分页。零值字段不参与过滤。
type ListOptions struct {
	SessionID string
	Intent    string
	Status    RunStatus
	Limit     int
}

// List 按归档时间倒序返回记录。
func (a *Archive) List(ctx context.Context, opts ListOptions) ([]RunRecord, error) {
	if a == nil {
		return nil, ErrDisabled
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := a.db.WithContext(ctx).Model(&RunRecord{})
	if opts.SessionID != "" {
		query = query.Where("session_id = ?", opts.SessionID)
	}
	if opts.Intent != "" {
		query = query.Where("intent = ?", opts.Intent)
	}
	if opts.Status != "" {
		query = query.Where("status = ?", opts.Status)
	}

	var records []RunRecord
	err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list run records: %w", err)
	}
	return records, nil
}

// Prune 删除早于保留期的记录, 返回删除条数。
func (a *Archive) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if a == nil {
		return 0, ErrDisabled
	}
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %s", retention)
	}

	cutoff := time.Now().Add(-retention)
	result := a.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&RunRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("prune run records: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		a.logger.Info("pruned run records",
			zap.Int64("removed", result.RowsAffected),
			zap.Time("cutoff", cutoff),
		)
	}
	return result.RowsAffected, nil
}

// Count 返回归档记录总数。
func (a *Archive) Count(ctx context.Context) (int64, error) {
	if a == nil {
		return 0, ErrDisabled
	}
	var count int64
	if err := a.db.WithContext(ctx).Model(&RunRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count run records: %w", err)
	}
	return count, nil
}

// Ping 检查数据库连接。
func (a *Archive) Ping(ctx context.Context) error {
	if a == nil {
		return ErrDisabled
	}
	return a.pool.Ping(ctx)
}

// Close 停止探活并关闭底层连接。
func (a *Archive) Close() error {
	if a == nil {
		return nil
	}
	return a.pool.Close()
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
