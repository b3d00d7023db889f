package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// =============================================================================
// 🗄️ Schema 迁移引擎
// =============================================================================

//go:embed migrations
var migrationsFS embed.FS

// Dialect 数据库方言
type Dialect string

const (
	// DialectPostgres PostgreSQL 方言
	DialectPostgres Dialect = "postgres"
	// DialectMySQL MySQL 方言
	DialectMySQL Dialect = "mysql"
	// DialectSQLite SQLite 方言
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect 解析方言字符串, 接受常见别名。
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported migration dialect: %s", s)
	}
}

// Config 迁移引擎配置
type Config struct {
	// Dialect 数据库方言
	Dialect Dialect

	// DSN 数据库连接串, 拼装规则与 config.DatabaseConfig.DSN 一致
	DSN string

	// Table 迁移版本表名, 默认 schema_migrations
	Table string

	// StatementTimeout 单条迁移语句超时, 仅 PostgreSQL 生效
	StatementTimeout time.Duration
}

// StepState 单个迁移版本的状态
type StepState struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Summary 迁移整体进度摘要
type Summary struct {
	CurrentVersion uint
	Dirty          bool
	Total          int
	Applied        int
	Pending        int
}

// Migrator 迁移操作接口。CLI 依赖该接口而非具体引擎。
type Migrator interface {
	// Up 应用所有未执行的迁移
	Up(ctx context.Context) error

	// Down 回滚最近一次迁移
	Down(ctx context.Context) error

	// DownAll 回滚全部迁移
	DownAll(ctx context.Context) error

	// Steps 执行 n 个迁移, 负数表示回滚
	Steps(ctx context.Context, n int) error

	// Goto 迁移到指定版本
	Goto(ctx context.Context, version uint) error

	// Force 强制写入版本号并清除 dirty 标记, 不执行任何 SQL
	Force(ctx context.Context, version int) error

	// Version 返回当前版本与 dirty 标记, 未迁移时版本为 0
	Version(ctx context.Context) (uint, bool, error)

	// Status 返回每个迁移版本的应用状态
	Status(ctx context.Context) ([]StepState, error)

	// Info 返回迁移进度摘要
	Info(ctx context.Context) (*Summary, error)

	// Close 释放迁移引擎与数据库连接
	Close() error
}

// Engine 基于 golang-migrate 的 Migrator 默认实现
type Engine struct {
	cfg     *Config
	db      *sql.DB
	driver  database.Driver
	migrate *migrate.Migrate
}

var _ Migrator = (*Engine)(nil)

// New 构建迁移引擎并建立数据库连接。
func New(cfg *Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("migration config cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, errors.New("migration dsn cannot be empty")
	}
	if cfg.Table == "" {
		cfg.Table = "schema_migrations"
	}

	e := &Engine{cfg: cfg}
	if err := e.init(); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to initialize migration engine: %w", err)
	}
	return e, nil
}

func (e *Engine) init() error {
	var err error

	if e.db, err = e.openDB(); err != nil {
		return err
	}
	if e.driver, err = e.databaseDriver(); err != nil {
		return err
	}

	src, err := iofs.New(migrationsFS, dialectDir(e.cfg.Dialect))
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	e.migrate, err = migrate.NewWithInstance("iofs", src, string(e.cfg.Dialect), e.driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return nil
}

// openDB 连接数据库并验证连通性。sqlite 方言走 mattn 驱动("sqlite3"),
// 随 golang-migrate 的 sqlite3 数据库驱动一起注册。
func (e *Engine) openDB() (*sql.DB, error) {
	var driverName string
	switch e.cfg.Dialect {
	case DialectPostgres:
		driverName = "postgres"
	case DialectMySQL:
		driverName = "mysql"
	case DialectSQLite:
		driverName = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported migration dialect: %s", e.cfg.Dialect)
	}

	db, err := sql.Open(driverName, e.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (e *Engine) databaseDriver() (database.Driver, error) {
	switch e.cfg.Dialect {
	case DialectPostgres:
		return postgres.WithInstance(e.db, &postgres.Config{
			MigrationsTable:  e.cfg.Table,
			StatementTimeout: e.cfg.StatementTimeout,
		})
	case DialectMySQL:
		return mysql.WithInstance(e.db, &mysql.Config{
			MigrationsTable: e.cfg.Table,
		})
	case DialectSQLite:
		return sqlite3.WithInstance(e.db, &sqlite3.Config{
			MigrationsTable: e.cfg.Table,
		})
	default:
		return nil, fmt.Errorf("unsupported migration dialect: %s", e.cfg.Dialect)
	}
}

// Up 应用所有未执行的迁移。已是最新版本时不视为错误。
func (e *Engine) Up(ctx context.Context) error {
	if err := e.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down 回滚最近一次迁移。
func (e *Engine) Down(ctx context.Context) error {
	if err := e.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// DownAll 回滚全部迁移。
func (e *Engine) DownAll(ctx context.Context) error {
	if err := e.migrate.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down all failed: %w", err)
	}
	return nil
}

// Steps 执行 n 个迁移, 负数表示回滚。
func (e *Engine) Steps(ctx context.Context, n int) error {
	if err := e.migrate.Steps(n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return nil
}

// Goto 迁移到指定版本, 自动判断方向。
func (e *Engine) Goto(ctx context.Context, version uint) error {
	if err := e.migrate.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration goto failed: %w", err)
	}
	return nil
}

// Force 强制写入版本号并清除 dirty 标记, 用于人工修复失败的迁移。
func (e *Engine) Force(ctx context.Context, version int) error {
	if err := e.migrate.Force(version); err != nil {
		return fmt.Errorf("migration force failed: %w", err)
	}
	return nil
}

// Version 返回当前版本与 dirty 标记。未执行任何迁移时返回 (0, false, nil)。
func (e *Engine) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := e.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Status 返回每个迁移版本的应用状态。
// 迁移按版本号顺序执行, 版本号不大于当前版本即视为已应用。
func (e *Engine) Status(ctx context.Context) ([]StepState, error) {
	current, dirty, err := e.Version(ctx)
	if err != nil {
		return nil, err
	}

	files, err := availableMigrations(e.cfg.Dialect)
	if err != nil {
		return nil, err
	}

	states := make([]StepState, 0, len(files))
	for _, f := range files {
		states = append(states, StepState{
			Version: f.version,
			Name:    f.name,
			Applied: f.version <= current,
			Dirty:   dirty && f.version == current,
		})
	}
	return states, nil
}

// Info 返回迁移进度摘要。
func (e *Engine) Info(ctx context.Context) (*Summary, error) {
	current, dirty, err := e.Version(ctx)
	if err != nil {
		return nil, err
	}

	files, err := availableMigrations(e.cfg.Dialect)
	if err != nil {
		return nil, err
	}

	applied := 0
	for _, f := range files {
		if f.version <= current {
			applied++
		}
	}

	return &Summary{
		CurrentVersion: current,
		Dirty:          dirty,
		Total:          len(files),
		Applied:        applied,
		Pending:        len(files) - applied,
	}, nil
}

// Close 关闭迁移引擎与数据库连接。
// migrate 驱动只归还它借出的单个连接, 连接池由引擎自己关闭。
func (e *Engine) Close() error {
	var errs []error

	if e.migrate != nil {
		srcErr, dbErr := e.migrate.Close()
		errs = append(errs, srcErr, dbErr)
		e.migrate = nil
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
		e.db = nil
	}

	return errors.Join(errs...)
}

// =============================================================================
// 🔧 内嵌迁移文件枚举
// =============================================================================

type migrationFile struct {
	version uint
	name    string
}

func dialectDir(d Dialect) string {
	return "migrations/" + string(d)
}

// availableMigrations 枚举指定方言的内嵌迁移, 按版本号升序。
// 文件名格式 NNNNNN_name.up.sql, 不合规的文件直接跳过。
func availableMigrations(d Dialect) ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationsFS, dialectDir(d))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations for %s: %w", d, err)
	}

	seen := make(map[uint]bool)
	var files []migrationFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}

		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil || seen[uint(version)] {
			continue
		}
		seen[uint(version)] = true

		files = append(files, migrationFile{
			version: uint(version),
			name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}
