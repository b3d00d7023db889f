package migration

import (
	"errors"
	"fmt"
	"strings"

	appconfig "github.com/BaSui01/queryflow/config"
)

// NewFromConfig 从应用配置构建迁移引擎。归档库未启用时拒绝执行,
// 避免对着一个不会被使用的库跑迁移。
func NewFromConfig(cfg *appconfig.Config) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if !cfg.Database.Enabled {
		return nil, errors.New("run archive database is disabled, enable database.enabled before migrating")
	}
	return NewFromDatabaseConfig(cfg.Database)
}

// NewFromDatabaseConfig 从归档数据库配置构建迁移引擎。
func NewFromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*Engine, error) {
	dialect, err := ParseDialect(dbCfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := migrationDSN(dialect, dbCfg)
	if dsn == "" {
		return nil, fmt.Errorf("database config produced an empty dsn for driver %q", dbCfg.Driver)
	}

	return New(&Config{
		Dialect: dialect,
		DSN:     dsn,
		Table:   "schema_migrations",
	})
}

// migrationDSN 在 DatabaseConfig.DSN 的基础上补齐迁移连接需要的参数。
// MySQL 的迁移文件可能包含多条语句, 必须开启 multiStatements。
func migrationDSN(dialect Dialect, dbCfg appconfig.DatabaseConfig) string {
	dsn := dbCfg.DSN()
	if dialect == DialectMySQL && !strings.Contains(dsn, "multiStatements=") {
		dsn += "&multiStatements=true"
	}
	return dsn
}

// NewFromDSN 从方言字符串与连接串直接构建迁移引擎。
func NewFromDSN(driver, dsn string) (*Engine, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("dsn cannot be empty for dialect %s", dialect)
	}
	return New(&Config{
		Dialect: dialect,
		DSN:     dsn,
		Table:   "schema_migrations",
	})
}
