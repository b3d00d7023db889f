// 版权所有 2025 QueryFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理运行归档库的 Schema 版本化迁移，基于 golang-migrate
实现，支持 PostgreSQL、MySQL 与 SQLite 三种方言。

# 概述

迁移 SQL 按方言内嵌在二进制中（embed.FS），每个版本一对
NNNNNN_name.up.sql / .down.sql 文件。归档包在启动时仍会执行
AutoMigrate 作为兜底，生产部署建议先通过 `queryflow migrate up`
应用版本化迁移，使 AutoMigrate 退化为空操作。

# 核心类型

  - Migrator：迁移操作接口（Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close），CLI 层依赖该接口以便测试替身。
  - Engine：Migrator 的默认实现，封装 golang-migrate 实例与
    数据库连接的生命周期。
  - Dialect：数据库方言枚举（postgres/mysql/sqlite）。
  - CLI：命令行交互层，面向终端输出格式化的迁移状态。

# 工厂函数

NewFromConfig / NewFromDatabaseConfig 从应用配置构建迁移引擎，
连接串复用 config.DatabaseConfig.DSN 的拼装规则，与归档包保持一致。

# SQLite 驱动说明

迁移引擎的 sqlite 方言经由 mattn/go-sqlite3（驱动名 "sqlite3"，
需要 CGO）执行；归档包运行时使用 glebarez/sqlite（驱动名
"sqlite"，纯 Go）。两者注册名不同，可以安全地链接进同一个二进制。
*/
package migration
