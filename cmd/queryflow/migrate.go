package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/BaSui01/queryflow/config"
	"github.com/BaSui01/queryflow/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移子命令
// =============================================================================

// runMigrate 分派 migrate 子命令
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	subargs := args[1:]

	switch subcommand {
	case "up":
		runMigrateUp(subargs)
	case "down":
		runMigrateDown(subargs)
	case "status":
		runMigrateStatus(subargs)
	case "version":
		runMigrateVersion(subargs)
	case "goto":
		runMigrateGoto(subargs)
	case "force":
		runMigrateForce(subargs)
	case "reset":
		runMigrateReset(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  queryflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  status    Show migration status
  version   Show current migration version
  goto      Migrate to a specific version
  force     Force set migration version (use with caution)
  reset     Rollback all migrations
  help      Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)

Examples:
  queryflow migrate up
  queryflow migrate up --config /etc/queryflow/config.yaml
  queryflow migrate down
  queryflow migrate down --all
  queryflow migrate status
  queryflow migrate goto 1
  queryflow migrate force 0
  queryflow migrate reset`)
}

// migrateFlags 注册 migrate 子命令共享的 flag
type migrateFlags struct {
	configPath *string
	dbType     *string
	dbURL      *string
}

func registerMigrateFlags(fs *flag.FlagSet) migrateFlags {
	return migrateFlags{
		configPath: fs.String("config", "", "Path to config file"),
		dbType:     fs.String("db-type", "", "Database type (postgres, mysql, sqlite)"),
		dbURL:      fs.String("db-url", "", "Database connection URL"),
	}
}

// createEngine 按 flag 构造迁移引擎。显式给出 db-type + db-url 时
// 直接使用, 否则从配置文件加载数据库参数。
func createEngine(fs *flag.FlagSet, args []string) (*migration.Engine, error) {
	flags := registerMigrateFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *flags.dbType != "" && *flags.dbURL != "" {
		return migration.NewFromDSN(*flags.dbType, *flags.dbURL)
	}

	loader := config.NewLoader()
	if *flags.configPath != "" {
		loader = loader.WithConfigPath(*flags.configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if *flags.dbType != "" {
		cfg.Database.Driver = *flags.dbType
	}

	return migration.NewFromDatabaseConfig(cfg.Database)
}

// runWithEngine 构造引擎并执行一个 CLI 动作, 统一错误出口
func runWithEngine(name string, args []string, action func(context.Context, *migration.CLI) error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	engine, err := createEngine(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	cli := migration.NewCLI(engine)
	if err := action(context.Background(), cli); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		os.Exit(1)
	}
}

func runMigrateUp(args []string) {
	runWithEngine("migrate up", args, func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunUp(ctx)
	})
}

func runMigrateDown(args []string) {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback all migrations")
	engine, err := createEngine(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	cli := migration.NewCLI(engine)
	ctx := context.Background()

	if *all {
		err = cli.RunDownAll(ctx)
	} else {
		err = cli.RunDown(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration rollback failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateStatus(args []string) {
	runWithEngine("migrate status", args, func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunStatus(ctx)
	})
}

func runMigrateVersion(args []string) {
	runWithEngine("migrate version", args, func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunVersion(ctx)
	})
}

func runMigrateGoto(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: queryflow migrate goto <version>\n")
		os.Exit(1)
	}
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}
	runWithEngine("migrate goto", args[1:], func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunGoto(ctx, uint(version))
	})
}

func runMigrateForce(args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: queryflow migrate force <version>\n")
		os.Exit(1)
	}
	version, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid version number: %s\n", args[0])
		os.Exit(1)
	}
	runWithEngine("migrate force", args[1:], func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunForce(ctx, int(version))
	})
}

func runMigrateReset(args []string) {
	runWithEngine("migrate reset", args, func(ctx context.Context, cli *migration.CLI) error {
		return cli.RunDownAll(ctx)
	})
}
