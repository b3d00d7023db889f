package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// =============================================================================
// 🔧 迁移命令行交互层
// =============================================================================

// CLI 把 Migrator 包装成面向终端的迁移命令, 负责进度与状态的格式化输出。
type CLI struct {
	migrator Migrator
	out      io.Writer
}

// NewCLI 构建迁移命令行交互层, 默认输出到标准输出。
func NewCLI(m Migrator) *CLI {
	return &CLI{migrator: m, out: os.Stdout}
}

// SetOutput 重定向输出, 主要供测试使用。
func (c *CLI) SetOutput(w io.Writer) {
	c.out = w
}

// RunUp 应用所有未执行的迁移并报告最终版本。
func (c *CLI) RunUp(ctx context.Context) error {
	fmt.Fprintln(c.out, "applying pending migrations...")

	if err := c.migrator.Up(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return c.reportVersion(ctx, "migrations applied")
}

// RunDown 回滚最近一次迁移。
func (c *CLI) RunDown(ctx context.Context) error {
	fmt.Fprintln(c.out, "rolling back last migration...")

	if err := c.migrator.Down(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return c.reportVersion(ctx, "rollback complete")
}

// RunDownAll 回滚全部迁移。
func (c *CLI) RunDownAll(ctx context.Context) error {
	fmt.Fprintln(c.out, "rolling back all migrations...")

	if err := c.migrator.DownAll(ctx); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Fprintln(c.out, "all migrations rolled back")
	return nil
}

// RunSteps 执行 n 个迁移, 负数表示回滚。
func (c *CLI) RunSteps(ctx context.Context, n int) error {
	if n >= 0 {
		fmt.Fprintf(c.out, "applying %d migration(s)...\n", n)
	} else {
		fmt.Fprintf(c.out, "rolling back %d migration(s)...\n", -n)
	}

	if err := c.migrator.Steps(ctx, n); err != nil {
		return fmt.Errorf("migration steps failed: %w", err)
	}
	return c.reportVersion(ctx, "done")
}

// RunGoto 迁移到指定版本。
func (c *CLI) RunGoto(ctx context.Context, version uint) error {
	fmt.Fprintf(c.out, "migrating to version %d...\n", version)

	if err := c.migrator.Goto(ctx, version); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(c.out, "now at version %d\n", version)
	return nil
}

// RunForce 强制写入版本号, 用于修复 dirty 状态。
func (c *CLI) RunForce(ctx context.Context, version int) error {
	if err := c.migrator.Force(ctx, version); err != nil {
		return fmt.Errorf("force failed: %w", err)
	}

	fmt.Fprintf(c.out, "version forced to %d\n", version)
	return nil
}

// RunVersion 打印当前迁移版本。
func (c *CLI) RunVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to get version: %w", err)
	}

	if version == 0 {
		fmt.Fprintln(c.out, "no migrations applied yet")
		return nil
	}

	if dirty {
		fmt.Fprintf(c.out, "current version: %d (dirty)\n", version)
	} else {
		fmt.Fprintf(c.out, "current version: %d\n", version)
	}
	return nil
}

// RunStatus 打印每个迁移版本的状态表与进度摘要。
func (c *CLI) RunStatus(ctx context.Context) error {
	states, err := c.migrator.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	if len(states) == 0 {
		fmt.Fprintln(c.out, "no migrations found")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	for _, s := range states {
		status := "pending"
		switch {
		case s.Dirty:
			status = "dirty"
		case s.Applied:
			status = "applied"
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, status)
	}
	w.Flush()

	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\ntotal %d, applied %d, pending %d\n",
		info.Total, info.Applied, info.Pending)
	return nil
}

// reportVersion 打印一条带当前版本号的结果行。
func (c *CLI) reportVersion(ctx context.Context, verb string) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s, current version: %d\n", verb, info.CurrentVersion)
	return nil
}
