package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/BaSui01/agenthive/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate hived migrate <subcommand> [N] [flags]
func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}
	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage()
		return
	}

	// steps/goto/force 的版本号在 flag 之前
	var positional []string
	rest := args[1:]
	if len(rest) > 0 && isPositional(rest[0]) {
		positional, rest = rest[:1], rest[1:]
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dbType := fs.String("db-type", "", "Database type (postgres, mysql, sqlite)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	verbose := fs.Bool("verbose", false, "Log migration progress")
	_ = fs.Parse(rest)

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}

	migrator, err := createMigrator(*configPath, *dbType, *dbURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migration.NewCLI(migrator).Run(ctx, sub, positional); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", sub, err)
		os.Exit(1)
	}
}

// isPositional 非 flag 的参数，允许 steps -1 这样的负数
func isPositional(arg string) bool {
	if !strings.HasPrefix(arg, "-") {
		return true
	}
	_, err := strconv.Atoi(arg)
	return err == nil
}

// createMigrator --db-type 与 --db-url 同时给出时直接使用，否则读取配置
func createMigrator(configPath, dbType, dbURL string, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	cfg := loadConfig(configPath)
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromConfig(cfg, logger)
}

func printMigrateUsage() {
	fmt.Println(`Database Migration Commands

Usage:
  hived migrate <subcommand> [N] [options]

Subcommands:
  up          Apply all pending migrations
  down        Roll back the last migration
  reset       Roll back all migrations
  steps <n>   Apply (n>0) or roll back (n<0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  status      Show migration status
  version     Show current migration version
  info        Show migration summary

Options:
  --config <path>     Path to configuration file
  --db-type <type>    postgres, mysql or sqlite (default: from config)
  --db-url <url>      Connection URL (default: from config)
  --verbose           Log migration progress

Examples:
  hived migrate up --config /etc/agenthive/config.yaml
  hived migrate steps -1
  hived migrate goto 1 --db-type sqlite --db-url "sqlite3://hive.db"`)
}
