// cmd/migrate — 手动执行数据库迁移 (守护进程启动时也会自动执行)。
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/xf-main/CodexMonitor/internal/config"
	"github.com/xf-main/CodexMonitor/internal/database"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.PostgresConnStr == "" {
		fmt.Fprintln(os.Stderr, "POSTGRES_CONNECTION_STRING not set")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migration complete")
}
