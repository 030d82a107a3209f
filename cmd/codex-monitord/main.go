// cmd/codex-monitord — 线程同步守护进程主入口。
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/xf-main/CodexMonitor/internal/appserver"
	"github.com/xf-main/CodexMonitor/internal/config"
	"github.com/xf-main/CodexMonitor/internal/dashboard"
	"github.com/xf-main/CodexMonitor/internal/database"
	"github.com/xf-main/CodexMonitor/internal/store"
	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/internal/threadsync"
	"github.com/xf-main/CodexMonitor/internal/workspace"
	"github.com/xf-main/CodexMonitor/pkg/logger"
	"github.com/xf-main/CodexMonitor/pkg/util"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.Env)
	if cfg.LogDir != "" {
		if err := logger.InitWithFile(cfg.LogDir); err != nil {
			logger.Warn("file logging disabled", logger.Any(logger.FieldError, err))
		}
		defer logger.ShutdownFileHandler()
	}

	// 活动账本: 有 PG 连接串时持久化, 否则内存降级
	var ledger *threadsync.ActivityLedger
	if cfg.PostgresConnStr != "" {
		pool, err := database.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
		}
		ledger = threadsync.NewActivityLedger(store.NewActivityLedgerStore(pool))
	} else {
		logger.Info("no POSTGRES_CONNECTION_STRING, activity ledger is in-memory only")
		ledger = threadsync.NewActivityLedger(nil)
	}

	registry := workspace.NewRegistry()
	client := appserver.NewClient(appserver.SessionOptions{
		Binary:            cfg.CodexBin,
		CallTimeout:       time.Duration(cfg.RPCCallTimeoutSec) * time.Second,
		SpawnProbeTimeout: time.Duration(cfg.SpawnProbeTimeoutSec) * time.Second,
	})
	defer client.Close()

	engine := threadsync.NewEngine(threadstate.NewStore(), client, registry, ledger, threadsync.OptionsFromConfig(cfg))
	client.SetEventHandler(engine.HandleEvent)

	srv := dashboard.NewServer(dashboard.Deps{
		Engine:    engine,
		Registry:  registry,
		Connector: client,
	})
	defer srv.Close()

	if cfg.RefreshIntervalSec > 0 {
		util.SafeGo(func() { refreshLoop(ctx, engine, registry, cfg.RefreshIntervalSec) })
	}

	logger.Infow("codex-monitord starting", logger.FieldPort, cfg.ListenAddr)
	util.SafeGo(func() {
		if err := srv.Engine().Run(cfg.ListenAddr); err != nil {
			logger.Fatal("server failed", logger.Any(logger.FieldError, err))
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")
}

// refreshLoop 周期性静默刷新所有已注册工作区的线程窗口。
func refreshLoop(ctx context.Context, engine *threadsync.Engine, registry *workspace.Registry, intervalSec int) {
	ticker := time.NewTicker(time.Duration(intervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		workspaces := registry.List()
		ids := make([]string, 0, len(workspaces))
		for _, ws := range workspaces {
			if ws.Connected {
				ids = append(ids, ws.ID)
			}
		}
		if len(ids) == 0 {
			continue
		}
		if err := engine.ListThreads(ctx, ids, threadsync.ListOptions{PreserveState: true}); err != nil {
			logger.Warn("background thread refresh failed", logger.Any(logger.FieldError, err))
		}
	}
}
