// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"github.com/xf-main/CodexMonitor/pkg/util"
)

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// Daemon
	ListenAddr         string `env:"MONITOR_LISTEN_ADDR" default:"127.0.0.1:4732"`
	RefreshIntervalSec int    `env:"MONITOR_REFRESH_INTERVAL_SEC" default:"60" min:"0"`

	// app-server
	CodexBin             string `env:"CODEX_BIN" default:"codex"`
	RPCCallTimeoutSec    int    `env:"RPC_CALL_TIMEOUT_SEC" default:"30" min:"1"`
	SpawnProbeTimeoutSec int    `env:"APP_SERVER_SPAWN_TIMEOUT_SEC" default:"30" min:"1"`

	// 线程列表窗口与分页 (tuning constants, not load-bearing)
	ThreadWindowTarget    int `env:"THREAD_WINDOW_TARGET" default:"20" min:"1"`
	ThreadListPageSize    int `env:"THREAD_LIST_PAGE_SIZE" default:"50" min:"1"`
	ListMaxPages          int `env:"LIST_MAX_PAGES" default:"4" min:"1"`
	PageBackMaxPages      int `env:"PAGE_BACK_MAX_PAGES" default:"20" min:"1"`
	PageBackMaxEmptyPages int `env:"PAGE_BACK_MAX_EMPTY_PAGES" default:"5" min:"1"`

	// Resume 防抖: 已加载且处理中的线程跳过非强制 resume
	ResumeSkipProcessing bool `env:"RESUME_SKIP_PROCESSING" default:"true"`

	// PostgreSQL (activity ledger 持久化; 为空则内存降级)
	PostgresConnStr     string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema      string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`

	// 日志
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
	LogDir   string `env:"LOG_DIR" default:""`
	Env      string `env:"APP_ENV" default:"production"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
