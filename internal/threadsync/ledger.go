// ledger.go — 跨进程重启的线程活动账本。
//
// workspace id → thread id → 最近活动 epoch millis。每线程单调递增:
// 只有严格更大的时间戳才会写入。持久化后端可选, 为 nil 时纯内存。
package threadsync

import (
	"context"
	"sync"

	"github.com/xf-main/CodexMonitor/pkg/logger"
)

// LedgerStore 账本持久化后端 (store.ActivityLedgerStore 实现)。
type LedgerStore interface {
	Get(ctx context.Context, workspaceID string) (map[string]int64, error)
	Put(ctx context.Context, workspaceID string, entries map[string]int64) error
}

// ActivityLedger 内存账本 + 可选持久化。
type ActivityLedger struct {
	mu      sync.Mutex
	store   LedgerStore // nil = 内存模式
	entries map[string]map[string]int64
	dirty   map[string]bool
	loaded  map[string]bool
}

// NewActivityLedger 创建账本。store 为 nil 时跳过所有持久化。
func NewActivityLedger(store LedgerStore) *ActivityLedger {
	return &ActivityLedger{
		store:   store,
		entries: make(map[string]map[string]int64),
		dirty:   make(map[string]bool),
		loaded:  make(map[string]bool),
	}
}

// Hydrate 从持久化后端加载工作区账本。重复调用只加载一次。
func (l *ActivityLedger) Hydrate(ctx context.Context, workspaceID string) {
	l.mu.Lock()
	if l.store == nil || l.loaded[workspaceID] {
		l.mu.Unlock()
		return
	}
	l.loaded[workspaceID] = true
	l.mu.Unlock()

	persisted, err := l.store.Get(ctx, workspaceID)
	if err != nil {
		logger.Warn("ledger: hydrate failed",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldError, err,
		)
		return
	}
	if len(persisted) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	ws := l.workspaceLocked(workspaceID)
	// 持久化值只能抬高, 不能压低运行期观察到的时间戳
	for threadID, ts := range persisted {
		if ts > ws[threadID] {
			ws[threadID] = ts
		}
	}
}

// Touch 记录线程活动。只有严格更大的时间戳才写入; 返回是否发生更新。
func (l *ActivityLedger) Touch(workspaceID, threadID string, ts int64) bool {
	if threadID == "" || ts <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ws := l.workspaceLocked(workspaceID)
	if ts <= ws[threadID] {
		return false
	}
	ws[threadID] = ts
	l.dirty[workspaceID] = true
	return true
}

// Get 返回单个线程的账本时间戳, 缺失为 0。
func (l *ActivityLedger) Get(workspaceID, threadID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[workspaceID][threadID]
}

// Snapshot 返回工作区账本的拷贝。
func (l *ActivityLedger) Snapshot(workspaceID string) map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	ws := l.entries[workspaceID]
	if len(ws) == 0 {
		return nil
	}
	out := make(map[string]int64, len(ws))
	for k, v := range ws {
		out[k] = v
	}
	return out
}

// Flush 将工作区账本写回持久化后端。无变更或内存模式时为 no-op。
func (l *ActivityLedger) Flush(ctx context.Context, workspaceID string) {
	l.mu.Lock()
	if l.store == nil || !l.dirty[workspaceID] {
		l.mu.Unlock()
		return
	}
	delete(l.dirty, workspaceID)
	ws := l.entries[workspaceID]
	out := make(map[string]int64, len(ws))
	for k, v := range ws {
		out[k] = v
	}
	store := l.store
	l.mu.Unlock()

	if err := store.Put(ctx, workspaceID, out); err != nil {
		logger.Warn("ledger: flush failed",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldCount, len(out),
			logger.FieldError, err,
		)
		// 写失败保留脏标记, 下次 Flush 重试
		l.mu.Lock()
		l.dirty[workspaceID] = true
		l.mu.Unlock()
	}
}

func (l *ActivityLedger) workspaceLocked(workspaceID string) map[string]int64 {
	ws, ok := l.entries[workspaceID]
	if !ok {
		ws = make(map[string]int64)
		l.entries[workspaceID] = ws
	}
	return ws
}
