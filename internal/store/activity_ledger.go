// Package store 提供基于 pgx 的持久化存取。
//
// activity_ledger: 每个工作区一行 JSONB, 记录 thread_id → 最近活动时间
// (epoch millis)。列表合并时用它兜底恢复被窗口截断的时间戳。
package store

import (
	"context"
	"encoding/json"

	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
)

type ActivityLedgerStore struct {
	pool *pgxpool.Pool
}

func NewActivityLedgerStore(pool *pgxpool.Pool) *ActivityLedgerStore {
	return &ActivityLedgerStore{pool: pool}
}

// Get 读取工作区账本。不存在时返回 nil, nil。
func (s *ActivityLedgerStore) Get(ctx context.Context, workspaceID string) (map[string]int64, error) {
	var raw json.RawMessage
	err := s.pool.QueryRow(ctx,
		"SELECT entries FROM activity_ledger WHERE workspace_id = $1", workspaceID,
	).Scan(&raw)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "ActivityLedgerStore.Get", "query ledger")
	}

	var entries map[string]int64
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, apperrors.Wrap(err, "ActivityLedgerStore.Get", "unmarshal ledger")
	}
	return entries, nil
}

// Put 整体写入工作区账本 (upsert)。
func (s *ActivityLedgerStore) Put(ctx context.Context, workspaceID string, entries map[string]int64) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return apperrors.Wrap(err, "ActivityLedgerStore.Put", "marshal ledger")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO activity_ledger (workspace_id, entries, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (workspace_id) DO UPDATE SET
			entries = EXCLUDED.entries,
			updated_at = NOW()
	`, workspaceID, data)

	if err != nil {
		return apperrors.Wrap(err, "ActivityLedgerStore.Put", "upsert ledger")
	}
	return nil
}

// Delete 删除工作区账本。
func (s *ActivityLedgerStore) Delete(ctx context.Context, workspaceID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM activity_ledger WHERE workspace_id = $1", workspaceID)
	if err != nil {
		return apperrors.Wrap(err, "ActivityLedgerStore.Delete", "delete ledger")
	}
	return nil
}

// All 读取全部工作区账本。
func (s *ActivityLedgerStore) All(ctx context.Context) (map[string]map[string]int64, error) {
	rows, err := s.pool.Query(ctx, "SELECT workspace_id, entries FROM activity_ledger")
	if err != nil {
		return nil, apperrors.Wrap(err, "ActivityLedgerStore.All", "query ledgers")
	}
	defer rows.Close()

	result := make(map[string]map[string]int64)
	for rows.Next() {
		var workspaceID string
		var raw json.RawMessage
		if err := rows.Scan(&workspaceID, &raw); err != nil {
			return nil, apperrors.Wrap(err, "ActivityLedgerStore.All", "scan ledger")
		}
		var entries map[string]int64
		if err := json.Unmarshal(raw, &entries); err != nil {
			// 跳过损坏行, 不让单行坏数据拖垮整体读取
			continue
		}
		result[workspaceID] = entries
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "ActivityLedgerStore.All", "iterate ledgers")
	}
	return result, nil
}
