// Package threadsync 线程同步与对账引擎。
//
// 对远端权威索引发起线程生命周期操作 (start/resume/fork/list/page/archive),
// 去重并发请求, 并把服务器快照与本地乐观状态对账后 dispatch 进 threadstate。
// 引擎自身不持有 UI 状态; 所有可见状态变更都经过 reducer。
//
// 并发纪律: resume 计数器 / loaded 集合等簿记在 mu 内更新, 任何 RPC
// 挂起期间不持锁。dispatch 按发出顺序进入 store; 异步操作完成顺序
// 不确定, 因此对账一律读取"完成时刻"的最新状态而非发起时的快照。
package threadsync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xf-main/CodexMonitor/internal/appserver"
	"github.com/xf-main/CodexMonitor/internal/config"
	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/internal/workspace"
	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
	"github.com/xf-main/CodexMonitor/pkg/logger"
	"github.com/xf-main/CodexMonitor/pkg/util"
)

// Options 引擎调参。数值边界是成本调优常量, 不承载正确性。
type Options struct {
	// ResumeSkipProcessing 已加载且处理中的线程跳过非强制 resume (防抖)。
	ResumeSkipProcessing bool
	// ThreadWindowTarget 每工作区可见窗口的目标线程数。
	ThreadWindowTarget int
	// ThreadListPageSize thread/list 单页大小。
	ThreadListPageSize int
	// ListMaxPages 一轮列表刷新最多前进的页数。
	ListMaxPages int
	// PageBackMaxPages page-back 单次最多扫过的页数。
	PageBackMaxPages int
	// PageBackMaxEmptyPages page-back 连续无新记录页的上限。
	PageBackMaxEmptyPages int
}

// OptionsFromConfig 从全局配置取引擎调参。
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ResumeSkipProcessing:  cfg.ResumeSkipProcessing,
		ThreadWindowTarget:    cfg.ThreadWindowTarget,
		ThreadListPageSize:    cfg.ThreadListPageSize,
		ListMaxPages:          cfg.ListMaxPages,
		PageBackMaxPages:      cfg.PageBackMaxPages,
		PageBackMaxEmptyPages: cfg.PageBackMaxEmptyPages,
	}
}

func (o *Options) applyDefaults() {
	defaults := []struct {
		field *int
		def   int
		hi    int
	}{
		{&o.ThreadWindowTarget, 20, 1000},
		{&o.ThreadListPageSize, 50, 500},
		{&o.ListMaxPages, 4, 100},
		{&o.PageBackMaxPages, 20, 200},
		{&o.PageBackMaxEmptyPages, 5, 100},
	}
	for _, d := range defaults {
		if *d.field <= 0 {
			*d.field = d.def
		}
		*d.field = util.ClampInt(*d.field, 1, d.hi)
	}
}

// Engine 线程同步引擎。
type Engine struct {
	store    *threadstate.Store
	rpc      appserver.ThreadRPC
	registry *workspace.Registry
	ledger   *ActivityLedger
	pager    *PaginationController
	opts     Options

	// ========================================
	// 锁职责说明
	// ========================================
	// mu: resume 簿记 (in-flight 计数 / loaded 集合 / replace 标记)。
	//     绝不跨 RPC 持有。
	// ========================================
	mu             sync.Mutex
	resumeInFlight map[string]int
	loaded         map[string]bool

	now func() int64 // 测试钩子, 返回 epoch millis
}

// NewEngine 创建引擎。ledger 可传 NewActivityLedger(nil) 退化为内存模式。
func NewEngine(store *threadstate.Store, rpc appserver.ThreadRPC, registry *workspace.Registry, ledger *ActivityLedger, opts Options) *Engine {
	opts.applyDefaults()
	if ledger == nil {
		ledger = NewActivityLedger(nil)
	}
	return &Engine{
		store:          store,
		rpc:            rpc,
		registry:       registry,
		ledger:         ledger,
		pager:          NewPaginationController(),
		opts:           opts,
		resumeInFlight: make(map[string]int),
		loaded:         make(map[string]bool),
		now:            func() int64 { return time.Now().UnixMilli() },
	}
}

// Store 返回底层状态容器 (订阅入口)。
func (e *Engine) Store() *threadstate.Store { return e.store }

// Ledger 返回活动账本。
func (e *Engine) Ledger() *ActivityLedger { return e.ledger }

// ========================================
// start / fork / refresh
// ========================================

// StartThread 新建线程并乐观登记。返回新线程 id。
func (e *Engine) StartThread(ctx context.Context, workspaceID string, activate bool) (string, error) {
	env, err := e.rpc.StartThread(ctx, workspaceID)
	if err != nil {
		logger.Warn("threadsync: start_thread failed",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldError, err,
		)
		return "", err
	}
	id := env.Thread.ID
	e.store.Dispatch(threadstate.EnsureThread{WorkspaceID: workspaceID, ThreadID: id})
	if activate {
		e.store.Dispatch(threadstate.SetActiveThreadID{WorkspaceID: workspaceID, ThreadID: id})
	}
	// 新建线程服务端没有历史, 无需再 resume
	e.mu.Lock()
	e.loaded[id] = true
	e.mu.Unlock()
	logger.Info("threadsync: thread started",
		logger.FieldWorkspaceID, workspaceID,
		logger.FieldThreadID, id,
	)
	return id, nil
}

// ForkThread 从既有线程分叉。fork 不继承本地乐观状态,
// 新线程立即用 force+replaceLocal resume 从服务端灌满。
func (e *Engine) ForkThread(ctx context.Context, workspaceID, threadID string, activate bool) (string, error) {
	env, err := e.rpc.ForkThread(ctx, workspaceID, threadID)
	if err != nil {
		logger.Warn("threadsync: fork_thread failed",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldThreadID, threadID,
			logger.FieldError, err,
		)
		return "", err
	}
	forkID := env.Thread.ID
	e.store.Dispatch(threadstate.EnsureThread{WorkspaceID: workspaceID, ThreadID: forkID})
	e.store.Dispatch(threadstate.SetThreadParent{ThreadID: forkID, ParentID: threadID})
	if activate {
		e.store.Dispatch(threadstate.SetActiveThreadID{WorkspaceID: workspaceID, ThreadID: forkID})
	}
	e.mu.Lock()
	delete(e.loaded, forkID)
	e.mu.Unlock()

	if err := e.ResumeThread(ctx, workspaceID, forkID, true, true); err != nil {
		// fork 已成功, hydrate 失败只降级为日志
		logger.Warn("threadsync: fork hydrate failed",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldThreadID, forkID,
			logger.FieldError, err,
		)
	}
	return forkID, nil
}

// RefreshThread 本地副本已知过期时的强制重灌。
func (e *Engine) RefreshThread(ctx context.Context, workspaceID, threadID string) error {
	return e.ResumeThread(ctx, workspaceID, threadID, true, true)
}

// ========================================
// resume
// ========================================

// ResumeThread 从服务端权威副本重同步线程。
//
// 并发正确性核心: 每线程 in-flight 计数。N 个重叠 resume 只产生一次
// loading=false 翻转, 由最后完成者触发。非强制调用在已加载
// (以及可选的"已加载且处理中") 时直接跳过, 避免用过期快照砸掉活流。
func (e *Engine) ResumeThread(ctx context.Context, workspaceID, threadID string, force, replaceLocal bool) error {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "Engine.ResumeThread", "thread id is required")
	}

	if !force {
		e.mu.Lock()
		alreadyLoaded := e.loaded[threadID]
		e.mu.Unlock()
		if alreadyLoaded {
			processing := e.store.State().Status[threadID].IsProcessing
			// 已加载且空闲: 没有可同步的新东西。已加载且处理中:
			// 防抖开关决定是否允许用快照砸活流 (默认不允许)。
			if !processing || e.opts.ResumeSkipProcessing {
				return nil
			}
		}
	}

	// 计数与 loading 翻转必须在同一临界区内完成, 否则后续 resume 的
	// loading=true 可能被前一个 resume 迟到的 false 覆盖。Dispatch 是
	// 同步的且监听者不会回调 Engine, 持锁调用不会死锁。
	e.mu.Lock()
	e.resumeInFlight[threadID]++
	if e.resumeInFlight[threadID] == 1 {
		e.store.Dispatch(threadstate.SetThreadResumeLoading{ThreadID: threadID, Loading: true})
	}
	e.mu.Unlock()

	env, err := e.rpc.ResumeThread(ctx, workspaceID, threadID)
	if err != nil {
		logger.Warn("threadsync: resume_thread failed",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldThreadID, threadID,
			logger.FieldError, err,
		)
	} else {
		e.applyResumePayload(workspaceID, threadID, &env.Thread, replaceLocal)
		e.mu.Lock()
		e.loaded[threadID] = true
		e.mu.Unlock()
	}

	e.mu.Lock()
	e.resumeInFlight[threadID]--
	if e.resumeInFlight[threadID] < 0 {
		e.resumeInFlight[threadID] = 0
	}
	if e.resumeInFlight[threadID] == 0 {
		delete(e.resumeInFlight, threadID)
		e.store.Dispatch(threadstate.SetThreadResumeLoading{ThreadID: threadID, Loading: false})
	}
	e.mu.Unlock()
	return err
}

// applyResumePayload 把 resume 响应合并进 store。
//
// 状态读取发生在响应解析时刻: resume 可能与并发到达的流事件赛跑,
// 不能信任发起调用时捕获的旧快照。
func (e *Engine) applyResumePayload(workspaceID, threadID string, payload *appserver.ThreadPayload, replaceLocal bool) {
	e.store.Dispatch(threadstate.EnsureThread{WorkspaceID: workspaceID, ThreadID: threadID})

	if ts := payload.UpdatedAt.Int64(); ts > 0 {
		e.store.Dispatch(threadstate.SetThreadTimestamp{WorkspaceID: workspaceID, ThreadID: threadID, Timestamp: ts})
		e.ledger.Touch(workspaceID, threadID, ts)
	}
	if preview := strings.TrimSpace(payload.Preview); preview != "" {
		e.store.Dispatch(threadstate.SetLastAgentMessage{ThreadID: threadID, Message: preview})
	}
	if payload.Model != "" || payload.ReasoningEffort != "" {
		e.store.Dispatch(threadstate.SetThreadModel{
			WorkspaceID:     workspaceID,
			ThreadID:        threadID,
			Model:           payload.Model,
			ReasoningEffort: payload.ReasoningEffort,
		})
	}
	if parent := payload.Source.ParentThreadID(); parent != "" && parent != threadID {
		e.store.Dispatch(threadstate.SetThreadParent{ThreadID: threadID, ParentID: parent})
	}

	// items: 只有本地为空或调用方显式要求替换时才覆盖 —
	// 慢 resume 在新结果之后到达时不得砸掉新状态。
	live := e.store.State()
	items := flattenTurnItems(payload.Turns)
	if len(items) > 0 && (replaceLocal || len(live.Items[threadID]) == 0) {
		e.store.Dispatch(threadstate.SetThreadItems{ThreadID: threadID, Items: items})
	}

	e.applyTurnSignal(threadID, payload.Turns)
}

// applyTurnSignal §决策表: 明确信号覆盖本地, 模糊信号保留本地。
func (e *Engine) applyTurnSignal(threadID string, turns []appserver.Turn) {
	signal, last := classifyTurns(turns)
	live := e.store.State()
	status := live.Status[threadID]

	switch signal {
	case signalIdle:
		if status.IsProcessing {
			e.store.Dispatch(threadstate.MarkProcessing{ThreadID: threadID, IsProcessing: false, Timestamp: e.now()})
		}
		if live.ActiveTurn[threadID] != "" {
			e.store.Dispatch(threadstate.SetActiveTurnID{ThreadID: threadID, TurnID: ""})
		}
	case signalActive:
		startedAt := e.now()
		if last.StartedAt != nil && last.StartedAt.Int64() > 0 {
			startedAt = last.StartedAt.Int64()
		}
		e.store.Dispatch(threadstate.MarkProcessing{ThreadID: threadID, IsProcessing: true, Timestamp: startedAt})
		e.store.Dispatch(threadstate.SetActiveTurnID{ThreadID: threadID, TurnID: last.ID})
	case signalAmbiguous:
		// 模糊快照不动本地 processing / active turn
	}
}

func flattenTurnItems(turns []appserver.Turn) []threadstate.ThreadItem {
	var items []threadstate.ThreadItem
	for _, turn := range turns {
		for _, it := range turn.Items {
			items = append(items, threadstate.ThreadItem{ID: it.ID, Type: it.Type, Payload: it.Raw})
		}
	}
	return items
}

// ========================================
// archive
// ========================================

// ArchiveThread fire-and-forget 归档。失败只记日志, 不动本地状态;
// 本地移除由调用方负责。
func (e *Engine) ArchiveThread(workspaceID, threadID string) {
	util.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.rpc.ArchiveThread(ctx, workspaceID, threadID); err != nil {
			logger.Warn("threadsync: archive_thread failed",
				logger.FieldWorkspaceID, workspaceID,
				logger.FieldThreadID, threadID,
				logger.FieldError, err,
			)
			return
		}
		logger.Info("threadsync: thread archived",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldThreadID, threadID,
		)
	})
}

// ========================================
// list
// ========================================

// ListOptions 列表刷新选项。
type ListOptions struct {
	// PreserveState 不翻动 loading 标志 (后台静默刷新)。
	PreserveState bool
	// SortKey 为空时沿用各工作区当前排序。
	SortKey threadstate.SortKey
	// MaxPages 0 = 用引擎默认值。
	MaxPages int
}

// wsAccum 一轮列表拉取中单个工作区的累积。
type wsAccum struct {
	records []appserver.ThreadRecord
	seen    map[string]struct{}
}

// ListThreads 刷新一批工作区的可见线程窗口。
//
// 多个工作区共享同一个底层索引: 无论目标几个, 只对一个 requester
// 工作区发起一轮分页拉取, 再按每条记录的 cwd 用 PathResolver 分发。
func (e *Engine) ListThreads(ctx context.Context, workspaceIDs []string, opts ListOptions) error {
	if len(workspaceIDs) == 0 {
		return nil
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = e.opts.ListMaxPages
	}
	requester := e.pickRequester(workspaceIDs)
	roots := e.registry.PathLookup()

	for _, wsID := range workspaceIDs {
		e.ledger.Hydrate(ctx, wsID)
		e.pager.Clear(wsID)
		if !opts.PreserveState {
			e.store.Dispatch(threadstate.SetThreadListLoading{WorkspaceID: wsID, Loading: true})
		}
	}
	defer func() {
		for _, wsID := range workspaceIDs {
			if !opts.PreserveState {
				e.store.Dispatch(threadstate.SetThreadListLoading{WorkspaceID: wsID, Loading: false})
			}
		}
	}()

	accum := make(map[string]*wsAccum, len(workspaceIDs))
	targets := make(map[string]struct{}, len(workspaceIDs))
	for _, wsID := range workspaceIDs {
		accum[wsID] = &wsAccum{seen: make(map[string]struct{})}
		targets[wsID] = struct{}{}
	}

	var cursor *string
	exhausted := false
	for page := 1; page <= maxPages; page++ {
		pageStart := threadstate.CursorPageStart
		if cursor != nil {
			pageStart = *cursor
		}
		result, err := e.rpc.ListThreads(ctx, requester, cursor, e.opts.ThreadListPageSize, string(e.sortKeyFor(workspaceIDs[0], opts.SortKey)))
		if err != nil {
			logger.Warn("threadsync: list_threads failed",
				logger.FieldWorkspaceID, requester,
				logger.FieldPage, page,
				logger.FieldError, err,
			)
			return err
		}

		for _, rec := range result.Data {
			for _, wsID := range workspace.ResolveWorkspaceIDs(rec.Cwd, roots) {
				if _, ok := targets[wsID]; !ok {
					continue
				}
				acc := accum[wsID]
				if _, dup := acc.seen[rec.ID]; dup {
					continue
				}
				acc.seen[rec.ID] = struct{}{}
				acc.records = append(acc.records, rec)
				if len(acc.records) == e.opts.ThreadWindowTarget+1 {
					// 窗口被截断的工作区, 记录越界页的页首游标,
					// page-back 从这里重扫捡回被丢弃的记录
					e.pager.Capture(wsID, pageStart)
				}
			}
		}

		if result.NextCursor == nil {
			exhausted = true
			break
		}
		cursor = result.NextCursor
		if e.allWindowsFilled(accum) {
			break
		}
	}

	for _, wsID := range workspaceIDs {
		e.applyWorkspaceWindow(wsID, accum[wsID], opts.SortKey, cursor, exhausted)
		e.ledger.Flush(ctx, wsID)
	}
	return nil
}

// pickRequester 优先选已连接的工作区发起拉取。
func (e *Engine) pickRequester(workspaceIDs []string) string {
	for _, id := range workspaceIDs {
		if ws, ok := e.registry.Get(id); ok && ws.Connected {
			return id
		}
	}
	return workspaceIDs[0]
}

func (e *Engine) allWindowsFilled(accum map[string]*wsAccum) bool {
	for _, acc := range accum {
		if len(acc.records) <= e.opts.ThreadWindowTarget {
			return false
		}
	}
	return true
}

func (e *Engine) sortKeyFor(workspaceID string, requested threadstate.SortKey) threadstate.SortKey {
	if requested != "" {
		return requested
	}
	if key := e.store.State().Workspace(workspaceID).SortKey; key != "" {
		return key
	}
	return threadstate.SortUpdatedAt
}

// applyWorkspaceWindow 排序→截断→dispatch, 锚点由 reducer 的
// preserveAnchors 合并重新补回。
func (e *Engine) applyWorkspaceWindow(wsID string, acc *wsAccum, requestedSort threadstate.SortKey, finalCursor *string, exhausted bool) {
	sortKey := e.sortKeyFor(wsID, requestedSort)

	for _, rec := range acc.records {
		ts := rec.UpdatedAt.Int64()
		if created := rec.CreatedAt.Int64(); created > ts {
			ts = created
		}
		e.ledger.Touch(wsID, rec.ID, ts)
	}

	threads := make([]threadstate.Thread, 0, len(acc.records))
	for _, rec := range acc.records {
		threads = append(threads, recordToThread(rec))
	}
	activity := e.ledger.Snapshot(wsID)
	sortThreads(threads, sortKey, activity)

	truncated := len(threads) > e.opts.ThreadWindowTarget
	if truncated {
		threads = threads[:e.opts.ThreadWindowTarget]
	}

	// 父链: source 元数据带 parent 的记录先登记, 锚点合并才能走到祖先
	for _, rec := range acc.records {
		if parent := rec.Source.ParentThreadID(); parent != "" && parent != rec.ID {
			e.store.Dispatch(threadstate.SetThreadParent{ThreadID: rec.ID, ParentID: parent})
		}
	}

	e.store.Dispatch(threadstate.SetThreads{
		WorkspaceID:     wsID,
		Threads:         threads,
		PreserveAnchors: true,
		Activity:        activity,
		SortKey:         sortKey,
	})

	cursor := e.nextWorkspaceCursor(wsID, truncated, finalCursor, exhausted)
	e.store.Dispatch(threadstate.SetThreadListCursor{WorkspaceID: wsID, Cursor: cursor})
}

// nextWorkspaceCursor 决定工作区的 page-back 起点:
//   - 窗口被截断 → 捕获的边界游标 (丢弃的记录要重扫)
//   - 索引耗尽 → nil
//   - 其余 → 本轮停止处的全局游标
func (e *Engine) nextWorkspaceCursor(wsID string, truncated bool, finalCursor *string, exhausted bool) *string {
	if truncated {
		if boundary, ok := e.pager.Boundary(wsID); ok {
			c := boundary
			return &c
		}
		c := threadstate.CursorPageStart
		return &c
	}
	if exhausted {
		return nil
	}
	return finalCursor
}

func recordToThread(rec appserver.ThreadRecord) threadstate.Thread {
	name := strings.TrimSpace(rec.Preview)
	if name == "" {
		name = threadstate.PlaceholderName
	}
	return threadstate.Thread{
		ID:              rec.ID,
		Name:            name,
		UpdatedAt:       rec.UpdatedAt.Int64(),
		CreatedAt:       rec.CreatedAt.Int64(),
		Model:           rec.Model,
		ReasoningEffort: rec.ReasoningEffort,
	}
}

// sortThreads updated_at: 按 max(账本活动, createdAt) 降序, 原始
// updatedAt 破平; created_at: createdAt 降序, id 破平。
func sortThreads(threads []threadstate.Thread, key threadstate.SortKey, activity map[string]int64) {
	switch key {
	case threadstate.SortCreatedAt:
		sort.SliceStable(threads, func(i, j int) bool {
			if threads[i].CreatedAt != threads[j].CreatedAt {
				return threads[i].CreatedAt > threads[j].CreatedAt
			}
			return threads[i].ID < threads[j].ID
		})
	default:
		rank := func(t threadstate.Thread) int64 {
			r := activity[t.ID]
			if t.CreatedAt > r {
				r = t.CreatedAt
			}
			return r
		}
		sort.SliceStable(threads, func(i, j int) bool {
			ri, rj := rank(threads[i]), rank(threads[j])
			if ri != rj {
				return ri > rj
			}
			return threads[i].UpdatedAt > threads[j].UpdatedAt
		})
	}
}

// ========================================
// page-back
// ========================================

// LoadOlderThreadsForWorkspace 向后翻页, 只追加真正的新 id, 不重排已有
// 条目。游标哨兵 CursorPageStart 表示"从第 1 页重扫, 只保留未见过的 id"。
func (e *Engine) LoadOlderThreadsForWorkspace(ctx context.Context, wsID string) error {
	ws := e.store.State().Workspace(wsID)
	if ws.Cursor == nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "Engine.LoadOlderThreadsForWorkspace", "no cursor established")
	}
	if ws.PagingOlder {
		return nil
	}
	e.store.Dispatch(threadstate.SetThreadListPaging{WorkspaceID: wsID, Paging: true})
	defer e.store.Dispatch(threadstate.SetThreadListPaging{WorkspaceID: wsID, Paging: false})

	var cursor *string
	if *ws.Cursor != threadstate.CursorPageStart {
		c := *ws.Cursor
		cursor = &c
	}

	roots := e.registry.PathLookup()
	requester := e.pickRequester([]string{wsID})
	sortKey := e.sortKeyFor(wsID, "")

	existing := make(map[string]struct{}, len(ws.Threads))
	for _, t := range ws.Threads {
		existing[t.ID] = struct{}{}
	}

	var appended []threadstate.Thread
	emptyPages := 0
	exhausted := false

	for page := 1; page <= e.opts.PageBackMaxPages; page++ {
		result, err := e.rpc.ListThreads(ctx, requester, cursor, e.opts.ThreadListPageSize, string(sortKey))
		if err != nil {
			logger.Warn("threadsync: page-back fetch failed",
				logger.FieldWorkspaceID, wsID,
				logger.FieldPage, page,
				logger.FieldError, err,
			)
			return err
		}

		matched := 0
		for _, rec := range result.Data {
			if !containsString(workspace.ResolveWorkspaceIDs(rec.Cwd, roots), wsID) {
				continue
			}
			if _, dup := existing[rec.ID]; dup {
				continue
			}
			existing[rec.ID] = struct{}{}
			appended = append(appended, recordToThread(rec))
			ts := rec.UpdatedAt.Int64()
			if created := rec.CreatedAt.Int64(); created > ts {
				ts = created
			}
			e.ledger.Touch(wsID, rec.ID, ts)
			matched++
		}
		if matched == 0 {
			emptyPages++
		} else {
			emptyPages = 0
		}

		cursor = result.NextCursor
		if cursor == nil {
			exhausted = true
			break
		}
		// 共享索引里该工作区可能很稀疏, 连续空页达到上限就放弃这一轮
		if emptyPages >= e.opts.PageBackMaxEmptyPages {
			break
		}
		if len(appended) >= e.opts.ThreadWindowTarget {
			break
		}
	}

	if len(appended) > 0 {
		live := e.store.State().Workspace(wsID)
		merged := make([]threadstate.Thread, 0, len(live.Threads)+len(appended))
		merged = append(merged, live.Threads...)
		inList := make(map[string]struct{}, len(merged))
		for _, t := range merged {
			inList[t.ID] = struct{}{}
		}
		for _, t := range appended {
			if _, dup := inList[t.ID]; !dup {
				merged = append(merged, t)
			}
		}
		e.store.Dispatch(threadstate.SetThreads{
			WorkspaceID: wsID,
			Threads:     merged,
			SortKey:     sortKey,
		})
	}

	if exhausted {
		e.store.Dispatch(threadstate.SetThreadListCursor{WorkspaceID: wsID, Cursor: nil})
	} else {
		e.store.Dispatch(threadstate.SetThreadListCursor{WorkspaceID: wsID, Cursor: cursor})
	}
	e.ledger.Flush(ctx, wsID)
	return nil
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
