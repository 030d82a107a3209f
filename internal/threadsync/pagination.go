// pagination.go — 每工作区的分页恢复边界。
//
// 列表拉取按共享索引逐页前进; 当某工作区的去重线程数越过窗口目标时,
// 记录"越界页"的页首游标。该工作区后续的 page-back 从这个游标继续,
// 被窗口截断丢弃的记录由 page-back 的去-重追加逻辑重新捡回。
// 首页的页首游标用 CursorPageStart 哨兵表示。
package threadsync

import "sync"

// PaginationController 跟踪每工作区的恢复边界游标。
type PaginationController struct {
	mu         sync.Mutex
	boundaries map[string]string
}

func NewPaginationController() *PaginationController {
	return &PaginationController{boundaries: make(map[string]string)}
}

// Capture 记录边界游标。每轮列表拉取中只有第一次生效。
func (p *PaginationController) Capture(workspaceID, pageStartCursor string) {
	if pageStartCursor == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.boundaries[workspaceID]; !ok {
		p.boundaries[workspaceID] = pageStartCursor
	}
}

// Boundary 读取已捕获的边界。
func (p *PaginationController) Boundary(workspaceID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cursor, ok := p.boundaries[workspaceID]
	return cursor, ok
}

// Clear 清除工作区边界 (新一轮列表拉取开始时调用)。
func (p *PaginationController) Clear(workspaceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.boundaries, workspaceID)
}
