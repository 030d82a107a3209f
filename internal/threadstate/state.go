// Package threadstate is the single source of truth for UI-facing thread data:
// an immutable state container plus a pure reduction function. Every mutation
// goes through Store.Dispatch; the reducer never touches the previous state,
// and returns the identical pointer when an action is a no-op so subscribers
// can skip redundant re-renders.
package threadstate

import "encoding/json"

// SortKey orders a workspace's visible thread list.
type SortKey string

const (
	SortUpdatedAt SortKey = "updated_at"
	SortCreatedAt SortKey = "created_at"
)

// CursorPageStart is the reserved pagination sentinel: the next page-back
// fetch restarts from page 1 but keeps only ids not already visible.
const CursorPageStart = "__page_start__"

// PlaceholderName is the display name of a thread created optimistically
// before any server content is known.
const PlaceholderName = "New Agent"

// Thread is one conversation summary as shown in a workspace list.
// Identity is the ID; name and timestamps are mutable.
type Thread struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	UpdatedAt       int64  `json:"updatedAt"` // epoch millis
	CreatedAt       int64  `json:"createdAt"` // epoch millis
	Model           string `json:"model,omitempty"`
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

// ActivityStatus tracks live activity for one thread.
//
// Invariant: ProcessingStartedAt is non-nil iff a processing interval is
// currently open; LastDurationMS is only set when an interval has just closed.
type ActivityStatus struct {
	IsProcessing        bool   `json:"isProcessing"`
	IsReviewing         bool   `json:"isReviewing"`
	HasUnread           bool   `json:"hasUnread"`
	ProcessingStartedAt *int64 `json:"processingStartedAt,omitempty"`
	LastDurationMS      *int64 `json:"lastDurationMs,omitempty"`
}

// ThreadItem is one opaque conversation item; the payload is rendered
// elsewhere, the store only tracks presence and identity.
type ThreadItem struct {
	ID      string          `json:"id"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WorkspaceState is the per-workspace slice of the state.
type WorkspaceState struct {
	Threads        []Thread            `json:"threads"`
	Hidden         map[string]struct{} `json:"-"`
	ActiveThreadID string              `json:"activeThreadId"`
	// Cursor is the opaque token for fetching older threads; nil means no
	// pagination has been established or the index is exhausted.
	Cursor      *string `json:"cursor,omitempty"`
	Loading     bool    `json:"loading"`
	PagingOlder bool    `json:"pagingOlder"`
	SortKey     SortKey `json:"sortKey"`
}

// State is the full immutable snapshot.
type State struct {
	Workspaces       map[string]*WorkspaceState `json:"workspaces"`
	Status           map[string]ActivityStatus  `json:"status"`
	ActiveTurn       map[string]string          `json:"activeTurn"`
	Parent           map[string]string          `json:"parent"`
	Items            map[string][]ThreadItem    `json:"items"`
	LastAgentMessage map[string]string          `json:"lastAgentMessage"`
	ResumeLoading    map[string]bool            `json:"resumeLoading"`
}

// NewState returns an empty snapshot.
func NewState() *State {
	return &State{
		Workspaces:       map[string]*WorkspaceState{},
		Status:           map[string]ActivityStatus{},
		ActiveTurn:       map[string]string{},
		Parent:           map[string]string{},
		Items:            map[string][]ThreadItem{},
		LastAgentMessage: map[string]string{},
		ResumeLoading:    map[string]bool{},
	}
}

// Workspace returns the state for one workspace, or an empty value when the
// workspace has never been touched. The returned pointer must be treated as
// read-only.
func (s *State) Workspace(id string) *WorkspaceState {
	if ws, ok := s.Workspaces[id]; ok {
		return ws
	}
	return &WorkspaceState{SortKey: SortUpdatedAt}
}

// ThreadIn reports whether a workspace's visible list contains id, and
// returns the record.
func (ws *WorkspaceState) ThreadIn(id string) (Thread, bool) {
	for _, th := range ws.Threads {
		if th.ID == id {
			return th, true
		}
	}
	return Thread{}, false
}

// IsHidden reports whether a thread id is soft-deleted in this workspace.
func (ws *WorkspaceState) IsHidden(id string) bool {
	_, hidden := ws.Hidden[id]
	return hidden
}

// ========================================
// copy-on-write helpers (reducer internal)
// ========================================

func (s *State) clone() *State {
	next := *s
	return &next
}

func cloneWorkspaces(m map[string]*WorkspaceState) map[string]*WorkspaceState {
	next := make(map[string]*WorkspaceState, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func cloneStatus(m map[string]ActivityStatus) map[string]ActivityStatus {
	next := make(map[string]ActivityStatus, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func cloneStrings(m map[string]string) map[string]string {
	next := make(map[string]string, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func cloneBools(m map[string]bool) map[string]bool {
	next := make(map[string]bool, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func cloneItems(m map[string][]ThreadItem) map[string][]ThreadItem {
	next := make(map[string][]ThreadItem, len(m)+1)
	for k, v := range m {
		next[k] = v
	}
	return next
}

func cloneHidden(m map[string]struct{}) map[string]struct{} {
	next := make(map[string]struct{}, len(m)+1)
	for k := range m {
		next[k] = struct{}{}
	}
	return next
}

// cloneWorkspace shallow-copies one workspace state for modification.
func cloneWorkspace(ws *WorkspaceState) *WorkspaceState {
	next := *ws
	return &next
}

// statusEqual compares two activity statuses field for field, including the
// pointed-to values.
func statusEqual(a, b ActivityStatus) bool {
	return a.IsProcessing == b.IsProcessing &&
		a.IsReviewing == b.IsReviewing &&
		a.HasUnread == b.HasUnread &&
		int64PtrEqual(a.ProcessingStartedAt, b.ProcessingStartedAt) &&
		int64PtrEqual(a.LastDurationMS, b.LastDurationMS)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64Ptr(v int64) *int64 { return &v }
