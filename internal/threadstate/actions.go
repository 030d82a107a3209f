// actions.go — the dispatch surface consumed by the reducer.
package threadstate

// Action is a state transition request. The concrete types below are the only
// implementations; the reducer treats anything else as a no-op.
type Action interface {
	actionName() string
}

// EnsureThread inserts an optimistic placeholder the instant a server call
// returns a thread id, before any content is known. A no-op when the id is
// hidden or already present.
type EnsureThread struct {
	WorkspaceID string
	ThreadID    string
}

// HideThread soft-deletes a thread from one workspace: it moves to the hidden
// set and a later list refresh will never resurrect it.
type HideThread struct {
	WorkspaceID string
	ThreadID    string
}

// RemoveThread hard-purges a thread from every per-thread map. It does not
// touch the hidden set; hiding is a distinct mechanism.
type RemoveThread struct {
	WorkspaceID string
	ThreadID    string
}

// SetActiveThreadID points a workspace at its active thread ("" = none).
type SetActiveThreadID struct {
	WorkspaceID string
	ThreadID    string
}

// SetThreadParent records fork/sub-agent ancestry. ParentID "" clears.
type SetThreadParent struct {
	ThreadID string
	ParentID string
}

// MarkProcessing opens or closes a processing interval at Timestamp millis.
type MarkProcessing struct {
	ThreadID     string
	IsProcessing bool
	Timestamp    int64
}

// SetActiveTurnID tracks the turn currently streaming for a thread ("" clears).
type SetActiveTurnID struct {
	ThreadID string
	TurnID   string
}

// MarkReviewing flags a thread as awaiting user review.
type MarkReviewing struct {
	ThreadID    string
	IsReviewing bool
}

// MarkUnread flags a thread as holding unseen output.
type MarkUnread struct {
	ThreadID  string
	HasUnread bool
}

// SetThreadName renames a thread in one workspace's visible list.
type SetThreadName struct {
	WorkspaceID string
	ThreadID    string
	Name        string
}

// SetThreadModel records model/effort metadata discovered from a resume
// payload. Empty fields leave the current value untouched.
type SetThreadModel struct {
	WorkspaceID     string
	ThreadID        string
	Model           string
	ReasoningEffort string
}

// SetThreadTimestamp bumps a thread's updatedAt; ignored unless strictly
// greater than the current value.
type SetThreadTimestamp struct {
	WorkspaceID string
	ThreadID    string
	Timestamp   int64
}

// SetThreads replaces a workspace's visible list with a freshly computed one.
//
// With PreserveAnchors, threads the user is actively viewing or that are
// mid-turn are re-appended from the previous list even when the incoming page
// did not include them; Activity carries the last-known-activity floor per
// thread id used to freshen re-appended timestamps.
type SetThreads struct {
	WorkspaceID     string
	Threads         []Thread
	PreserveAnchors bool
	Activity        map[string]int64
	SortKey         SortKey // "" keeps the workspace's current sort key
}

// SetThreadListLoading flips the workspace list-refresh flag.
type SetThreadListLoading struct {
	WorkspaceID string
	Loading     bool
}

// SetThreadResumeLoading flips the per-thread resume flag. The engine only
// dispatches the false transition when its in-flight counter reaches zero.
type SetThreadResumeLoading struct {
	ThreadID string
	Loading  bool
}

// SetThreadListPaging flips the workspace page-back flag.
type SetThreadListPaging struct {
	WorkspaceID string
	Paging      bool
}

// SetThreadListCursor stores the opaque pagination token (nil = exhausted).
type SetThreadListCursor struct {
	WorkspaceID string
	Cursor      *string
}

// SetThreadItems replaces a thread's item list.
type SetThreadItems struct {
	ThreadID string
	Items    []ThreadItem
}

// SetLastAgentMessage stores the latest agent message preview for a thread.
type SetLastAgentMessage struct {
	ThreadID string
	Message  string
}

func (EnsureThread) actionName() string           { return "ensureThread" }
func (HideThread) actionName() string             { return "hideThread" }
func (RemoveThread) actionName() string           { return "removeThread" }
func (SetActiveThreadID) actionName() string      { return "setActiveThreadId" }
func (SetThreadParent) actionName() string        { return "setThreadParent" }
func (MarkProcessing) actionName() string         { return "markProcessing" }
func (SetActiveTurnID) actionName() string        { return "setActiveTurnId" }
func (MarkReviewing) actionName() string          { return "markReviewing" }
func (MarkUnread) actionName() string             { return "markUnread" }
func (SetThreadName) actionName() string          { return "setThreadName" }
func (SetThreadModel) actionName() string         { return "setThreadModel" }
func (SetThreadTimestamp) actionName() string     { return "setThreadTimestamp" }
func (SetThreads) actionName() string             { return "setThreads" }
func (SetThreadListLoading) actionName() string   { return "setThreadListLoading" }
func (SetThreadResumeLoading) actionName() string { return "setThreadResumeLoading" }
func (SetThreadListPaging) actionName() string    { return "setThreadListPaging" }
func (SetThreadListCursor) actionName() string    { return "setThreadListCursor" }
func (SetThreadItems) actionName() string         { return "setThreadItems" }
func (SetLastAgentMessage) actionName() string    { return "setLastAgentMessage" }

// Name exposes the wire name of an action for logging and SSE payloads.
func Name(a Action) string {
	if a == nil {
		return ""
	}
	return a.actionName()
}
