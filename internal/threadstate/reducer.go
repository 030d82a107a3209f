// reducer.go — the pure reduction function.
//
// Reduce never mutates prev. Every branch that would write a field first
// copies the containing map/struct, and every branch that detects a no-op
// returns prev itself — pointer identity is the "nothing changed" contract
// relied on by subscribers.
package threadstate

// Reduce applies one action to a snapshot and returns the next snapshot.
func Reduce(prev *State, action Action) *State {
	switch a := action.(type) {
	case EnsureThread:
		return reduceEnsureThread(prev, a)
	case HideThread:
		return reduceHideThread(prev, a)
	case RemoveThread:
		return reduceRemoveThread(prev, a)
	case SetActiveThreadID:
		return reduceSetActiveThreadID(prev, a)
	case SetThreadParent:
		return reduceSetThreadParent(prev, a)
	case MarkProcessing:
		return reduceMarkProcessing(prev, a)
	case SetActiveTurnID:
		return reduceSetActiveTurnID(prev, a)
	case MarkReviewing:
		return reduceMarkReviewing(prev, a)
	case MarkUnread:
		return reduceMarkUnread(prev, a)
	case SetThreadName:
		return reduceSetThreadName(prev, a)
	case SetThreadModel:
		return reduceSetThreadModel(prev, a)
	case SetThreadTimestamp:
		return reduceSetThreadTimestamp(prev, a)
	case SetThreads:
		return reduceSetThreads(prev, a)
	case SetThreadListLoading:
		return reduceListFlag(prev, a.WorkspaceID, func(ws *WorkspaceState) bool {
			if ws.Loading == a.Loading {
				return false
			}
			ws.Loading = a.Loading
			return true
		})
	case SetThreadResumeLoading:
		return reduceSetThreadResumeLoading(prev, a)
	case SetThreadListPaging:
		return reduceListFlag(prev, a.WorkspaceID, func(ws *WorkspaceState) bool {
			if ws.PagingOlder == a.Paging {
				return false
			}
			ws.PagingOlder = a.Paging
			return true
		})
	case SetThreadListCursor:
		return reduceSetThreadListCursor(prev, a)
	case SetThreadItems:
		return reduceSetThreadItems(prev, a)
	case SetLastAgentMessage:
		return reduceSetLastAgentMessage(prev, a)
	default:
		return prev
	}
}

// mutableWorkspace returns a clone of prev with workspace id ready for
// writing, creating the workspace slot when first touched.
func mutableWorkspace(prev *State, id string) (*State, *WorkspaceState) {
	next := prev.clone()
	next.Workspaces = cloneWorkspaces(prev.Workspaces)
	var ws *WorkspaceState
	if existing, ok := prev.Workspaces[id]; ok {
		ws = cloneWorkspace(existing)
	} else {
		ws = &WorkspaceState{SortKey: SortUpdatedAt}
	}
	next.Workspaces[id] = ws
	return next, ws
}

func reduceEnsureThread(prev *State, a EnsureThread) *State {
	if a.ThreadID == "" {
		return prev
	}
	cur := prev.Workspace(a.WorkspaceID)
	if cur.IsHidden(a.ThreadID) {
		return prev
	}
	if _, ok := cur.ThreadIn(a.ThreadID); ok {
		return prev
	}

	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	placeholder := Thread{ID: a.ThreadID, Name: PlaceholderName}
	ws.Threads = append([]Thread{placeholder}, ws.Threads...)
	if ws.ActiveThreadID == "" {
		ws.ActiveThreadID = a.ThreadID
	}

	if _, ok := prev.Status[a.ThreadID]; !ok {
		next.Status = cloneStatus(prev.Status)
		next.Status[a.ThreadID] = ActivityStatus{}
	}
	return next
}

func reduceHideThread(prev *State, a HideThread) *State {
	cur := prev.Workspace(a.WorkspaceID)
	_, visible := cur.ThreadIn(a.ThreadID)
	if cur.IsHidden(a.ThreadID) && !visible {
		return prev
	}

	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	ws.Hidden = cloneHidden(ws.Hidden)
	ws.Hidden[a.ThreadID] = struct{}{}
	ws.Threads = removeByID(ws.Threads, a.ThreadID)
	if ws.ActiveThreadID == a.ThreadID {
		ws.ActiveThreadID = firstThreadID(ws.Threads)
	}
	return next
}

func reduceRemoveThread(prev *State, a RemoveThread) *State {
	id := a.ThreadID
	cur := prev.Workspace(a.WorkspaceID)
	_, visible := cur.ThreadIn(id)

	_, hasStatus := prev.Status[id]
	_, hasTurn := prev.ActiveTurn[id]
	_, hasParent := prev.Parent[id]
	_, hasItems := prev.Items[id]
	_, hasMsg := prev.LastAgentMessage[id]
	_, hasLoading := prev.ResumeLoading[id]
	if !visible && !hasStatus && !hasTurn && !hasParent && !hasItems && !hasMsg && !hasLoading {
		return prev
	}

	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	if visible {
		ws.Threads = removeByID(ws.Threads, id)
		if ws.ActiveThreadID == id {
			ws.ActiveThreadID = firstThreadID(ws.Threads)
		}
	}
	if hasStatus {
		next.Status = cloneStatus(prev.Status)
		delete(next.Status, id)
	}
	if hasTurn {
		next.ActiveTurn = cloneStrings(prev.ActiveTurn)
		delete(next.ActiveTurn, id)
	}
	if hasParent {
		next.Parent = cloneStrings(prev.Parent)
		delete(next.Parent, id)
	}
	if hasItems {
		next.Items = cloneItems(prev.Items)
		delete(next.Items, id)
	}
	if hasMsg {
		next.LastAgentMessage = cloneStrings(prev.LastAgentMessage)
		delete(next.LastAgentMessage, id)
	}
	if hasLoading {
		next.ResumeLoading = cloneBools(prev.ResumeLoading)
		delete(next.ResumeLoading, id)
	}
	return next
}

func reduceSetActiveThreadID(prev *State, a SetActiveThreadID) *State {
	if prev.Workspace(a.WorkspaceID).ActiveThreadID == a.ThreadID {
		return prev
	}
	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	ws.ActiveThreadID = a.ThreadID
	return next
}

func reduceSetThreadParent(prev *State, a SetThreadParent) *State {
	if a.ThreadID == "" || a.ThreadID == a.ParentID {
		return prev
	}
	if prev.Parent[a.ThreadID] == a.ParentID {
		return prev
	}
	// Reject a link that would close a cycle through the existing chain.
	visited := map[string]struct{}{a.ThreadID: {}}
	for id := a.ParentID; id != ""; id = prev.Parent[id] {
		if _, seen := visited[id]; seen {
			return prev
		}
		visited[id] = struct{}{}
	}

	next := prev.clone()
	next.Parent = cloneStrings(prev.Parent)
	if a.ParentID == "" {
		delete(next.Parent, a.ThreadID)
	} else {
		next.Parent[a.ThreadID] = a.ParentID
	}
	return next
}

func reduceMarkProcessing(prev *State, a MarkProcessing) *State {
	cur := prev.Status[a.ThreadID]
	status := cur
	if a.IsProcessing {
		status.IsProcessing = true
		// Repeated "start" signals keep the original interval open.
		if status.ProcessingStartedAt == nil {
			status.ProcessingStartedAt = int64Ptr(a.Timestamp)
		}
	} else {
		status.IsProcessing = false
		if cur.ProcessingStartedAt != nil {
			d := a.Timestamp - *cur.ProcessingStartedAt
			if d < 0 {
				d = 0
			}
			status.LastDurationMS = int64Ptr(d)
		}
		status.ProcessingStartedAt = nil
	}
	if statusEqual(cur, status) {
		return prev
	}
	next := prev.clone()
	next.Status = cloneStatus(prev.Status)
	next.Status[a.ThreadID] = status
	return next
}

func reduceSetActiveTurnID(prev *State, a SetActiveTurnID) *State {
	if prev.ActiveTurn[a.ThreadID] == a.TurnID {
		return prev
	}
	next := prev.clone()
	next.ActiveTurn = cloneStrings(prev.ActiveTurn)
	if a.TurnID == "" {
		delete(next.ActiveTurn, a.ThreadID)
	} else {
		next.ActiveTurn[a.ThreadID] = a.TurnID
	}
	return next
}

func reduceMarkReviewing(prev *State, a MarkReviewing) *State {
	cur := prev.Status[a.ThreadID]
	status := cur
	status.IsReviewing = a.IsReviewing
	if statusEqual(cur, status) {
		return prev
	}
	next := prev.clone()
	next.Status = cloneStatus(prev.Status)
	next.Status[a.ThreadID] = status
	return next
}

func reduceMarkUnread(prev *State, a MarkUnread) *State {
	cur := prev.Status[a.ThreadID]
	status := cur
	status.HasUnread = a.HasUnread
	if statusEqual(cur, status) {
		return prev
	}
	next := prev.clone()
	next.Status = cloneStatus(prev.Status)
	next.Status[a.ThreadID] = status
	return next
}

func reduceSetThreadName(prev *State, a SetThreadName) *State {
	cur := prev.Workspace(a.WorkspaceID)
	th, ok := cur.ThreadIn(a.ThreadID)
	if !ok || th.Name == a.Name {
		return prev
	}
	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	ws.Threads = updateThread(ws.Threads, a.ThreadID, func(t Thread) Thread {
		t.Name = a.Name
		return t
	})
	return next
}

func reduceSetThreadModel(prev *State, a SetThreadModel) *State {
	cur := prev.Workspace(a.WorkspaceID)
	th, ok := cur.ThreadIn(a.ThreadID)
	if !ok {
		return prev
	}
	model := th.Model
	effort := th.ReasoningEffort
	if a.Model != "" {
		model = a.Model
	}
	if a.ReasoningEffort != "" {
		effort = a.ReasoningEffort
	}
	if model == th.Model && effort == th.ReasoningEffort {
		return prev
	}
	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	ws.Threads = updateThread(ws.Threads, a.ThreadID, func(t Thread) Thread {
		t.Model = model
		t.ReasoningEffort = effort
		return t
	})
	return next
}

func reduceSetThreadTimestamp(prev *State, a SetThreadTimestamp) *State {
	cur := prev.Workspace(a.WorkspaceID)
	th, ok := cur.ThreadIn(a.ThreadID)
	if !ok || a.Timestamp <= th.UpdatedAt {
		return prev
	}
	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	if ws.SortKey == SortUpdatedAt {
		// Single-pass move-to-front instead of a full re-sort: the updated
		// thread is by definition the most recent one now.
		moved := make([]Thread, 0, len(ws.Threads))
		updated := th
		updated.UpdatedAt = a.Timestamp
		moved = append(moved, updated)
		for _, t := range ws.Threads {
			if t.ID != a.ThreadID {
				moved = append(moved, t)
			}
		}
		ws.Threads = moved
	} else {
		ws.Threads = updateThread(ws.Threads, a.ThreadID, func(t Thread) Thread {
			t.UpdatedAt = a.Timestamp
			return t
		})
	}
	return next
}

func reduceSetThreads(prev *State, a SetThreads) *State {
	next, ws := mutableWorkspace(prev, a.WorkspaceID)

	incoming := make([]Thread, 0, len(a.Threads))
	for _, th := range a.Threads {
		if ws.IsHidden(th.ID) {
			continue
		}
		incoming = append(incoming, th)
	}

	if a.PreserveAnchors {
		processing := make(map[string]int64)
		for _, th := range ws.Threads {
			if st, ok := prev.Status[th.ID]; ok && st.IsProcessing {
				var start int64
				if st.ProcessingStartedAt != nil {
					start = *st.ProcessingStartedAt
				}
				processing[th.ID] = start
			}
		}
		ws.Threads = MergeVisibleThreads(ws.Threads, incoming, ws.ActiveThreadID, processing, prev.Parent, a.Activity)
		if ws.ActiveThreadID != "" {
			if _, ok := ws.ThreadIn(ws.ActiveThreadID); !ok {
				// The active thread was neither included nor recoverable from
				// the previous list.
				ws.ActiveThreadID = firstThreadID(ws.Threads)
			}
		}
	} else {
		ws.Threads = incoming
		if ws.ActiveThreadID != "" {
			if _, ok := ws.ThreadIn(ws.ActiveThreadID); !ok {
				ws.ActiveThreadID = firstThreadID(ws.Threads)
			}
		}
	}

	if a.SortKey != "" {
		ws.SortKey = a.SortKey
	}
	return next
}

func reduceSetThreadResumeLoading(prev *State, a SetThreadResumeLoading) *State {
	if prev.ResumeLoading[a.ThreadID] == a.Loading {
		return prev
	}
	next := prev.clone()
	next.ResumeLoading = cloneBools(prev.ResumeLoading)
	if a.Loading {
		next.ResumeLoading[a.ThreadID] = true
	} else {
		delete(next.ResumeLoading, a.ThreadID)
	}
	return next
}

func reduceListFlag(prev *State, workspaceID string, apply func(*WorkspaceState) bool) *State {
	probe := cloneWorkspace(prev.Workspace(workspaceID))
	if !apply(probe) {
		return prev
	}
	next, ws := mutableWorkspace(prev, workspaceID)
	apply(ws)
	return next
}

func reduceSetThreadListCursor(prev *State, a SetThreadListCursor) *State {
	cur := prev.Workspace(a.WorkspaceID).Cursor
	if stringPtrEqual(cur, a.Cursor) {
		return prev
	}
	next, ws := mutableWorkspace(prev, a.WorkspaceID)
	ws.Cursor = a.Cursor
	return next
}

func reduceSetThreadItems(prev *State, a SetThreadItems) *State {
	next := prev.clone()
	next.Items = cloneItems(prev.Items)
	if len(a.Items) == 0 {
		if _, ok := prev.Items[a.ThreadID]; !ok {
			return prev
		}
		delete(next.Items, a.ThreadID)
	} else {
		next.Items[a.ThreadID] = a.Items
	}
	return next
}

func reduceSetLastAgentMessage(prev *State, a SetLastAgentMessage) *State {
	if prev.LastAgentMessage[a.ThreadID] == a.Message {
		return prev
	}
	next := prev.clone()
	next.LastAgentMessage = cloneStrings(prev.LastAgentMessage)
	if a.Message == "" {
		delete(next.LastAgentMessage, a.ThreadID)
	} else {
		next.LastAgentMessage[a.ThreadID] = a.Message
	}
	return next
}

// ========================================
// small list helpers
// ========================================

func removeByID(threads []Thread, id string) []Thread {
	out := make([]Thread, 0, len(threads))
	for _, th := range threads {
		if th.ID != id {
			out = append(out, th)
		}
	}
	return out
}

func updateThread(threads []Thread, id string, fn func(Thread) Thread) []Thread {
	out := make([]Thread, len(threads))
	for i, th := range threads {
		if th.ID == id {
			out[i] = fn(th)
		} else {
			out[i] = th
		}
	}
	return out
}

func firstThreadID(threads []Thread) string {
	if len(threads) == 0 {
		return ""
	}
	return threads[0].ID
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
