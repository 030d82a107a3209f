// events.go — app-server 流事件到 store dispatch 的桥接。
package threadsync

import (
	"encoding/json"

	"github.com/xf-main/CodexMonitor/internal/appserver"
	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/pkg/logger"
)

// HandleEvent 消费一条 app-server 事件。在 session readLoop goroutine
// 上被调用; 所有状态变更通过 store dispatch 串行化。
func (e *Engine) HandleEvent(ev appserver.Event) {
	switch ev.Type {
	case appserver.EventThreadStarted:
		if ev.ThreadID == "" {
			return
		}
		e.store.Dispatch(threadstate.EnsureThread{WorkspaceID: ev.WorkspaceID, ThreadID: ev.ThreadID})

	case appserver.EventTurnStarted:
		if ev.ThreadID == "" {
			return
		}
		now := e.now()
		e.store.Dispatch(threadstate.EnsureThread{WorkspaceID: ev.WorkspaceID, ThreadID: ev.ThreadID})
		e.store.Dispatch(threadstate.MarkProcessing{ThreadID: ev.ThreadID, IsProcessing: true, Timestamp: now})
		if ev.TurnID != "" {
			e.store.Dispatch(threadstate.SetActiveTurnID{ThreadID: ev.ThreadID, TurnID: ev.TurnID})
		}
		e.store.Dispatch(threadstate.SetThreadTimestamp{WorkspaceID: ev.WorkspaceID, ThreadID: ev.ThreadID, Timestamp: now})
		e.ledger.Touch(ev.WorkspaceID, ev.ThreadID, now)

	case appserver.EventTurnCompleted:
		if ev.ThreadID == "" {
			return
		}
		now := e.now()
		live := e.store.State()
		if live.Status[ev.ThreadID].IsProcessing {
			e.store.Dispatch(threadstate.MarkProcessing{ThreadID: ev.ThreadID, IsProcessing: false, Timestamp: now})
		}
		if live.ActiveTurn[ev.ThreadID] != "" {
			e.store.Dispatch(threadstate.SetActiveTurnID{ThreadID: ev.ThreadID, TurnID: ""})
		}
		// 非激活线程的完成标记未读
		if live.Workspace(ev.WorkspaceID).ActiveThreadID != ev.ThreadID {
			e.store.Dispatch(threadstate.MarkUnread{ThreadID: ev.ThreadID, HasUnread: true})
		}
		e.store.Dispatch(threadstate.SetThreadTimestamp{WorkspaceID: ev.WorkspaceID, ThreadID: ev.ThreadID, Timestamp: now})
		e.ledger.Touch(ev.WorkspaceID, ev.ThreadID, now)

	case appserver.EventThreadNameUpdated:
		if ev.ThreadID == "" || ev.Name == "" {
			return
		}
		e.store.Dispatch(threadstate.SetThreadName{WorkspaceID: ev.WorkspaceID, ThreadID: ev.ThreadID, Name: ev.Name})

	case appserver.EventItemCompleted:
		e.handleItemCompleted(ev)

	case appserver.EventError:
		var data appserver.ErrorData
		_ = json.Unmarshal(ev.Data, &data)
		logger.Warn("threadsync: app-server stream error",
			logger.FieldWorkspaceID, ev.WorkspaceID,
			logger.FieldThreadID, ev.ThreadID,
			"message", data.Message,
		)
	}
}

// itemCompletedParams item/completed 的 payload 子集。
type itemCompletedParams struct {
	Item *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

func (e *Engine) handleItemCompleted(ev appserver.Event) {
	if ev.ThreadID == "" || len(ev.Data) == 0 {
		return
	}
	var params itemCompletedParams
	if err := json.Unmarshal(ev.Data, &params); err != nil || params.Item == nil {
		return
	}
	item := params.Item

	live := e.store.State()
	items := live.Items[ev.ThreadID]
	for _, existing := range items {
		if existing.ID == item.ID && item.ID != "" {
			return
		}
	}
	next := make([]threadstate.ThreadItem, 0, len(items)+1)
	next = append(next, items...)
	next = append(next, threadstate.ThreadItem{ID: item.ID, Type: item.Type, Payload: append(json.RawMessage(nil), ev.Data...)})
	e.store.Dispatch(threadstate.SetThreadItems{ThreadID: ev.ThreadID, Items: next})

	if item.Type == "agentMessage" && item.Text != "" {
		e.store.Dispatch(threadstate.SetLastAgentMessage{ThreadID: ev.ThreadID, Message: item.Text})
	}
}
