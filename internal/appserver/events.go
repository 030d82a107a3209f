// events.go — app-server 通知到内部事件的映射。
package appserver

import (
	"encoding/json"

	"github.com/xf-main/CodexMonitor/pkg/logger"
	"github.com/xf-main/CodexMonitor/pkg/util"
)

// 内部事件类型。
const (
	EventError             = "error"
	EventThreadStarted     = "thread_started"
	EventThreadNameUpdated = "thread_name_updated"
	EventTurnStarted       = "turn_started"
	EventTurnCompleted     = "turn_completed"
	EventItemCompleted     = "item_completed"
	EventShutdownComplete  = "shutdown_complete"
)

// Event 单个 app-server 事件, 已归一化常用字段。
type Event struct {
	Type        string
	WorkspaceID string
	ThreadID    string
	TurnID      string
	Name        string
	// RequestID 非 nil 表示这是 server request, 需要 respond()。
	RequestID *int64
	Data      json.RawMessage
}

// EventHandler 事件回调。在 session 的 readLoop goroutine 上调用。
type EventHandler func(Event)

// ErrorData error 事件的 payload。
type ErrorData struct {
	Message string `json:"message"`
}

// methodToEventMap JSON-RPC notification method → 事件类型。
// 包级 var — 热路径零分配查找。
var methodToEventMap = map[string]string{
	"error":               EventError,
	"thread/started":      EventThreadStarted,
	"thread/name/updated": EventThreadNameUpdated,
	"turn/started":        EventTurnStarted,
	"turn/completed":      EventTurnCompleted,
	"item/completed":      EventItemCompleted,
	"shutdown/complete":   EventShutdownComplete,
}

// eventParams 通知 params 中的通用字段 (两种拼写都接受)。
type eventParams struct {
	ThreadID  string `json:"threadId"`
	ThreadID2 string `json:"thread_id"`
	TurnID    string `json:"turnId"`
	TurnID2   string `json:"turn_id"`
	Name      string `json:"name"`
	Turn      *struct {
		ID string `json:"id"`
	} `json:"turn"`
	Thread *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"thread"`
}

// jsonRPCToEvent 将 JSON-RPC notification 转为 Event。未知方法返回零值。
func jsonRPCToEvent(workspaceID string, msg jsonRPCMessage) Event {
	eventType, ok := methodToEventMap[msg.Method]
	if !ok {
		return Event{}
	}

	event := Event{
		Type:        eventType,
		WorkspaceID: workspaceID,
		Data:        msg.Params,
	}

	var params eventParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			logger.Warn("appserver: event params decode failed",
				logger.FieldMethod, msg.Method,
				logger.FieldParamsLen, len(msg.Params),
				logger.FieldError, err,
			)
			return event
		}
	}

	event.ThreadID = util.FirstNonEmpty(params.ThreadID, params.ThreadID2)
	event.TurnID = util.FirstNonEmpty(params.TurnID, params.TurnID2)
	event.Name = params.Name
	if params.Turn != nil && event.TurnID == "" {
		event.TurnID = params.Turn.ID
	}
	if params.Thread != nil {
		if event.ThreadID == "" {
			event.ThreadID = params.Thread.ID
		}
		if event.Name == "" {
			event.Name = params.Thread.Name
		}
	}
	return event
}
