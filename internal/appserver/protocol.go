// protocol.go — codex app-server 线程协议的 wire 类型。
//
// 服务端字段命名在版本间摇摆 (camelCase / snake_case)，时间戳既可能是
// epoch millis 数字也可能是 RFC3339 字符串。所有类型都按"两种拼写都接受"
// 解码，引擎侧只看归一化后的值。
package appserver

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/xf-main/CodexMonitor/pkg/util"
)

// ========================================
// 时间戳
// ========================================

// Millis epoch 毫秒时间戳, 接受 JSON number / 数字字符串 / RFC3339 字符串。
type Millis int64

// UnmarshalJSON 实现灵活解码。
func (m *Millis) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*m = 0
		return nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*m = 0
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		*m = Millis(t.UnixMilli())
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*m = Millis(int64(f))
	return nil
}

// Int64 返回原始毫秒值。
func (m Millis) Int64() int64 { return int64(m) }

// ========================================
// Turn
// ========================================

// Turn 状态的显式取值。未识别的值按 ambiguous 处理 (见 threadsync)。
const (
	TurnStatusInProgress = "inProgress"
	TurnStatusCompleted  = "completed"
)

// TurnItem 单个会话 item, 保留原始 payload 供上层透传。
type TurnItem struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON 抽取 id/type 并保留原始字节。
func (it *TurnItem) UnmarshalJSON(data []byte) error {
	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	it.ID = head.ID
	it.Type = head.Type
	it.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Turn 一次请求/响应周期。
type Turn struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	StartedAt *Millis    `json:"-"`
	Items     []TurnItem `json:"items"`
}

// UnmarshalJSON 接受 started_at / startedAt 两种拼写。
func (t *Turn) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string     `json:"id"`
		Status     string     `json:"status"`
		StartedAt  *Millis    `json:"startedAt"`
		StartedAt2 *Millis    `json:"started_at"`
		Items      []TurnItem `json:"items"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.ID = raw.ID
	t.Status = raw.Status
	t.StartedAt = raw.StartedAt
	if t.StartedAt == nil {
		t.StartedAt = raw.StartedAt2
	}
	t.Items = raw.Items
	return nil
}

// ========================================
// Thread / ThreadRecord
// ========================================

// ThreadSource 编码线程来源 (fork / sub-agent spawn), 可能携带父线程 id。
type ThreadSource struct {
	Raw json.RawMessage
}

// UnmarshalJSON 保留原始字节。
func (s *ThreadSource) UnmarshalJSON(data []byte) error {
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// ParentThreadID 从已知的几种 source 形态中提取父线程 id, 无则返回 ""。
func (s *ThreadSource) ParentThreadID() string {
	if s == nil || len(s.Raw) == 0 {
		return ""
	}
	var shape struct {
		ParentThreadID  string `json:"parent_thread_id"`
		ParentThreadID2 string `json:"parentThreadId"`
		Subagent        *struct {
			ParentThreadID  string `json:"parent_thread_id"`
			ParentThreadID2 string `json:"parentThreadId"`
		} `json:"subagent"`
		ThreadSpawn *struct {
			ThreadID  string `json:"thread_id"`
			ThreadID2 string `json:"threadId"`
		} `json:"thread_spawn"`
	}
	if err := json.Unmarshal(s.Raw, &shape); err != nil {
		return ""
	}
	if shape.Subagent != nil {
		if id := util.FirstNonEmpty(shape.Subagent.ParentThreadID, shape.Subagent.ParentThreadID2); id != "" {
			return id
		}
	}
	if shape.ThreadSpawn != nil {
		if id := util.FirstNonEmpty(shape.ThreadSpawn.ThreadID, shape.ThreadSpawn.ThreadID2); id != "" {
			return id
		}
	}
	return util.FirstNonEmpty(shape.ParentThreadID, shape.ParentThreadID2)
}

// ThreadPayload thread/start·resume·fork 响应中的 thread 对象。
type ThreadPayload struct {
	ID              string
	Preview         string
	UpdatedAt       Millis
	CreatedAt       Millis
	Model           string
	ReasoningEffort string
	Turns           []Turn
	Source          *ThreadSource
}

// UnmarshalJSON 双拼写解码。
func (p *ThreadPayload) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID               string        `json:"id"`
		Preview          string        `json:"preview"`
		UpdatedAt        Millis        `json:"updatedAt"`
		UpdatedAt2       Millis        `json:"updated_at"`
		CreatedAt        Millis        `json:"createdAt"`
		CreatedAt2       Millis        `json:"created_at"`
		Model            string        `json:"model"`
		ReasoningEffort  string        `json:"reasoningEffort"`
		ReasoningEffort2 string        `json:"reasoning_effort"`
		Turns            []Turn        `json:"turns"`
		Source           *ThreadSource `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.ID = raw.ID
	p.Preview = raw.Preview
	p.UpdatedAt = maxMillis(raw.UpdatedAt, raw.UpdatedAt2)
	p.CreatedAt = maxMillis(raw.CreatedAt, raw.CreatedAt2)
	p.Model = raw.Model
	p.ReasoningEffort = util.FirstNonEmpty(raw.ReasoningEffort, raw.ReasoningEffort2)
	p.Turns = raw.Turns
	p.Source = raw.Source
	return nil
}

// ThreadEnvelope {thread: {...}} 信封。
type ThreadEnvelope struct {
	Thread ThreadPayload `json:"thread"`
}

// ThreadRecord thread/list 返回的单条记录。
type ThreadRecord struct {
	ID              string
	Cwd             string
	Preview         string
	UpdatedAt       Millis
	CreatedAt       Millis
	Model           string
	ReasoningEffort string
	Source          *ThreadSource
}

// UnmarshalJSON 双拼写解码。
func (r *ThreadRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID               string        `json:"id"`
		Cwd              string        `json:"cwd"`
		Preview          string        `json:"preview"`
		UpdatedAt        Millis        `json:"updatedAt"`
		UpdatedAt2       Millis        `json:"updated_at"`
		CreatedAt        Millis        `json:"createdAt"`
		CreatedAt2       Millis        `json:"created_at"`
		Model            string        `json:"model"`
		ReasoningEffort  string        `json:"reasoningEffort"`
		ReasoningEffort2 string        `json:"reasoning_effort"`
		Source           *ThreadSource `json:"source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Cwd = raw.Cwd
	r.Preview = raw.Preview
	r.UpdatedAt = maxMillis(raw.UpdatedAt, raw.UpdatedAt2)
	r.CreatedAt = maxMillis(raw.CreatedAt, raw.CreatedAt2)
	r.Model = raw.Model
	r.ReasoningEffort = util.FirstNonEmpty(raw.ReasoningEffort, raw.ReasoningEffort2)
	r.Source = raw.Source
	return nil
}

// ThreadPage thread/list 一页结果。NextCursor 为 nil 表示索引耗尽。
type ThreadPage struct {
	Data       []ThreadRecord
	NextCursor *string
}

// UnmarshalJSON 接受 nextCursor / next_cursor 两种拼写。
func (p *ThreadPage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Data        []ThreadRecord `json:"data"`
		NextCursor  *string        `json:"nextCursor"`
		NextCursor2 *string        `json:"next_cursor"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Data = raw.Data
	p.NextCursor = raw.NextCursor
	if p.NextCursor == nil {
		p.NextCursor = raw.NextCursor2
	}
	// 空串按耗尽处理
	if p.NextCursor != nil && strings.TrimSpace(*p.NextCursor) == "" {
		p.NextCursor = nil
	}
	return nil
}

// ========================================
// 辅助
// ========================================

func maxMillis(a, b Millis) Millis {
	if a >= b {
		return a
	}
	return b
}
