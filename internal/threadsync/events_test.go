package threadsync

import (
	"encoding/json"
	"testing"

	"github.com/xf-main/CodexMonitor/internal/appserver"
	"github.com/xf-main/CodexMonitor/internal/threadstate"
)

func TestHandleEventTurnLifecycle(t *testing.T) {
	engine, store, _ := newTestEngine(&fakeRPC{}, Options{})

	engine.HandleEvent(appserver.Event{
		Type:        appserver.EventTurnStarted,
		WorkspaceID: "ws1",
		ThreadID:    "t1",
		TurnID:      "turn-1",
	})

	st := store.State()
	if !st.Status["t1"].IsProcessing || st.ActiveTurn["t1"] != "turn-1" {
		t.Fatalf("turn start not applied: %+v turn=%q", st.Status["t1"], st.ActiveTurn["t1"])
	}
	if engine.ledger.Get("ws1", "t1") != 5000 {
		t.Fatalf("ledger not touched: %d", engine.ledger.Get("ws1", "t1"))
	}

	// 另一个线程被激活, t1 完成时要标未读
	store.Dispatch(threadstate.EnsureThread{WorkspaceID: "ws1", ThreadID: "t2"})
	store.Dispatch(threadstate.SetActiveThreadID{WorkspaceID: "ws1", ThreadID: "t2"})

	engine.HandleEvent(appserver.Event{
		Type:        appserver.EventTurnCompleted,
		WorkspaceID: "ws1",
		ThreadID:    "t1",
		TurnID:      "turn-1",
	})

	st = store.State()
	if st.Status["t1"].IsProcessing || st.ActiveTurn["t1"] != "" {
		t.Fatalf("turn completion not applied: %+v", st.Status["t1"])
	}
	if st.Status["t1"].LastDurationMS == nil {
		t.Fatal("completed interval should record a duration")
	}
	if !st.Status["t1"].HasUnread {
		t.Fatal("background thread completion should mark unread")
	}
}

func TestHandleEventNameAndItems(t *testing.T) {
	engine, store, _ := newTestEngine(&fakeRPC{}, Options{})

	store.Dispatch(threadstate.EnsureThread{WorkspaceID: "ws1", ThreadID: "t1"})
	engine.HandleEvent(appserver.Event{
		Type:        appserver.EventThreadNameUpdated,
		WorkspaceID: "ws1",
		ThreadID:    "t1",
		Name:        "Refactor pass",
	})
	if th, _ := store.State().Workspace("ws1").ThreadIn("t1"); th.Name != "Refactor pass" {
		t.Fatalf("name = %q", th.Name)
	}

	payload := json.RawMessage(`{"item":{"id":"i1","type":"agentMessage","text":"done!"}}`)
	engine.HandleEvent(appserver.Event{
		Type:        appserver.EventItemCompleted,
		WorkspaceID: "ws1",
		ThreadID:    "t1",
		Data:        payload,
	})
	st := store.State()
	if len(st.Items["t1"]) != 1 || st.Items["t1"][0].ID != "i1" {
		t.Fatalf("items = %+v", st.Items["t1"])
	}
	if st.LastAgentMessage["t1"] != "done!" {
		t.Fatalf("last agent message = %q", st.LastAgentMessage["t1"])
	}

	// 重复 item id 去重
	engine.HandleEvent(appserver.Event{
		Type:        appserver.EventItemCompleted,
		WorkspaceID: "ws1",
		ThreadID:    "t1",
		Data:        payload,
	})
	if len(store.State().Items["t1"]) != 1 {
		t.Fatalf("duplicate item appended: %+v", store.State().Items["t1"])
	}
}

func TestHandleEventThreadStartedEnsures(t *testing.T) {
	engine, store, _ := newTestEngine(&fakeRPC{}, Options{})

	engine.HandleEvent(appserver.Event{
		Type:        appserver.EventThreadStarted,
		WorkspaceID: "ws1",
		ThreadID:    "t-new",
	})

	if _, ok := store.State().Workspace("ws1").ThreadIn("t-new"); !ok {
		t.Fatal("thread/started should register the thread optimistically")
	}

	// 缺 id 的事件不产生任何变化
	before := store.State()
	engine.HandleEvent(appserver.Event{Type: appserver.EventThreadStarted, WorkspaceID: "ws1"})
	if store.State() != before {
		t.Fatal("thread/started without id should be a no-op")
	}
}
