package dashboard

import (
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/internal/threadsync"
	"github.com/xf-main/CodexMonitor/internal/workspace"
)

func TestEventBusPublishFanout(t *testing.T) {
	bus := NewEventBus()
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	bus.Publish(Event{Type: "state_changed", Data: "x"})

	for name, ch := range map[string]chan Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			if evt.Type != "state_changed" {
				t.Fatalf("%s: type = %q", name, evt.Type)
			}
		default:
			t.Fatalf("%s: no event delivered", name)
		}
	}
}

func TestEventBusSlowSubscriberDropped(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("slow")

	// 填满缓冲, 再多发一条不应阻塞
	for i := 0; i < 40; i++ {
		bus.Publish(Event{Type: "state_changed"})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffer = %d, want full (%d)", len(ch), cap(ch))
	}
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe("a")
	bus.Unsubscribe("a")
	bus.Publish(Event{Type: "state_changed"})
	if len(ch) != 0 {
		t.Fatalf("event delivered after unsubscribe")
	}
}

func TestServerBridgesStoreActionsToBus(t *testing.T) {
	reg := workspace.NewRegistry()
	store := threadstate.NewStore()
	eng := threadsync.NewEngine(store, &stubRPC{}, reg, nil, threadsync.Options{})
	srv := NewServer(Deps{Engine: eng, Registry: reg})
	defer srv.Close()

	ch := srv.Bus().Subscribe("probe")
	store.Dispatch(threadstate.EnsureThread{WorkspaceID: "ws", ThreadID: "t1"})

	select {
	case evt := <-ch:
		if evt.Type != "state_changed" {
			t.Fatalf("type = %q", evt.Type)
		}
		data, ok := evt.Data.(gin.H)
		if !ok || data["action"] != "ensureThread" {
			t.Fatalf("unexpected payload %#v", evt.Data)
		}
	default:
		t.Fatalf("no bus event after dispatch")
	}
}
