package threadsync

import (
	"testing"

	"github.com/xf-main/CodexMonitor/internal/appserver"
)

func TestClassifyTurns(t *testing.T) {
	cases := []struct {
		name   string
		status string
		want   turnSignal
	}{
		{"completed", "completed", signalIdle},
		{"failed", "failed", signalIdle},
		{"interrupted", "interrupted", signalIdle},
		{"case folded terminal", "Completed", signalIdle},
		{"inProgress", "inProgress", signalActive},
		{"snake in progress", "in_progress", signalActive},
		{"running", "running", signalActive},
		{"unknown", "queued", signalAmbiguous},
		{"garbage", "???", signalAmbiguous},
		{"empty", "", signalAmbiguous},
	}
	for _, tc := range cases {
		signal, last := classifyTurns([]appserver.Turn{
			{ID: "turn-old", Status: "completed"},
			{ID: "turn-new", Status: tc.status},
		})
		if signal != tc.want {
			t.Fatalf("%s: signal = %d, want %d", tc.name, signal, tc.want)
		}
		if last == nil || last.ID != "turn-new" {
			t.Fatalf("%s: classification must look at the most recent turn", tc.name)
		}
	}
}

func TestClassifyTurnsEmpty(t *testing.T) {
	signal, last := classifyTurns(nil)
	if signal != signalAmbiguous || last != nil {
		t.Fatalf("no turns: signal=%d last=%v", signal, last)
	}
}
