// logger_test.go — 验证日志器初始化、上下文传递与 stderr 收集。
package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// swapLogger 临时替换默认日志器，测试结束后还原。
func swapLogger(t *testing.T, l *slog.Logger) {
	t.Helper()
	prev := getLogger()
	storeLogger(l)
	t.Cleanup(func() { storeLogger(prev) })
}

func TestPackageLevelLogGoesThroughDefault(t *testing.T) {
	var buf bytes.Buffer
	swapLogger(t, slog.New(slog.NewJSONHandler(&buf, nil)))

	Info("resume started", FieldThreadID, "t-1", FieldWorkspaceID, "ws-1")

	out := buf.String()
	for _, want := range []string{"resume started", "t-1", "ws-1", FieldThreadID} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != getLogger() {
		t.Error("FromContext without injected logger should return default")
	}
}

func TestFromContextReturnsInjected(t *testing.T) {
	var buf bytes.Buffer
	injected := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithContext(context.Background(), injected)

	if FromContext(ctx) != injected {
		t.Error("FromContext should return the injected logger")
	}
}

func TestInitSwitchesHandler(t *testing.T) {
	prev := getLogger()
	t.Cleanup(func() { storeLogger(prev) })

	Init("development")
	if getLogger() == prev {
		t.Error("Init should replace the default logger")
	}
}

func TestStderrCollectorForwardsLines(t *testing.T) {
	var buf bytes.Buffer
	swapLogger(t, slog.New(slog.NewJSONHandler(&buf, nil)))

	c := NewStderrCollector("ws-1")
	if _, err := c.Write([]byte("listening on 127.0.0.1\nERROR: boom\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "listening on 127.0.0.1") {
		t.Errorf("output missing info line: %q", out)
	}
	// error 关键词行升级为 ERROR 级别
	if !strings.Contains(out, "ERROR: boom") || !strings.Contains(out, `"level":"ERROR"`) {
		t.Errorf("output missing escalated error line: %q", out)
	}
}

func TestContainsErrorKeyword(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"all good", false},
		{"Error: failed", true},
		{"PANIC in readLoop", true},
		{"fatal exit", true},
		{"", false},
	}
	for _, tc := range cases {
		if got := containsErrorKeyword(tc.line); got != tc.want {
			t.Errorf("containsErrorKeyword(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}
