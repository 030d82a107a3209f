// turnstatus.go — resume 响应的 turn 状态三态分类。
//
// 服务端快照可能处于瞬态不完整状态, 因此状态分三档:
// 明确活跃 / 明确空闲 / 模糊。模糊时保留本地状态, 避免误停 spinner。
package threadsync

import (
	"strings"

	"github.com/xf-main/CodexMonitor/internal/appserver"
)

type turnSignal int

const (
	signalAmbiguous turnSignal = iota
	signalActive
	signalIdle
)

// 显式终态 / 显式进行中。其余一律 ambiguous。
var terminalTurnStatuses = map[string]struct{}{
	"completed":   {},
	"failed":      {},
	"interrupted": {},
	"cancelled":   {},
	"canceled":    {},
	"aborted":     {},
	"errored":     {},
}

var activeTurnStatuses = map[string]struct{}{
	"inprogress":  {},
	"in_progress": {},
	"running":     {},
	"active":      {},
}

// classifyTurns 看最新一条 turn, 返回信号与该 turn。无 turn 记录时返回
// ambiguous 和 nil — 调用方不得据此改动本地状态。
func classifyTurns(turns []appserver.Turn) (turnSignal, *appserver.Turn) {
	if len(turns) == 0 {
		return signalAmbiguous, nil
	}
	last := &turns[len(turns)-1]
	status := strings.ToLower(strings.TrimSpace(last.Status))
	if _, ok := terminalTurnStatuses[status]; ok {
		return signalIdle, last
	}
	if _, ok := activeTurnStatuses[status]; ok {
		return signalActive, last
	}
	return signalAmbiguous, last
}
