// Package dashboard 提供监控面板 HTTP 服务。
//
// 所有线程操作经由 threadsync.Engine; 面板自身不直接碰 RPC。
// 状态变更通过 SSE 推送, 前端增量拉 /api/state。
package dashboard

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/internal/threadsync"
	"github.com/xf-main/CodexMonitor/internal/workspace"
)

// Connector 工作区会话连接器 (appserver.Client 实现)。
type Connector interface {
	Connect(ctx context.Context, workspaceID, path string) error
	Disconnect(workspaceID string)
	Connected(workspaceID string) bool
}

// Deps 面板依赖注入。
type Deps struct {
	Engine    *threadsync.Engine
	Registry  *workspace.Registry
	Connector Connector // 可为 nil (离线/测试模式, 连接类接口返回错误)
}

// Server 面板 HTTP 服务。
type Server struct {
	router *gin.Engine
	deps   Deps
	bus    *EventBus

	unsubscribe func()
}

// NewServer 创建面板服务并桥接 store 事件到 SSE 总线。
func NewServer(deps Deps) *Server {
	r := gin.Default()
	s := &Server{router: r, deps: deps, bus: NewEventBus()}
	s.registerRoutes()

	s.unsubscribe = deps.Engine.Store().Subscribe(func(action threadstate.Action, _ *threadstate.State) {
		s.bus.Publish(Event{Type: "state_changed", Data: gin.H{"action": threadstate.Name(action)}})
	})
	return s
}

// Engine 返回 Gin 引擎。
func (s *Server) Engine() *gin.Engine { return s.router }

// Bus 返回事件总线。
func (s *Server) Bus() *EventBus { return s.bus }

// Close 断开 store 订阅。
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
