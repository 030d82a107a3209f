// handler.go — 面板 REST API handlers。
package dashboard

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/internal/threadsync"
	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
)

// registerRoutes 注册 API 路由。
func (s *Server) registerRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	api := s.router.Group("/api")

	api.GET("/state", s.getState)

	api.GET("/workspaces", s.listWorkspaces)
	api.POST("/workspaces", s.addWorkspace)
	api.DELETE("/workspaces/:id", s.removeWorkspace)
	api.POST("/workspaces/:id/connect", s.connectWorkspace)
	api.POST("/workspaces/:id/disconnect", s.disconnectWorkspace)

	api.POST("/threads/start", s.startThread)
	api.POST("/threads/resume", s.resumeThread)
	api.POST("/threads/fork", s.forkThread)
	api.POST("/threads/refresh", s.refreshThread)
	api.POST("/threads/list", s.listThreads)
	api.POST("/threads/load-older", s.loadOlderThreads)
	api.POST("/threads/archive", s.archiveThread)
	api.POST("/threads/activate", s.activateThread)
	api.POST("/threads/mark-read", s.markThreadRead)
	api.POST("/threads/mark-reviewing", s.markThreadReviewing)

	api.GET("/events", s.sseHandler)
}

// writeEngineError 按错误类别映射 HTTP 状态码 (DRY: 所有线程 handler 共用)。
func writeEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		badRequest(c, "invalid_request", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		notFound(c, err.Error())
	case errors.Is(err, apperrors.ErrNotConnected):
		badRequest(c, "not_connected", err.Error())
	default:
		serverError(c, err)
	}
}

// ========================================
// State
// ========================================

func (s *Server) getState(c *gin.Context) {
	success(c, s.deps.Engine.Store().State())
}

// ========================================
// Workspaces
// ========================================

func (s *Server) listWorkspaces(c *gin.Context) {
	success(c, s.deps.Registry.List())
}

func (s *Server) addWorkspace(c *gin.Context) {
	var req struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Connect bool   `json:"connect"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	ws, err := s.deps.Registry.Add(req.Name, req.Path)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	if req.Connect {
		if err := s.connect(c, ws.ID, ws.Path); err != nil {
			// 注册成功但连接失败: 保留工作区, 把错误带回给调用方
			created(c, gin.H{"workspace": ws, "connect_error": err.Error()})
			return
		}
	}
	created(c, gin.H{"workspace": ws})
}

func (s *Server) removeWorkspace(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.deps.Registry.Get(id); !ok {
		notFound(c, "workspace not found")
		return
	}
	if s.deps.Connector != nil {
		s.deps.Connector.Disconnect(id)
	}
	s.deps.Registry.Remove(id)
	success(c, gin.H{"ok": true})
}

func (s *Server) connectWorkspace(c *gin.Context) {
	id := c.Param("id")
	ws, ok := s.deps.Registry.Get(id)
	if !ok {
		notFound(c, "workspace not found")
		return
	}
	if err := s.connect(c, ws.ID, ws.Path); err != nil {
		writeEngineError(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

func (s *Server) disconnectWorkspace(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.deps.Registry.Get(id); !ok {
		notFound(c, "workspace not found")
		return
	}
	if s.deps.Connector != nil {
		s.deps.Connector.Disconnect(id)
	}
	s.deps.Registry.SetConnected(id, false)
	success(c, gin.H{"ok": true})
}

func (s *Server) connect(c *gin.Context, id, path string) error {
	if s.deps.Connector == nil {
		return apperrors.Wrap(apperrors.ErrNotConnected, "dashboard.connect", "no session connector configured")
	}
	if err := s.deps.Connector.Connect(c.Request.Context(), id, path); err != nil {
		return err
	}
	s.deps.Registry.SetConnected(id, true)
	return nil
}

// ========================================
// Threads
// ========================================

type threadRef struct {
	WorkspaceID string `json:"workspace_id"`
	ThreadID    string `json:"thread_id"`
}

func bindThreadRef(c *gin.Context) (threadRef, bool) {
	var req threadRef
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return threadRef{}, false
	}
	if req.WorkspaceID == "" || req.ThreadID == "" {
		badRequest(c, "invalid_request", "workspace_id and thread_id are required")
		return threadRef{}, false
	}
	return req, true
}

func (s *Server) startThread(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		Activate    bool   `json:"activate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if req.WorkspaceID == "" {
		badRequest(c, "invalid_request", "workspace_id is required")
		return
	}
	threadID, err := s.deps.Engine.StartThread(c.Request.Context(), req.WorkspaceID, req.Activate)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	created(c, gin.H{"thread_id": threadID})
}

func (s *Server) resumeThread(c *gin.Context) {
	var req struct {
		WorkspaceID  string `json:"workspace_id"`
		ThreadID     string `json:"thread_id"`
		Force        bool   `json:"force"`
		ReplaceLocal bool   `json:"replace_local"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if req.WorkspaceID == "" || req.ThreadID == "" {
		badRequest(c, "invalid_request", "workspace_id and thread_id are required")
		return
	}
	if err := s.deps.Engine.ResumeThread(c.Request.Context(), req.WorkspaceID, req.ThreadID, req.Force, req.ReplaceLocal); err != nil {
		writeEngineError(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

func (s *Server) forkThread(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		ThreadID    string `json:"thread_id"`
		Activate    bool   `json:"activate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if req.WorkspaceID == "" || req.ThreadID == "" {
		badRequest(c, "invalid_request", "workspace_id and thread_id are required")
		return
	}
	forkedID, err := s.deps.Engine.ForkThread(c.Request.Context(), req.WorkspaceID, req.ThreadID, req.Activate)
	if err != nil {
		writeEngineError(c, err)
		return
	}
	created(c, gin.H{"thread_id": forkedID})
}

func (s *Server) refreshThread(c *gin.Context) {
	req, ok := bindThreadRef(c)
	if !ok {
		return
	}
	if err := s.deps.Engine.RefreshThread(c.Request.Context(), req.WorkspaceID, req.ThreadID); err != nil {
		writeEngineError(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

func (s *Server) listThreads(c *gin.Context) {
	var req struct {
		WorkspaceIDs  []string `json:"workspace_ids"`
		SortKey       string   `json:"sort_key"`
		PreserveState bool     `json:"preserve_state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	ids := req.WorkspaceIDs
	if len(ids) == 0 {
		for _, ws := range s.deps.Registry.List() {
			ids = append(ids, ws.ID)
		}
	}
	if len(ids) == 0 {
		success(c, gin.H{"ok": true})
		return
	}
	err := s.deps.Engine.ListThreads(c.Request.Context(), ids, threadsync.ListOptions{
		PreserveState: req.PreserveState,
		SortKey:       threadstate.SortKey(req.SortKey),
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

func (s *Server) loadOlderThreads(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if req.WorkspaceID == "" {
		badRequest(c, "invalid_request", "workspace_id is required")
		return
	}
	if err := s.deps.Engine.LoadOlderThreadsForWorkspace(c.Request.Context(), req.WorkspaceID); err != nil {
		writeEngineError(c, err)
		return
	}
	success(c, gin.H{"ok": true})
}

// archiveThread 本地立即隐藏, 远端归档后台进行。
func (s *Server) archiveThread(c *gin.Context) {
	req, ok := bindThreadRef(c)
	if !ok {
		return
	}
	s.deps.Engine.Store().Dispatch(threadstate.HideThread{WorkspaceID: req.WorkspaceID, ThreadID: req.ThreadID})
	s.deps.Engine.ArchiveThread(req.WorkspaceID, req.ThreadID)
	success(c, gin.H{"ok": true})
}

func (s *Server) activateThread(c *gin.Context) {
	req, ok := bindThreadRef(c)
	if !ok {
		return
	}
	s.deps.Engine.Store().Dispatch(threadstate.SetActiveThreadID{WorkspaceID: req.WorkspaceID, ThreadID: req.ThreadID})
	s.deps.Engine.Store().Dispatch(threadstate.MarkUnread{ThreadID: req.ThreadID, HasUnread: false})
	success(c, gin.H{"ok": true})
}

func (s *Server) markThreadRead(c *gin.Context) {
	req, ok := bindThreadRef(c)
	if !ok {
		return
	}
	s.deps.Engine.Store().Dispatch(threadstate.MarkUnread{ThreadID: req.ThreadID, HasUnread: false})
	success(c, gin.H{"ok": true})
}

func (s *Server) markThreadReviewing(c *gin.Context) {
	var req struct {
		WorkspaceID string `json:"workspace_id"`
		ThreadID    string `json:"thread_id"`
		Reviewing   bool   `json:"reviewing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_request", err.Error())
		return
	}
	if req.ThreadID == "" {
		badRequest(c, "invalid_request", "thread_id is required")
		return
	}
	s.deps.Engine.Store().Dispatch(threadstate.MarkReviewing{ThreadID: req.ThreadID, IsReviewing: req.Reviewing})
	success(c, gin.H{"ok": true})
}
