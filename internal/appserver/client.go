// client.go — 多工作区 app-server 客户端与线程 RPC。
package appserver

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
	"github.com/xf-main/CodexMonitor/pkg/logger"
	"github.com/xf-main/CodexMonitor/pkg/util"
)

// ThreadRPC 线程生命周期 RPC 接口。引擎只依赖这个接口, 便于测试替换。
type ThreadRPC interface {
	// StartThread 在指定工作区创建新线程。
	StartThread(ctx context.Context, workspaceID string) (*ThreadEnvelope, error)
	// ResumeThread 恢复线程, 返回含历史 turns 的完整 payload。
	ResumeThread(ctx context.Context, workspaceID, threadID string) (*ThreadEnvelope, error)
	// ForkThread 从既有线程分叉出新线程。
	ForkThread(ctx context.Context, workspaceID, threadID string) (*ThreadEnvelope, error)
	// ListThreads 拉取一页线程索引。cursor 为 nil 表示首页。
	ListThreads(ctx context.Context, workspaceID string, cursor *string, pageSize int, sortKey string) (*ThreadPage, error)
	// ArchiveThread 归档线程。
	ArchiveThread(ctx context.Context, workspaceID, threadID string) error
}

// ========================================
// Session 的线程 RPC 实现
// ========================================

type threadResumeParams struct {
	ThreadID string `json:"threadId"`
	Cwd      string `json:"cwd,omitempty"`
}

type threadListParams struct {
	Cursor   *string `json:"cursor,omitempty"`
	PageSize int     `json:"pageSize,omitempty"`
	SortKey  string  `json:"sortKey,omitempty"`
}

// StartThread thread/start。
func (s *Session) StartThread(ctx context.Context) (*ThreadEnvelope, error) {
	result, err := s.call(ctx, "thread/start", map[string]any{"cwd": s.Cwd})
	if err != nil {
		return nil, apperrors.Wrap(err, "Session.StartThread", "thread/start")
	}
	return decodeThreadEnvelope(result, "", "Session.StartThread")
}

// ResumeThread thread/resume。
func (s *Session) ResumeThread(ctx context.Context, threadID string) (*ThreadEnvelope, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "Session.ResumeThread", "thread/resume requires thread ID")
	}
	result, err := s.call(ctx, "thread/resume", threadResumeParams{ThreadID: id, Cwd: s.Cwd})
	if err != nil {
		return nil, apperrors.Wrap(err, "Session.ResumeThread", "thread/resume")
	}
	return decodeThreadEnvelope(result, id, "Session.ResumeThread")
}

// ForkThread thread/fork。
func (s *Session) ForkThread(ctx context.Context, threadID string) (*ThreadEnvelope, error) {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, "Session.ForkThread", "thread/fork requires thread ID")
	}
	result, err := s.call(ctx, "thread/fork", map[string]any{"threadId": id})
	if err != nil {
		return nil, apperrors.Wrap(err, "Session.ForkThread", "thread/fork")
	}
	return decodeThreadEnvelope(result, "", "Session.ForkThread")
}

// ListThreads thread/list。
func (s *Session) ListThreads(ctx context.Context, cursor *string, pageSize int, sortKey string) (*ThreadPage, error) {
	result, err := s.call(ctx, "thread/list", threadListParams{
		Cursor:   cursor,
		PageSize: pageSize,
		SortKey:  sortKey,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, "Session.ListThreads", "thread/list")
	}
	var page ThreadPage
	if err := json.Unmarshal(result, &page); err != nil {
		return nil, apperrors.Wrapf(err, "Session.ListThreads", "thread/list decode (raw: %s)", util.TruncateString(string(result), 200))
	}
	return &page, nil
}

// ArchiveThread thread/archive。
func (s *Session) ArchiveThread(ctx context.Context, threadID string) error {
	id := strings.TrimSpace(threadID)
	if id == "" {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "Session.ArchiveThread", "thread/archive requires thread ID")
	}
	if _, err := s.call(ctx, "thread/archive", map[string]any{"threadId": id}); err != nil {
		return apperrors.Wrap(err, "Session.ArchiveThread", "thread/archive")
	}
	return nil
}

// decodeThreadEnvelope 解析 {thread:{...}} 响应。
// 部分版本对 resume 返回空 body — 此时用 fallbackID 合成最小 payload。
func decodeThreadEnvelope(raw json.RawMessage, fallbackID, op string) (*ThreadEnvelope, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		if fallbackID == "" {
			return nil, apperrors.Newf(op, "empty response without fallback thread ID")
		}
		return &ThreadEnvelope{Thread: ThreadPayload{ID: fallbackID}}, nil
	}
	var env ThreadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperrors.Wrapf(err, op, "decode (raw: %s)", util.TruncateString(string(raw), 200))
	}
	if strings.TrimSpace(env.Thread.ID) == "" {
		if fallbackID == "" {
			return nil, apperrors.Newf(op, "response missing thread ID (raw: %s)", util.TruncateString(string(raw), 200))
		}
		env.Thread.ID = fallbackID
	}
	return &env, nil
}

// ========================================
// Client — 按工作区路由的会话集合
// ========================================

// Client 管理每个工作区一个 Session, 并实现 ThreadRPC。
type Client struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     SessionOptions
	handler  EventHandler
}

// NewClient 创建客户端。
func NewClient(opts SessionOptions) *Client {
	return &Client{
		sessions: make(map[string]*Session),
		opts:     opts,
	}
}

// SetEventHandler 注册全局事件回调, 对已有与后续会话都生效。
func (c *Client) SetEventHandler(h EventHandler) {
	c.mu.Lock()
	c.handler = h
	for _, s := range c.sessions {
		s.SetEventHandler(h)
	}
	c.mu.Unlock()
}

// Connect 为工作区启动会话。已连接则为 no-op。
func (c *Client) Connect(ctx context.Context, workspaceID, path string) error {
	c.mu.Lock()
	if _, ok := c.sessions[workspaceID]; ok {
		c.mu.Unlock()
		return nil
	}
	session := NewSession(workspaceID, path, c.opts)
	if c.handler != nil {
		session.SetEventHandler(c.handler)
	}
	// 先登记再启动: 期间的并发 Connect 直接命中 no-op 分支
	c.sessions[workspaceID] = session
	c.mu.Unlock()

	if err := session.Start(ctx); err != nil {
		c.mu.Lock()
		delete(c.sessions, workspaceID)
		c.mu.Unlock()
		return err
	}
	logger.Info("appserver: workspace connected",
		logger.FieldWorkspaceID, workspaceID,
		logger.FieldPath, path,
		logger.FieldPort, session.Port,
	)
	return nil
}

// Disconnect 关闭工作区会话。
func (c *Client) Disconnect(workspaceID string) {
	c.mu.Lock()
	session, ok := c.sessions[workspaceID]
	if ok {
		delete(c.sessions, workspaceID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := session.Shutdown(); err != nil {
		logger.Warn("appserver: session shutdown error",
			logger.FieldWorkspaceID, workspaceID,
			logger.FieldError, err,
		)
	}
}

// Connected 返回工作区是否有活跃会话。
func (c *Client) Connected(workspaceID string) bool {
	c.mu.RLock()
	session, ok := c.sessions[workspaceID]
	c.mu.RUnlock()
	return ok && session.Running()
}

// Close 关闭全部会话。
func (c *Client) Close() {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.sessions = make(map[string]*Session)
	c.mu.Unlock()
	for _, s := range sessions {
		_ = s.Shutdown()
	}
}

func (c *Client) session(workspaceID string) (*Session, error) {
	c.mu.RLock()
	session, ok := c.sessions[workspaceID]
	c.mu.RUnlock()
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotConnected, "Client.session", "workspace %s not connected", workspaceID)
	}
	return session, nil
}

// StartThread 实现 ThreadRPC。
func (c *Client) StartThread(ctx context.Context, workspaceID string) (*ThreadEnvelope, error) {
	session, err := c.session(workspaceID)
	if err != nil {
		return nil, err
	}
	return session.StartThread(ctx)
}

// ResumeThread 实现 ThreadRPC。
func (c *Client) ResumeThread(ctx context.Context, workspaceID, threadID string) (*ThreadEnvelope, error) {
	session, err := c.session(workspaceID)
	if err != nil {
		return nil, err
	}
	return session.ResumeThread(ctx, threadID)
}

// ForkThread 实现 ThreadRPC。
func (c *Client) ForkThread(ctx context.Context, workspaceID, threadID string) (*ThreadEnvelope, error) {
	session, err := c.session(workspaceID)
	if err != nil {
		return nil, err
	}
	return session.ForkThread(ctx, threadID)
}

// ListThreads 实现 ThreadRPC。
func (c *Client) ListThreads(ctx context.Context, workspaceID string, cursor *string, pageSize int, sortKey string) (*ThreadPage, error) {
	session, err := c.session(workspaceID)
	if err != nil {
		return nil, err
	}
	return session.ListThreads(ctx, cursor, pageSize, sortKey)
}

// ArchiveThread 实现 ThreadRPC。
func (c *Client) ArchiveThread(ctx context.Context, workspaceID, threadID string) error {
	session, err := c.session(workspaceID)
	if err != nil {
		return err
	}
	return session.ArchiveThread(ctx, threadID)
}

var _ ThreadRPC = (*Client)(nil)
