// session.go — codex app-server JSON-RPC 传输层 (每工作区一个会话)。
//
// codex app-server 使用 JSON-RPC 2.0 (WebSocket):
//   - Client → Server: {jsonrpc,id,method,params} (请求) 或 {jsonrpc,method,params} (通知)
//   - Server → Client: {jsonrpc,id,result} (响应) 或 {jsonrpc,method,params} (通知)
//
// 关键方法:
//   - initialize → 握手, 获取 server capabilities
//   - thread/start·resume·fork → 线程生命周期
//   - thread/list → 分页列表
//   - thread/archive → 归档
package appserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
	"github.com/xf-main/CodexMonitor/pkg/logger"
	"github.com/xf-main/CodexMonitor/pkg/util"
)

// ========================================
// JSON-RPC 2.0 信封
// ========================================

// jsonRPCRequest JSON-RPC 2.0 请求。
type jsonRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonRPCNotification JSON-RPC 2.0 通知 (无 id)。
type jsonRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonRPCMessage JSON-RPC 通用消息 (用于读取解析)。
type jsonRPCMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"` // nil = 通知
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonRPCError   `json:"error,omitempty"`
}

// jsonRPCError JSON-RPC 错误。
type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// jsonRPCResponse JSON-RPC 2.0 响应 (用于回复 server request)。
type jsonRPCResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Result  any    `json:"result,omitempty"`
}

// pendingCall 等待响应的 JSON-RPC 调用。
type pendingCall struct {
	result json.RawMessage
	err    error
	done   chan struct{}
}

// ========================================
// Session
// ========================================

// SessionOptions 会话配置。
type SessionOptions struct {
	Binary            string        // codex 可执行文件, 默认 "codex"
	Port              int           // 0 = 自动选择空闲端口
	CallTimeout       time.Duration // 单次 RPC 超时, 默认 30s
	SpawnProbeTimeout time.Duration // 启动探测超时, 默认 30s
}

// Session 单个工作区的 app-server 会话: 子进程 + WebSocket + JSON-RPC。
type Session struct {
	WorkspaceID string
	Cwd         string
	Port        int
	Cmd         *exec.Cmd

	// ========================================
	// 锁职责说明
	// ========================================
	// wsMu:      保护 ws (WebSocket 写序列化)
	// handlerMu: 保护 handler (事件回调注册/读取)
	// 两者独立, 不存在嵌套获取关系。
	// ========================================

	ws              *websocket.Conn
	wsMu            sync.Mutex
	wsDone          chan struct{}
	handler         EventHandler
	handlerMu       sync.RWMutex
	stopped         atomic.Bool
	ctx             context.Context
	cancel          context.CancelFunc
	stderrCollector *logger.StderrCollector

	binary            string
	callTimeout       time.Duration
	spawnProbeTimeout time.Duration

	// JSON-RPC request tracking
	nextID  atomic.Int64
	pending sync.Map // id → *pendingCall
}

// NewSession 创建会话, 不启动进程。
func NewSession(workspaceID, cwd string, opts SessionOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.Binary == "" {
		opts.Binary = "codex"
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.SpawnProbeTimeout <= 0 {
		opts.SpawnProbeTimeout = 30 * time.Second
	}
	return &Session{
		WorkspaceID:       workspaceID,
		Cwd:               cwd,
		Port:              opts.Port,
		ctx:               ctx,
		cancel:            cancel,
		wsDone:            make(chan struct{}),
		binary:            opts.Binary,
		callTimeout:       opts.CallTimeout,
		spawnProbeTimeout: opts.SpawnProbeTimeout,
	}
}

// SetEventHandler 注册事件回调。
func (s *Session) SetEventHandler(h EventHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// ========================================
// 进程管理
// ========================================

// pickFreePort 让内核分配一个空闲 TCP 端口。
func pickFreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port, nil
}

// Spawn 启动 codex app-server --listen ws://127.0.0.1:PORT。
//
// 子进程的生命周期独立于调用者 ctx — 用 Shutdown()/Kill() 管理。
// ctx 仅用于启动超时控制。
func (s *Session) Spawn(ctx context.Context) error {
	if s.Port <= 0 {
		port, err := pickFreePort()
		if err != nil {
			return apperrors.Wrap(err, "Session.Spawn", "pick free port")
		}
		s.Port = port
	}

	listenURL := fmt.Sprintf("ws://127.0.0.1:%d", s.Port)
	// 注意: 使用 exec.Command 而非 exec.CommandContext —
	// 子进程不应随调用方请求取消而被终止。
	// 生命周期由 Session.Shutdown()/Kill() 显式管理。
	s.Cmd = exec.Command(s.binary, "app-server", "--listen", listenURL)
	s.Cmd.Dir = s.Cwd
	s.Cmd.Env = os.Environ()
	s.Cmd.Stdout = io.Discard
	s.stderrCollector = logger.NewStderrCollector(fmt.Sprintf("appserver-%s", s.WorkspaceID))
	s.Cmd.Stderr = s.stderrCollector

	if err := s.Cmd.Start(); err != nil {
		return apperrors.Wrap(err, "Session.Spawn", "spawn app-server")
	}

	// 等待 WebSocket 可用 (默认最多 30 秒, 同时受 ctx 控制)
	deadline := time.Now().Add(s.spawnProbeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			_ = s.Kill()
			return apperrors.Wrap(ctx.Err(), "Session.Spawn", "spawn cancelled")
		default:
		}
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", s.Port), 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			logger.Info("appserver: listening",
				logger.FieldWorkspaceID, s.WorkspaceID,
				logger.FieldPort, s.Port,
			)
			return nil
		}
		time.Sleep(300 * time.Millisecond)
	}
	_ = s.Kill()
	return apperrors.Newf("Session.Spawn", "app-server startup timeout on port %d", s.Port)
}

// connectWS 连接 WebSocket 并启动 readLoop。
func (s *Session) connectWS() error {
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d", s.Port)
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		NetDialContext:   (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
	}

	conn, _, err := dialer.DialContext(s.ctx, wsURL, nil)
	if err != nil {
		return apperrors.Wrap(err, "Session.connectWS", "ws connect")
	}
	s.ws = conn
	util.SafeGo(func() { s.readLoop() })
	return nil
}

// Start 一键启动: spawn → ws connect → initialize。
func (s *Session) Start(ctx context.Context) error {
	if err := s.Spawn(ctx); err != nil {
		return err
	}
	if err := s.connectWS(); err != nil {
		_ = s.Kill()
		return err
	}
	if err := s.initialize(); err != nil {
		_ = s.Kill()
		return apperrors.Wrap(err, "Session.Start", "initialize")
	}
	return nil
}

// ========================================
// JSON-RPC 请求/响应
// ========================================

// call 发送 JSON-RPC 请求并等待响应。
func (s *Session) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	pc := &pendingCall{done: make(chan struct{})}
	s.pending.Store(id, pc)
	defer s.pending.Delete(id)

	if err := s.writeJSON(req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(s.callTimeout)
	defer timer.Stop()
	select {
	case <-pc.done:
		return pc.result, pc.err
	case <-timer.C:
		return nil, apperrors.Wrapf(apperrors.ErrTimeout, "Session.call", "%s timeout", method)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	}
}

// notify 发送 JSON-RPC 通知 (无需响应)。
func (s *Session) notify(method string, params any) error {
	msg := jsonRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	}
	return s.writeJSON(msg)
}

// respond 发送 JSON-RPC 响应 (回复 server request)。
func (s *Session) respond(id int64, result any) error {
	resp := jsonRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	return s.writeJSON(resp)
}

// writeJSON 线程安全写入 WebSocket JSON。
func (s *Session) writeJSON(v any) error {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	if s.ws == nil {
		return apperrors.Wrap(apperrors.ErrNotConnected, "Session.writeJSON", "ws not connected")
	}
	return s.ws.WriteJSON(v)
}

// initialize 发送 initialize 握手。
func (s *Session) initialize() error {
	result, err := s.call(s.ctx, "initialize", map[string]any{
		"clientInfo": map[string]any{
			"name":    "codex-monitord",
			"version": "1.0",
		},
		"capabilities": map[string]any{
			"experimentalApi": true,
		},
	})
	if err != nil {
		logger.Error("appserver: initialize FAILED",
			logger.FieldWorkspaceID, s.WorkspaceID,
			logger.FieldPort, s.Port,
			logger.FieldError, err,
		)
		return err
	}
	logger.Info("appserver: initialize OK",
		logger.FieldWorkspaceID, s.WorkspaceID,
		logger.FieldPort, s.Port,
		"server_caps", string(result),
	)
	return nil
}

// ========================================
// readLoop — 读取 JSON-RPC 消息
// ========================================

// readLoop 持续读取 WebSocket JSON-RPC 消息。
//
// 消息类型:
//   - Response (id != nil, 无 method): 交给 pending call
//   - Notification (id == nil): 转为 Event, 交给 handler
func (s *Session) readLoop() {
	defer func() {
		s.wsMu.Lock()
		if s.ws != nil {
			_ = s.ws.Close()
		}
		s.wsMu.Unlock()

		select {
		case <-s.wsDone:
		default:
			close(s.wsDone)
		}
	}()

	for !s.stopped.Load() {
		_, message, err := s.ws.ReadMessage()
		if err != nil {
			if !s.stopped.Load() {
				s.handlerMu.RLock()
				h := s.handler
				s.handlerMu.RUnlock()
				if h != nil {
					errData, _ := json.Marshal(ErrorData{Message: err.Error()})
					h(Event{Type: EventError, WorkspaceID: s.WorkspaceID, Data: errData})
				}
			}
			return
		}

		var msg jsonRPCMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("appserver: readLoop unparseable JSON-RPC message",
				logger.FieldWorkspaceID, s.WorkspaceID,
				logger.FieldError, err,
				"raw_len", len(message),
			)
			continue
		}

		// Response: 交给 pending call
		if s.handleRPCResponse(msg) {
			continue
		}

		if s.handleRPCEvent(msg) {
			return
		}
	}
}

func (s *Session) handleRPCResponse(msg jsonRPCMessage) bool {
	if msg.ID == nil || msg.Method != "" {
		return false
	}
	value, ok := s.pending.Load(*msg.ID)
	if !ok {
		logger.Warn("appserver: orphan RPC response (no pending call)",
			logger.FieldWorkspaceID, s.WorkspaceID,
			logger.FieldID, *msg.ID,
			"result_len", len(msg.Result),
		)
		return true
	}
	pc := value.(*pendingCall)
	if msg.Error != nil {
		pc.err = apperrors.Newf("Session.readLoop", "rpc error: %s (code %d)", msg.Error.Message, msg.Error.Code)
		logger.Warn("appserver: RPC error response",
			logger.FieldWorkspaceID, s.WorkspaceID,
			logger.FieldID, *msg.ID,
			"code", msg.Error.Code,
			"message", msg.Error.Message,
		)
	} else {
		pc.result = msg.Result
	}
	close(pc.done)
	return true
}

func (s *Session) handleRPCEvent(msg jsonRPCMessage) bool {
	event := jsonRPCToEvent(s.WorkspaceID, msg)
	if event.Type == "" {
		logger.Debug("appserver: readLoop skipped unmapped message",
			logger.FieldWorkspaceID, s.WorkspaceID,
			logger.FieldMethod, msg.Method,
			"has_id", msg.ID != nil,
			logger.FieldParamsLen, len(msg.Params),
		)
		return false
	}
	if msg.ID != nil && msg.Method != "" {
		event.RequestID = msg.ID
	}
	s.handlerMu.RLock()
	handler := s.handler
	s.handlerMu.RUnlock()
	if handler == nil {
		logger.Warn("appserver: readLoop dropping event (no handler registered)",
			logger.FieldWorkspaceID, s.WorkspaceID,
			logger.FieldEventType, event.Type,
			logger.FieldMethod, msg.Method,
		)
		return false
	}
	handler(event)
	return event.Type == EventShutdownComplete
}

// ========================================
// 关闭
// ========================================

// Shutdown 优雅关闭。
func (s *Session) Shutdown() error {
	if s.stopped.Swap(true) {
		return nil
	}
	if s.stderrCollector != nil {
		_ = s.stderrCollector.Close()
	}
	s.cancel()

	// 尝试发送 shutdown
	_ = s.notify("shutdown", nil)

	select {
	case <-s.wsDone:
	case <-time.After(3 * time.Second):
	}

	return s.Kill()
}

// Kill 强制终止子进程。
func (s *Session) Kill() error {
	if s.Cmd == nil || s.Cmd.Process == nil {
		return nil
	}
	killErr := s.Cmd.Process.Kill()
	if killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
		return killErr
	}
	waitErr := s.Cmd.Wait()
	if waitErr == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return nil
	}
	return waitErr
}

// Running 返回子进程是否仍在运行。
func (s *Session) Running() bool {
	return !s.stopped.Load() && s.Cmd != nil && s.Cmd.ProcessState == nil
}
