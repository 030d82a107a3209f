package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/xf-main/CodexMonitor/internal/appserver"
	"github.com/xf-main/CodexMonitor/internal/threadstate"
	"github.com/xf-main/CodexMonitor/internal/threadsync"
	"github.com/xf-main/CodexMonitor/internal/workspace"
)

func init() { gin.SetMode(gin.TestMode) }

// stubRPC 最小 RPC 桩: 固定返回, 记录调用。
type stubRPC struct {
	startID  string
	archived []string
	startErr error
}

func (s *stubRPC) StartThread(_ context.Context, _ string) (*appserver.ThreadEnvelope, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &appserver.ThreadEnvelope{Thread: appserver.ThreadPayload{ID: s.startID}}, nil
}

func (s *stubRPC) ResumeThread(_ context.Context, _, threadID string) (*appserver.ThreadEnvelope, error) {
	return &appserver.ThreadEnvelope{Thread: appserver.ThreadPayload{ID: threadID}}, nil
}

func (s *stubRPC) ForkThread(_ context.Context, _, threadID string) (*appserver.ThreadEnvelope, error) {
	return &appserver.ThreadEnvelope{Thread: appserver.ThreadPayload{ID: threadID + "-fork"}}, nil
}

func (s *stubRPC) ListThreads(_ context.Context, _ string, _ *string, _ int, _ string) (*appserver.ThreadPage, error) {
	return &appserver.ThreadPage{}, nil
}

func (s *stubRPC) ArchiveThread(_ context.Context, _, threadID string) error {
	s.archived = append(s.archived, threadID)
	return nil
}

type stubConnector struct {
	connected map[string]bool
	failNext  bool
}

func (s *stubConnector) Connect(_ context.Context, workspaceID, _ string) error {
	if s.failNext {
		return fmt.Errorf("spawn failed")
	}
	if s.connected == nil {
		s.connected = map[string]bool{}
	}
	s.connected[workspaceID] = true
	return nil
}

func (s *stubConnector) Disconnect(workspaceID string) { delete(s.connected, workspaceID) }

func (s *stubConnector) Connected(workspaceID string) bool { return s.connected[workspaceID] }

func newTestServer(t *testing.T, rpc *stubRPC) (*Server, *workspace.Registry) {
	t.Helper()
	reg := workspace.NewRegistry()
	store := threadstate.NewStore()
	eng := threadsync.NewEngine(store, rpc, reg, nil, threadsync.Options{})
	srv := NewServer(Deps{Engine: eng, Registry: reg, Connector: &stubConnector{}})
	t.Cleanup(srv.Close)
	return srv, reg
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &stubRPC{startID: "t1"})
	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
}

func TestAddWorkspaceAndList(t *testing.T) {
	srv, reg := newTestServer(t, &stubRPC{startID: "t1"})

	w := doJSON(t, srv, http.MethodPost, "/api/workspaces", gin.H{"path": "/tmp/proj-a"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add workspace status = %d body = %s", w.Code, w.Body.String())
	}
	if got := len(reg.List()); got != 1 {
		t.Fatalf("registry size = %d, want 1", got)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/workspaces", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list workspaces status = %d", w.Code)
	}
	var resp struct {
		Success bool                  `json:"success"`
		Data    []workspace.Workspace `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Data) != 1 || resp.Data[0].Name != "proj-a" {
		t.Fatalf("unexpected list response: %s", w.Body.String())
	}
}

func TestAddWorkspaceRejectsEmptyPath(t *testing.T) {
	srv, _ := newTestServer(t, &stubRPC{})
	w := doJSON(t, srv, http.MethodPost, "/api/workspaces", gin.H{"name": "x"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestStartThreadCreatesAndActivates(t *testing.T) {
	srv, reg := newTestServer(t, &stubRPC{startID: "th-new"})
	ws, err := reg.Add("", "/tmp/proj")
	if err != nil {
		t.Fatalf("add workspace: %v", err)
	}

	w := doJSON(t, srv, http.MethodPost, "/api/threads/start", gin.H{
		"workspace_id": ws.ID, "activate": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("start status = %d body = %s", w.Code, w.Body.String())
	}

	state := srv.deps.Engine.Store().State()
	if _, ok := state.Workspace(ws.ID).ThreadIn("th-new"); !ok {
		t.Fatalf("thread th-new not in workspace list")
	}
	if got := state.Workspace(ws.ID).ActiveThreadID; got != "th-new" {
		t.Fatalf("active thread = %q, want th-new", got)
	}
}

func TestStartThreadRequiresWorkspaceID(t *testing.T) {
	srv, _ := newTestServer(t, &stubRPC{startID: "x"})
	w := doJSON(t, srv, http.MethodPost, "/api/threads/start", gin.H{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestArchiveThreadHidesLocally(t *testing.T) {
	rpc := &stubRPC{startID: "th-1"}
	srv, reg := newTestServer(t, rpc)
	ws, _ := reg.Add("", "/tmp/proj")

	doJSON(t, srv, http.MethodPost, "/api/threads/start", gin.H{"workspace_id": ws.ID})

	w := doJSON(t, srv, http.MethodPost, "/api/threads/archive", gin.H{
		"workspace_id": ws.ID, "thread_id": "th-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("archive status = %d body = %s", w.Code, w.Body.String())
	}
	state := srv.deps.Engine.Store().State()
	if !state.Workspace(ws.ID).IsHidden("th-1") {
		t.Fatalf("thread not hidden after archive")
	}
}

func TestActivateThreadClearsUnread(t *testing.T) {
	srv, reg := newTestServer(t, &stubRPC{startID: "th-1"})
	ws, _ := reg.Add("", "/tmp/proj")
	store := srv.deps.Engine.Store()
	store.Dispatch(threadstate.EnsureThread{WorkspaceID: ws.ID, ThreadID: "th-1"})
	store.Dispatch(threadstate.MarkUnread{ThreadID: "th-1", HasUnread: true})

	w := doJSON(t, srv, http.MethodPost, "/api/threads/activate", gin.H{
		"workspace_id": ws.ID, "thread_id": "th-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("activate status = %d", w.Code)
	}
	state := store.State()
	if state.Workspace(ws.ID).ActiveThreadID != "th-1" {
		t.Fatalf("active thread not set")
	}
	if state.Status["th-1"].HasUnread {
		t.Fatalf("unread flag not cleared")
	}
}

func TestGetStateReturnsSnapshot(t *testing.T) {
	srv, reg := newTestServer(t, &stubRPC{startID: "th-1"})
	ws, _ := reg.Add("", "/tmp/proj")
	doJSON(t, srv, http.MethodPost, "/api/threads/start", gin.H{"workspace_id": ws.ID})

	w := doJSON(t, srv, http.MethodGet, "/api/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("state status = %d", w.Code)
	}
	var resp struct {
		Data struct {
			Workspaces map[string]json.RawMessage `json:"workspaces"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := resp.Data.Workspaces[ws.ID]; !ok {
		t.Fatalf("workspace %s missing from state payload", ws.ID)
	}
}

func TestConnectWorkspaceUnknownIDIs404(t *testing.T) {
	srv, _ := newTestServer(t, &stubRPC{})
	w := doJSON(t, srv, http.MethodPost, "/api/workspaces/nope/connect", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestConnectWorkspaceMarksConnected(t *testing.T) {
	srv, reg := newTestServer(t, &stubRPC{})
	ws, _ := reg.Add("", "/tmp/proj")

	w := doJSON(t, srv, http.MethodPost, "/api/workspaces/"+ws.ID+"/connect", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("connect status = %d body = %s", w.Code, w.Body.String())
	}
	got, _ := reg.Get(ws.ID)
	if !got.Connected {
		t.Fatalf("workspace not marked connected")
	}
}
