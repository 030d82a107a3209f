// registry.go — in-memory registry of monitored workspaces.
package workspace

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
)

// Workspace is one monitored root directory.
type Workspace struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Path      string `json:"path"`
	Connected bool   `json:"connected"`
}

// Registry holds the workspace set for the daemon session.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]Workspace
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{workspaces: map[string]Workspace{}}
}

// Add registers a workspace root and returns the created record.
// The id is generated; name defaults to the last path segment.
func (r *Registry) Add(name, path string) (Workspace, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return Workspace{}, apperrors.Wrap(apperrors.ErrInvalidInput, "Registry.Add", "path is required")
	}
	n := strings.TrimSpace(name)
	if n == "" {
		n = lastSegment(NormalizePath(p))
	}
	ws := Workspace{ID: uuid.NewString(), Name: n, Path: p}

	r.mu.Lock()
	r.workspaces[ws.ID] = ws
	r.mu.Unlock()
	return ws, nil
}

// Remove drops a workspace by id. Unknown ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.workspaces, id)
	r.mu.Unlock()
}

// Get returns a workspace by id.
func (r *Registry) Get(id string) (Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[id]
	return ws, ok
}

// List returns all workspaces sorted by name, then id.
func (r *Registry) List() []Workspace {
	r.mu.RLock()
	out := make([]Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetConnected flips the connection flag for a workspace.
func (r *Registry) SetConnected(id string, connected bool) {
	r.mu.Lock()
	if ws, ok := r.workspaces[id]; ok {
		ws.Connected = connected
		r.workspaces[id] = ws
	}
	r.mu.Unlock()
}

// PathLookup returns workspace id → root path for the path resolver.
func (r *Registry) PathLookup() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lookup := make(map[string]string, len(r.workspaces))
	for id, ws := range r.workspaces {
		lookup[id] = ws.Path
	}
	return lookup
}

func lastSegment(normalized string) string {
	if normalized == "" {
		return "workspace"
	}
	parts := strings.Split(normalized, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return "workspace"
}
