package workspace

import (
	"errors"
	"testing"

	apperrors "github.com/xf-main/CodexMonitor/pkg/errors"
)

func TestRegistryAddListRemove(t *testing.T) {
	r := NewRegistry()

	a, err := r.Add("alpha", "/srv/alpha")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	b, err := r.Add("", `C:\Dev\Repo\`)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if b.Name != "repo" {
		t.Errorf("default name = %q, want repo", b.Name)
	}

	if got := len(r.List()); got != 2 {
		t.Fatalf("len(List) = %d, want 2", got)
	}

	r.Remove(a.ID)
	list := r.List()
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("after remove: %+v", list)
	}

	// removing twice is a no-op
	r.Remove(a.ID)
}

func TestRegistryAddRejectsEmptyPath(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Add("x", "   "); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestRegistryConnectedFlag(t *testing.T) {
	r := NewRegistry()
	ws, _ := r.Add("w", "/srv/w")

	r.SetConnected(ws.ID, true)
	got, ok := r.Get(ws.ID)
	if !ok || !got.Connected {
		t.Errorf("Connected not set: %+v ok=%v", got, ok)
	}

	// unknown id must not panic or create entries
	r.SetConnected("nope", true)
	if len(r.List()) != 1 {
		t.Error("SetConnected on unknown id must not create a workspace")
	}
}

func TestRegistryPathLookup(t *testing.T) {
	r := NewRegistry()
	ws, _ := r.Add("w", "/srv/w")
	lookup := r.PathLookup()
	if lookup[ws.ID] != "/srv/w" {
		t.Errorf("lookup = %v", lookup)
	}
}
