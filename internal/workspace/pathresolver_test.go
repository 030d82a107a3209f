package workspace

import (
	"reflect"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"posix untouched", "/tmp/codex/Project", "/tmp/codex/Project"},
		{"posix trailing separator", "/tmp/codex/", "/tmp/codex"},
		{"drive letter backslashes", `C:\Dev\Repo\`, "c:/dev/repo"},
		{"drive letter forward slashes", "c:/Dev/Repo", "c:/dev/repo"},
		{"extended length prefix", `\\?\C:\Dev\Repo\`, "c:/dev/repo"},
		{"device namespace prefix", `\\.\C:\Dev\Repo`, "c:/dev/repo"},
		{"unc host share folded", `\\SERVER\Share\`, "//server/share"},
		{"unc subpath keeps case past share", `\\SERVER\Share\Sub\Dir`, "//server/share/Sub/Dir"},
		{"extended unc", `\\?\UNC\SERVER\Share\x`, "//server/share/x"},
		{"empty", "", ""},
		{"root", "/", "/"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePath(tc.in); got != tc.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizePathWindowsVariantsAgree(t *testing.T) {
	variants := []string{`C:\Dev\Repo\`, "c:/Dev/Repo", `\\?\C:\Dev\Repo\`, `C:/dev/repo`}
	want := NormalizePath(variants[0])
	for _, v := range variants[1:] {
		if got := NormalizePath(v); got != want {
			t.Errorf("NormalizePath(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestResolveWorkspaceIDs(t *testing.T) {
	roots := map[string]string{
		"parent": "/tmp/codex",
		"nested": "/tmp/codex/subdir",
		"other":  "/srv/other",
	}

	cases := []struct {
		name string
		path string
		want []string
	}{
		// Nested workspace listed first (longest root), parent also owns it.
		{"deep path matches nested then parent", "/tmp/codex/subdir/project", []string{"nested", "parent"}},
		{"parent-only path ignores nested sibling", "/tmp/codex/elsewhere", []string{"parent"}},
		{"exact root match", "/tmp/codex", []string{"parent"}},
		{"segment boundary required", "/tmp/codex-extra/x", nil},
		{"no match", "/home/nobody", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveWorkspaceIDs(tc.path, roots)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("ResolveWorkspaceIDs(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestResolveWorkspaceIDsMixedEncodings(t *testing.T) {
	roots := map[string]string{"win": `C:\Dev\Repo`}
	got := ResolveWorkspaceIDs(`\\?\C:\Dev\Repo\sub\dir`, roots)
	if !reflect.DeepEqual(got, []string{"win"}) {
		t.Errorf("extended-length thread path should match drive-letter root, got %v", got)
	}
}

func TestResolveWorkspaceIDsEmptyInputs(t *testing.T) {
	if got := ResolveWorkspaceIDs("", map[string]string{"a": "/x"}); got != nil {
		t.Errorf("empty path: got %v", got)
	}
	if got := ResolveWorkspaceIDs("/x", nil); got != nil {
		t.Errorf("no roots: got %v", got)
	}
}
