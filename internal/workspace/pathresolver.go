// pathresolver.go — matches a thread's reported working directory to workspaces.
//
// Thread records come back from the app-server with whatever cwd encoding the
// host OS produced: POSIX paths, Windows drive letters, UNC shares, or
// extended-length `\\?\` prefixed paths. Workspace roots are registered the
// same way. Both sides are normalized to one canonical form before prefix
// matching.
package workspace

import (
	"sort"
	"strings"
)

// NormalizePath canonicalizes a filesystem path for cross-platform comparison:
//
//   - strips a single `\\?\` or `\\.\` extended-length namespace prefix
//   - converts backslashes to forward slashes
//   - lower-cases drive-letter paths (Windows filesystems are case-insensitive)
//   - lower-cases the host and share segments of UNC paths
//   - strips one trailing separator
//
// POSIX paths keep their case untouched.
func NormalizePath(path string) string {
	p := strings.TrimSpace(path)
	if p == "" {
		return ""
	}

	// Extended-length namespace prefixes appear before any other shape.
	for _, prefix := range []string{`\\?\`, `\\.\`} {
		if strings.HasPrefix(p, prefix) {
			p = p[len(prefix):]
			// `\\?\UNC\server\share` is the extended spelling of `\\server\share`
			if strings.HasPrefix(strings.ToUpper(p), `UNC\`) {
				p = `\\` + p[len(`UNC\`):]
			}
			break
		}
	}

	p = strings.ReplaceAll(p, `\`, "/")

	switch {
	case isDrivePath(p):
		p = strings.ToLower(p)
	case strings.HasPrefix(p, "//"):
		p = normalizeUNC(p)
	}

	// Strip one trailing separator, but never the root itself.
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}

// isDrivePath reports whether p (already forward-slashed) starts with a
// Windows drive letter like "C:/" or bare "C:".
func isDrivePath(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// normalizeUNC lower-cases the host and share segments of "//host/share/...".
func normalizeUNC(p string) string {
	rest := p[2:]
	parts := strings.SplitN(rest, "/", 3)
	for i := 0; i < len(parts) && i < 2; i++ {
		parts[i] = strings.ToLower(parts[i])
	}
	return "//" + strings.Join(parts, "/")
}

// rootEntry is one normalized workspace root in the match table.
type rootEntry struct {
	id   string
	root string
}

// ResolveWorkspaceIDs returns every workspace whose root path owns threadPath.
// A root owns a path when it is an exact match or a prefix ending at a path
// segment boundary. Roots are checked longest-first so a nested workspace root
// cannot be shadowed by the shallower root that contains it; all matches are
// returned. An empty result is a normal outcome — callers must not assume a
// thread always belongs to a known workspace.
func ResolveWorkspaceIDs(threadPath string, roots map[string]string) []string {
	normalized := NormalizePath(threadPath)
	if normalized == "" || len(roots) == 0 {
		return nil
	}

	table := make([]rootEntry, 0, len(roots))
	for id, root := range roots {
		nr := NormalizePath(root)
		if nr == "" {
			continue
		}
		table = append(table, rootEntry{id: id, root: nr})
	}
	sort.Slice(table, func(i, j int) bool {
		if len(table[i].root) != len(table[j].root) {
			return len(table[i].root) > len(table[j].root)
		}
		return table[i].id < table[j].id
	})

	var matched []string
	for _, entry := range table {
		if pathHasRoot(normalized, entry.root) {
			matched = append(matched, entry.id)
		}
	}
	return matched
}

// pathHasRoot reports whether path equals root or continues past it at a
// separator boundary.
func pathHasRoot(path, root string) bool {
	if path == root {
		return true
	}
	if !strings.HasPrefix(path, root) {
		return false
	}
	// "/tmp/codex-extra" must not match root "/tmp/codex".
	if strings.HasSuffix(root, "/") {
		return true
	}
	return len(path) > len(root) && path[len(root)] == '/'
}
