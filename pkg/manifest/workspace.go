package manifest

import (
	"os"
	"path/filepath"
	"strings"
)

// FindWorkspaceRoot walks upward from dir looking for a Cargo.toml that
// declares a [workspace] table. It returns the directory containing it, or
// false if dir is not inside a workspace.
//
// The scan is textual on purpose: parsing every ancestor manifest would
// make an unrelated broken Cargo.toml higher up the tree fatal for a
// member that never inherits from it.
func FindWorkspaceRoot(dir string) (string, bool) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}

	for {
		path := filepath.Join(current, FileName)
		if data, err := os.ReadFile(path); err == nil {
			if hasWorkspaceTable(string(data)) {
				return current, true
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

// LoadWorkspace loads the workspace root manifest governing dir, if any.
// A member that is itself the workspace root returns its own manifest.
func LoadWorkspace(dir string) (*Manifest, bool, error) {
	root, ok := FindWorkspaceRoot(dir)
	if !ok {
		return nil, false, nil
	}
	m, err := Load(filepath.Join(root, FileName))
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

func hasWorkspaceTable(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "[workspace]" || strings.HasPrefix(trimmed, "[workspace.") {
			return true
		}
	}
	return false
}
