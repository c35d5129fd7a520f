package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathChecker confines relative names to one root directory.
type PathChecker struct {
	root string // resolved absolute path
}

// NewPathChecker creates a PathChecker rooted at root.
// The root is expanded (~) and resolved to an absolute path.
func NewPathChecker(root string) *PathChecker {
	root = expandHome(root)
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &PathChecker{root: filepath.Clean(root)}
}

// Root returns the resolved root.
func (pc *PathChecker) Root() string {
	return pc.root
}

// Resolve joins name onto the root. Empty, absolute and escaping names are
// rejected with an *os.PathError wrapping os.ErrInvalid.
func (pc *PathChecker) Resolve(op, name string) (string, error) {
	if err := CheckRelative(name); err != nil {
		return "", &os.PathError{Op: op, Path: name, Err: os.ErrInvalid}
	}
	return filepath.Join(pc.root, filepath.Clean(name)), nil
}

// CheckRelative returns an error unless name stays below the directory it
// is joined to.
func CheckRelative(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty path")
	}
	clean := filepath.Clean(name)
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" {
		return fmt.Errorf("path %q is absolute", name)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes its root", name)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
