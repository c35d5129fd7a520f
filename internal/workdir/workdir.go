// Package workdir creates the directory layout the video service writes to.
package workdir

import (
	"fmt"
	"os"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/security"
)

// Ensure creates every named directory under root. Existing directories
// are left alone, so concurrent and repeated calls are safe. Names that
// would resolve outside root are rejected.
func Ensure(root string, names []string, c console.Console) error {
	pc := security.NewPathChecker(root)
	for _, name := range names {
		dir, err := pc.Resolve("mkdir", name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s in %s: %w", name, pc.Root(), err)
		}
		if c != nil {
			console.Pass(c, "Directory ready: %s", name)
		}
	}
	return nil
}

// Missing returns the names that do not exist as directories yet.
func Missing(root string, names []string) []string {
	pc := security.NewPathChecker(root)
	var out []string
	for _, name := range names {
		dir, err := pc.Resolve("stat", name)
		if err != nil {
			out = append(out, name)
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			out = append(out, name)
		}
	}
	return out
}
