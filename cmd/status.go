package cmd

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/environment"
	"github.com/kayz/teachcut/internal/proc"
	"github.com/kayz/teachcut/internal/service"
	"github.com/kayz/teachcut/internal/workdir"
)

var statusCmd = appCommand("status", "Show environment, credential and service status",
	`Print a read-only overview: runtime, FFmpeg and disk checks, which
credentials are configured, missing directories and whether the service
unit is installed and running. Nothing is changed.`,
	func(ctx context.Context, a *app) error {
		c := a.console

		c.Println("Environment")
		environment.Print(c, a.orch.Env.Check(ctx))

		c.Println()
		c.Println("Configuration")
		a.orch.CheckConfiguration(ctx)
		if keys := a.store.Keys(); len(keys) > 0 {
			console.Hint(c, "Keys in %s: %s", filepath.Base(a.store.Path()), strings.Join(keys, ", "))
		}

		c.Println()
		c.Println("Directories")
		if missing := workdir.Missing(a.dir, a.cfg.Directories); len(missing) > 0 {
			console.Warn(c, "Missing: %s", strings.Join(missing, ", "))
		} else {
			console.Pass(c, "All directories present")
		}

		c.Println()
		c.Println("System service")
		unit := service.NewUnit(a.cfg, a.dir, runtime.GOOS, proc.ExecRunner{})
		st, err := unit.Status(ctx)
		if err != nil {
			console.Warn(c, "%v", err)
			return nil
		}
		if !st.Installed {
			console.Warn(c, "Not installed (teachcut service install)")
			return nil
		}
		console.Pass(c, "Installed: %s", st.Path)
		if st.Running {
			console.Pass(c, "Running")
		} else {
			console.Warn(c, "Not running")
		}
		return nil
	})

func init() {
	rootCmd.AddCommand(statusCmd)
}
