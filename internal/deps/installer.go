// Package deps checks the interpreter packages the video service imports
// and installs the manifest when any are missing.
package deps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/logger"
	"github.com/kayz/teachcut/internal/proc"
)

var (
	ErrManifestNotFound = errors.New("dependency manifest not found")
	ErrStillMissing     = errors.New("packages still missing after install")
)

type InstallErrorKind int

const (
	ProcessFailure InstallErrorKind = iota
	Timeout
)

// InstallError is a package-manager run that did not succeed.
type InstallError struct {
	Kind     InstallErrorKind
	ExitCode int
	Stderr   string
	After    time.Duration
	// Err is set when the package manager could not be started.
	Err error
}

func (e *InstallError) Error() string {
	if e.Kind == Timeout {
		return fmt.Sprintf("dependency install timed out after %s", e.After)
	}
	if e.Err != nil {
		return fmt.Sprintf("dependency install could not start: %v", e.Err)
	}
	msg := fmt.Sprintf("dependency install failed with exit code %d", e.ExitCode)
	if tail := lastLines(e.Stderr, 3); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *InstallError) Unwrap() error { return e.Err }

// ProbeResult splits the configured packages by availability.
type ProbeResult struct {
	Present []config.Package
	Missing []config.Package
}

func (r ProbeResult) OK() bool { return len(r.Missing) == 0 }

// MissingNames returns the display names of missing packages.
func (r ProbeResult) MissingNames() []string {
	names := make([]string, len(r.Missing))
	for i, p := range r.Missing {
		names[i] = p.Name
	}
	return names
}

type Installer struct {
	Runner         proc.Runner
	Interpreter    string
	Dir            string
	Manifest       string
	Packages       []config.Package
	ProbeTimeout   time.Duration
	InstallTimeout time.Duration
	UpgradePip     bool
	// Console receives progress lines. Nil keeps the installer quiet.
	Console console.Console
}

// New builds an installer for the configured interpreter and manifest.
func New(cfg *config.Config, dir string, runner proc.Runner, c console.Console) *Installer {
	return &Installer{
		Runner:         runner,
		Interpreter:    cfg.Runtime.Interpreter,
		Dir:            dir,
		Manifest:       cfg.Dependencies.Manifest,
		Packages:       cfg.Dependencies.Packages,
		ProbeTimeout:   cfg.ProbeTimeout(),
		InstallTimeout: cfg.InstallTimeout(),
		UpgradePip:     cfg.Dependencies.UpgradePip,
		Console:        c,
	}
}

// probeScript prints "<symbol>\t1" or "<symbol>\t0" for every argument.
const probeScript = `import importlib.util, sys
for name in sys.argv[1:]:
    try:
        found = importlib.util.find_spec(name) is not None
    except (ImportError, ValueError):
        found = False
    print(name + "\t" + ("1" if found else "0"))
`

// Probe checks every configured package without installing anything.
// A probe that cannot run reports every package as missing.
func (i *Installer) Probe(ctx context.Context) ProbeResult {
	var r ProbeResult
	if len(i.Packages) == 0 {
		return r
	}
	args := []string{"-c", probeScript}
	for _, p := range i.Packages {
		args = append(args, p.Import)
	}
	res, err := i.Runner.Run(ctx, proc.Command{
		Name:    i.Interpreter,
		Args:    args,
		Dir:     i.Dir,
		Timeout: i.ProbeTimeout,
	})
	found := map[string]bool{}
	switch {
	case err != nil:
		logger.Warn("[Deps] probe could not run: %v", err)
	case !res.Success():
		logger.Warn("[Deps] probe exited %d timedOut=%v: %s", res.ExitCode, res.TimedOut, lastLines(res.Stderr, 3))
	default:
		sc := bufio.NewScanner(strings.NewReader(res.Stdout))
		for sc.Scan() {
			name, flag, ok := strings.Cut(strings.TrimSpace(sc.Text()), "\t")
			if ok && flag == "1" {
				found[name] = true
			}
		}
	}
	for _, p := range i.Packages {
		if found[p.Import] {
			r.Present = append(r.Present, p)
		} else {
			r.Missing = append(r.Missing, p)
		}
	}
	logger.Debug("[Deps] probe: %d present, %d missing %v", len(r.Present), len(r.Missing), r.MissingNames())
	return r
}

// Install runs the package manager against the manifest once.
func (i *Installer) Install(ctx context.Context) error {
	manifest := i.manifestPath()
	if _, err := os.Stat(manifest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrManifestNotFound, manifest)
		}
		return fmt.Errorf("stat %s: %w", manifest, err)
	}

	if i.UpgradePip {
		i.upgradePip(ctx)
	}

	i.say("Installing dependencies from %s ...", filepath.Base(manifest))
	res, err := i.Runner.Run(ctx, proc.Command{
		Name:    i.Interpreter,
		Args:    []string{"-m", "pip", "install", "-r", manifest},
		Dir:     i.Dir,
		Timeout: i.InstallTimeout,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &InstallError{Kind: ProcessFailure, ExitCode: -1, Err: err}
	}
	logger.Debug("[Deps] pip install finished in %s exit=%d", res.Duration, res.ExitCode)
	if res.TimedOut {
		return &InstallError{Kind: Timeout, ExitCode: -1, After: i.InstallTimeout}
	}
	if !res.Success() {
		return &InstallError{Kind: ProcessFailure, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

// Ensure probes, installs once when something is missing and probes again.
func (i *Installer) Ensure(ctx context.Context) (ProbeResult, error) {
	r := i.Probe(ctx)
	if r.OK() {
		return r, nil
	}
	i.say("Missing packages: %s", strings.Join(r.MissingNames(), ", "))
	if err := i.Install(ctx); err != nil {
		return r, err
	}
	r = i.Probe(ctx)
	if !r.OK() {
		return r, fmt.Errorf("%w: %s", ErrStillMissing, strings.Join(r.MissingNames(), ", "))
	}
	return r, nil
}

func (i *Installer) upgradePip(ctx context.Context) {
	i.say("Upgrading pip ...")
	res, err := i.Runner.Run(ctx, proc.Command{
		Name:    i.Interpreter,
		Args:    []string{"-m", "pip", "install", "--upgrade", "pip"},
		Dir:     i.Dir,
		Timeout: 2 * time.Minute,
	})
	if err != nil || !res.Success() {
		logger.Warn("[Deps] pip upgrade failed: err=%v exit=%d", err, res.ExitCode)
		if i.Console != nil {
			console.Warn(i.Console, "pip upgrade failed, continuing with the current version")
		}
	}
}

func (i *Installer) manifestPath() string {
	if filepath.IsAbs(i.Manifest) {
		return i.Manifest
	}
	return filepath.Join(i.Dir, i.Manifest)
}

func (i *Installer) say(format string, args ...any) {
	if i.Console != nil {
		i.Console.Printf(format+"\n", args...)
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, " | "))
}
