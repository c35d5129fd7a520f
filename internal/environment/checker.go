// Package environment verifies that the machine can run the video service:
// a recent enough interpreter, a reachable package manager, FFmpeg and
// enough free disk.
package environment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/logger"
	"github.com/kayz/teachcut/internal/proc"
)

// ErrUnsupportedRuntime is returned by Result.Err when the interpreter is
// missing, too old, or has no package manager.
var ErrUnsupportedRuntime = errors.New("unsupported runtime")

const ffmpegTimeout = 5 * time.Second

// OSInfo describes the host.
type OSInfo struct {
	Family   string // linux, darwin, windows
	Platform string
	Version  string
	Arch     string
}

func (o OSInfo) String() string {
	parts := []string{o.Family}
	if o.Platform != "" && o.Platform != o.Family {
		parts = append(parts, o.Platform)
	}
	if o.Version != "" {
		parts = append(parts, o.Version)
	}
	if o.Arch != "" {
		parts = append(parts, "("+o.Arch+")")
	}
	return strings.Join(parts, " ")
}

// Result is the outcome of one environment check. Only the interpreter and
// package manager decide OK; the rest are warnings.
type Result struct {
	OS OSInfo

	Interpreter  string
	Version      string
	Major, Minor int
	RuntimeErr   error

	PackageManager    string
	PackageManagerErr error

	FFmpegPath    string
	FFmpegVersion string
	FFmpegErr     error

	FreeDisk uint64
	LowDisk  bool
	DiskErr  error
}

func (r Result) OK() bool {
	return r.RuntimeErr == nil && r.PackageManagerErr == nil
}

// Err returns nil when OK, otherwise an error wrapping ErrUnsupportedRuntime.
func (r Result) Err() error {
	if r.RuntimeErr != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedRuntime, r.RuntimeErr)
	}
	if r.PackageManagerErr != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedRuntime, r.PackageManagerErr)
	}
	return nil
}

// Checker probes the host. The zero value is not usable; build one with
// New or fill every field.
type Checker struct {
	Runner       proc.Runner
	Interpreter  string
	MinMajor     int
	MinMinor     int
	ProbeTimeout time.Duration
	Dir          string
	FFmpegPath   string
	MinFreeDisk  uint64
}

func New(cfg *config.Config, dir string, runner proc.Runner) (*Checker, error) {
	major, minor, err := config.ParseVersion(cfg.Runtime.MinVersion)
	if err != nil {
		return nil, err
	}
	return &Checker{
		Runner:       runner,
		Interpreter:  cfg.Runtime.Interpreter,
		MinMajor:     major,
		MinMinor:     minor,
		ProbeTimeout: cfg.ProbeTimeout(),
		Dir:          dir,
		FFmpegPath:   cfg.Runtime.FFmpegPath,
		MinFreeDisk:  uint64(cfg.Runtime.MinFreeDiskMB) << 20,
	}, nil
}

// Check never fails; every problem is recorded in the Result.
func (c *Checker) Check(ctx context.Context) Result {
	r := Result{OS: hostInfo(ctx), Interpreter: c.Interpreter}

	r.Version, r.Major, r.Minor, r.RuntimeErr = c.interpreterVersion(ctx)
	if r.RuntimeErr == nil && !c.versionOK(r.Major, r.Minor) {
		r.RuntimeErr = fmt.Errorf("%s %s is older than required %d.%d", c.Interpreter, r.Version, c.MinMajor, c.MinMinor)
	}
	if r.RuntimeErr == nil {
		r.PackageManager, r.PackageManagerErr = c.packageManager(ctx)
	}

	r.FFmpegPath, r.FFmpegVersion, r.FFmpegErr = c.ffmpeg(ctx)
	r.FreeDisk, r.DiskErr = freeDisk(ctx, c.Dir)
	if r.DiskErr == nil && c.MinFreeDisk > 0 && r.FreeDisk < c.MinFreeDisk {
		r.LowDisk = true
	}

	logger.Debug("[Env] os=%s runtime=%s ok=%v ffmpeg=%q free=%d", r.OS, r.Version, r.OK(), r.FFmpegPath, r.FreeDisk)
	return r
}

func (c *Checker) versionOK(major, minor int) bool {
	if major != c.MinMajor {
		return major > c.MinMajor
	}
	return minor >= c.MinMinor
}

var versionPattern = regexp.MustCompile(`Python (\d+)\.(\d+)(?:\.(\d+))?`)

// ParseVersionOutput extracts the version from `python --version` output.
func ParseVersionOutput(out string) (version string, major, minor int, err error) {
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", 0, 0, fmt.Errorf("unrecognized version output %q", strings.TrimSpace(out))
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	version = m[1] + "." + m[2]
	if m[3] != "" {
		version += "." + m[3]
	}
	return version, major, minor, nil
}

func (c *Checker) interpreterVersion(ctx context.Context) (string, int, int, error) {
	res, err := c.Runner.Run(ctx, proc.Command{
		Name:    c.Interpreter,
		Args:    []string{"--version"},
		Dir:     c.Dir,
		Timeout: c.ProbeTimeout,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("%s not found: %w", c.Interpreter, err)
	}
	if res.TimedOut {
		return "", 0, 0, fmt.Errorf("%s --version timed out", c.Interpreter)
	}
	if !res.Success() {
		return "", 0, 0, fmt.Errorf("%s --version exited %d", c.Interpreter, res.ExitCode)
	}
	// Older interpreters print the version on stderr.
	return ParseVersionOutput(res.Stdout + res.Stderr)
}

func (c *Checker) packageManager(ctx context.Context) (string, error) {
	res, err := c.Runner.Run(ctx, proc.Command{
		Name:    c.Interpreter,
		Args:    []string{"-m", "pip", "--version"},
		Dir:     c.Dir,
		Timeout: c.ProbeTimeout,
	})
	if err != nil {
		return "", fmt.Errorf("pip unavailable: %w", err)
	}
	if !res.Success() {
		return "", fmt.Errorf("pip unavailable: %s", firstLine(res.Stderr))
	}
	return firstLine(res.Stdout), nil
}

// FFmpegCandidates lists where the ffmpeg binary is looked for, in order.
func (c *Checker) FFmpegCandidates() []string {
	exe := "ffmpeg"
	if runtime.GOOS == "windows" {
		exe = "ffmpeg.exe"
	}
	var out []string
	if c.FFmpegPath != "" {
		out = append(out, c.FFmpegPath)
	}
	out = append(out, filepath.Join(c.Dir, "bin", exe))
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		out = append(out, p)
	}
	return out
}

func (c *Checker) ffmpeg(ctx context.Context) (string, string, error) {
	for _, path := range c.FFmpegCandidates() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		res, err := c.Runner.Run(ctx, proc.Command{Name: path, Args: []string{"-version"}, Timeout: ffmpegTimeout})
		if err != nil || !res.Success() {
			logger.Debug("[Env] ffmpeg at %s unusable: err=%v exit=%d", path, err, res.ExitCode)
			continue
		}
		return path, firstLine(res.Stdout), nil
	}
	return "", "", errors.New("ffmpeg not found")
}

func hostInfo(ctx context.Context) OSInfo {
	info := OSInfo{Family: runtime.GOOS, Arch: runtime.GOARCH}
	h, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Debug("[Env] host info: %v", err)
		return info
	}
	if h.OS != "" {
		info.Family = h.OS
	}
	info.Platform = h.Platform
	info.Version = h.PlatformVersion
	if h.KernelArch != "" {
		info.Arch = h.KernelArch
	}
	return info
}

func freeDisk(ctx context.Context, dir string) (uint64, error) {
	if dir == "" {
		dir = "."
	}
	u, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("disk usage for %s: %w", dir, err)
	}
	return u.Free, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
