package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/proc"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func shellSpec(script string) Spec {
	return Spec{Name: "sh", Args: []string{"-c", script}, Stdout: io.Discard, Stderr: io.Discard}
}

func TestProcessStopIsGraceful(t *testing.T) {
	skipWithoutShell(t)
	p, err := Start(shellSpec("sleep 30"))
	require.NoError(t, err)
	assert.Equal(t, Starting, p.State())
	p.MarkRunning()
	assert.Equal(t, Running, p.State())

	start := time.Now()
	require.NoError(t, p.Stop(5*time.Second))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, Stopped, p.State())
}

func TestProcessStopKillsAfterGrace(t *testing.T) {
	skipWithoutShell(t)
	p, err := Start(shellSpec("trap '' TERM; sleep 30"))
	require.NoError(t, err)
	// Give the shell time to install the trap.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Stop(300*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, Stopped, p.State())
}

func TestProcessExitCode(t *testing.T) {
	skipWithoutShell(t)
	p, err := Start(shellSpec("exit 3"))
	require.NoError(t, err)
	<-p.Done()

	var perr *ProcessError
	require.ErrorAs(t, p.Err(), &perr)
	assert.Equal(t, 3, perr.ExitCode)
	assert.Contains(t, perr.Error(), "code 3")
	assert.NoError(t, p.Stop(time.Second))
}

func TestStartMissingBinary(t *testing.T) {
	_, err := Start(Spec{Name: "teachcut-no-such-binary"})
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -1, perr.ExitCode)
}

func TestWaitReady(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := WaitReady(context.Background(), srv.Client(), srv.URL+"/health", 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, 3, calls)
	mu.Unlock()
}

func TestWaitReadyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := WaitReady(context.Background(), srv.Client(), srv.URL, 10*time.Millisecond, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestWaitReadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WaitReady(ctx, nil, "http://127.0.0.1:1/", 10*time.Millisecond, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestJoinURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8000/health", JoinURL("http://localhost:8000/", "/health"))
	assert.Equal(t, "http://localhost:8000/health", JoinURL("http://localhost:8000", "health"))
	assert.Equal(t, "http://localhost:8000", JoinURL("http://localhost:8000", ""))
}

func newTestLauncher(t *testing.T, spec Spec, baseURL string) (*Launcher, *console.Script, *[]string) {
	t.Helper()
	c := console.NewScript()
	var opened []string
	l := &Launcher{
		Spec:          spec,
		BaseURL:       baseURL,
		ReadyPath:     "/health",
		ReadyTimeout:  2 * time.Second,
		PollInterval:  20 * time.Millisecond,
		ShutdownGrace: 2 * time.Second,
		OpenBrowser:   true,
		Browser: func(url string) error {
			opened = append(opened, url)
			return nil
		},
		Console: c,
	}
	return l, c, &opened
}

func TestLaunchInterruptStopsService(t *testing.T) {
	skipWithoutShell(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	l, c, opened := newTestLauncher(t, shellSpec("sleep 30"), srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, l.Launch(ctx))
	out := c.Output()
	assert.Contains(t, out, "Service is up at "+srv.URL)
	assert.Contains(t, out, "Service stopped")
	assert.Equal(t, []string{srv.URL}, *opened)
}

func TestLaunchCrashIsProcessError(t *testing.T) {
	skipWithoutShell(t)
	l, c, opened := newTestLauncher(t, shellSpec("exit 4"), "http://127.0.0.1:1")

	err := l.Launch(context.Background())
	var perr *ProcessError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.ExitCode)
	assert.Contains(t, c.Output(), "Service exited")
	assert.Empty(t, *opened)
}

func TestLaunchNotReadyContinues(t *testing.T) {
	skipWithoutShell(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	l, c, _ := newTestLauncher(t, shellSpec("sleep 30"), srv.URL)
	l.ReadyTimeout = 100 * time.Millisecond
	l.Browser = func(string) error { return errors.New("no display") }
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Launch(ctx))
	out := c.Output()
	assert.Contains(t, out, "continuing anyway")
	assert.Contains(t, out, "visit "+srv.URL+" manually")
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (r *recordingRunner) Run(_ context.Context, c proc.Command) (proc.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := c.String()
	r.calls = append(r.calls, line)
	if r.fail[line] {
		return proc.Result{ExitCode: 1, Stderr: "failed"}, nil
	}
	return proc.Result{}, nil
}

func testUnit(t *testing.T, goos string, runner proc.Runner) *Unit {
	t.Helper()
	dir := t.TempDir()
	return &Unit{
		Name:      "teachcut-video",
		Dir:       dir,
		Command:   "/usr/bin/python3",
		Args:      []string{"-m", "app.main", "--title", "a & b"},
		EnvFile:   filepath.Join(dir, ".env"),
		LogFile:   filepath.Join(dir, "logs", "teachcut-video.log"),
		GOOS:      goos,
		ConfigDir: filepath.Join(dir, "units"),
		Runner:    runner,
	}
}

func TestUnitRenderSystemd(t *testing.T) {
	u := testUnit(t, "linux", &recordingRunner{})
	out, err := u.Render()
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "WorkingDirectory="+u.Dir)
	assert.Contains(t, s, "EnvironmentFile=-"+u.EnvFile)
	assert.Contains(t, s, `ExecStart=/usr/bin/python3 -m app.main --title "a & b"`)
	assert.Contains(t, s, "WantedBy=multi-user.target")

	path, err := u.ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(u.ConfigDir, "teachcut-video.service"), path)
}

func TestUnitRenderLaunchd(t *testing.T) {
	u := testUnit(t, "darwin", &recordingRunner{})
	out, err := u.Render()
	require.NoError(t, err)
	s := string(out)
	assert.Contains(t, s, "<string>com.kayz.teachcut-video</string>")
	assert.Contains(t, s, "<string>/usr/bin/python3</string>")
	assert.Contains(t, s, "<string>a &amp; b</string>")
	assert.Contains(t, s, "<string>"+u.Dir+"</string>")

	path, err := u.ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(u.ConfigDir, "com.kayz.teachcut-video.plist"), path)
}

func TestUnitUnsupportedPlatform(t *testing.T) {
	u := testUnit(t, "plan9", &recordingRunner{})
	_, err := u.ConfigPath()
	assert.Error(t, err)
	_, err = u.Render()
	assert.Error(t, err)
}

func TestUnitInstallAndStatus(t *testing.T) {
	runner := &recordingRunner{}
	u := testUnit(t, "linux", runner)
	ctx := context.Background()

	st, err := u.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Installed)

	require.NoError(t, u.Install(ctx))
	assert.FileExists(t, st.Path)
	assert.DirExists(t, filepath.Dir(u.LogFile))
	assert.Equal(t, []string{
		"systemctl is-active --quiet teachcut-video",
		"systemctl daemon-reload",
		"systemctl enable teachcut-video",
	}, runner.calls)

	st, err = u.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Installed)
	assert.True(t, st.Running)

	require.NoError(t, u.Uninstall(ctx))
	_, err = os.Stat(st.Path)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, "systemctl daemon-reload", runner.calls[len(runner.calls)-1])
}

func TestUnitStartFailureReportsStderr(t *testing.T) {
	runner := &recordingRunner{fail: map[string]bool{"systemctl start teachcut-video": true}}
	u := testUnit(t, "linux", runner)
	err := u.Start(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "exit 1: failed"))
}

func TestNewUnitFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	dir := t.TempDir()
	u := NewUnit(cfg, dir, "linux", &recordingRunner{})
	assert.Equal(t, cfg.Service.Name, u.Name)
	assert.Equal(t, filepath.Join(dir, ".env"), u.EnvFile)
	assert.Equal(t, []string{"-m", "app.main"}, u.Args)
}
