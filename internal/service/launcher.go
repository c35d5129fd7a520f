// Package service starts, supervises and stops the video service, both as
// a foreground child process and as a system-managed unit.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/browser"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/logger"
)

// ErrNotReady is returned by WaitReady when the deadline passes first.
var ErrNotReady = errors.New("service not ready")

// WaitReady polls url until it answers 2xx or 3xx, the timeout passes, or
// ctx is cancelled.
func WaitReady(ctx context.Context, client *http.Client, url string, interval, timeout time.Duration) error {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Second}
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for attempt := 1; ; attempt++ {
		if probe(ctx, client, url) {
			logger.Debug("[Service] %s ready after %d attempts", url, attempt)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w after %s", ErrNotReady, timeout)
		case <-tick.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Launcher runs the service in the foreground until it exits or ctx is
// cancelled.
type Launcher struct {
	Spec          Spec
	BaseURL       string
	ReadyPath     string
	ReadyTimeout  time.Duration
	PollInterval  time.Duration
	ShutdownGrace time.Duration
	OpenBrowser   bool
	// Browser opens a URL; defaults to the system browser.
	Browser    func(url string) error
	HTTPClient *http.Client
	Console    console.Console
}

// NewLauncher runs the configured service command in dir.
func NewLauncher(cfg *config.Config, dir string, c console.Console) *Launcher {
	name, args := cfg.ServiceCommand()
	return &Launcher{
		Spec:          Spec{Name: name, Args: args, Dir: dir},
		BaseURL:       cfg.Service.BaseURL,
		ReadyPath:     cfg.Service.ReadyPath,
		ReadyTimeout:  cfg.ReadyTimeout(),
		PollInterval:  cfg.PollInterval(),
		ShutdownGrace: cfg.ShutdownGrace(),
		OpenBrowser:   cfg.Service.OpenBrowser,
		Console:       c,
	}
}

// ReadyURL is the address polled for readiness.
func (l *Launcher) ReadyURL() string {
	return JoinURL(l.BaseURL, l.ReadyPath)
}

// JoinURL joins a base URL and a path with exactly one slash.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// Launch blocks until the service exits or ctx is cancelled. An interrupt
// stops the service gracefully and returns nil; the service exiting on its
// own or failing to start is a *ProcessError.
func (l *Launcher) Launch(ctx context.Context) error {
	l.Console.Printf("Starting service: %s\n", l.Spec)
	p, err := Start(l.Spec)
	if err != nil {
		return err
	}
	logger.Info("[Service] started pid=%d cmd=%q", p.PID(), l.Spec.String())

	readyCtx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-p.Done():
			cancel()
		case <-readyCtx.Done():
		}
	}()
	err = WaitReady(readyCtx, l.HTTPClient, l.ReadyURL(), l.PollInterval, l.ReadyTimeout)
	cancel()

	select {
	case <-p.Done():
		return l.exited(p)
	default:
	}
	switch {
	case ctx.Err() != nil:
		return l.stop(p)
	case err != nil:
		console.Warn(l.Console, "Service did not answer %s within %s, continuing anyway", l.ReadyURL(), l.ReadyTimeout)
		logger.Warn("[Service] readiness: %v", err)
	default:
		console.Pass(l.Console, "Service is up at %s", l.BaseURL)
	}
	p.MarkRunning()

	if l.OpenBrowser {
		l.openBrowser()
	}
	l.Console.Println("Press Ctrl+C to stop the service")

	select {
	case <-ctx.Done():
		return l.stop(p)
	case <-p.Done():
		return l.exited(p)
	}
}

func (l *Launcher) openBrowser() {
	open := l.Browser
	if open == nil {
		open = browser.OpenURL
	}
	if err := open(l.BaseURL); err != nil {
		logger.Warn("[Service] open browser: %v", err)
		console.Warn(l.Console, "Could not open a browser, visit %s manually", l.BaseURL)
		return
	}
	console.Pass(l.Console, "Opened %s in the browser", l.BaseURL)
}

func (l *Launcher) stop(p *Process) error {
	l.Console.Println()
	l.Console.Println("Stopping service ...")
	if err := p.Stop(l.ShutdownGrace); err != nil {
		return err
	}
	logger.Info("[Service] stopped pid=%d after %s", p.PID(), time.Since(p.StartTime).Round(time.Second))
	console.Pass(l.Console, "Service stopped")
	return nil
}

func (l *Launcher) exited(p *Process) error {
	if err := p.Err(); err != nil {
		logger.Error("[Service] pid=%d %v", p.PID(), err)
		console.Fail(l.Console, "Service exited: %v", err)
		return err
	}
	console.Warn(l.Console, "Service exited")
	return nil
}
