// Package smoketest hosts a short-lived service instance and probes its
// HTTP endpoints.
package smoketest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/logger"
	"github.com/kayz/teachcut/internal/report"
	"github.com/kayz/teachcut/internal/service"
)

// Harness runs the endpoint probes. When Spec.Name is empty no instance is
// started and the probes run against whatever answers at BaseURL.
type Harness struct {
	Spec           service.Spec
	BaseURL        string
	ReadyPath      string
	Lifetime       time.Duration
	Settle         time.Duration
	PollInterval   time.Duration
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	HTTPClient     *http.Client
	Console        console.Console
}

// New hosts the configured service command in dir and probes its base URL.
func New(cfg *config.Config, dir string, c console.Console) *Harness {
	name, args := cfg.ServiceCommand()
	return &Harness{
		Spec:           service.Spec{Name: name, Args: args, Dir: dir},
		BaseURL:        cfg.Service.BaseURL,
		ReadyPath:      cfg.Service.ReadyPath,
		Lifetime:       cfg.SmokeLifetime(),
		Settle:         cfg.SmokeSettle(),
		PollInterval:   cfg.PollInterval(),
		RequestTimeout: cfg.RequestTimeout(),
		ShutdownGrace:  cfg.ShutdownGrace(),
		Console:        c,
	}
}

// Run probes every endpoint in order and returns one result per endpoint.
// The hosted instance is stopped before Run returns.
func (h *Harness) Run(ctx context.Context, endpoints []config.Endpoint) []report.TestResult {
	h.Console.Println()
	h.Console.Println("Testing API endpoints ...")

	lifeCtx, stop := context.WithTimeout(ctx, h.Lifetime)
	defer stop()

	g, gctx := errgroup.WithContext(lifeCtx)
	if h.Spec.Name != "" {
		g.Go(func() error { return h.host(gctx) })
	}

	h.settle(gctx)

	results := make([]report.TestResult, 0, len(endpoints))
	for _, ep := range endpoints {
		res := h.probe(ctx, ep)
		if res.Passed {
			console.Pass(h.Console, "%s (%s)", ep.Label, ep.Path)
		} else {
			console.Fail(h.Console, "%s (%s): %s", ep.Label, ep.Path, res.Detail)
		}
		results = append(results, res)
	}

	stop()
	if err := g.Wait(); err != nil {
		logger.Warn("[Smoke] instance: %v", err)
		console.Warn(h.Console, "Test server error: %v", err)
	}
	return results
}

// host runs the instance until ctx ends. Reaching the lifetime deadline is
// the normal way out.
func (h *Harness) host(ctx context.Context) error {
	p, err := service.Start(h.Spec)
	if err != nil {
		return err
	}
	logger.Debug("[Smoke] instance pid=%d started", p.PID())
	select {
	case <-ctx.Done():
		return p.Stop(h.ShutdownGrace)
	case <-p.Done():
		return p.Err()
	}
}

// settle waits for the readiness probe, or for the settle delay when the
// instance never answers.
func (h *Harness) settle(ctx context.Context) {
	if h.ReadyPath == "" {
		sleep(ctx, h.Settle)
		return
	}
	url := service.JoinURL(h.BaseURL, h.ReadyPath)
	if err := service.WaitReady(ctx, h.client(), url, h.PollInterval, h.Settle); err != nil {
		logger.Debug("[Smoke] %s not ready: %v", url, err)
	}
}

func (h *Harness) probe(ctx context.Context, ep config.Endpoint) report.TestResult {
	name := fmt.Sprintf("%s (%s)", ep.Label, ep.Path)
	reqCtx, cancel := context.WithTimeout(ctx, h.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, service.JoinURL(h.BaseURL, ep.Path), nil)
	if err != nil {
		return report.Fail(name, err.Error())
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return report.Fail(name, err.Error())
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return report.Fail(name, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}
	return report.Pass(name)
}

func (h *Harness) client() *http.Client {
	if h.HTTPClient != nil {
		return h.HTTPClient
	}
	return http.DefaultClient
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
