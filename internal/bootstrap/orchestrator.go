// Package bootstrap drives the deploy pipeline: environment and dependency
// checks, credential setup, system tests and service launch.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/credentials"
	"github.com/kayz/teachcut/internal/deps"
	"github.com/kayz/teachcut/internal/envfile"
	"github.com/kayz/teachcut/internal/environment"
	"github.com/kayz/teachcut/internal/logger"
	"github.com/kayz/teachcut/internal/persist"
	"github.com/kayz/teachcut/internal/proc"
	"github.com/kayz/teachcut/internal/report"
	"github.com/kayz/teachcut/internal/service"
	"github.com/kayz/teachcut/internal/smoketest"
	"github.com/kayz/teachcut/internal/workdir"
)

// Step is one stage of a pipeline run. Remediate is optional; Hint is
// printed when the step fails for good.
type Step struct {
	Name      string
	Check     func(ctx context.Context) bool
	Remediate func(ctx context.Context) bool
	Hint      string
}

// StepError names the step that halted a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %q: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q failed", e.Step)
}

func (e *StepError) Unwrap() error { return e.Err }

// EnvironmentChecker probes the host runtime.
type EnvironmentChecker interface {
	Check(ctx context.Context) environment.Result
}

// DependencyManager probes and installs interpreter packages.
type DependencyManager interface {
	Probe(ctx context.Context) deps.ProbeResult
	Ensure(ctx context.Context) (deps.ProbeResult, error)
}

// CredentialWizard runs the interactive credential setup.
type CredentialWizard interface {
	Run(ctx context.Context) (credentials.Summary, error)
}

// ServiceLauncher runs the service in the foreground.
type ServiceLauncher interface {
	Launch(ctx context.Context) error
}

// EndpointProber probes the service's HTTP endpoints.
type EndpointProber interface {
	Run(ctx context.Context, endpoints []config.Endpoint) []report.TestResult
}

type Orchestrator struct {
	Config   *config.Config
	Dir      string
	Console  console.Console
	Store    *envfile.Store
	Env      EnvironmentChecker
	Deps     DependencyManager
	Wizard   CredentialWizard
	Launcher ServiceLauncher
	Prober   EndpointProber
	// History records runs when set.
	History *persist.Store
	GOOS    string
}

// New wires the production components.
func New(cfg *config.Config, dir string, store *envfile.Store, runner proc.Runner, c console.Console) (*Orchestrator, error) {
	checker, err := environment.New(cfg, dir, runner)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		Config:   cfg,
		Dir:      dir,
		Console:  c,
		Store:    store,
		Env:      checker,
		Deps:     deps.New(cfg, dir, runner, c),
		Wizard:   credentials.New(cfg, store, c),
		Launcher: service.NewLauncher(cfg, dir, c),
		Prober:   smoketest.New(cfg, dir, c),
		GOOS:     runtime.GOOS,
	}, nil
}

// runSteps executes steps in order and stops at the first one that fails
// after its remediation. Every step leaves a result behind.
func (o *Orchestrator) runSteps(ctx context.Context, steps []Step) ([]report.TestResult, error) {
	results := make([]report.TestResult, 0, len(steps))
	for i, s := range steps {
		if err := ctx.Err(); err != nil {
			return results, &StepError{Step: s.Name, Err: err}
		}
		o.Console.Println()
		o.Console.Printf("[%d/%d] %s ...\n", i+1, len(steps), s.Name)
		if s.Check(ctx) {
			console.Pass(o.Console, "%s passed", s.Name)
			results = append(results, report.Pass(s.Name))
			continue
		}
		console.Fail(o.Console, "%s failed", s.Name)
		if ctx.Err() == nil && s.Remediate != nil {
			o.Console.Printf("Attempting to fix: %s\n", s.Name)
			if s.Remediate(ctx) {
				console.Pass(o.Console, "%s fixed", s.Name)
				results = append(results, report.Pass(s.Name))
				continue
			}
		}
		results = append(results, report.Fail(s.Name, "failed"))
		if err := ctx.Err(); err != nil {
			return results, &StepError{Step: s.Name, Err: err}
		}
		if s.Hint != "" {
			console.Hint(o.Console, "%s", s.Hint)
		}
		logger.Warn("[Bootstrap] step %q failed", s.Name)
		return results, &StepError{Step: s.Name}
	}
	return results, nil
}

// Step names used by QuickDeploy.
const (
	StepEnvironment   = "check environment"
	StepDirectories   = "create directories"
	StepDependencies  = "check dependencies"
	StepConfiguration = "check configuration"
	StepTests         = "run tests"
)

// DeploySteps is the quick deploy pipeline.
func (o *Orchestrator) DeploySteps() []Step {
	return []Step{
		{Name: StepEnvironment, Check: o.checkEnvironment},
		{Name: StepDirectories, Check: o.createDirectories},
		{Name: StepDependencies, Check: o.checkDependencies, Remediate: o.installDependencies},
		{Name: StepConfiguration, Check: o.CheckConfiguration, Hint: "Configure credentials with: teachcut configure"},
		{Name: StepTests, Check: func(ctx context.Context) bool {
			return o.RunTests(ctx).AllPassed()
		}},
	}
}

// QuickDeploy runs the pipeline and launches the service when every step
// passed.
func (o *Orchestrator) QuickDeploy(ctx context.Context) error {
	o.Console.Println("Starting quick deploy ...")
	run := o.startRun(persist.KindQuickDeploy)
	results, err := o.runSteps(ctx, o.DeploySteps())
	o.finishRun(run, err, results)
	if err != nil {
		return err
	}
	o.Console.Println()
	console.Pass(o.Console, "Deployment complete")
	return o.StartService(ctx)
}

func (o *Orchestrator) checkEnvironment(ctx context.Context) bool {
	r := o.Env.Check(ctx)
	environment.Print(o.Console, r)
	if err := r.Err(); err != nil {
		logger.Error("[Bootstrap] %v", err)
		return false
	}
	return true
}

func (o *Orchestrator) createDirectories(context.Context) bool {
	if err := workdir.Ensure(o.Dir, o.Config.Directories, o.Console); err != nil {
		console.Fail(o.Console, "%v", err)
		return false
	}
	return true
}

func (o *Orchestrator) checkDependencies(ctx context.Context) bool {
	r := o.Deps.Probe(ctx)
	if r.OK() {
		console.Pass(o.Console, "Core dependencies installed")
		return true
	}
	console.Fail(o.Console, "Missing packages: %s", strings.Join(r.MissingNames(), ", "))
	return false
}

func (o *Orchestrator) installDependencies(ctx context.Context) bool {
	return o.InstallDependencies(ctx) == nil
}

// InstallDependencies installs the manifest once when packages are
// missing, printing platform hints on failure.
func (o *Orchestrator) InstallDependencies(ctx context.Context) error {
	o.Console.Println("Installing dependencies ...")
	run := o.startRun(persist.KindInstall)
	_, err := o.Deps.Ensure(ctx)
	o.finishRun(run, err, nil)
	if err != nil {
		console.Fail(o.Console, "Dependency install failed: %v", err)
		var ierr *deps.InstallError
		if errors.As(err, &ierr) || errors.Is(err, deps.ErrStillMissing) {
			deps.PrintHints(o.Console, o.GOOS)
		}
		return err
	}
	console.Pass(o.Console, "All dependencies installed")
	return nil
}

// CheckConfiguration reports each required credential and passes only
// when all are configured with real values.
func (o *Orchestrator) CheckConfiguration(context.Context) bool {
	if err := o.Store.Reload(); err != nil {
		console.Fail(o.Console, "Cannot read %s: %v", o.Config.Env.File, err)
		return false
	}
	ok := true
	if !o.Store.Exists() {
		console.Fail(o.Console, "%s not found", o.Config.Env.File)
		ok = false
	}
	for _, st := range credentials.Statuses(o.Store) {
		if st.Configured {
			console.Pass(o.Console, "%s configured", st.Key)
			continue
		}
		console.Warn(o.Console, "%s not configured", st.Key)
		ok = false
	}
	return ok
}

// ConfigureCredentials runs the credential wizard.
func (o *Orchestrator) ConfigureCredentials(ctx context.Context) error {
	run := o.startRun(persist.KindConfigure)
	_, err := o.Wizard.Run(ctx)
	o.finishRun(run, err, nil)
	return err
}

// StartService ensures the directory layout and runs the service until it
// exits or ctx is cancelled.
func (o *Orchestrator) StartService(ctx context.Context) error {
	o.Console.Println()
	o.Console.Println("Starting server ...")
	if err := workdir.Ensure(o.Dir, o.Config.Directories, nil); err != nil {
		return err
	}
	run := o.startRun(persist.KindStart)
	err := o.Launcher.Launch(ctx)
	o.finishRun(run, err, nil)
	return err
}
