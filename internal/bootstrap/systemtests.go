package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/credentials"
	"github.com/kayz/teachcut/internal/persist"
	"github.com/kayz/teachcut/internal/report"
)

// System test names, in run order.
const (
	TestEnvironmentConfig = "environment config"
	TestModuleImports     = "module imports"
	TestAppStructure      = "app structure"
	TestConfigLoading     = "config loading"
	TestFileOperations    = "file operations"
)

const selfTestContent = "teachcut self-test ✓"

// SystemTests runs every check and returns one result per check, followed
// by one result per probed endpoint. Failures are results, never errors.
func (o *Orchestrator) SystemTests(ctx context.Context) []report.TestResult {
	checks := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{TestEnvironmentConfig, o.testEnvironmentConfig},
		{TestModuleImports, o.testModuleImports},
		{TestAppStructure, o.testAppStructure},
		{TestConfigLoading, o.testConfigLoading},
		{TestFileOperations, o.testFileOperations},
	}

	var results []report.TestResult
	for _, c := range checks {
		if ctx.Err() != nil {
			results = append(results, report.Fail(c.name, ctx.Err().Error()))
			continue
		}
		o.Console.Println()
		o.Console.Printf("Testing %s ...\n", c.name)
		if err := c.run(ctx); err != nil {
			console.Fail(o.Console, "%s: %v", c.name, err)
			results = append(results, report.Fail(c.name, err.Error()))
			continue
		}
		console.Pass(o.Console, "%s", c.name)
		results = append(results, report.Pass(c.name))
	}

	if ctx.Err() == nil && o.Prober != nil {
		results = append(results, o.Prober.Run(ctx, o.Config.Smoke.Endpoints)...)
	}
	return results
}

// RunTests runs the system tests, prints the report and records the run.
func (o *Orchestrator) RunTests(ctx context.Context) report.Report {
	o.Console.Println("Running system tests ...")
	run := o.startRun(persist.KindTests)
	results := o.SystemTests(ctx)
	o.finishRun(run, ctx.Err(), results)

	o.Console.Println()
	r := report.Render(console.Writer(o.Console), "Test report", results)
	o.Console.Println()
	if r.AllPassed() {
		console.Pass(o.Console, "All tests passed, the system is ready")
		console.Hint(o.Console, "Start it with: teachcut start")
	} else {
		console.Warn(o.Console, "%d test(s) failed, check the configuration above", r.Failed)
	}
	return r
}

func (o *Orchestrator) testEnvironmentConfig(context.Context) error {
	if err := o.Store.Reload(); err != nil {
		return err
	}
	if missing := credentials.Unconfigured(o.Store); len(missing) > 0 {
		return fmt.Errorf("not configured: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (o *Orchestrator) testModuleImports(ctx context.Context) error {
	r := o.Deps.Probe(ctx)
	for _, p := range r.Present {
		console.Pass(o.Console, "%s", p.Name)
	}
	if !r.OK() {
		return fmt.Errorf("import failed: %s", strings.Join(r.MissingNames(), ", "))
	}
	return nil
}

func (o *Orchestrator) testAppStructure(context.Context) error {
	var missing []string
	for _, f := range o.Config.Project.RequiredFiles {
		if _, err := os.Stat(filepath.Join(o.Dir, f)); err != nil {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing files: %s", strings.Join(missing, ", "))
	}
	return nil
}

// testConfigLoading checks that the record parses and that the service
// selectors, when set, hold known values.
func (o *Orchestrator) testConfigLoading(context.Context) error {
	if err := o.Store.Reload(); err != nil {
		return fmt.Errorf("parse %s: %w", o.Config.Env.File, err)
	}
	if !o.Store.Exists() {
		return fmt.Errorf("%s not found", o.Config.Env.File)
	}
	selectors := []struct {
		key     string
		options []console.Option
	}{
		{credentials.KeySpeechService, credentials.SpeechServices},
		{credentials.KeyVideoService, credentials.VideoServices},
	}
	for _, s := range selectors {
		v, ok := o.Store.Get(s.key)
		if ok && v != "" && !credentials.ValidSetting(s.options, v) {
			return fmt.Errorf("%s has unknown value %q", s.key, v)
		}
	}
	return nil
}

func (o *Orchestrator) testFileOperations(context.Context) error {
	dir := filepath.Join(o.Dir, "temp")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	path := filepath.Join(dir, "teachcut-selftest.txt")
	if err := os.WriteFile(path, []byte(selfTestContent), 0644); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	if string(data) != selfTestContent {
		return fmt.Errorf("read back %q", data)
	}
	return nil
}
