package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// appCommand builds a command that runs fn with a fully wired app.
func appCommand(use, short, long string, fn func(ctx context.Context, a *app) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(cmd.Context(), a)
		},
	}
}

var deployCmd = appCommand("deploy", "Check everything, then start the service",
	`Run the quick deploy pipeline: check the environment, create directories,
check (and install) dependencies, check credentials and run the system
tests. The service starts when every step passes.`,
	func(ctx context.Context, a *app) error {
		return a.orch.QuickDeploy(ctx)
	})

var installCmd = appCommand("install", "Install missing interpreter packages",
	`Probe the packages the service imports and install the dependency
manifest once when any are missing.`,
	func(ctx context.Context, a *app) error {
		return a.orch.InstallDependencies(ctx)
	})

var configureCmd = appCommand("configure", "Set up and verify API credentials",
	`Prompt for the speech and cloud credentials, verify each one against its
provider and save them to the .env file. Existing values can be kept.`,
	func(ctx context.Context, a *app) error {
		return a.orch.ConfigureCredentials(ctx)
	})

var testCmd = appCommand("test", "Run the system tests",
	`Run the system tests and probe the service endpoints against a
short-lived instance. Exits non-zero when any test fails.`,
	func(ctx context.Context, a *app) error {
		r := a.orch.RunTests(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.AllPassed() {
			return &ExitError{Code: exitFailure}
		}
		return nil
	})

var startCmd = appCommand("start", "Start the service in the foreground",
	`Start the video service, wait until it answers, open the browser and
keep it running until Ctrl+C.`,
	func(ctx context.Context, a *app) error {
		return a.orch.StartService(ctx)
	})

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(startCmd)
}
