package cmd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/proc"
	"github.com/kayz/teachcut/internal/service"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the video service as a system service",
	Long: `Install, uninstall, start, stop, or check the status of the video
service as a systemd unit (Linux) or launchd daemon (macOS).`,
}

// unitCommand builds a service subcommand operating on the configured unit.
func unitCommand(use, short string, fn func(ctx context.Context, cmd *cobra.Command, u *service.Unit) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveDir()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(dir)
			if err != nil {
				return err
			}
			return fn(cmd.Context(), cmd, newUnit(cfg, dir))
		},
	}
}

func newUnit(cfg *config.Config, dir string) *service.Unit {
	return service.NewUnit(cfg, dir, runtime.GOOS, proc.ExecRunner{})
}

var serviceInstallCmd = unitCommand("install", "Install the video service (requires root)",
	func(ctx context.Context, cmd *cobra.Command, u *service.Unit) error {
		fmt.Fprintln(cmd.OutOrStdout(), "Installing service...")
		if err := u.Install(ctx); err != nil {
			return fmt.Errorf("install service: %w", err)
		}
		path, _ := u.ConfigPath()
		fmt.Fprintf(cmd.OutOrStdout(), "Service installed: %s\n", path)
		return nil
	})

var serviceUninstallCmd = unitCommand("uninstall", "Uninstall the video service (requires root)",
	func(ctx context.Context, cmd *cobra.Command, u *service.Unit) error {
		fmt.Fprintln(cmd.OutOrStdout(), "Uninstalling service...")
		if err := u.Uninstall(ctx); err != nil {
			return fmt.Errorf("uninstall service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service uninstalled")
		return nil
	})

var serviceStartCmd = unitCommand("start", "Start the installed service",
	func(ctx context.Context, cmd *cobra.Command, u *service.Unit) error {
		if err := u.Start(ctx); err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service started")
		return nil
	})

var serviceStopCmd = unitCommand("stop", "Stop the installed service",
	func(ctx context.Context, cmd *cobra.Command, u *service.Unit) error {
		if err := u.Stop(ctx); err != nil {
			return fmt.Errorf("stop service: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Service stopped")
		return nil
	})

var serviceStatusCmd = unitCommand("status", "Show whether the service is installed and running",
	func(ctx context.Context, cmd *cobra.Command, u *service.Unit) error {
		st, err := u.Status(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "=== %s Service Status ===\n\n", u.Name)
		fmt.Fprintf(out, "Installed: %v\n", st.Installed)
		fmt.Fprintf(out, "Running:   %v\n", st.Running)
		fmt.Fprintf(out, "Config:    %s\n", st.Path)
		fmt.Fprintf(out, "Directory: %s\n", u.Dir)
		return nil
	})

func init() {
	rootCmd.AddCommand(serviceCmd)
	serviceCmd.AddCommand(serviceInstallCmd)
	serviceCmd.AddCommand(serviceUninstallCmd)
	serviceCmd.AddCommand(serviceStartCmd)
	serviceCmd.AddCommand(serviceStopCmd)
	serviceCmd.AddCommand(serviceStatusCmd)
}
