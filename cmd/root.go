package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kayz/teachcut/internal/logger"
)

var (
	logLevel   string
	workDir    string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "teachcut",
	Short: "Deploy, configure and run the teachcut video service",
	Long: `teachcut prepares a machine to run the video service and launches it.

Without a subcommand an interactive menu is shown:

  1. Quick deploy        check everything, then start the service
  2. Install dependencies
  3. Configure credentials
  4. Run tests
  5. Start service
  6. Exit`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.orch.RunMenu(cmd.Context())
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Parse and set log level
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info",
		"Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "C", ".",
		"Project directory containing the video service")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Settings file (default <workdir>/.teachcut.yaml)")
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil && code != exitInterrupted {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "error: %s\n", msg)
		}
	}
	if code == exitInterrupted {
		fmt.Fprintln(os.Stderr, "\ninterrupted")
	}
	stop()
	os.Exit(code)
}
