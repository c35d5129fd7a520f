package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kayz/teachcut/internal/bootstrap"
	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/console"
	"github.com/kayz/teachcut/internal/envfile"
	"github.com/kayz/teachcut/internal/logger"
	"github.com/kayz/teachcut/internal/persist"
	"github.com/kayz/teachcut/internal/proc"
)

// app holds everything a command needs for one run.
type app struct {
	dir     string
	cfg     *config.Config
	console console.Console
	store   *envfile.Store
	history *persist.Store
	orch    *bootstrap.Orchestrator
	closers []io.Closer
}

// resolveDir returns the absolute project directory from --workdir.
func resolveDir() (string, error) {
	dir, err := filepath.Abs(workDir)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("working directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("working directory %s is not a directory", dir)
	}
	return dir, nil
}

func loadConfig(dir string) (*config.Config, error) {
	if configFile != "" {
		return config.LoadFromPath(configFile)
	}
	return config.Load(dir)
}

func newApp(cmd *cobra.Command) (*app, error) {
	dir, err := resolveDir()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return nil, err
	}
	a := &app{dir: dir, cfg: cfg, console: console.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())}

	if !cmd.Flags().Changed("log") && cfg.Logging.Level != "" {
		level, err := logger.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	if cfg.Logging.File != "" {
		a.openLog(filepath.Join(dir, cfg.Logging.File))
	}

	a.store, err = envfile.Open(filepath.Join(dir, cfg.Env.File), filepath.Join(dir, cfg.Env.Example))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.orch, err = bootstrap.New(cfg, dir, a.store, proc.ExecRunner{}, a.console)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.History.Path != "" {
		h, err := persist.NewStore(filepath.Join(dir, cfg.History.Path))
		if err != nil {
			logger.Warn("[History] disabled: %v", err)
		} else {
			a.history = h
			a.orch.History = h
			a.closers = append(a.closers, h)
		}
	}
	logger.Info("[App] %s dir=%s", cmd.CommandPath(), dir)
	return a, nil
}

// openLog sends log records to path. Failing to open it keeps stderr.
func (a *app) openLog(path string) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Warn("[App] log directory: %v", err)
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Warn("[App] log file: %v", err)
		return
	}
	logger.SetOutput(f)
	a.closers = append(a.closers, f)
}

func (a *app) Close() {
	logger.SetOutput(os.Stderr)
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
	a.closers = nil
}
