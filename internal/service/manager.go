package service

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/kayz/teachcut/internal/config"
	"github.com/kayz/teachcut/internal/proc"
)

// Unit manages the video service as a system service: a systemd unit on
// Linux or a launchd agent on macOS.
type Unit struct {
	Name    string
	Dir     string
	Command string
	Args    []string
	EnvFile string
	LogFile string
	GOOS    string
	// ConfigDir overrides where the unit file is written.
	ConfigDir string
	Runner    proc.Runner
}

func NewUnit(cfg *config.Config, dir, goos string, runner proc.Runner) *Unit {
	name, args := cfg.ServiceCommand()
	return &Unit{
		Name:    cfg.Service.Name,
		Dir:     dir,
		Command: name,
		Args:    args,
		EnvFile: filepath.Join(dir, cfg.Env.File),
		LogFile: filepath.Join(dir, "logs", cfg.Service.Name+".log"),
		GOOS:    goos,
		Runner:  runner,
	}
}

// ID returns the launchd label (darwin) or systemd unit base name (linux).
func (u *Unit) ID() (string, error) {
	switch u.GOOS {
	case "darwin":
		return "com.kayz." + u.Name, nil
	case "linux":
		return u.Name, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", u.GOOS)
	}
}

// ConfigPath returns where the unit file lives.
func (u *Unit) ConfigPath() (string, error) {
	id, err := u.ID()
	if err != nil {
		return "", err
	}
	dir := u.ConfigDir
	switch u.GOOS {
	case "darwin":
		if dir == "" {
			dir = "/Library/LaunchDaemons"
		}
		return filepath.Join(dir, id+".plist"), nil
	default:
		if dir == "" {
			dir = "/etc/systemd/system"
		}
		return filepath.Join(dir, id+".service"), nil
	}
}

// UnitStatus is what the service manager reports.
type UnitStatus struct {
	Installed bool
	Running   bool
	Path      string
}

func (u *Unit) Status(ctx context.Context) (UnitStatus, error) {
	path, err := u.ConfigPath()
	if err != nil {
		return UnitStatus{}, err
	}
	st := UnitStatus{Path: path}
	if _, err := os.Stat(path); err == nil {
		st.Installed = true
	}
	id, _ := u.ID()
	var c proc.Command
	switch u.GOOS {
	case "darwin":
		c = proc.Command{Name: "launchctl", Args: []string{"list", id}}
	default:
		c = proc.Command{Name: "systemctl", Args: []string{"is-active", "--quiet", id}}
	}
	res, err := u.Runner.Run(ctx, c)
	st.Running = err == nil && res.Success()
	return st, nil
}

// Render produces the unit file content.
func (u *Unit) Render() ([]byte, error) {
	command, err := u.resolveCommand()
	if err != nil {
		return nil, err
	}
	id, err := u.ID()
	if err != nil {
		return nil, err
	}
	data := map[string]any{
		"Label":    id,
		"Name":     u.Name,
		"Dir":      u.Dir,
		"Command":  command,
		"Args":     u.Args,
		"ExecArgs": strings.Join(append([]string{systemdQuote(command)}, quoteAll(u.Args)...), " "),
		"EnvFile":  u.EnvFile,
		"LogFile":  u.LogFile,
	}
	tmpl := systemdUnitTemplate
	if u.GOOS == "darwin" {
		tmpl = launchdPlistTemplate
	}
	t, err := template.New("unit").Funcs(template.FuncMap{"xml": xmlEscape}).Parse(tmpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Install writes the unit file and enables it.
func (u *Unit) Install(ctx context.Context) error {
	path, err := u.ConfigPath()
	if err != nil {
		return err
	}
	content, err := u.Render()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create service config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(u.LogFile), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("failed to create service config: %w", err)
	}

	id, _ := u.ID()
	switch u.GOOS {
	case "darwin":
		return u.run(ctx, "launchctl", "load", path)
	default:
		if err := u.run(ctx, "systemctl", "daemon-reload"); err != nil {
			return err
		}
		return u.run(ctx, "systemctl", "enable", id)
	}
}

// Uninstall stops, disables and removes the unit.
func (u *Unit) Uninstall(ctx context.Context) error {
	path, err := u.ConfigPath()
	if err != nil {
		return err
	}
	id, _ := u.ID()

	// Stop errors are expected when the service is not running.
	_ = u.Stop(ctx)
	switch u.GOOS {
	case "darwin":
		_ = u.run(ctx, "launchctl", "unload", path)
	default:
		_ = u.run(ctx, "systemctl", "disable", id)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if u.GOOS != "darwin" {
		_ = u.run(ctx, "systemctl", "daemon-reload")
	}
	return nil
}

func (u *Unit) Start(ctx context.Context) error {
	path, err := u.ConfigPath()
	if err != nil {
		return err
	}
	id, _ := u.ID()
	if u.GOOS == "darwin" {
		return u.run(ctx, "launchctl", "load", path)
	}
	return u.run(ctx, "systemctl", "start", id)
}

func (u *Unit) Stop(ctx context.Context) error {
	path, err := u.ConfigPath()
	if err != nil {
		return err
	}
	id, _ := u.ID()
	if u.GOOS == "darwin" {
		return u.run(ctx, "launchctl", "unload", path)
	}
	return u.run(ctx, "systemctl", "stop", id)
}

func (u *Unit) run(ctx context.Context, name string, args ...string) error {
	res, err := u.Runner.Run(ctx, proc.Command{Name: name, Args: args})
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("%s %s: exit %d: %s", name, strings.Join(args, " "), res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// resolveCommand makes the command absolute; service managers do not
// search PATH.
func (u *Unit) resolveCommand() (string, error) {
	if filepath.IsAbs(u.Command) {
		return u.Command, nil
	}
	p, err := exec.LookPath(u.Command)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", u.Command, err)
	}
	return filepath.Abs(p)
}

func quoteAll(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = systemdQuote(a)
	}
	return out
}

func systemdQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return s
	}
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{xml .Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{xml .Command}}</string>
{{- range .Args}}
        <string>{{xml .}}</string>
{{- end}}
    </array>
    <key>WorkingDirectory</key>
    <string>{{xml .Dir}}</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{xml .LogFile}}</string>
    <key>StandardErrorPath</key>
    <string>{{xml .LogFile}}</string>
</dict>
</plist>
`

const systemdUnitTemplate = `[Unit]
Description=Teachcut video service ({{.Name}})
After=network.target

[Service]
Type=simple
WorkingDirectory={{.Dir}}
EnvironmentFile=-{{.EnvFile}}
ExecStart={{.ExecArgs}}
Restart=always
RestartSec=5
StandardOutput=append:{{.LogFile}}
StandardError=append:{{.LogFile}}

[Install]
WantedBy=multi-user.target
`
