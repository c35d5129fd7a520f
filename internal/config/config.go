package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/kayz/teachcut/internal/security"
)

// FileName is the settings file looked up in the working directory.
const FileName = ".teachcut.yaml"

type Config struct {
	Env          EnvConfig          `mapstructure:"env" yaml:"env"`
	Runtime      RuntimeConfig      `mapstructure:"runtime" yaml:"runtime"`
	Dependencies DependenciesConfig `mapstructure:"dependencies" yaml:"dependencies"`
	Credentials  CredentialsConfig  `mapstructure:"credentials" yaml:"credentials"`
	Directories  []string           `mapstructure:"directories" yaml:"directories"`
	Service      ServiceConfig      `mapstructure:"service" yaml:"service"`
	Smoke        SmokeConfig        `mapstructure:"smoke" yaml:"smoke"`
	Project      ProjectConfig      `mapstructure:"project" yaml:"project"`
	Logging      LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	History      HistoryConfig      `mapstructure:"history" yaml:"history"`
}

// EnvConfig locates the service's .env file and its template.
type EnvConfig struct {
	File    string `mapstructure:"file" yaml:"file"`
	Example string `mapstructure:"example" yaml:"example"`
}

type RuntimeConfig struct {
	Interpreter         string `mapstructure:"interpreter" yaml:"interpreter"`
	MinVersion          string `mapstructure:"min_version" yaml:"min_version"`
	ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds" yaml:"probe_timeout_seconds"`
	FFmpegPath          string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path,omitempty"`
	MinFreeDiskMB       int    `mapstructure:"min_free_disk_mb" yaml:"min_free_disk_mb"`
}

// Package is one interpreter package checked before launch: the name
// shown to the user and the module imported to find it.
type Package struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Import string `mapstructure:"import" yaml:"import"`
}

type DependenciesConfig struct {
	Manifest              string    `mapstructure:"manifest" yaml:"manifest"`
	InstallTimeoutSeconds int       `mapstructure:"install_timeout_seconds" yaml:"install_timeout_seconds"`
	UpgradePip            bool      `mapstructure:"upgrade_pip" yaml:"upgrade_pip"`
	Packages              []Package `mapstructure:"packages" yaml:"packages"`
}

type CredentialsConfig struct {
	VerifyTimeoutSeconds int    `mapstructure:"verify_timeout_seconds" yaml:"verify_timeout_seconds"`
	MaxAttempts          int    `mapstructure:"max_attempts" yaml:"max_attempts"`
	SpeechBaseURL        string `mapstructure:"speech_base_url" yaml:"speech_base_url"`
	CloudRegion          string `mapstructure:"cloud_region" yaml:"cloud_region"`
}

type ServiceConfig struct {
	Name                 string   `mapstructure:"name" yaml:"name"`
	Command              string   `mapstructure:"command" yaml:"command,omitempty"` // empty means runtime.interpreter
	Args                 []string `mapstructure:"args" yaml:"args"`
	BaseURL              string   `mapstructure:"base_url" yaml:"base_url"`
	ReadyPath            string   `mapstructure:"ready_path" yaml:"ready_path"`
	ReadyTimeoutSeconds  int      `mapstructure:"ready_timeout_seconds" yaml:"ready_timeout_seconds"`
	PollIntervalMs       int      `mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	ShutdownGraceSeconds int      `mapstructure:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds"`
	OpenBrowser          bool     `mapstructure:"open_browser" yaml:"open_browser"`
}

// Endpoint is one smoke-test probe.
type Endpoint struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Label string `mapstructure:"label" yaml:"label"`
}

type SmokeConfig struct {
	LifetimeSeconds       int        `mapstructure:"lifetime_seconds" yaml:"lifetime_seconds"`
	SettleSeconds         int        `mapstructure:"settle_seconds" yaml:"settle_seconds"`
	RequestTimeoutSeconds int        `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	Endpoints             []Endpoint `mapstructure:"endpoints" yaml:"endpoints"`
}

// ProjectConfig lists files the service needs to start.
type ProjectConfig struct {
	RequiredFiles []string `mapstructure:"required_files" yaml:"required_files"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func defaultInterpreter() string {
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

func DefaultConfig() *Config {
	return &Config{
		Env: EnvConfig{
			File:    ".env",
			Example: ".env.example",
		},
		Runtime: RuntimeConfig{
			Interpreter:         defaultInterpreter(),
			MinVersion:          "3.8",
			ProbeTimeoutSeconds: 10,
			MinFreeDiskMB:       1024,
		},
		Dependencies: DependenciesConfig{
			Manifest:              "requirements.txt",
			InstallTimeoutSeconds: 600,
			UpgradePip:            true,
			Packages: []Package{
				{Name: "fastapi", Import: "fastapi"},
				{Name: "uvicorn", Import: "uvicorn"},
				{Name: "opencv-python", Import: "cv2"},
				{Name: "Pillow", Import: "PIL"},
				{Name: "numpy", Import: "numpy"},
				{Name: "requests", Import: "requests"},
				{Name: "python-dotenv", Import: "dotenv"},
				{Name: "tencentcloud-sdk-python", Import: "tencentcloud"},
				{Name: "cos-python-sdk-v5", Import: "qcloud_cos"},
				{Name: "pydub", Import: "pydub"},
				{Name: "redis", Import: "redis"},
			},
		},
		Credentials: CredentialsConfig{
			VerifyTimeoutSeconds: 10,
			MaxAttempts:          5,
			SpeechBaseURL:        "https://api.openai.com/v1",
			CloudRegion:          "ap-beijing",
		},
		Directories: []string{"uploads", "outputs", "temp", "logs"},
		Service: ServiceConfig{
			Name:                 "teachcut-video",
			Args:                 []string{"-m", "app.main"},
			BaseURL:              "http://localhost:8000",
			ReadyPath:            "/health",
			ReadyTimeoutSeconds:  30,
			PollIntervalMs:       500,
			ShutdownGraceSeconds: 10,
			OpenBrowser:          true,
		},
		Smoke: SmokeConfig{
			LifetimeSeconds:       15,
			SettleSeconds:         5,
			RequestTimeoutSeconds: 5,
			Endpoints: []Endpoint{
				{Path: "/", Label: "home page"},
				{Path: "/docs", Label: "API docs"},
				{Path: "/health", Label: "health check"},
				{Path: "/static/index.html", Label: "static files"},
			},
		},
		Project: ProjectConfig{
			RequiredFiles: []string{
				"app/main.py",
				"app/config/settings.py",
				"app/api/routes/video.py",
				"app/services/video_processor.py",
				"app/services/speech_service.py",
				"app/static/index.html",
				"app/static/js/main.js",
				"requirements.txt",
				".env",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join("logs", "teachcut.log"),
		},
		History: HistoryConfig{
			Path: filepath.Join(".teachcut", "history.db"),
		},
	}
}

// Path returns the settings file inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Load reads the settings file in dir if present, then overlays
// environment variables with the TEACHCUT_ prefix
// (e.g. TEACHCUT_SERVICE_BASE_URL).
func Load(dir string) (*Config, error) {
	return LoadFromPath(Path(dir))
}

// LoadFromPath is Load for an explicit file. A missing file yields the
// defaults.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	def := DefaultConfig()
	setDefaults(v, def)

	v.SetEnvPrefix("TEACHCUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.fillLists(def)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("env.file", d.Env.File)
	v.SetDefault("env.example", d.Env.Example)

	v.SetDefault("runtime.interpreter", d.Runtime.Interpreter)
	v.SetDefault("runtime.min_version", d.Runtime.MinVersion)
	v.SetDefault("runtime.probe_timeout_seconds", d.Runtime.ProbeTimeoutSeconds)
	v.SetDefault("runtime.ffmpeg_path", d.Runtime.FFmpegPath)
	v.SetDefault("runtime.min_free_disk_mb", d.Runtime.MinFreeDiskMB)

	v.SetDefault("dependencies.manifest", d.Dependencies.Manifest)
	v.SetDefault("dependencies.install_timeout_seconds", d.Dependencies.InstallTimeoutSeconds)
	v.SetDefault("dependencies.upgrade_pip", d.Dependencies.UpgradePip)

	v.SetDefault("credentials.verify_timeout_seconds", d.Credentials.VerifyTimeoutSeconds)
	v.SetDefault("credentials.max_attempts", d.Credentials.MaxAttempts)
	v.SetDefault("credentials.speech_base_url", d.Credentials.SpeechBaseURL)
	v.SetDefault("credentials.cloud_region", d.Credentials.CloudRegion)

	v.SetDefault("service.name", d.Service.Name)
	v.SetDefault("service.command", d.Service.Command)
	v.SetDefault("service.base_url", d.Service.BaseURL)
	v.SetDefault("service.ready_path", d.Service.ReadyPath)
	v.SetDefault("service.ready_timeout_seconds", d.Service.ReadyTimeoutSeconds)
	v.SetDefault("service.poll_interval_ms", d.Service.PollIntervalMs)
	v.SetDefault("service.shutdown_grace_seconds", d.Service.ShutdownGraceSeconds)
	v.SetDefault("service.open_browser", d.Service.OpenBrowser)

	v.SetDefault("smoke.lifetime_seconds", d.Smoke.LifetimeSeconds)
	v.SetDefault("smoke.settle_seconds", d.Smoke.SettleSeconds)
	v.SetDefault("smoke.request_timeout_seconds", d.Smoke.RequestTimeoutSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("history.path", d.History.Path)
}

// fillLists restores list defaults the file left empty.
func (c *Config) fillLists(d *Config) {
	if len(c.Dependencies.Packages) == 0 {
		c.Dependencies.Packages = d.Dependencies.Packages
	}
	if len(c.Directories) == 0 {
		c.Directories = d.Directories
	}
	if len(c.Service.Args) == 0 && c.Service.Command == "" {
		c.Service.Args = d.Service.Args
	}
	if len(c.Smoke.Endpoints) == 0 {
		c.Smoke.Endpoints = d.Smoke.Endpoints
	}
	if len(c.Project.RequiredFiles) == 0 {
		c.Project.RequiredFiles = d.Project.RequiredFiles
	}
}

// Validate rejects settings no run could use.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Runtime.Interpreter) == "" {
		return errors.New("runtime.interpreter must be set")
	}
	if _, _, err := ParseVersion(c.Runtime.MinVersion); err != nil {
		return fmt.Errorf("runtime.min_version: %w", err)
	}
	if c.Credentials.MaxAttempts < 1 {
		return errors.New("credentials.max_attempts must be at least 1")
	}
	for _, d := range c.durations() {
		if d.value < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", d.key, d.value)
		}
	}
	if !strings.HasPrefix(c.Service.BaseURL, "http://") && !strings.HasPrefix(c.Service.BaseURL, "https://") {
		return fmt.Errorf("service.base_url %q must be an http(s) URL", c.Service.BaseURL)
	}
	if err := security.ValidateCredentialURL(c.Credentials.SpeechBaseURL); err != nil {
		return fmt.Errorf("credentials.speech_base_url: %w", err)
	}
	for _, d := range c.Directories {
		if err := security.CheckRelative(d); err != nil {
			return fmt.Errorf("directory %q must stay inside the working directory: %w", d, err)
		}
	}
	return nil
}

type durationSetting struct {
	key   string
	value int
}

// durations lists every timeout and interval setting; each bounds an
// external call or wait and must be positive.
func (c *Config) durations() []durationSetting {
	return []durationSetting{
		{"runtime.probe_timeout_seconds", c.Runtime.ProbeTimeoutSeconds},
		{"dependencies.install_timeout_seconds", c.Dependencies.InstallTimeoutSeconds},
		{"credentials.verify_timeout_seconds", c.Credentials.VerifyTimeoutSeconds},
		{"service.ready_timeout_seconds", c.Service.ReadyTimeoutSeconds},
		{"service.poll_interval_ms", c.Service.PollIntervalMs},
		{"service.shutdown_grace_seconds", c.Service.ShutdownGraceSeconds},
		{"smoke.lifetime_seconds", c.Smoke.LifetimeSeconds},
		{"smoke.settle_seconds", c.Smoke.SettleSeconds},
		{"smoke.request_timeout_seconds", c.Smoke.RequestTimeoutSeconds},
	}
}

// ParseVersion parses "X.Y" (or "X.Y.Z") into major and minor.
func ParseVersion(s string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("version %q: want MAJOR.MINOR", s)
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &major); err != nil {
		return 0, 0, fmt.Errorf("version %q: %w", s, err)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minor); err != nil {
		return 0, 0, fmt.Errorf("version %q: %w", s, err)
	}
	return major, minor, nil
}

// ServiceCommand returns the program and arguments that start the service.
func (c *Config) ServiceCommand() (string, []string) {
	name := c.Service.Command
	if name == "" {
		name = c.Runtime.Interpreter
	}
	return name, append([]string(nil), c.Service.Args...)
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Runtime.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) InstallTimeout() time.Duration {
	return time.Duration(c.Dependencies.InstallTimeoutSeconds) * time.Second
}

func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Credentials.VerifyTimeoutSeconds) * time.Second
}

func (c *Config) ReadyTimeout() time.Duration {
	return time.Duration(c.Service.ReadyTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Service.PollIntervalMs) * time.Millisecond
}

func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Service.ShutdownGraceSeconds) * time.Second
}

func (c *Config) SmokeLifetime() time.Duration {
	return time.Duration(c.Smoke.LifetimeSeconds) * time.Second
}

func (c *Config) SmokeSettle() time.Duration {
	return time.Duration(c.Smoke.SettleSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Smoke.RequestTimeoutSeconds) * time.Second
}

// Marshal renders the settings as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the settings to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
