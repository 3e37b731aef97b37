package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every error returned from Validate.
var ErrInvalid = errors.New("invalid config")

const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultDaysBack     = 1
	DefaultMaxSessions  = 8
	DefaultBuffer       = 256
	DefaultPort         = 8787
)

type Config struct {
	ProjectRoot  string          `yaml:"project_root" toml:"project_root"`
	SessionsRoot string          `yaml:"sessions_root" toml:"sessions_root"`
	Monitor      MonitorConfig   `yaml:"monitor" toml:"monitor"`
	Broadcast    BroadcastConfig `yaml:"broadcast" toml:"broadcast"`
	Server       ServerConfig    `yaml:"server" toml:"server"`
	Log          LogConfig       `yaml:"log" toml:"log"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	DaysBack     int           `yaml:"days_back" toml:"days_back"`
	MaxSessions  int           `yaml:"max_sessions" toml:"max_sessions"`
	WatchFiles   bool          `yaml:"watch_files" toml:"watch_files"`
}

type BroadcastConfig struct {
	// Buffer is the per-subscriber queue length. A subscriber whose queue
	// fills up is dropped and must resubscribe to get a fresh snapshot.
	Buffer int `yaml:"buffer" toml:"buffer"`
}

type ServerConfig struct {
	Host           string   `yaml:"host" toml:"host"`
	Port           int      `yaml:"port" toml:"port"`
	AuthToken      string   `yaml:"auth_token" toml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	LockFile       string   `yaml:"lock_file" toml:"lock_file"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file" toml:"file"`
}

// Default returns a config with every field set to its default. Paths that
// depend on the environment (project root, sessions root) are resolved here.
func Default() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		ProjectRoot:  cwd,
		SessionsRoot: DefaultSessionsRoot(),
		Monitor: MonitorConfig{
			PollInterval: DefaultPollInterval,
			DaysBack:     DefaultDaysBack,
			MaxSessions:  DefaultMaxSessions,
			WatchFiles:   true,
		},
		Broadcast: BroadcastConfig{
			Buffer: DefaultBuffer,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: DefaultPort,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML (or, for a .toml extension, TOML) config file on top of
// the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.fillEmpty()
	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the defaults when path is
// empty or the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// fillEmpty restores defaults for path fields a config file set to "".
func (c *Config) fillEmpty() {
	if c.ProjectRoot == "" {
		c.ProjectRoot, _ = os.Getwd()
	}
	if c.SessionsRoot == "" {
		c.SessionsRoot = DefaultSessionsRoot()
	}
}

func (c *Config) Validate() error {
	if c.SessionsRoot == "" {
		return fmt.Errorf("%w: sessions_root is empty and no home directory is available", ErrInvalid)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("%w: monitor.poll_interval must be positive, got %s", ErrInvalid, c.Monitor.PollInterval)
	}
	if c.Monitor.DaysBack < 0 {
		return fmt.Errorf("%w: monitor.days_back must not be negative, got %d", ErrInvalid, c.Monitor.DaysBack)
	}
	if c.Monitor.MaxSessions < 1 {
		return fmt.Errorf("%w: monitor.max_sessions must be at least 1, got %d", ErrInvalid, c.Monitor.MaxSessions)
	}
	if c.Broadcast.Buffer < 1 {
		return fmt.Errorf("%w: broadcast.buffer must be at least 1, got %d", ErrInvalid, c.Broadcast.Buffer)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalid, c.Server.Port)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// codexHomeDir returns the base Codex directory, respecting CODEX_HOME.
func codexHomeDir() string {
	if env := os.Getenv("CODEX_HOME"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".codex")
}

// DefaultSessionsRoot is where the Codex CLI writes rollout transcripts:
//
//	~/.codex/sessions/YYYY/MM/DD/rollout-{timestamp}-{uuid}.jsonl
func DefaultSessionsRoot() string {
	base := codexHomeDir()
	if base == "" {
		return ""
	}
	return filepath.Join(base, "sessions")
}
