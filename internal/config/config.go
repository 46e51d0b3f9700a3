// Package config handles loading of engine, window, bridge and logging settings
// from defaults, an optional YAML file and BACKDESK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values for the application.
type Config struct {
	// development or production
	Mode string

	// Engine address. The same values are exported to the engine process.
	EngineScheme string
	EngineHost   string
	EnginePort   int

	// exec or docker
	EngineRuntime string
	EngineImage   string

	// Overrides for the resolver's source root and resource directory
	SourceRoot   string
	ResourcesDir string

	RestartDelay time.Duration
	MaxRestarts  int
	StableAfter  time.Duration
	StopTimeout  time.Duration

	// Engine output throttling (lines per second, burst)
	LogLinesPerSecond float64
	LogBurst          int

	// Restart the engine when its sources change (development only)
	Reload bool

	WindowTitle      string
	WindowWidth      int
	WindowHeight     int
	GraceDelay       time.Duration
	ReadinessProbe   bool
	ReadinessTimeout time.Duration
	DevServerURL     string
	FrontendDir      string

	// Local HTTP surface used by deskctl and browser-based UIs
	BridgeAddr      string
	BridgeToken     string
	BridgeRateLimit float64
	BridgeRateBurst int
	// Browser origins allowed to call the local API
	AllowedOrigins  []string

	LogLevel  string
	LogFormat string
	LogFile   string

	OTELEndpoint string
}

// EngineURL returns the engine base address, e.g. "http://localhost:8000".
func (c *Config) EngineURL() string {
	return fmt.Sprintf("%s://%s:%d", c.EngineScheme, c.EngineHost, c.EnginePort)
}

// Development reports whether the engine runs from a source tree.
func (c *Config) Development() bool {
	return c.Mode == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "production")

	v.SetDefault("engine.scheme", "http")
	v.SetDefault("engine.host", "localhost")
	v.SetDefault("engine.port", 8000)
	v.SetDefault("engine.runtime", "exec")
	v.SetDefault("engine.image", "")
	v.SetDefault("engine.source_root", "")
	v.SetDefault("engine.resources_dir", "")
	v.SetDefault("engine.restart_delay", 3*time.Second)
	v.SetDefault("engine.max_restarts", 0)
	v.SetDefault("engine.stable_after", 30*time.Second)
	v.SetDefault("engine.stop_timeout", 5*time.Second)
	v.SetDefault("engine.log_lines_per_second", 200.0)
	v.SetDefault("engine.log_burst", 500)
	v.SetDefault("engine.reload", false)

	v.SetDefault("window.title", "Backdesk")
	v.SetDefault("window.width", 1400)
	v.SetDefault("window.height", 900)
	v.SetDefault("window.grace_delay", 1*time.Second)
	v.SetDefault("window.readiness_probe", true)
	v.SetDefault("window.readiness_timeout", 30*time.Second)
	v.SetDefault("window.dev_server_url", "http://localhost:3000")
	v.SetDefault("window.frontend_dir", "")

	v.SetDefault("bridge.addr", "127.0.0.1:8765")
	// "auto" generates a token shared with deskctl through the token file;
	// an explicit empty value turns authentication off.
	v.SetDefault("bridge.token", "auto")
	v.SetDefault("bridge.allowed_origins", []string{})
	v.SetDefault("bridge.rate_limit", 20.0)
	v.SetDefault("bridge.rate_burst", 40)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("otel.endpoint", "")
}

// Load reads configuration from the given file (optional) and the environment.
// With an empty path, backdesk.yaml is looked up in the working directory and in
// the user config directory; a missing file there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BACKDESK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("backdesk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "backdesk"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Mode:              normalizeMode(v.GetString("mode")),
		EngineScheme:      v.GetString("engine.scheme"),
		EngineHost:        v.GetString("engine.host"),
		EnginePort:        v.GetInt("engine.port"),
		EngineRuntime:     strings.ToLower(v.GetString("engine.runtime")),
		EngineImage:       v.GetString("engine.image"),
		SourceRoot:        v.GetString("engine.source_root"),
		ResourcesDir:      v.GetString("engine.resources_dir"),
		RestartDelay:      v.GetDuration("engine.restart_delay"),
		MaxRestarts:       v.GetInt("engine.max_restarts"),
		StableAfter:       v.GetDuration("engine.stable_after"),
		StopTimeout:       v.GetDuration("engine.stop_timeout"),
		LogLinesPerSecond: v.GetFloat64("engine.log_lines_per_second"),
		LogBurst:          v.GetInt("engine.log_burst"),
		Reload:            v.GetBool("engine.reload"),
		WindowTitle:       v.GetString("window.title"),
		WindowWidth:       v.GetInt("window.width"),
		WindowHeight:      v.GetInt("window.height"),
		GraceDelay:        v.GetDuration("window.grace_delay"),
		ReadinessProbe:    v.GetBool("window.readiness_probe"),
		ReadinessTimeout:  v.GetDuration("window.readiness_timeout"),
		DevServerURL:      v.GetString("window.dev_server_url"),
		FrontendDir:       v.GetString("window.frontend_dir"),
		BridgeAddr:        v.GetString("bridge.addr"),
		BridgeToken:       v.GetString("bridge.token"),
		BridgeRateLimit:   v.GetFloat64("bridge.rate_limit"),
		BridgeRateBurst:   v.GetInt("bridge.rate_burst"),
		AllowedOrigins:    v.GetStringSlice("bridge.allowed_origins"),
		LogLevel:          v.GetString("log.level"),
		LogFormat:         v.GetString("log.format"),
		LogFile:           v.GetString("log.file"),
		OTELEndpoint:      v.GetString("otel.endpoint"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "development", "dev":
		return "development"
	case "production", "prod", "packaged":
		return "production"
	default:
		return mode
	}
}

func (c *Config) validate() error {
	if c.Mode != "development" && c.Mode != "production" {
		return fmt.Errorf("invalid mode %q (want development or production)", c.Mode)
	}
	switch c.EngineRuntime {
	case "exec":
	case "docker":
		if c.EngineImage == "" {
			return fmt.Errorf("engine.image is required for the docker runtime")
		}
	default:
		return fmt.Errorf("invalid engine runtime %q (want exec or docker)", c.EngineRuntime)
	}
	if c.EnginePort <= 0 || c.EnginePort > 65535 {
		return fmt.Errorf("invalid engine port %d", c.EnginePort)
	}
	if c.RestartDelay < 0 {
		return fmt.Errorf("invalid engine.restart_delay: %v", c.RestartDelay)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("invalid engine.max_restarts: %d", c.MaxRestarts)
	}
	return nil
}
