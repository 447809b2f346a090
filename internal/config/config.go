// Package config loads steno-interview settings from defaults, an optional
// YAML file, a .env file, INTERVIEW_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jwulff/steno/interview/internal/daemon"
	"github.com/jwulff/steno/interview/internal/db"
	"github.com/jwulff/steno/interview/internal/speech"
)

// Camera source kinds.
const (
	CameraSnapshot = "snapshot"
	CameraFile     = "file"
	CameraNone     = "none"
)

// Levels are the difficulty levels offered by the question service.
var Levels = []string{"easy", "medium", "hard"}

type Backend struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Session struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	FlushGrace      time.Duration `mapstructure:"flush_grace"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	EvaluateTimeout time.Duration `mapstructure:"evaluate_timeout"`
	WarningTTL      time.Duration `mapstructure:"warning_ttl"`
	QuestionCount   int           `mapstructure:"question_count"`
	DefaultLevel    string        `mapstructure:"default_level"`
}

type Camera struct {
	Source   string        `mapstructure:"source"`
	URL      string        `mapstructure:"url"`
	File     string        `mapstructure:"file"`
	Interval time.Duration `mapstructure:"interval"`
}

type Speech struct {
	Socket    string        `mapstructure:"socket"`
	Database  string        `mapstructure:"database"`
	Locale    string        `mapstructure:"locale"`
	Device    string        `mapstructure:"device"`
	StopGrace time.Duration `mapstructure:"stop_grace"`
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Config is the resolved configuration.
type Config struct {
	Backend Backend `mapstructure:"backend"`
	Session Session `mapstructure:"session"`
	Camera  Camera  `mapstructure:"camera"`
	Speech  Speech  `mapstructure:"speech"`
	Log     Log     `mapstructure:"log"`

	// File is the config file that was read, if any.
	File     string         `mapstructure:"-"`
	settings map[string]any `mapstructure:"-"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"backend-url": "backend.url",
	"level":       "session.default_level",
	"camera":      "camera.source",
	"camera-url":  "camera.url",
	"camera-file": "camera.file",
	"socket":      "speech.socket",
	"locale":      "speech.locale",
	"log-level":   "log.level",
	"log-file":    "log.file",
}

// Dir returns the per-user configuration directory.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "steno-interview")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://127.0.0.1:5000")
	v.SetDefault("backend.timeout", "60s")

	v.SetDefault("session.tick_interval", "1s")
	v.SetDefault("session.flush_grace", "2s")
	v.SetDefault("session.generate_timeout", "30s")
	v.SetDefault("session.evaluate_timeout", "45s")
	v.SetDefault("session.warning_ttl", "5s")
	v.SetDefault("session.question_count", 1)
	v.SetDefault("session.default_level", "medium")

	v.SetDefault("camera.source", CameraSnapshot)
	v.SetDefault("camera.url", "http://127.0.0.1:8080/shot.jpg")
	v.SetDefault("camera.file", "")
	v.SetDefault("camera.interval", "500ms")

	v.SetDefault("speech.socket", daemon.SocketPath())
	v.SetDefault("speech.database", db.DefaultDBPath())
	v.SetDefault("speech.locale", "en_US")
	v.SetDefault("speech.device", "")
	v.SetDefault("speech.stop_grace", "1s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(Dir(), "interview.log"))
}

// Load resolves the configuration. An explicit path must exist; otherwise
// interview.yaml is looked up in the working directory and Dir. flags may
// be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("INTERVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("interview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.settings = v.AllSettings()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url %q: must be an http(s) URL", c.Backend.URL)
	}
	if !ValidLevel(c.Session.DefaultLevel) {
		return fmt.Errorf("session.default_level %q: must be one of %s", c.Session.DefaultLevel, strings.Join(Levels, ", "))
	}
	switch c.Camera.Source {
	case CameraSnapshot:
		if c.Camera.URL == "" {
			return errors.New("camera.url is required for the snapshot camera")
		}
	case CameraFile:
		if c.Camera.File == "" {
			return errors.New("camera.file is required for the file camera")
		}
	case CameraNone:
	default:
		return fmt.Errorf("camera.source %q: must be snapshot, file or none", c.Camera.Source)
	}
	if c.Session.TickInterval <= 0 || c.Session.FlushGrace <= 0 {
		return errors.New("session.tick_interval and session.flush_grace must be positive")
	}
	// Late segments arrive at most stop_grace plus the recovery read after
	// stop; the drain window has to outlast both.
	if minFlush := c.Speech.StopGrace + speech.RecoveryTimeout; c.Session.FlushGrace <= minFlush {
		return fmt.Errorf("session.flush_grace %v: must exceed speech.stop_grace plus %v (%v)",
			c.Session.FlushGrace, speech.RecoveryTimeout, minFlush)
	}
	if c.Session.QuestionCount < 1 {
		return fmt.Errorf("session.question_count %d: must be at least 1", c.Session.QuestionCount)
	}
	return nil
}

// ValidLevel reports whether level is a known difficulty level.
func ValidLevel(level string) bool {
	for _, l := range Levels {
		if l == level {
			return true
		}
	}
	return false
}

// YAML renders the effective settings.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.settings)
}
