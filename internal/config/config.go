// Package config loads and persists readflow settings.
//
// Resolution order: built-in defaults, then the YAML config file (a
// project-local ./.readflow/readflow.yml wins over the user config), then
// READFLOW_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marqueymarc/readflow/internal/chunker"
)

const (
	appName         = "readflow"
	localConfigPath = ".readflow/readflow.yml"
)

// Settings holds every user-tunable knob.
//
// Defaults live in Default(), not in envDefault tags: env.Parse runs after
// the file values are applied and must only touch fields whose READFLOW_*
// variable is actually set.
type Settings struct {
	// Synthesis settings
	Voice        string `yaml:"voice" env:"VOICE"`
	Mock         bool   `yaml:"mock" env:"MOCK"`
	SynthesisURL string `yaml:"synthesis_url" env:"SYNTHESIS_URL"`

	// Playback settings
	Rate     float64 `yaml:"rate" env:"RATE"`
	AutoPlay bool    `yaml:"auto_play" env:"AUTO_PLAY"`
	AutoNext bool    `yaml:"auto_next" env:"AUTO_NEXT"`

	// Chunking settings
	FirstChunkChars  int `yaml:"first_chunk_chars" env:"FIRST_CHUNK_CHARS"`
	SecondChunkChars int `yaml:"second_chunk_chars" env:"SECOND_CHUNK_CHARS"`
	MaxChunkChars    int `yaml:"max_chunk_chars" env:"MAX_CHUNK_CHARS"`

	// Storage settings
	DataDir         string `yaml:"data_dir" env:"DATA_DIR"`
	CacheLimitBytes int64  `yaml:"cache_limit_bytes" env:"CACHE_LIMIT_BYTES"`

	// Timing settings
	ReadyTimeout   time.Duration `yaml:"ready_timeout" env:"READY_TIMEOUT"`
	ResumeDebounce time.Duration `yaml:"resume_debounce" env:"RESUME_DEBOUNCE"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Voice:            "nova",
		Rate:             1.0,
		AutoPlay:         true,
		AutoNext:         true,
		FirstChunkChars:  400,
		SecondChunkChars: 800,
		MaxChunkChars:    1500,
		CacheLimitBytes:  500 * 1024 * 1024,
		ReadyTimeout:     10 * time.Second,
		ResumeDebounce:   250 * time.Millisecond,
		LogLevel:         "info",
	}
}

// ChunkLimits returns the chunker caps from the settings.
func (s Settings) ChunkLimits() chunker.Limits {
	return chunker.Limits{
		First:  s.FirstChunkChars,
		Second: s.SecondChunkChars,
		Max:    s.MaxChunkChars,
	}
}

// UserConfigPath returns the per-user config file path.
func UserConfigPath() (string, error) {
	scope := gap.NewScope(gap.User, appName)
	path, err := scope.ConfigPath(appName + ".yml")
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}

// DefaultDataDir returns the per-user data directory for the audio cache.
func DefaultDataDir() (string, error) {
	scope := gap.NewScope(gap.User, appName)
	path, err := scope.DataPath("cache")
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return path, nil
}

// FindConfigFile returns the config file to use: an explicit path when
// given, else the project-local file when present, else the user config.
func FindConfigFile(explicit string) (string, error) {
	if explicit != "" {
		return homedir.Expand(explicit)
	}
	if _, err := os.Stat(localConfigPath); err == nil {
		return localConfigPath, nil
	}
	return UserConfigPath()
}

// Load reads settings from the given file (missing files are fine) and
// applies READFLOW_* environment overrides.
func Load(path string) (Settings, error) {
	s := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return s, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	} else {
		applyViper(v, &s)
	}

	if err := env.ParseWithOptions(&s, env.Options{Prefix: "READFLOW_"}); err != nil {
		return s, fmt.Errorf("parse environment: %w", err)
	}

	if s.DataDir != "" {
		expanded, err := homedir.Expand(s.DataDir)
		if err != nil {
			return s, fmt.Errorf("expand data dir: %w", err)
		}
		s.DataDir = expanded
	}

	s.normalize()
	return s, nil
}

func applyViper(v *viper.Viper, s *Settings) {
	if v.IsSet("voice") {
		s.Voice = v.GetString("voice")
	}
	if v.IsSet("mock") {
		s.Mock = v.GetBool("mock")
	}
	if v.IsSet("synthesis_url") {
		s.SynthesisURL = v.GetString("synthesis_url")
	}
	if v.IsSet("rate") {
		s.Rate = v.GetFloat64("rate")
	}
	if v.IsSet("auto_play") {
		s.AutoPlay = v.GetBool("auto_play")
	}
	if v.IsSet("auto_next") {
		s.AutoNext = v.GetBool("auto_next")
	}
	if v.IsSet("first_chunk_chars") {
		s.FirstChunkChars = v.GetInt("first_chunk_chars")
	}
	if v.IsSet("second_chunk_chars") {
		s.SecondChunkChars = v.GetInt("second_chunk_chars")
	}
	if v.IsSet("max_chunk_chars") {
		s.MaxChunkChars = v.GetInt("max_chunk_chars")
	}
	if v.IsSet("data_dir") {
		s.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("cache_limit_bytes") {
		s.CacheLimitBytes = v.GetInt64("cache_limit_bytes")
	}
	if v.IsSet("ready_timeout") {
		if d, err := time.ParseDuration(v.GetString("ready_timeout")); err == nil {
			s.ReadyTimeout = d
		}
	}
	if v.IsSet("resume_debounce") {
		if d, err := time.ParseDuration(v.GetString("resume_debounce")); err == nil {
			s.ResumeDebounce = d
		}
	}
	if v.IsSet("log_level") {
		s.LogLevel = v.GetString("log_level")
	}
}

// normalize clamps out-of-range values back to usable ones.
func (s *Settings) normalize() {
	if s.Rate < 0.5 {
		s.Rate = 0.5
	}
	if s.Rate > 2 {
		s.Rate = 2
	}
	if s.MaxChunkChars <= 0 {
		s.MaxChunkChars = 1500
	}
	if s.FirstChunkChars <= 0 {
		s.FirstChunkChars = s.MaxChunkChars
	}
	if s.SecondChunkChars <= 0 {
		s.SecondChunkChars = s.MaxChunkChars
	}
	if s.ReadyTimeout <= 0 {
		s.ReadyTimeout = 10 * time.Second
	}
	if s.ResumeDebounce <= 0 {
		s.ResumeDebounce = 250 * time.Millisecond
	}
}

// Save writes the settings as YAML, creating parent directories as needed.
func Save(s Settings, path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
