// Package config loads speakify settings from a YAML file, .env files and
// SPEAKIFY_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to key names for environment variable lookup.
const EnvPrefix = "SPEAKIFY_"

// Capture backends.
const (
	CaptureDaemon    = "daemon"
	CapturePortAudio = "portaudio"
)

// Store backends.
const (
	StoreRemote = "remote"
	StoreSQLite = "sqlite"
)

// Config is the merged configuration.
type Config struct {
	// Client
	APIURL     string        `yaml:"api_url"`
	Token      string        `yaml:"token"`
	Timeout    time.Duration `yaml:"timeout"`
	HTTP2      bool          `yaml:"http2"`
	Language   string        `yaml:"language"`
	Capture    string        `yaml:"capture"`
	SampleRate int           `yaml:"sample_rate"`
	SocketPath string        `yaml:"socket_path"`
	Store      string        `yaml:"store"`
	DBPath     string        `yaml:"db_path"`
	ExportDir  string        `yaml:"export_dir"`
	Notify     bool          `yaml:"notify"`
	OwnerID    string        `yaml:"owner_id"`
	LogPath    string        `yaml:"log_path"`
	LogLevel   string        `yaml:"log_level"`

	// Server
	ListenAddr  string        `yaml:"listen_addr"`
	JWTSecret   string        `yaml:"jwt_secret"`
	JWTIssuer   string        `yaml:"jwt_issuer"`
	OpenAIKey   string        `yaml:"openai_api_key"`
	OpenAIURL   string        `yaml:"openai_base_url"`
	OpenAIModel string        `yaml:"openai_model"`
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		APIURL:      "http://localhost:8080",
		Timeout:     60 * time.Second,
		Language:    "en",
		Capture:     CaptureDaemon,
		SampleRate:  16000,
		Store:       StoreRemote,
		Notify:      true,
		LogLevel:    "info",
		ListenAddr:  ":8080",
		JWTIssuer:   "speakify",
		OpenAIModel: "whisper-1",
		CacheMaxAge: 30 * 24 * time.Hour,
	}
}

// DefaultPath returns ~/.config/speakify/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "speakify", "config.yaml")
}

// Load applies defaults, then the YAML file at path (if it exists), then
// environment variables. envFiles are loaded into the environment first;
// missing ones are skipped and variables already set are kept.
func Load(path string, envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"API_URL":         &c.APIURL,
		"TOKEN":           &c.Token,
		"LANGUAGE":        &c.Language,
		"CAPTURE":         &c.Capture,
		"SOCKET_PATH":     &c.SocketPath,
		"STORE":           &c.Store,
		"DB_PATH":         &c.DBPath,
		"EXPORT_DIR":      &c.ExportDir,
		"OWNER_ID":        &c.OwnerID,
		"LOG_PATH":        &c.LogPath,
		"LOG_LEVEL":       &c.LogLevel,
		"LISTEN_ADDR":     &c.ListenAddr,
		"JWT_SECRET":      &c.JWTSecret,
		"JWT_ISSUER":      &c.JWTIssuer,
		"OPENAI_BASE_URL": &c.OpenAIURL,
		"OPENAI_MODEL":    &c.OpenAIModel,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	// the OpenAI SDK convention takes effect unless overridden
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.OpenAIKey = v
	}
	if v, ok := os.LookupEnv(EnvPrefix + "OPENAI_API_KEY"); ok {
		c.OpenAIKey = v
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":       &c.Timeout,
		"CACHE_MAX_AGE": &c.CacheMaxAge,
	}
	for key, dst := range durations {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = d
		}
	}

	bools := map[string]*bool{
		"HTTP2":  &c.HTTP2,
		"NOTIFY": &c.Notify,
	}
	for key, dst := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("parse %s%s: %w", EnvPrefix, key, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "SAMPLE_RATE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %sSAMPLE_RATE: %w", EnvPrefix, err)
		}
		c.SampleRate = n
	}
	return nil
}

// Validate checks enumerations and normalizes the language tag.
func (c *Config) Validate() error {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return fmt.Errorf("invalid language %q: %w", c.Language, err)
	}
	base, _ := tag.Base()
	c.Language = base.String()

	switch c.Capture {
	case CaptureDaemon, CapturePortAudio:
	default:
		return fmt.Errorf("invalid capture backend %q (want %s or %s)", c.Capture, CaptureDaemon, CapturePortAudio)
	}
	switch c.Store {
	case StoreRemote, StoreSQLite:
	default:
		return fmt.Errorf("invalid store backend %q (want %s or %s)", c.Store, StoreRemote, StoreSQLite)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	return nil
}
