package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/keagan/videomcp/internal/videospec"
)

type contextKey string

const configKey contextKey = "config"

// Environment variable names
const (
	EnvOutDir      = "VIDEOMCP_OUT_DIR"
	EnvRawDir      = "VIDEOMCP_RAW_DIR"
	EnvTempDir     = "VIDEOMCP_TEMP_DIR"
	EnvConcurrency = "VIDEOMCP_CONCURRENCY"
	EnvFFmpegPath  = "VIDEOMCP_FFMPEG"
	EnvLitStyle    = "VIDEOMCP_LIT_STYLE"
	EnvHFToken     = "HF_TOKEN"
	EnvHFEndpoint  = "HF_ENDPOINT"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	OutDir      string `yaml:"out_dir"`
	RawDir      string `yaml:"raw_dir"`
	TempDir     string `yaml:"temp_dir"`
	Concurrency int    `yaml:"concurrency"`

	// Clip shape
	Video videospec.Spec `yaml:"video"`

	// Frame rendering
	Render RenderConfig `yaml:"render"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Hugging Face Hub access for adapters that download
	Hub HubConfig `yaml:"hub"`
}

type RenderConfig struct {
	LitStyle    string `yaml:"lit_style"`
	ProgressBar bool   `yaml:"progress_bar"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	Threads    int    `yaml:"threads"`
	Preset     string `yaml:"preset"`
	CRF        int    `yaml:"crf"`
}

type HubConfig struct {
	Endpoint string `yaml:"endpoint"`
	// Token is read from HF_TOKEN; it is never written back to disk.
	Token string `yaml:"-"`
}

// Load reads configuration from file or returns defaults. A .env file in the
// working directory is loaded first, then environment overrides are applied.
func Load(path string) (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		OutDir:      "data/processed",
		RawDir:      "data/raw",
		TempDir:     os.TempDir(),
		Concurrency: runtime.NumCPU(),
		Video:       videospec.Default(),
		Render: RenderConfig{
			LitStyle:    "darken",
			ProgressBar: true,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			Threads:    0,
			Preset:     "medium",
			CRF:        18,
		},
		Hub: HubConfig{
			Endpoint: "https://huggingface.co",
		},
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvOutDir); v != "" {
		c.OutDir = v
	}
	if v := os.Getenv(EnvRawDir); v != "" {
		c.RawDir = v
	}
	if v := os.Getenv(EnvTempDir); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		c.FFmpeg.BinaryPath = v
	}
	if v := os.Getenv(EnvLitStyle); v != "" {
		c.Render.LitStyle = v
	}
	if v := os.Getenv(EnvConcurrency); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid %s %q: must be a positive integer", EnvConcurrency, v)
		}
		c.Concurrency = n
	}
	if v := os.Getenv(EnvHFEndpoint); v != "" {
		c.Hub.Endpoint = v
	}
	c.Hub.Token = os.Getenv(EnvHFToken)
	return nil
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".videomcp", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// LoadEnvFile loads a .env file into the environment without overriding
// variables that are already set to a non-empty value. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for key, value := range vars {
		if cur, set := os.LookupEnv(key); set && cur != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
