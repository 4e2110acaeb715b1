package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/subh7987/hyper-link-remover/internal/cleaner"
)

// Config holds application configuration
type Config struct {
	// Server settings
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// Database settings
	DBPath string `yaml:"db_path"`

	// Folder settings used by the scan page and `clean` defaults
	InputPath  string `yaml:"input_path"`
	OutputPath string `yaml:"output_path"`

	// Cleaning settings
	Mode        string `yaml:"mode"`    // full or links
	Workers     int    `yaml:"workers"` // 0 means one per CPU
	MaxUploadMB int64  `yaml:"max_upload_mb"`

	Log Log `yaml:"log"`
}

// Log configures the zap logger
type Log struct {
	Env   string `yaml:"env"`
	Level string `yaml:"level"`
}

// Default returns default configuration
func Default() *Config {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	// Use ~/.eml-cleaner for data directory
	dataDir := filepath.Join(homeDir, ".eml-cleaner")

	return &Config{
		Host:        "localhost",
		Port:        "8080",
		DBPath:      filepath.Join(dataDir, "runs.db"),
		InputPath:   "./emails",
		OutputPath:  "./cleaned",
		Mode:        string(cleaner.ModeFull),
		MaxUploadMB: 64,
		Log: Log{
			Env:   "dev",
			Level: "info",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (optional,
// "" skips it) and EML_* environment variables. A .env file in the working
// directory is loaded first when present.
func Load(path string) (*Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (*Config, error) {
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("config file %s doesn't exist: %w", path, err)
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Host = env("EML_HOST", c.Host)
	c.Port = env("EML_PORT", c.Port)
	c.DBPath = env("EML_DB_PATH", c.DBPath)
	c.InputPath = env("EML_INPUT_PATH", c.InputPath)
	c.OutputPath = env("EML_OUTPUT_PATH", c.OutputPath)
	c.Mode = env("EML_MODE", c.Mode)
	c.Workers = envInt("EML_WORKERS", c.Workers)
	c.MaxUploadMB = int64(envInt("EML_MAX_UPLOAD_MB", int(c.MaxUploadMB)))
	c.Log.Env = env("EML_LOG_ENV", c.Log.Env)
	c.Log.Level = env("EML_LOG_LEVEL", c.Log.Level)
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	if _, err := cleaner.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid config: workers must not be negative")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid config: max_upload_mb must be positive")
	}
	return nil
}

// CleanMode returns the configured mode, falling back to full
func (c *Config) CleanMode() cleaner.Mode {
	mode, err := cleaner.ParseMode(c.Mode)
	if err != nil {
		return cleaner.ModeFull
	}
	return mode
}

// MaxUploadBytes returns the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Address returns the full server address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// URL returns the full server URL
func (c *Config) URL() string {
	return "http://" + c.Address()
}

func env(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}
