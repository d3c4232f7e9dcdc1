package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/KazimAndrei/HollyProject/internal/models"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port            int    `yaml:"port"`
		Verbose         bool   `yaml:"verbose"`
		LogLevel        string `yaml:"log_level"`
		LogFormat       string `yaml:"log_format"`
		ShutdownTimeout string   `yaml:"shutdown_timeout"`
		CORSOrigins     []string `yaml:"cors_origins"`
	} `yaml:"server"`

	AppStore struct {
		Environment      string   `yaml:"environment"`
		IssuerID         string   `yaml:"issuer_id"`
		KeyID            string   `yaml:"key_id"`
		PrivateKey       string   `yaml:"private_key"`
		BundleID         string   `yaml:"bundle_id"`
		ProductID        string   `yaml:"product_id"`
		BaseURL          string   `yaml:"base_url"`
		Timeout          string   `yaml:"timeout"`
		MaxRetries       int      `yaml:"max_retries"`
		Backoff          []string `yaml:"backoff"`
		VerifyDeadline   string   `yaml:"verify_deadline"`
		VerifySignatures bool     `yaml:"verify_signatures"`
		RootCertPath     string   `yaml:"root_cert_path"`
	} `yaml:"appstore"`

	LLM struct {
		APIKey      string  `yaml:"api_key"`
		Model       string  `yaml:"model"`
		BaseURL     string  `yaml:"base_url"`
		Timeout     string  `yaml:"timeout"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Storage struct {
		Driver          string `yaml:"driver"`
		RedisURL        string `yaml:"redis_url"`
		CleanupInterval string `yaml:"cleanup_interval"`
	} `yaml:"storage"`

	Chat struct {
		FreeLimit        int    `yaml:"free_limit"`
		Timezone         string `yaml:"timezone"`
		MinReliableScore int    `yaml:"min_reliable_score"`
	} `yaml:"chat"`

	Scripture struct {
		CorpusDir          string   `yaml:"corpus_dir"`
		DefaultTranslation string   `yaml:"default_translation"`
		DailyPool          []string `yaml:"daily_pool"`
	} `yaml:"scripture"`
}

// ParsedConfig contains parsed time.Duration values for easier use
type ParsedConfig struct {
	Config
	ShutdownTimeout time.Duration
	AppStoreTimeout time.Duration
	AppStoreBackoff []time.Duration
	VerifyDeadline  time.Duration
	LLMTimeout      time.Duration
	CleanupInterval time.Duration
	Location        *time.Location
}

// MockMode reports whether App Store credentials are incomplete.
func (c *ParsedConfig) MockMode() bool {
	return !c.Credentials().Complete()
}

// Credentials returns the App Store Connect API key material.
func (c *ParsedConfig) Credentials() models.Credentials {
	return models.Credentials{
		IssuerID:   c.AppStore.IssuerID,
		KeyID:      c.AppStore.KeyID,
		PrivateKey: c.AppStore.PrivateKey,
		BundleID:   c.AppStore.BundleID,
	}
}

// LLMEnabled reports whether a language model key is configured.
func (c *ParsedConfig) LLMEnabled() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = 8000
	cfg.Server.LogLevel = "info"
	cfg.Server.LogFormat = "auto"
	cfg.Server.ShutdownTimeout = "10s"
	cfg.Server.CORSOrigins = []string{"*"}

	cfg.AppStore.Environment = "sandbox"
	cfg.AppStore.Timeout = "5s"
	cfg.AppStore.MaxRetries = 3
	cfg.AppStore.Backoff = []string{"500ms", "1s", "2s"}
	cfg.AppStore.VerifyDeadline = "20s"

	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.Timeout = "30s"
	cfg.LLM.Temperature = 0.3

	cfg.Storage.Driver = "memory"
	cfg.Storage.CleanupInterval = "1h"

	cfg.Chat.FreeLimit = 4
	cfg.Chat.Timezone = "Local"
	cfg.Chat.MinReliableScore = 2

	cfg.Scripture.CorpusDir = "corpus"
	cfg.Scripture.DefaultTranslation = "WEB"
	return cfg
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %v", file, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file, then applies environment overrides.
// A missing file is not an error.
func LoadConfig(filepath string) (*ParsedConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	return Parse(cfg)
}

// Parse converts duration strings and validates the result.
func Parse(cfg Config) (*ParsedConfig, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	parsed := &ParsedConfig{Config: cfg}
	var err error

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout, &parsed.ShutdownTimeout},
		{"appstore.timeout", cfg.AppStore.Timeout, &parsed.AppStoreTimeout},
		{"appstore.verify_deadline", cfg.AppStore.VerifyDeadline, &parsed.VerifyDeadline},
		{"llm.timeout", cfg.LLM.Timeout, &parsed.LLMTimeout},
		{"storage.cleanup_interval", cfg.Storage.CleanupInterval, &parsed.CleanupInterval},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.value); err != nil {
			return nil, fmt.Errorf("invalid %s: %v", d.name, err)
		}
	}

	for i, raw := range cfg.AppStore.Backoff {
		d, err := parseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid appstore.backoff[%d]: %v", i, err)
		}
		parsed.AppStoreBackoff = append(parsed.AppStoreBackoff, d)
	}

	parsed.Location, err = loadLocation(cfg.Chat.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid chat.timezone: %v", err)
	}

	return parsed, nil
}

// validateConfig validates the configuration values
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	switch strings.ToLower(cfg.AppStore.Environment) {
	case "sandbox", "production":
	default:
		return fmt.Errorf("appstore environment must be sandbox or production, got %q", cfg.AppStore.Environment)
	}

	if cfg.AppStore.MaxRetries < 1 {
		return fmt.Errorf("appstore max_retries must be at least 1")
	}

	if cfg.AppStore.VerifySignatures && cfg.AppStore.RootCertPath == "" {
		return fmt.Errorf("appstore verify_signatures requires root_cert_path")
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "redis":
		if cfg.Storage.RedisURL == "" {
			return fmt.Errorf("storage driver redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Chat.FreeLimit < 0 {
		return fmt.Errorf("chat free_limit must be non-negative")
	}

	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be between 0 and 2")
	}

	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"APPSTORE_ENV":         &cfg.AppStore.Environment,
		"APPSTORE_ISSUER_ID":   &cfg.AppStore.IssuerID,
		"APPSTORE_KEY_ID":      &cfg.AppStore.KeyID,
		"APPSTORE_PRIVATE_KEY": &cfg.AppStore.PrivateKey,
		"BUNDLE_ID":            &cfg.AppStore.BundleID,
		"PRODUCT_ID":           &cfg.AppStore.ProductID,
		"APPSTORE_BASE_URL":    &cfg.AppStore.BaseURL,
		"OPENAI_API_KEY":       &cfg.LLM.APIKey,
		"LLM_MODEL":            &cfg.LLM.Model,
		"LLM_BASE_URL":         &cfg.LLM.BaseURL,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if v, ok := lookup("REDIS_URL"); ok && strings.TrimSpace(v) != "" {
		cfg.Storage.RedisURL = strings.TrimSpace(v)
		cfg.Storage.Driver = "redis"
	}

	if v, ok := lookup("CORS_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		cfg.Server.CORSOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, origin)
			}
		}
	}

	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %v", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// parseDuration treats an empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
