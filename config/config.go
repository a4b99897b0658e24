// Package config loads the service configuration from YAML and applies
// defaults and environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/wudi/rxverify/forensics"
)

const DefaultPath = "rxverify.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	OCR       OCRConfig       `yaml:"ocr"`
	Document  DocumentConfig  `yaml:"document"`
	Forensics ForensicsConfig `yaml:"forensics"`
	Reference ReferenceConfig `yaml:"reference"`
	Registry  RegistryConfig  `yaml:"registry"`
	Sentry    SentryConfig    `yaml:"sentry"`
}

type ServerConfig struct {
	Listen      string `yaml:"listen"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type OCRConfig struct {
	Languages []string `yaml:"languages"`
	DPI       int      `yaml:"dpi"`
	PSM       int      `yaml:"psm"`
}

type DocumentConfig struct {
	PdftoppmPath string `yaml:"pdftoppm_path"`
	DPI          int    `yaml:"dpi"`
	MaxPixels    int64  `yaml:"max_pixels"`
	WorkPixels   int64  `yaml:"work_pixels"`
}

// ForensicsConfig overrides individual tamper-detection parameters; unset
// fields keep the defaults.
type ForensicsConfig struct {
	NoiseWeight          *float64 `yaml:"noise_weight"`
	NoiseThreshold       *float64 `yaml:"noise_threshold"`
	AlignmentWeight      *float64 `yaml:"alignment_weight"`
	AlignmentThreshold   *float64 `yaml:"alignment_threshold"`
	CompressionWeight    *float64 `yaml:"compression_weight"`
	CompressionThreshold *float64 `yaml:"compression_threshold"`
	FontWeight           *float64 `yaml:"font_weight"`
	FontThreshold        *float64 `yaml:"font_threshold"`
	TamperCutoff         *float64 `yaml:"tamper_cutoff"`
}

type ReferenceConfig struct {
	PostgresURL string `yaml:"postgres_url"`
	SeedFile    string `yaml:"seed_file"`
}

type RegistryConfig struct {
	MongoDBURI   string `yaml:"mongodb_uri"`
	Database     string `yaml:"database"`
	HistoryLimit int    `yaml:"history_limit"`
}

type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// Load reads path with process environment overrides.
func Load(path string, allowMissing bool) (Config, error) {
	return LoadWithEnv(path, allowMissing, os.Getenv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, allowMissing bool, getenv func(string) string) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("config path is required")
	}

	var configuration Config
	content, err := os.ReadFile(trimmedPath)
	switch {
	case err != nil && os.IsNotExist(err) && allowMissing:
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	case len(strings.TrimSpace(string(content))) > 0:
		if err := yaml.Unmarshal(content, &configuration); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	configuration.normalize()
	configuration.applyEnv(getenv)
	configuration.applyDefaults()
	if err := configuration.Validate(); err != nil {
		return Config{}, err
	}
	return configuration, nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var configuration Config
	configuration.applyDefaults()
	return configuration
}

func (configuration *Config) normalize() {
	configuration.Server.Listen = strings.TrimSpace(configuration.Server.Listen)
	configuration.Log.Level = strings.ToLower(strings.TrimSpace(configuration.Log.Level))
	configuration.Log.Format = strings.ToLower(strings.TrimSpace(configuration.Log.Format))
	languages := configuration.OCR.Languages[:0]
	for _, lang := range configuration.OCR.Languages {
		if lang = strings.TrimSpace(lang); lang != "" {
			languages = append(languages, lang)
		}
	}
	configuration.OCR.Languages = languages
	configuration.Document.PdftoppmPath = strings.TrimSpace(configuration.Document.PdftoppmPath)
	configuration.Reference.PostgresURL = strings.TrimSpace(configuration.Reference.PostgresURL)
	configuration.Reference.SeedFile = strings.TrimSpace(configuration.Reference.SeedFile)
	configuration.Registry.MongoDBURI = strings.TrimSpace(configuration.Registry.MongoDBURI)
	configuration.Registry.Database = strings.TrimSpace(configuration.Registry.Database)
	configuration.Sentry.DSN = strings.TrimSpace(configuration.Sentry.DSN)
	configuration.Sentry.Environment = strings.TrimSpace(configuration.Sentry.Environment)
}

func (configuration *Config) applyEnv(getenv func(string) string) {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		configuration.Server.Listen = ":" + port
	}
	if v := strings.TrimSpace(getenv("DATABASE_URL")); v != "" {
		configuration.Reference.PostgresURL = v
	}
	if v := strings.TrimSpace(getenv("MONGODB_URI")); v != "" {
		configuration.Registry.MongoDBURI = v
	}
	if v := strings.TrimSpace(getenv("MONGODB_DATABASE")); v != "" {
		configuration.Registry.Database = v
	}
	if v := strings.TrimSpace(getenv("SENTRY_DSN")); v != "" {
		configuration.Sentry.DSN = v
	}
	if v := strings.TrimSpace(getenv("RXVERIFY_LOG_LEVEL")); v != "" {
		configuration.Log.Level = strings.ToLower(v)
	}
}

func (configuration *Config) applyDefaults() {
	if configuration.Server.Listen == "" {
		configuration.Server.Listen = ":8080"
	}
	if configuration.Server.MaxUploadMB <= 0 {
		configuration.Server.MaxUploadMB = 16
	}
	if configuration.Log.Level == "" {
		configuration.Log.Level = "info"
	}
	if configuration.Log.Format == "" {
		configuration.Log.Format = "json"
	}
	if len(configuration.OCR.Languages) == 0 {
		configuration.OCR.Languages = []string{"eng"}
	}
	if configuration.OCR.DPI <= 0 {
		configuration.OCR.DPI = 300
	}
	if configuration.Document.DPI <= 0 {
		configuration.Document.DPI = 200
	}
	if configuration.Registry.Database == "" {
		configuration.Registry.Database = "medauth"
	}
	if configuration.Registry.HistoryLimit <= 0 {
		configuration.Registry.HistoryLimit = 10
	}
	if configuration.Sentry.Environment == "" {
		configuration.Sentry.Environment = "development"
	}
}

// Validate checks enumerations and the derived forensics configuration.
func (configuration Config) Validate() error {
	switch configuration.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", configuration.Log.Level)
	}
	switch configuration.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text; got %q", configuration.Log.Format)
	}
	if configuration.OCR.PSM < 0 || configuration.OCR.PSM > 13 {
		return fmt.Errorf("ocr.psm must be within [0,13]; got %d", configuration.OCR.PSM)
	}
	if err := configuration.ForensicsConfig().Validate(); err != nil {
		return fmt.Errorf("forensics: %w", err)
	}
	return nil
}

// ForensicsConfig merges the overrides onto forensics.DefaultConfig.
func (configuration Config) ForensicsConfig() forensics.Config {
	cfg := forensics.DefaultConfig()
	f := configuration.Forensics
	for _, o := range []struct {
		src *float64
		dst *float64
	}{
		{f.NoiseWeight, &cfg.NoiseWeight},
		{f.NoiseThreshold, &cfg.NoiseThreshold},
		{f.AlignmentWeight, &cfg.AlignmentWeight},
		{f.AlignmentThreshold, &cfg.AlignmentThreshold},
		{f.CompressionWeight, &cfg.CompressionWeight},
		{f.CompressionThreshold, &cfg.CompressionThreshold},
		{f.FontWeight, &cfg.FontWeight},
		{f.FontThreshold, &cfg.FontThreshold},
		{f.TamperCutoff, &cfg.TamperCutoff},
	} {
		if o.src != nil {
			*o.dst = *o.src
		}
	}
	return cfg
}

// MaxUploadBytes is the request body limit for uploads.
func (configuration Config) MaxUploadBytes() int64 {
	return configuration.Server.MaxUploadMB << 20
}
