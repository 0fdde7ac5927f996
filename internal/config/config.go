package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds process configuration. It is resolved once at startup.
type Config struct {
	SecretKey      string `yaml:"-"`
	Port           string `yaml:"port"`
	ModelDir       string `yaml:"model_dir"`
	ORTLibraryPath string `yaml:"ort_library_path"`
	Device         string `yaml:"device"`
	TesseractLang  string `yaml:"tesseract_lang"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`

	// Optional integrations; empty disables them.
	RedisURL        string `yaml:"redis_url"`
	DatabaseURL     string `yaml:"database_url"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

func defaults() *Config {
	return &Config{
		Port:            "8080",
		ModelDir:        "models/layoutlm-funsd",
		Device:          "auto",
		TesseractLang:   "eng",
		MaxUploadBytes:  10 << 20,
		CacheTTLSeconds: 3600,
	}
}

// Load builds the configuration from defaults, then the optional YAML file
// at path, then environment variables. The secret only comes from the
// environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.SecretKey = getEnvOrDefault("SECRET_KEY", os.Getenv("secretkey"))
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.ModelDir = getEnvOrDefault("MODEL_DIR", cfg.ModelDir)
	cfg.ORTLibraryPath = getEnvOrDefault("ORT_LIBRARY_PATH", cfg.ORTLibraryPath)
	cfg.Device = getEnvOrDefault("DEVICE", cfg.Device)
	cfg.TesseractLang = getEnvOrDefault("TESSERACT_LANG", cfg.TesseractLang)
	cfg.MaxUploadBytes = getEnvAsInt64OrDefault("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)
	cfg.RedisURL = getEnvOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.CacheTTLSeconds = getEnvAsIntOrDefault("CACHE_TTL_SECONDS", cfg.CacheTTLSeconds)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	switch c.Device {
	case "auto", "cpu", "cuda":
	default:
		return fmt.Errorf("DEVICE must be one of auto, cpu, cuda, got %q", c.Device)
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", c.Port)
	}

	if c.MaxUploadBytes < 1024 || c.MaxUploadBytes > 100<<20 { // 1KB to 100MB
		return fmt.Errorf("MAX_UPLOAD_BYTES must be between 1KB and 100MB, got %d", c.MaxUploadBytes)
	}

	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must not be negative, got %d", c.CacheTTLSeconds)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
