package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the ProfAI companion service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	BackendURL     string
	BackendToken   string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration

	RecordingSampleRate int
	MaxRecordingBytes   int
	MaxUploadBytes      int64
}

// Load reads the optional .env file, then environment variables, and applies
// safe defaults.
func Load() (Config, error) {
	// Missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:            envOrDefault("PROFAI_BIND_ADDR", ":8090"),
		MetricsNamespace:    envOrDefault("PROFAI_METRICS_NAMESPACE", "profai"),
		AllowAnyOrigin:      false,
		BackendURL:          strings.TrimSpace(os.Getenv("PROFAI_BACKEND_URL")),
		BackendToken:        strings.TrimSpace(os.Getenv("PROFAI_BACKEND_TOKEN")),
		RequestTimeout:      60 * time.Second,
		UploadTimeout:       120 * time.Second,
		ShutdownTimeout:     15 * time.Second,
		RecordingSampleRate: 16000,
		MaxRecordingBytes:   8 << 20,
		MaxUploadBytes:      16 << 20,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("PROFAI_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("PROFAI_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UploadTimeout, err = durationFromEnv("PROFAI_UPLOAD_TIMEOUT", cfg.UploadTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordingSampleRate, err = intFromEnv("PROFAI_RECORDING_SAMPLE_RATE", cfg.RecordingSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRecordingBytes, err = intFromEnv("PROFAI_MAX_RECORDING_BYTES", cfg.MaxRecordingBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("PROFAI_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("PROFAI_BACKEND_URL is required")
	}
	if cfg.RequestTimeout < time.Second {
		return Config{}, fmt.Errorf("PROFAI_REQUEST_TIMEOUT must be at least 1s")
	}
	if cfg.RecordingSampleRate <= 0 {
		return Config{}, fmt.Errorf("PROFAI_RECORDING_SAMPLE_RATE must be positive")
	}
	if cfg.MaxRecordingBytes <= 0 {
		return Config{}, fmt.Errorf("PROFAI_MAX_RECORDING_BYTES must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
