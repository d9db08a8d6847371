// Package config loads process settings from the environment and play
// mode presets from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration.
type Config struct {
	Port            string
	DBPath          string
	LogLevel        string
	TuningPath      string
	TickInterval    time.Duration
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
	AudioEnabled    bool
	AudioVolume     float64
	JWTSecret       string
	TokenTTL        time.Duration
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (Config, error) {
	c := Config{
		Port:       getEnv("PORT", "8080"),
		DBPath:     getEnv("DB_PATH", "memorymatch.db"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		TuningPath: getEnv("TUNING_PATH", ""),
		JWTSecret:  getEnv("JWT_SECRET", "dev-secret-change-me"),
	}

	var err error
	if c.TickInterval, err = getDuration("TICK_INTERVAL", 50*time.Millisecond); err != nil {
		return Config{}, err
	}
	if c.IdleTimeout, err = getDuration("IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if c.CleanupInterval, err = getDuration("CLEANUP_INTERVAL", time.Minute); err != nil {
		return Config{}, err
	}
	if c.TokenTTL, err = getDuration("TOKEN_TTL", 720*time.Hour); err != nil {
		return Config{}, err
	}
	if c.AudioEnabled, err = getBool("AUDIO_ENABLED", false); err != nil {
		return Config{}, err
	}
	if c.AudioVolume, err = getFloat("AUDIO_VOLUME", 0.6); err != nil {
		return Config{}, err
	}
	if c.TickInterval <= 0 {
		return Config{}, fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	return c, nil
}

// Addr is the listen address.
func (c Config) Addr() string { return ":" + c.Port }

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func getBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}

func getFloat(k string, def float64) (float64, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return f, nil
}
