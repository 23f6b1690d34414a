package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Source          string `yaml:"source"`
	Series          string `yaml:"series"`
	Workers         int    `yaml:"workers"`
	AlphaVantageKey string `yaml:"alphavantage_api_key"`
	CachePath       string `yaml:"cache_path"`
}

// Load builds a Config from defaults, an optional YAML file, and environment
// variables, in increasing order of precedence. A missing file at path is
// not an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Config{
		Source:  "yahoo",
		Series:  "daily",
		Workers: 5,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.Source = getEnv("STOCKCSV_SOURCE", cfg.Source)
	cfg.Series = getEnv("STOCKCSV_SERIES", cfg.Series)
	cfg.Workers = getEnvInt("STOCKCSV_WORKERS", cfg.Workers)
	cfg.AlphaVantageKey = getEnv("ALPHAVANTAGE_API_KEY", cfg.AlphaVantageKey)
	cfg.CachePath = getEnv("STOCKCSV_CACHE", cfg.CachePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	switch c.Series {
	case "daily", "weekly", "monthly":
	default:
		return fmt.Errorf("unknown series: %s", c.Series)
	}
	switch c.Source {
	case "yahoo":
	case "alphavantage":
		if c.AlphaVantageKey == "" {
			return fmt.Errorf("alphavantage source requires an api key")
		}
	default:
		return fmt.Errorf("unknown source: %s", c.Source)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}
