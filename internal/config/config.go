package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Backend struct {
		BaseURL string `yaml:"baseUrl"`
		WSURL   string `yaml:"wsUrl"`
		Token   string `yaml:"token"`
	} `yaml:"backend"`
	Game struct {
		Mode          string `yaml:"mode"`
		Hearts        int    `yaml:"hearts"`
		QuestionTime  string `yaml:"questionTime"`
		QuestionCount int    `yaml:"questionCount"`
	} `yaml:"game"`
	Reconnect struct {
		BaseInterval string `yaml:"baseInterval"`
		MaxInterval  string `yaml:"maxInterval"`
		MaxAttempts  int    `yaml:"maxAttempts"`
	} `yaml:"reconnect"`
	Polling struct {
		Interval    string `yaml:"interval"`
		MaxAttempts int    `yaml:"maxAttempts"`
	} `yaml:"polling"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Questions struct {
		TTL string `yaml:"ttl"`
	} `yaml:"questions"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty or invalid.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
