package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver" validate:"omitempty,oneof=memory sqlite postgres"`
	} `yaml:"storage"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Status struct {
		TTL string `yaml:"ttl"`
	} `yaml:"status"`
	Content struct {
		WikiURL     string `yaml:"wiki_url" validate:"omitempty,url"`
		WikiPageURL string `yaml:"wiki_page_url" validate:"omitempty,url"`
		SolrURL     string `yaml:"solr_url" validate:"omitempty,url"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"content"`
	Images struct {
		Endpoint     string `yaml:"endpoint" validate:"omitempty,url"`
		APIKey       string `yaml:"api_key"`
		SearchEngine string `yaml:"search_engine"`
		MinBytes     int64  `yaml:"min_bytes" validate:"gte=0"`
		MaxTries     int    `yaml:"max_tries" validate:"gte=0"`
		Default      string `yaml:"default"`
	} `yaml:"images"`
	Generation struct {
		Driver      string `yaml:"driver" validate:"omitempty,oneof=none http openai"`
		Workers     int    `yaml:"workers" validate:"gte=0"`
		QueueSize   int    `yaml:"queue_size" validate:"gte=0"`
		Timeout     string `yaml:"timeout"`
		EnqueueWait string `yaml:"enqueue_wait"`
		ReadyPolicy string `yaml:"ready_policy" validate:"omitempty,oneof=on_completion optimistic"`
		HTTPURL     string `yaml:"http_url" validate:"required_if=Driver http,omitempty,url"`
		OpenAI      struct {
			APIKey    string `yaml:"api_key"`
			BaseURL   string `yaml:"base_url" validate:"omitempty,url"`
			Model     string `yaml:"model"`
			Questions int    `yaml:"questions" validate:"gte=0"`
		} `yaml:"openai"`
	} `yaml:"generation"`
	Distractors struct {
		MaxDraws int `yaml:"max_draws" validate:"gte=0"`
	} `yaml:"distractors"`
	Verbose bool `yaml:"verbose"`
}

// Load reads YAML config from path, applies env overrides and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv keeps secrets out of the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Generation.OpenAI.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.Images.APIKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.URL = v
	}
}

var validate = validator.New()

// Validate checks field constraints and the cross-field storage rules.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch cfg.StorageDriver() {
	case "postgres":
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("invalid config: storage driver postgres needs postgres.url")
		}
	case "sqlite":
		if cfg.SQLite.Path == "" {
			return fmt.Errorf("invalid config: storage driver sqlite needs sqlite.path")
		}
	}
	if cfg.Generation.Driver == "openai" && cfg.Generation.OpenAI.APIKey == "" {
		return fmt.Errorf("invalid config: generation driver openai needs OPENAI_API_KEY")
	}
	return nil
}

// StorageDriver resolves the storage backend: the explicit driver, else
// postgres when a URL is set, else memory.
func (c Config) StorageDriver() string {
	if c.Storage.Driver != "" {
		return c.Storage.Driver
	}
	if c.Postgres.URL != "" {
		return "postgres"
	}
	return "memory"
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
