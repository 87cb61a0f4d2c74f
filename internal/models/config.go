package models

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

const (
	IDFormatUUID    = "uuid"
	IDFormatShortID = "shortid"
)

// DefaultThumbnailWidths is the ThumbnailSet used when the config names none.
var DefaultThumbnailWidths = []int{32, 64, 128, 256, 512, 1024}

type Config struct {
	AppEnv          string `yaml:"app_env"`
	ServerAddr      string `yaml:"server_addr"`
	StoragePath     string `yaml:"storage_path"`
	QueueCapacity   int    `yaml:"queue_capacity"`
	Workers         int    `yaml:"workers"`
	ThumbnailWidths []int  `yaml:"thumbnail_widths"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes"`
	IDFormat        string `yaml:"id_format"`
	DatabaseURL     string `yaml:"database_url"`
	KafkaBroker     string `yaml:"kafka_broker"`
	KafkaTopic      string `yaml:"kafka_topic"`
}

// DefaultConfig returns a config that serves uploads from ./uploads with a
// single worker and a queue of 100 jobs.
func DefaultConfig() *Config {
	return &Config{
		AppEnv:          "production",
		ServerAddr:      ":8080",
		StoragePath:     "uploads",
		QueueCapacity:   100,
		Workers:         1,
		ThumbnailWidths: append([]int(nil), DefaultThumbnailWidths...),
		JPEGQuality:     90,
		MaxUploadBytes:  32 << 20,
		IDFormat:        IDFormatUUID,
		KafkaTopic:      "thumbnail-jobs",
	}
}

// LoadConfig reads the yaml file at path (skipped when path is empty), fills
// unset keys with defaults and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	const op = "models.LoadConfig"

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		// keys absent from the file keep their defaults
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	for key, dst := range map[string]*string{
		"APP_ENV":      &c.AppEnv,
		"SERVER_ADDR":  &c.ServerAddr,
		"STORAGE_PATH": &c.StoragePath,
		"DATABASE_URL": &c.DatabaseURL,
		"KAFKA_BROKER": &c.KafkaBroker,
		"KAFKA_TOPIC":  &c.KafkaTopic,
	} {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WORKERS: %w", err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks the invariants the pipeline relies on.
func (c *Config) Validate() error {
	if c.StoragePath == "" {
		return errors.New("storage_path is required")
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must be >= 0, got %d", c.QueueCapacity)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if len(c.ThumbnailWidths) == 0 {
		return errors.New("thumbnail_widths must not be empty")
	}
	seen := make(map[int]bool, len(c.ThumbnailWidths))
	for _, w := range c.ThumbnailWidths {
		if w <= 0 {
			return fmt.Errorf("thumbnail width must be positive, got %d", w)
		}
		if seen[w] {
			return fmt.Errorf("duplicate thumbnail width %d", w)
		}
		seen[w] = true
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be in 1..100, got %d", c.JPEGQuality)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes)
	}
	if c.IDFormat != IDFormatUUID && c.IDFormat != IDFormatShortID {
		return fmt.Errorf("unknown id_format %q", c.IDFormat)
	}
	return nil
}
