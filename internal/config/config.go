// Package config provides configuration loading and validation for stowage.
// Supports YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"stowage/internal/blob"
	"stowage/internal/core"
	"stowage/internal/events"
	"stowage/internal/logging"
)

// Config holds all configuration for the stowage CLI.
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Blob          BlobConfig          `yaml:"blob"`
	Events        EventsConfig        `yaml:"events"`
	Engine        EngineConfig        `yaml:"engine"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlitePath"`
	PostgresDSN string `yaml:"postgresDSN"`
}

type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fsRoot"`
	S3     S3Config `yaml:"s3"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"pathStyle"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
}

// Event sink drivers.
const (
	EventsMemory = "memory"
	EventsLog    = "log"
	EventsNATS   = "nats"
)

type EventsConfig struct {
	Driver  string `yaml:"driver"`
	NATSURL string `yaml:"natsURL"`
	Subject string `yaml:"subject"`
}

type EngineConfig struct {
	WasteZones            []string `yaml:"wasteZones"`
	HighPriorityThreshold int      `yaml:"highPriorityThreshold"`
	PlaceBack             bool     `yaml:"placeBack"`
}

// Metrics backends.
const (
	MetricsPrometheus = "prometheus"
	MetricsExpvar     = "expvar"
)

type ObservabilityConfig struct {
	LogLevel         string `yaml:"logLevel"`
	LogFormat        string `yaml:"logFormat"`
	Metrics          string `yaml:"metrics"`
	MetricsNamespace string `yaml:"metricsNamespace"`
	// MetricsFile, when set, receives a metrics dump after each command:
	// Prometheus text format or the expvar JSON map.
	MetricsFile string `yaml:"metricsFile"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	engine := core.DefaultEngineConfig()
	return &Config{
		Storage: StorageConfig{
			Driver:     string(core.StorageSQLite),
			SQLitePath: "stowage.db",
		},
		Blob: BlobConfig{
			Driver: string(blob.DriverFilesystem),
			FSRoot: "./exports",
			S3:     S3Config{Region: "us-east-1"},
		},
		Events: EventsConfig{
			Driver:  EventsLog,
			Subject: events.DefaultSubject,
		},
		Engine: EngineConfig{
			WasteZones:            engine.WasteZones,
			HighPriorityThreshold: engine.HighPriorityThreshold,
			PlaceBack:             engine.PlaceBack,
		},
		Observability: ObservabilityConfig{
			LogLevel:         "info",
			LogFormat:        logging.FormatConsole,
			Metrics:          MetricsPrometheus,
			MetricsNamespace: "stowage",
		},
	}
}

// Load reads path over the defaults, then applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from STOWAGE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"STOWAGE_STORAGE_DRIVER":     &c.Storage.Driver,
		"STOWAGE_SQLITE_PATH":        &c.Storage.SQLitePath,
		"STOWAGE_POSTGRES_DSN":       &c.Storage.PostgresDSN,
		"STOWAGE_BLOB_DRIVER":        &c.Blob.Driver,
		"STOWAGE_BLOB_FS_ROOT":       &c.Blob.FSRoot,
		"STOWAGE_BLOB_S3_BUCKET":     &c.Blob.S3.Bucket,
		"STOWAGE_BLOB_S3_REGION":     &c.Blob.S3.Region,
		"STOWAGE_BLOB_S3_PREFIX":     &c.Blob.S3.Prefix,
		"STOWAGE_BLOB_S3_ENDPOINT":   &c.Blob.S3.Endpoint,
		"STOWAGE_BLOB_S3_ACCESS_KEY": &c.Blob.S3.AccessKey,
		"STOWAGE_BLOB_S3_SECRET_KEY": &c.Blob.S3.SecretKey,
		"STOWAGE_EVENTS_DRIVER":      &c.Events.Driver,
		"STOWAGE_NATS_URL":           &c.Events.NATSURL,
		"STOWAGE_EVENTS_SUBJECT":     &c.Events.Subject,
		"STOWAGE_LOG_LEVEL":          &c.Observability.LogLevel,
		"STOWAGE_LOG_FORMAT":         &c.Observability.LogFormat,
		"STOWAGE_METRICS":            &c.Observability.Metrics,
		"STOWAGE_METRICS_NAMESPACE":  &c.Observability.MetricsNamespace,
		"STOWAGE_METRICS_FILE":       &c.Observability.MetricsFile,
	}
	for key, field := range str {
		if v, ok := lookup(key); ok {
			*field = v
		}
	}
	if v, ok := lookup("STOWAGE_BLOB_S3_PATH_STYLE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STOWAGE_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.PathStyle = b
	}
	if v, ok := lookup("STOWAGE_PLACE_BACK"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STOWAGE_PLACE_BACK: %w", err)
		}
		c.Engine.PlaceBack = b
	}
	if v, ok := lookup("STOWAGE_HIGH_PRIORITY_THRESHOLD"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("STOWAGE_HIGH_PRIORITY_THRESHOLD: %w", err)
		}
		c.Engine.HighPriorityThreshold = n
	}
	if v, ok := lookup("STOWAGE_WASTE_ZONES"); ok {
		c.Engine.WasteZones = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory:
	case "", core.StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlitePath required for sqlite"))
		}
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgresDSN required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q unknown", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q unknown", c.Blob.Driver))
	}
	switch c.Events.Driver {
	case "", EventsMemory, EventsLog, EventsNATS:
	default:
		errs = append(errs, fmt.Errorf("events.driver %q unknown", c.Events.Driver))
	}
	if c.Engine.HighPriorityThreshold < 1 || c.Engine.HighPriorityThreshold > 100 {
		errs = append(errs, fmt.Errorf("engine.highPriorityThreshold %d outside 1..100", c.Engine.HighPriorityThreshold))
	}
	if _, err := logging.ParseLevel(c.Observability.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("observability.logLevel: %w", err))
	}
	switch c.Observability.LogFormat {
	case "", logging.FormatJSON, logging.FormatConsole:
	default:
		errs = append(errs, fmt.Errorf("observability.logFormat %q unknown", c.Observability.LogFormat))
	}
	switch c.Observability.Metrics {
	case "", MetricsPrometheus, MetricsExpvar:
	default:
		errs = append(errs, fmt.Errorf("observability.metrics %q unknown", c.Observability.Metrics))
	}
	return errors.Join(errs...)
}

// StorageOptions converts the storage section for core.OpenPersistentStore.
func (c *Config) StorageOptions() core.StorageOptions {
	return core.StorageOptions{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
	}
}

// BlobConfig converts the blob section for blob.Open.
func (c *Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(c.Blob.Driver),
		FSRoot: c.Blob.FSRoot,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Prefix:          c.Blob.S3.Prefix,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKey,
			SecretAccessKey: c.Blob.S3.SecretKey,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}

// NATSConfig converts the events section for events.DialNATS.
func (c *Config) NATSConfig() events.NATSConfig {
	return events.NATSConfig{URL: c.Events.NATSURL, Subject: c.Events.Subject, Name: "stowage"}
}

// EngineConfig converts the engine section for core.WithEngineConfig.
func (c *Config) EngineConfig() core.EngineConfig {
	return core.EngineConfig{
		WasteZones:            append([]string(nil), c.Engine.WasteZones...),
		HighPriorityThreshold: c.Engine.HighPriorityThreshold,
		PlaceBack:             c.Engine.PlaceBack,
	}
}

// LoggingConfig converts the observability section for logging.New.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{Level: c.Observability.LogLevel, Format: c.Observability.LogFormat}
}
