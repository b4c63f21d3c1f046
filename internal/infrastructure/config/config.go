package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the root configuration structure for the Gray Logic Historian.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	Filedata   FiledataConfig   `yaml:"filedata"`
	Background BackgroundConfig `yaml:"background"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Retention  RetentionConfig  `yaml:"retention"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Security   SecurityConfig   `yaml:"security"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains backing store settings.
type DatabaseConfig struct {
	// Driver selects the backing store: "sqlite3" (default) or "postgres".
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Ignored for postgres.
	Path string `yaml:"path"`

	// DSN is the postgres connection string. Ignored for sqlite3.
	DSN string `yaml:"dsn"`

	WALMode     bool `yaml:"wal_mode"`
	BusyTimeout int  `yaml:"busy_timeout"`
}

// StoreConfig tunes the point value store.
type StoreConfig struct {
	WriteBehind WriteBehindConfig `yaml:"write_behind"`
	Retry       RetryConfig       `yaml:"retry"`
	Delete      DeleteConfig      `yaml:"delete"`

	// MaxUnsaved caps the in-memory buffer of values that failed synchronous
	// insertion. The oldest entry is dropped when the cap is reached.
	MaxUnsaved int `yaml:"max_unsaved"`
}

// WriteBehindConfig contains asynchronous batch insert settings.
type WriteBehindConfig struct {
	MaxInstances   int `yaml:"max_instances"`
	SpawnThreshold int `yaml:"spawn_threshold"`

	// MaxRows overrides the backend's rows-per-insert limit when positive.
	MaxRows int `yaml:"max_rows"`
}

// RetryConfig contains transient-conflict retry settings.
type RetryConfig struct {
	SyncAttempts   int `yaml:"sync_attempts"`
	ReadAttempts   int `yaml:"read_attempts"`
	BatchAttempts  int `yaml:"batch_attempts"`
	BatchBackoffMS int `yaml:"batch_backoff_ms"`
}

// DeleteConfig contains chunked delete settings.
type DeleteConfig struct {
	ChunkSize         int `yaml:"chunk_size"`
	OrphanChunkWaitMS int `yaml:"orphan_chunk_wait_ms"`
	OrphanMaxRows     int `yaml:"orphan_max_rows"`
}

// FiledataConfig contains the image blob directory.
type FiledataConfig struct {
	Path string `yaml:"path"`
}

// BackgroundConfig contains background task executor settings.
type BackgroundConfig struct {
	MaxTasks int `yaml:"max_tasks"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Ingest    MQTTIngestConfig    `yaml:"ingest"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTIngestConfig controls point value ingestion over MQTT.
type MQTTIngestConfig struct {
	Enabled     bool   `yaml:"enabled"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// InfluxDBConfig contains InfluxDB connection settings.
// When enabled, persisted point values are mirrored to InfluxDB.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RetentionConfig contains point value purge settings.
type RetentionConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	MaxAge        time.Duration `yaml:"max_age"`
	OrphanCleanup bool          `yaml:"orphan_cleanup"`
}

// APIConfig contains the HTTP query API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains live point value feed settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings.
// An empty Secret leaves the API unauthenticated (development only).
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// MetricsConfig contains Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HISTORIAN_SECTION_KEY
// For example: HISTORIAN_DATABASE_PATH, HISTORIAN_DATABASE_DSN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/historian.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Store: StoreConfig{
			WriteBehind: WriteBehindConfig{
				MaxInstances:   5,
				SpawnThreshold: 10000,
			},
			Retry: RetryConfig{
				SyncAttempts:   5,
				ReadAttempts:   5,
				BatchAttempts:  10,
				BatchBackoffMS: 100,
			},
			Delete: DeleteConfig{
				ChunkSize:         1000,
				OrphanChunkWaitMS: 5000,
				OrphanMaxRows:     100000,
			},
			MaxUnsaved: 10000,
		},
		Filedata: FiledataConfig{
			Path: "./data/filedata",
		},
		Background: BackgroundConfig{
			MaxTasks: 16,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-historian",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Ingest: MQTTIngestConfig{
				Enabled:     true,
				TopicPrefix: "graylogic/historian",
			},
		},
		Retention: RetentionConfig{
			Interval:      time.Hour,
			MaxAge:        365 * 24 * time.Hour,
			OrphanCleanup: true,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  120,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HISTORIAN_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HISTORIAN_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("HISTORIAN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("HISTORIAN_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// Filedata
	if v := os.Getenv("HISTORIAN_FILEDATA_PATH"); v != "" {
		cfg.Filedata.Path = v
	}

	// MQTT
	if v := os.Getenv("HISTORIAN_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HISTORIAN_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HISTORIAN_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HISTORIAN_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("HISTORIAN_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Store
	if v := os.Getenv("HISTORIAN_STORE_MAX_INSTANCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.WriteBehind.MaxInstances = n
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite3")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (use sqlite3 or postgres)", c.Database.Driver))
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	wb := c.Store.WriteBehind
	if wb.MaxInstances < 1 {
		errs = append(errs, "store.write_behind.max_instances must be at least 1")
	}
	if wb.SpawnThreshold < 1 {
		errs = append(errs, "store.write_behind.spawn_threshold must be at least 1")
	}
	if wb.MaxRows < 0 {
		errs = append(errs, "store.write_behind.max_rows must not be negative")
	}

	r := c.Store.Retry
	if r.SyncAttempts < 1 || r.ReadAttempts < 1 || r.BatchAttempts < 1 {
		errs = append(errs, "store.retry attempts must be at least 1")
	}
	if r.BatchBackoffMS < 0 {
		errs = append(errs, "store.retry.batch_backoff_ms must not be negative")
	}

	if c.Store.Delete.ChunkSize < 1 {
		errs = append(errs, "store.delete.chunk_size must be at least 1")
	}

	if c.Filedata.Path == "" {
		errs = append(errs, "filedata.path is required")
	}

	if c.Background.MaxTasks < 1 {
		errs = append(errs, "background.max_tasks must be at least 1")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Ingest.Enabled && c.MQTT.Ingest.TopicPrefix == "" {
		errs = append(errs, "mqtt.ingest.topic_prefix is required when ingest is enabled")
	}

	if c.Retention.Enabled {
		if c.Retention.Interval <= 0 {
			errs = append(errs, "retention.interval must be positive")
		}
		if c.Retention.MaxAge <= 0 {
			errs = append(errs, "retention.max_age must be positive")
		}
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
			errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when TLS is enabled")
		}
		if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
			errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be at least 1")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// BatchBackoff returns the per-attempt backoff step for batch flush retries.
func (c *Config) BatchBackoff() time.Duration {
	return time.Duration(c.Store.Retry.BatchBackoffMS) * time.Millisecond
}

// OrphanChunkWait returns the pause between orphan delete chunks.
func (c *Config) OrphanChunkWait() time.Duration {
	return time.Duration(c.Store.Delete.OrphanChunkWaitMS) * time.Millisecond
}
