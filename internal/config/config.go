package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the harrier pipeline.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	GeoIP      GeoIPConfig      `mapstructure:"geoip"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Evaluator  EvaluatorConfig  `mapstructure:"evaluator"`
	Health     HealthConfig     `mapstructure:"health"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a pgx-compatible connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// StorageConfig selects the enriched-event store backend.
// "postgres" keeps everything in the relational store; "opensearch" routes
// enriched-event append/count through the search index instead.
type StorageConfig struct {
	Backend    string           `mapstructure:"backend"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
}

// OpenSearchConfig holds OpenSearch connection settings.
type OpenSearchConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Insecure bool   `mapstructure:"insecure"`
	Index    string `mapstructure:"index"`
}

// NATSConfig holds work-queue broker settings.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds the threat-intelligence feed settings.
type RedisConfig struct {
	URL             string        `mapstructure:"url"`
	Enabled         bool          `mapstructure:"enabled"`
	ThreatSetKey    string        `mapstructure:"threat_set_key"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

// GeoIPConfig holds the MaxMind database location.
type GeoIPConfig struct {
	DatabasePath string        `mapstructure:"database_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SMTPConfig holds notification transport settings.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// IngestConfig controls the intake boundary and processing shape.
// Mode "sync" runs extraction and enrichment inline with the ingest call;
// "async" publishes raw record IDs to the work queue for worker processes.
type IngestConfig struct {
	Mode  string `mapstructure:"mode"`
	Token string `mapstructure:"token"`
}

// ExtractorConfig controls field extraction.
type ExtractorConfig struct {
	PatternsFile string `mapstructure:"patterns_file"`
}

// EnrichmentConfig controls external lookup behaviour.
type EnrichmentConfig struct {
	DNSTimeout time.Duration `mapstructure:"dns_timeout"`
	ThreatIPs  []string      `mapstructure:"threat_ips"`
}

// EvaluatorConfig controls the rule evaluation schedule.
type EvaluatorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// HealthConfig controls the periodic self-check. No recipients disables it.
type HealthConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Recipients []string      `mapstructure:"recipients"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// Environment variables use the HARRIER_ prefix and override file values.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "harrier")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "harrier")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("storage.backend", "postgres")
	v.SetDefault("storage.opensearch.url", "https://localhost:9200")
	v.SetDefault("storage.opensearch.username", "admin")
	v.SetDefault("storage.opensearch.password", "")
	v.SetDefault("storage.opensearch.insecure", true)
	v.SetDefault("storage.opensearch.index", "harrier-events")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "harrier")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.threat_set_key", "harrier:threat:ips")
	v.SetDefault("redis.refresh_interval", "5m")

	v.SetDefault("geoip.database_path", "/opt/geoip/GeoLite2-City.mmdb")
	v.SetDefault("geoip.timeout", "2s")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "alerts@harrier.local")
	v.SetDefault("smtp.timeout", "10s")

	v.SetDefault("ingest.mode", "sync")
	v.SetDefault("ingest.token", "")

	v.SetDefault("extractor.patterns_file", "")

	v.SetDefault("enrichment.dns_timeout", "2s")

	v.SetDefault("evaluator.interval", "60s")

	v.SetDefault("health.interval", "5m")
	v.SetDefault("health.recipients", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("HARRIER")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
