// Package config loads and validates textdex configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Database, Kafka, Redis, Index, Records, Scheduler, etc.).
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Index     IndexConfig     `yaml:"index"`
	Records   RecordsConfig   `yaml:"records"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DatabaseConfig selects the SQL driver and its connection parameters. The
// postgres driver uses the host/port fields; sqlite uses Path.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	RecordChanges string `yaml:"recordChanges"`
}

// RedisConfig holds Redis connection parameters used by the job token and
// the optional Redis checkpoint backend.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

// IndexConfig controls the postings table, the checkpoint record and the
// batch build.
type IndexConfig struct {
	Table             string        `yaml:"table"`
	StateTable        string        `yaml:"stateTable"`
	StateKey          string        `yaml:"stateKey"`
	CheckpointBackend string        `yaml:"checkpointBackend"`
	BatchSize         int           `yaml:"batchSize"`
	ShingleBatchSize  int           `yaml:"shingleBatchSize"`
	ReadyFuzz         int64         `yaml:"readyFuzz"`
	Version           string        `yaml:"version"`
	TimeBudget        time.Duration `yaml:"timeBudget"`
}

// RecordsConfig lists every location of searchable text in the host store.
type RecordsConfig struct {
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig describes one table contributing text to a record. When
// KeyColumn is set only rows whose key is in Keys are read.
type SourceConfig struct {
	Table      string   `yaml:"table"`
	IDColumn   string   `yaml:"idColumn"`
	TextColumn string   `yaml:"textColumn"`
	KeyColumn  string   `yaml:"keyColumn"`
	Keys       []string `yaml:"keys"`
}

// SchedulerConfig controls how often the batch build is kicked and which
// job token implementation guards it.
type SchedulerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	LockBackend string        `yaml:"lockBackend"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with defaults for local development. The record
// sources mirror a WooCommerce order store.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			Database:        "shop",
			User:            "textdex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "textdex-indexer",
			Topics: KafkaTopics{
				RecordChanges: "record-changes",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			LockTTL:  2 * time.Minute,
		},
		Index: IndexConfig{
			Table:             "textdex_postings",
			StateTable:        "textdex_state",
			StateKey:          "textdex_status",
			CheckpointBackend: "sql",
			BatchSize:         50,
			ShingleBatchSize:  500,
			Version:           "1.0.0",
			TimeBudget:        20 * time.Second,
		},
		Records: RecordsConfig{
			Sources: []SourceConfig{
				{
					Table:      "wp_postmeta",
					IDColumn:   "post_id",
					TextColumn: "meta_value",
					KeyColumn:  "meta_key",
					Keys: []string{
						"_billing_address_index", "_shipping_address_index",
						"_billing_last_name", "_billing_email", "_billing_phone",
					},
				},
				{
					Table:      "wp_wc_orders_meta",
					IDColumn:   "order_id",
					TextColumn: "meta_value",
					KeyColumn:  "meta_key",
					Keys:       []string{"_billing_address_index", "_shipping_address_index"},
				},
				{
					Table:      "wp_woocommerce_order_items",
					IDColumn:   "order_id",
					TextColumn: "order_item_name",
				},
				{
					Table:      "wp_wc_orders",
					IDColumn:   "id",
					TextColumn: "billing_email",
				},
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    time.Minute,
			LockBackend: "local",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var err error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		err = multierror.Append(err, fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver))
	}
	if !identifier.MatchString(c.Index.Table) {
		err = multierror.Append(err, fmt.Errorf("index.table %q is not a valid identifier", c.Index.Table))
	}
	if !identifier.MatchString(c.Index.StateTable) {
		err = multierror.Append(err, fmt.Errorf("index.stateTable %q is not a valid identifier", c.Index.StateTable))
	}
	if c.Index.StateKey == "" {
		err = multierror.Append(err, fmt.Errorf("index.stateKey must not be empty"))
	}
	switch c.Index.CheckpointBackend {
	case "sql", "redis":
	default:
		err = multierror.Append(err, fmt.Errorf("index.checkpointBackend %q must be sql or redis", c.Index.CheckpointBackend))
	}
	if c.Index.BatchSize <= 0 {
		err = multierror.Append(err, fmt.Errorf("index.batchSize must be positive"))
	}
	if c.Index.ShingleBatchSize <= 0 {
		err = multierror.Append(err, fmt.Errorf("index.shingleBatchSize must be positive"))
	}
	if c.Index.ReadyFuzz < 0 {
		err = multierror.Append(err, fmt.Errorf("index.readyFuzz must not be negative"))
	}
	if c.Index.Version == "" {
		err = multierror.Append(err, fmt.Errorf("index.version must not be empty"))
	}
	switch c.Scheduler.LockBackend {
	case "local", "redis":
	default:
		err = multierror.Append(err, fmt.Errorf("scheduler.lockBackend %q must be local or redis", c.Scheduler.LockBackend))
	}
	if (c.Scheduler.LockBackend == "redis" || c.Index.CheckpointBackend == "redis") && !c.Redis.Enabled {
		err = multierror.Append(err, fmt.Errorf("redis must be enabled for redis-backed locks or checkpoints"))
	}
	if len(c.Records.Sources) == 0 {
		err = multierror.Append(err, fmt.Errorf("records.sources must list at least one source"))
	}
	for i, src := range c.Records.Sources {
		for name, ident := range map[string]string{
			"table": src.Table, "idColumn": src.IDColumn, "textColumn": src.TextColumn,
		} {
			if !identifier.MatchString(ident) {
				err = multierror.Append(err, fmt.Errorf("records.sources[%d].%s %q is not a valid identifier", i, name, ident))
			}
		}
		if src.KeyColumn != "" && !identifier.MatchString(src.KeyColumn) {
			err = multierror.Append(err, fmt.Errorf("records.sources[%d].keyColumn %q is not a valid identifier", i, src.KeyColumn))
		}
		if src.KeyColumn != "" && len(src.Keys) == 0 {
			err = multierror.Append(err, fmt.Errorf("records.sources[%d] has keyColumn but no keys", i))
		}
	}
	return err
}

// applyEnvOverrides reads TEXTDEX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TEXTDEX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TEXTDEX_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TEXTDEX_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("TEXTDEX_DATABASE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("TEXTDEX_DATABASE_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("TEXTDEX_DATABASE_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("TEXTDEX_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("TEXTDEX_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TEXTDEX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TEXTDEX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("TEXTDEX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TEXTDEX_INDEX_VERSION"); v != "" {
		cfg.Index.Version = v
	}
	if v := os.Getenv("TEXTDEX_INDEX_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.BatchSize = n
		}
	}
	if v := os.Getenv("TEXTDEX_INDEX_READY_FUZZ"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Index.ReadyFuzz = n
		}
	}
	if v := os.Getenv("TEXTDEX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TEXTDEX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
