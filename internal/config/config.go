// Package config loads service settings from YAML, environment and .env secrets.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"google.golang.org/api/option"
)

// EnvPrefix prefixes environment overrides, e.g. FRAUD_MODEL_THRESHOLD.
const EnvPrefix = "FRAUD"

// Config is the full service configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Model       ModelConfig       `mapstructure:"model"`
	Scoring     ScoringConfig     `mapstructure:"scoring"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Validation  ValidationConfig  `mapstructure:"validation"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
	GCP         GCPConfig         `mapstructure:"gcp"`
}

type ServerConfig struct {
	Addr               string        `mapstructure:"addr"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

type DatabaseConfig struct {
	// URL, when set, is used verbatim instead of the composed one.
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`

	// Secrets, read from the environment or .env only.
	User     string `mapstructure:"-"`
	Password string `mapstructure:"-"`
}

type ModelConfig struct {
	WeightPath  string   `mapstructure:"weight_path"`
	FeatureCols []string `mapstructure:"feature_cols"`
	Threshold   float64  `mapstructure:"threshold"`
}

type ScoringConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type PersistenceConfig struct {
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type ValidationConfig struct {
	AllowNegativeBalances bool `mapstructure:"allow_negative_balances"`
}

type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	RedisDB   int           `mapstructure:"redis_db"`
	TTL       time.Duration `mapstructure:"ttl"`

	RedisPassword string `mapstructure:"-"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type GCPConfig struct {
	Project         string `mapstructure:"project"`
	CredentialsFile string `mapstructure:"credentials_file"`
	BigQueryDataset string `mapstructure:"bigquery_dataset"`
}

// legacyKeys maps the flat keys of older config.yaml files to their sections.
var legacyKeys = map[string]string{
	"db_host":           "database.host",
	"db_port":           "database.port",
	"db_name":           "database.name",
	"model_weight_path": "model.weight_path",
	"feature_cols":      "model.feature_cols",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "frauds")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("model.weight_path", "models/fraud_model.json")
	v.SetDefault("model.feature_cols", []string{})
	v.SetDefault("model.threshold", 0.5)

	v.SetDefault("scoring.workers", runtime.NumCPU())
	v.SetDefault("scoring.queue_size", 256)

	v.SetDefault("persistence.max_attempts", 3)
	v.SetDefault("persistence.initial_backoff", 50*time.Millisecond)
	v.SetDefault("persistence.max_backoff", time.Second)

	v.SetDefault("validation.allow_negative_balances", false)

	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("gcp.project", "")
	v.SetDefault("gcp.credentials_file", "")
	v.SetDefault("gcp.bigquery_dataset", "fraud_audit")
}

// Load reads configuration. path may be empty, in which case config.yaml in
// the working directory is used when present. Secrets come from the
// environment, falling back to envFile when it exists.
func Load(path, envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Flat keys only fill gaps; sectioned keys and env vars take precedence.
	for legacy, key := range legacyKeys {
		if v.InConfig(legacy) {
			v.SetDefault(key, v.Get(legacy))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.loadSecrets(envFile); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSecrets(envFile string) error {
	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read %s: %w", envFile, err)
		}
		if m != nil {
			dotenv = m
		}
	}

	secret := func(name string) string {
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return dotenv[name]
	}

	c.Database.User = secret("DB_USER")
	c.Database.Password = secret("DB_PASSWORD")
	c.Auth.JWTSecret = secret("JWT_SECRET")
	c.Cache.RedisPassword = secret("REDIS_PASSWORD")
	return nil
}

// ClientOptions returns the Google Cloud client options for GCS and BigQuery.
func (g GCPConfig) ClientOptions() []option.ClientOption {
	if g.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(g.CredentialsFile)}
}

// MaxWriteLag bounds how long after its created_at stamp a fraud record can
// still commit: the request deadline plus every persistence backoff.
func (c *Config) MaxWriteLag() time.Duration {
	return c.Server.RequestTimeout + time.Duration(c.Persistence.MaxAttempts)*c.Persistence.MaxBackoff
}

// DatabaseURL returns the Postgres connection URL.
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port)),
		Path:   "/" + c.Database.Name,
	}
	if c.Database.User != "" {
		u.User = url.UserPassword(c.Database.User, c.Database.Password)
	}
	if c.Database.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.Database.SSLMode}}.Encode()
	}
	return u.String()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Model.Threshold < 0 || c.Model.Threshold > 1 {
		errs = append(errs, fmt.Errorf("model.threshold %v must be in [0,1]", c.Model.Threshold))
	}
	if strings.TrimSpace(c.Model.WeightPath) == "" {
		errs = append(errs, errors.New("model.weight_path is required"))
	}
	if c.Scoring.Workers < 1 {
		errs = append(errs, fmt.Errorf("scoring.workers %d must be >= 1", c.Scoring.Workers))
	}
	if c.Scoring.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("scoring.queue_size %d must be >= 1", c.Scoring.QueueSize))
	}
	if c.Database.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("database.max_conns %d must be >= 1", c.Database.MaxConns))
	}
	if c.Persistence.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("persistence.max_attempts %d must be >= 1", c.Persistence.MaxAttempts))
	}
	if c.Persistence.InitialBackoff <= 0 {
		errs = append(errs, errors.New("persistence.initial_backoff must be positive"))
	}
	if c.Persistence.MaxBackoff < c.Persistence.InitialBackoff {
		errs = append(errs, errors.New("persistence.max_backoff must be >= initial_backoff"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
