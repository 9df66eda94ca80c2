// Package config loads tasksync settings from defaults, an optional YAML
// file and TASKSYNC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/custodia-labs/tasksync/internal/core/domain"
)

// EnvPrefix prefixes every environment variable, e.g. TASKSYNC_STORE_BACKEND.
const EnvPrefix = "TASKSYNC"

// Store backends.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Lock backends.
const (
	LockMemory   = "memory"
	LockRedis    = "redis"
	LockPostgres = "postgres"
)

// Config is the complete runtime configuration.
type Config struct {
	// PollingInterval is the auto-sync cadence in seconds.
	PollingInterval int           `mapstructure:"polling_interval"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
	FetchRetryDelay time.Duration `mapstructure:"fetch_retry_delay"`
	StoreTimeout    time.Duration `mapstructure:"store_timeout"`
	Direction       string        `mapstructure:"direction"`
	FieldMap        []string      `mapstructure:"fieldmap"`

	Service1 Service `mapstructure:"service1"`
	Service2 Service `mapstructure:"service2"`

	Store StoreConfig `mapstructure:"store"`
	Lock  LockConfig  `mapstructure:"lock"`
	HTTP  HTTPConfig  `mapstructure:"http"`
	Log   LogConfig   `mapstructure:"log"`
}

// Service configures one remote service.
type Service struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`

	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`

	// Zendesk
	Username string `mapstructure:"username"`
	AgentURL string `mapstructure:"agent_url"`

	// Asana
	Workspace string   `mapstructure:"workspace"`
	Projects  []string `mapstructure:"projects"`

	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// StoreConfig selects the document database.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresURL string `mapstructure:"postgres_url"`
	RedisURL    string `mapstructure:"redis_url"`
}

// LockConfig selects the distributed lock.
type LockConfig struct {
	Backend string `mapstructure:"backend"`
}

// HTTPConfig configures the operator API.
type HTTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LogConfig configures console and file logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
	// File receives warnings and errors as JSON. Empty disables it.
	File string `mapstructure:"file"`
}

// Poll returns the polling interval as a duration.
func (c *Config) Poll() time.Duration {
	return time.Duration(c.PollingInterval) * time.Second
}

// defaults registers every key. Keys unknown to viper are invisible to
// AutomaticEnv during Unmarshal, so even empty values are listed.
func defaults(v *viper.Viper) {
	v.SetDefault("polling_interval", 300)
	v.SetDefault("lock_ttl", 60*time.Second)
	v.SetDefault("fetch_retry_delay", 3*time.Second)
	v.SetDefault("store_timeout", 5*time.Second)
	v.SetDefault("direction", string(domain.DirectionService1To2))
	v.SetDefault("fieldmap", slices.Clone(domain.DefaultFieldMap))

	for prefix, svc := range map[string][2]string{
		"service1": {"zen", "zendesk"},
		"service2": {"asana", "asana"},
	} {
		v.SetDefault(prefix+".name", svc[0])
		v.SetDefault(prefix+".kind", svc[1])
		v.SetDefault(prefix+".base_url", "")
		v.SetDefault(prefix+".token", "")
		v.SetDefault(prefix+".username", "")
		v.SetDefault(prefix+".agent_url", "")
		v.SetDefault(prefix+".workspace", "")
		v.SetDefault(prefix+".projects", []string{})
		v.SetDefault(prefix+".max_retries", 3)
		v.SetDefault(prefix+".retry_backoff", time.Second)
	}

	v.SetDefault("store.backend", StoreSQLite)
	v.SetDefault("store.sqlite_path", "tasksync.db")
	v.SetDefault("store.postgres_url", "")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("lock.backend", LockMemory)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8787)
	v.SetDefault("http.jwt_secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "tasksync.log")
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that every required value is present and consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.PollingInterval <= 0 {
		errs = append(errs, errors.New("polling_interval must be positive"))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("lock_ttl must be positive"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store_timeout must be positive"))
	}
	if _, err := domain.ParseDirection(c.Direction); err != nil {
		errs = append(errs, err)
	}
	if len(c.FieldMap) == 0 {
		errs = append(errs, errors.New("fieldmap must not be empty"))
	}

	errs = append(errs, c.Service1.validate("service1"), c.Service2.validate("service2"))
	if c.Service1.Name != "" && c.Service1.Name == c.Service2.Name {
		errs = append(errs, fmt.Errorf("service1 and service2 share the name %q", c.Service1.Name))
	}

	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case StorePostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("store.postgres_url is required for the postgres backend"))
		}
	case StoreRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("store.redis_url is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	switch c.Lock.Backend {
	case LockMemory:
	case LockRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, errors.New("lock.backend redis needs store.redis_url"))
		}
	case LockPostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("lock.backend postgres needs store.postgres_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func (s Service) validate(key string) error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, fmt.Errorf("%s.name is required", key))
	}
	if s.Token == "" {
		errs = append(errs, fmt.Errorf("%s.token is required", key))
	}
	switch s.Kind {
	case "zendesk":
		if s.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for zendesk", key))
		}
		if s.Username == "" {
			errs = append(errs, fmt.Errorf("%s.username is required for zendesk", key))
		}
	case "asana":
		if s.Workspace == "" {
			errs = append(errs, fmt.Errorf("%s.workspace is required for asana", key))
		}
		if len(s.Projects) == 0 {
			errs = append(errs, fmt.Errorf("%s.projects needs at least one project", key))
		}
	default:
		errs = append(errs, fmt.Errorf("%s.kind %q is not supported", key, s.Kind))
	}
	return errors.Join(errs...)
}
