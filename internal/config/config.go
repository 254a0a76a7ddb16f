package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is read from the environment, with an optional YAML file
// (CONFIG_FILE, default config.yaml) underneath. Environment always wins.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Scraper  ScraperConfig  `yaml:"scraper"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Run      RunConfig      `yaml:"run"`
	Matching MatchingConfig `yaml:"matching"`
	Events   EventsConfig   `yaml:"events"`
	Cache    CacheConfig    `yaml:"cache"`
}

type AppConfig struct {
	AppName       string `yaml:"name" env:"APP_NAME" env-default:"skill-sync-engine"`
	Environment   string `yaml:"env" env:"APP_ENV" env-default:"development"`
	HTTPPort      string `yaml:"http_port" env:"HTTP_PORT" env-default:"8080"`
	LogLevel      string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	InternalToken string `yaml:"-" env:"INTERNAL_TOKEN"`
	SeedDefaults  bool   `yaml:"seed_defaults" env:"SEED_DEFAULTS" env-default:"true"`
}

type DatabaseConfig struct {
	DBHost     string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	DBPort     string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	DBName     string `yaml:"name" env:"DB_NAME" env-default:"skill_sync"`
	DBUser     string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	DBPassword string `yaml:"-" env:"DB_PASSWORD"`
	DBSSLMode  string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`

	ConnectTimeout    time.Duration `yaml:"connect_timeout" env:"DB_CONNECT_TIMEOUT" env-default:"5s"`
	PoolMaxConns      int32         `yaml:"pool_max_conns" env:"DB_POOL_MAX_CONNS" env-default:"20"`
	PoolMinConns      int32         `yaml:"pool_min_conns" env:"DB_POOL_MIN_CONNS" env-default:"2"`
	PoolMaxConnLife   time.Duration `yaml:"pool_max_conn_lifetime" env:"DB_POOL_MAX_CONN_LIFETIME" env-default:"1h"`
	PoolMaxConnIdle   time.Duration `yaml:"pool_max_conn_idle" env:"DB_POOL_MAX_CONN_IDLE" env-default:"30m"`
	HealthCheckPeriod time.Duration `yaml:"health_check_period" env:"DB_HEALTH_CHECK_PERIOD" env-default:"1m"`
}

type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type ScraperConfig struct {
	BaseURL        string        `yaml:"base_url" env:"SCRAPER_BASE_URL" env-default:"http://localhost:8000"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SCRAPER_REQUEST_TIMEOUT" env-default:"90s"`
	MaxAttempts    uint64        `yaml:"max_attempts" env:"SCRAPER_MAX_ATTEMPTS" env-default:"3"`
}

type IngestConfig struct {
	WorkersPerSource    int    `yaml:"workers_per_source" env:"INGEST_WORKERS_PER_SOURCE" env-default:"4"`
	MaxResultsPerSource int    `yaml:"max_results_per_source" env:"MAX_RESULTS_PER_SOURCE" env-default:"50"`
	MaxConflictRetries  uint64 `yaml:"max_conflict_retries" env:"INGEST_MAX_CONFLICT_RETRIES" env-default:"5"`
	// RatePerSource caps posting writes per second for one run. 0 disables it.
	RatePerSource        int    `yaml:"rate_per_source" env:"INGEST_RATE_PER_SOURCE" env-default:"0"`
	DefaultSourcesString string `yaml:"default_sources" env:"INGEST_DEFAULT_SOURCES" env-default:"indeed,linkedin,glassdoor,google,glints"`
}

// DefaultSources splits the comma separated source list.
func (c IngestConfig) DefaultSources() []string {
	var out []string
	for _, s := range strings.Split(c.DefaultSourcesString, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

type RunConfig struct {
	Timeout       time.Duration `yaml:"timeout" env:"RUN_TIMEOUT" env-default:"120s"`
	SlowThreshold time.Duration `yaml:"slow_threshold" env:"RUN_SLOW_THRESHOLD" env-default:"60s"`
	ReaperSpec    string        `yaml:"reaper_spec" env:"RUN_REAPER_SPEC" env-default:"@every 1m"`
}

type MatchingConfig struct {
	Workers          int     `yaml:"workers" env:"MATCHING_WORKERS" env-default:"8"`
	DefaultWeight    float64 `yaml:"default_weight" env:"MATCHING_DEFAULT_WEIGHT" env-default:"3"`
	LevelShare       float64 `yaml:"level_share" env:"MATCHING_LEVEL_SHARE" env-default:"0.7"`
	YearsShare       float64 `yaml:"years_share" env:"MATCHING_YEARS_SHARE" env-default:"0.3"`
	RecomputeAllSpec string  `yaml:"recompute_all_spec" env:"RECOMPUTE_ALL_SPEC" env-default:""`
	FanOutPageSize   int     `yaml:"fan_out_page_size" env:"MATCHING_FAN_OUT_PAGE_SIZE" env-default:"500"`
}

type EventsConfig struct {
	Stream    string        `yaml:"stream" env:"EVENTS_STREAM" env-default:"skillsync:events"`
	Group     string        `yaml:"group" env:"EVENTS_GROUP" env-default:"matching"`
	Consumer  string        `yaml:"consumer" env:"EVENTS_CONSUMER"`
	MaxLen    int64         `yaml:"max_len" env:"EVENTS_MAX_LEN" env-default:"100000"`
	Block     time.Duration `yaml:"block" env:"EVENTS_BLOCK" env-default:"5s"`
	ClaimIdle time.Duration `yaml:"claim_idle" env:"EVENTS_CLAIM_IDLE" env-default:"2m"`
}

type CacheConfig struct {
	RankedTTL time.Duration `yaml:"ranked_ttl" env:"CACHE_RANKED_TTL" env-default:"5m"`
}

var errInvalidConfig = errors.New("invalid configuration")

// Load reads the optional YAML file and then the environment.
func Load() (Config, error) {
	var cfg Config

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "config.yaml"
	}

	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if cfg.Events.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Events.Consumer = "matching-" + host
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var problems []string
	if c.Run.Timeout <= 0 {
		problems = append(problems, "RUN_TIMEOUT must be positive")
	}
	if c.Ingest.WorkersPerSource <= 0 {
		problems = append(problems, "INGEST_WORKERS_PER_SOURCE must be positive")
	}
	if c.Ingest.RatePerSource < 0 {
		problems = append(problems, "INGEST_RATE_PER_SOURCE must not be negative")
	}
	if c.Matching.Workers <= 0 {
		problems = append(problems, "MATCHING_WORKERS must be positive")
	}
	if c.Matching.DefaultWeight < 1 || c.Matching.DefaultWeight > 5 {
		problems = append(problems, "MATCHING_DEFAULT_WEIGHT must be within [1,5]")
	}
	if c.Matching.LevelShare < 0 || c.Matching.YearsShare < 0 || c.Matching.LevelShare+c.Matching.YearsShare == 0 {
		problems = append(problems, "MATCHING_LEVEL_SHARE and MATCHING_YEARS_SHARE must be non-negative and not both zero")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
