package main

import (
	"fmt"
	"os"
	"time"

	"judgegate/internal/common/cache"
	"judgegate/internal/common/db"
	commonmw "judgegate/internal/common/http/middleware"
	"judgegate/internal/common/mq"
	"judgegate/internal/common/storage"
	"judgegate/internal/run/artifact"
	"judgegate/internal/run/grader"
	"judgegate/internal/run/service"
	"judgegate/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8088"
	defaultMetricsPath     = "/metrics"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string              `yaml:"addr"`
	MetricsPath  string              `yaml:"metricsPath"`
	ReadTimeout  time.Duration       `yaml:"readTimeout"`
	WriteTimeout time.Duration       `yaml:"writeTimeout"`
	IdleTimeout  time.Duration       `yaml:"idleTimeout"`
	CORS         commonmw.CORSConfig `yaml:"cors"`
}

// AuthConfig holds access token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
	Issuer    string `yaml:"issuer"`
}

// RunConfig holds run policy settings.
type RunConfig struct {
	Lockdown             bool          `yaml:"lockdown"`
	DefaultSubmissionGap time.Duration `yaml:"defaultSubmissionGap"`
	SupportedLanguages   []string      `yaml:"supportedLanguages"`
	MaxSourceBytes       int           `yaml:"maxSourceBytes"`
	SourceBucket         string        `yaml:"sourceBucket"`
	DiffSizeCeiling      int64         `yaml:"diffSizeCeiling"`
	DetailsCacheTTL      time.Duration `yaml:"detailsCacheTTL"`
	ProblemCacheTTL      time.Duration `yaml:"problemCacheTTL"`
	ProblemEmptyTTL      time.Duration `yaml:"problemEmptyTTL"`
	CountsDays           int           `yaml:"countsDays"`
	CountsTTL            time.Duration `yaml:"countsTTL"`
	AggregatePrefix      string        `yaml:"aggregatePrefix"`
	Timeouts             TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig holds timeouts for external calls.
type TimeoutConfig struct {
	DB    time.Duration `yaml:"db"`
	Cache time.Duration `yaml:"cache"`
}

func (c TimeoutConfig) service() service.TimeoutConfig {
	return service.TimeoutConfig{DB: c.DB, Cache: c.Cache}
}

// AppConfig holds run-service configuration.
type AppConfig struct {
	Server   ServerConfig             `yaml:"server"`
	Logger   logger.Config            `yaml:"logger"`
	Auth     AuthConfig               `yaml:"auth"`
	Database db.MySQLConfig           `yaml:"database"`
	Redis    cache.RedisConfig        `yaml:"redis"`
	Kafka    mq.KafkaConfig           `yaml:"kafka"`
	MinIO    storage.MinIOConfig      `yaml:"minio"`
	Grader   grader.Config            `yaml:"grader"`
	Archive  artifact.ResolverConfig  `yaml:"archive"`
	Cases    artifact.CaseStoreConfig `yaml:"cases"`
	Run      RunConfig                `yaml:"run"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = defaultMetricsPath
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}

	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth jwtSecret is required")
	}

	if cfg.Run.DefaultSubmissionGap == 0 {
		cfg.Run.DefaultSubmissionGap = 60 * time.Second
	}
	if cfg.Run.MaxSourceBytes == 0 {
		cfg.Run.MaxSourceBytes = 100 * 1024
	}
	if cfg.Run.SourceBucket == "" {
		cfg.Run.SourceBucket = "submissions"
	}
	if cfg.Run.ProblemCacheTTL == 0 {
		cfg.Run.ProblemCacheTTL = 10 * time.Minute
	}
	if cfg.Run.ProblemEmptyTTL == 0 {
		cfg.Run.ProblemEmptyTTL = time.Minute
	}
	if cfg.Run.AggregatePrefix == "" {
		cfg.Run.AggregatePrefix = "run:aggregate:"
	}
	if cfg.Run.Timeouts.DB == 0 {
		cfg.Run.Timeouts.DB = 3 * time.Second
	}
	if cfg.Run.Timeouts.Cache == 0 {
		cfg.Run.Timeouts.Cache = time.Second
	}

	if cfg.Grader.ResultsBucket == "" {
		cfg.Grader.ResultsBucket = "grader-results"
	}
	if cfg.Cases.Bucket == "" {
		cfg.Cases.Bucket = "problems"
	}
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
}
