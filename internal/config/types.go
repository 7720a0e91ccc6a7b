package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server   ServerConfig  `json:"server"`
	Upload   UploadConfig  `json:"upload"`
	Convert  ConvertConfig `json:"convert"`
	Auth     AuthConfig    `json:"auth"`
	Billing  BillingConfig `json:"billing"`
	Database Database      `json:"database"`
	Redis    RedisConfig   `json:"redis"`
	Archive  ArchiveConfig `json:"archive"`
	Sentry   SentryConfig  `json:"sentry"`
}

type ServerConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type UploadConfig struct {
	MaxRequestBodyMB     int64 `json:"max_request_body"`
	MaxMultipartMemoryMB int64 `json:"max_multipart_memory"`
}

// ConvertConfig holds the admission and quota knobs for the conversion engine.
type ConvertConfig struct {
	FreeLimit        int           `json:"free_limit"`         // conversions before membership is required
	MaxConcurrent    int           `json:"max_concurrent"`     // admission gate capacity
	AcquireTimeout   time.Duration `json:"acquire_timeout"`    // seconds to wait for a slot
	DefaultQuality   int           `json:"default_quality"`    // lossy quality when the client sends none
	MaxWidthCeiling  int           `json:"max_width_ceiling"`  // upper clamp for client max_width
	QuotaStore       string        `json:"quota_store"`        // "memory" (default) or "redis"
	PNGOpaqueQuality int           `json:"png_opaque_quality"` // encoder hint for opaque PNG sources
}

type AuthConfig struct {
	JWTSecret  string        `json:"jwt_secret"`
	JWTExpires time.Duration `json:"jwt_expires"` // hours
}

type BillingConfig struct {
	BMCWebhookSecret string `json:"bmc_webhook_secret"`
	PlanDays         int    `json:"plan_days"`
}

type Database struct {
	DSN string `json:"dsn"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	DialTimeout         time.Duration `json:"dial_timeout"`
	ReadTimeout         time.Duration `json:"read_timeout"`
	WriteTimeout        time.Duration `json:"write_timeout"`
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type ArchiveConfig struct {
	Enabled     bool   `json:"enabled"`
	AccountID   string `json:"account_id"`
	BucketName  string `json:"bucket_name"`
	AccessKeyID string `json:"access_key_id"`
	SecretKey   string `json:"secret_key"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
