package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// Create new config instance with the documented defaults applied.
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 5000,
		},
		Upload: UploadConfig{
			MaxRequestBodyMB:     1024,
			MaxMultipartMemoryMB: 32,
		},
		Convert: ConvertConfig{
			FreeLimit:        3,
			MaxConcurrent:    4,
			AcquireTimeout:   600,
			DefaultQuality:   72,
			MaxWidthCeiling:  12000,
			QuotaStore:       "memory",
			PNGOpaqueQuality: 90,
		},
		Auth: AuthConfig{
			JWTExpires: 24,
		},
		Billing: BillingConfig{
			PlanDays: 30,
		},
	}
}

// Load configuration file in json format.
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// ApplyEnv overrides secrets and tuning knobs from the environment so
// deployments do not have to keep them in the config file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("BMC_WEBHOOK_SECRET"); v != "" {
		c.Billing.BMCWebhookSecret = v
	}
	if v, ok := envInt("FREE_LIMIT"); ok {
		c.Convert.FreeLimit = v
	}
	if v, ok := envInt("MAX_CONCURRENT_CONVERSIONS"); ok {
		c.Convert.MaxConcurrent = v
	}
	if v, ok := envInt("JWT_EXPIRES_HOURS"); ok {
		c.Auth.JWTExpires = time.Duration(v)
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		c.Sentry.SentryDSN = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
