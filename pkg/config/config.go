package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Paystack  PaystackConfig
	Webhook   WebhookConfig
	AdminJWT  AdminJWTConfig
	RateLimit RateLimitConfig
	Features  FeatureFlagsConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	Outbox    OutboxConfig
	Jobs      JobsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Paystack.AmountMinor(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BIOSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"BIOSHOP_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"BIOSHOP_APP_PUBLIC_URL"`
	LogLevel     string `envconfig:"BIOSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BIOSHOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"BIOSHOP_DB_DSN"`

	LegacyHost     string `envconfig:"BIOSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"BIOSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BIOSHOP_DB_USER"`
	LegacyPassword string `envconfig:"BIOSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"BIOSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"BIOSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BIOSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BIOSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BIOSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BIOSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"BIOSHOP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BIOSHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BIOSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"BIOSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"BIOSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BIOSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BIOSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BIOSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BIOSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BIOSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// PaystackConfig holds the provider credentials and the single plan sold by the paywall.
// SecretKey is intentionally optional at boot: a missing key fails the request, not the process.
type PaystackConfig struct {
	SecretKey string        `envconfig:"BIOSHOP_PAYSTACK_SECRET_KEY"`
	BaseURL   string        `envconfig:"BIOSHOP_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	PlanCode  string        `envconfig:"BIOSHOP_PAYSTACK_PLAN_CODE" default:"PLN_kdq1b5mhyl6bnrb"`
	PlanPrice string        `envconfig:"BIOSHOP_PAYSTACK_PLAN_PRICE" default:"2000"`
	Currency  string        `envconfig:"BIOSHOP_PAYSTACK_CURRENCY" default:"NGN"`
	Timeout   time.Duration `envconfig:"BIOSHOP_PAYSTACK_TIMEOUT" default:"15s"`
}

// AmountMinor converts the configured major-unit plan price into the provider's
// minor currency unit (kobo for NGN).
func (p PaystackConfig) AmountMinor() (int64, error) {
	raw := strings.TrimSpace(p.PlanPrice)
	if raw == "" {
		return 0, fmt.Errorf("%s is required", EnvPaystackPlanPrice)
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", EnvPaystackPlanPrice, err)
	}
	if !price.IsPositive() {
		return 0, fmt.Errorf("%s must be positive", EnvPaystackPlanPrice)
	}
	minor := price.Shift(2)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%s has more than two decimal places", EnvPaystackPlanPrice)
	}
	return minor.IntPart(), nil
}

type WebhookConfig struct {
	ReplayTTL   time.Duration `envconfig:"BIOSHOP_WEBHOOK_REPLAY_TTL" default:"72h"`
	MaxBodySize int64         `envconfig:"BIOSHOP_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
}

type AdminJWTConfig struct {
	Secret string `envconfig:"BIOSHOP_ADMIN_JWT_SECRET"`
	Issuer string `envconfig:"BIOSHOP_ADMIN_JWT_ISSUER" default:"bioshop"`
}

type RateLimitConfig struct {
	InitWindow     time.Duration `envconfig:"BIOSHOP_INIT_RATE_LIMIT_WINDOW" default:"1m"`
	InitLimit      int           `envconfig:"BIOSHOP_INIT_RATE_LIMIT" default:"10"`
	TrustedProxies int           `envconfig:"BIOSHOP_RATE_LIMIT_TRUSTED_PROXIES" default:"1"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BIOSHOP_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BIOSHOP_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	SubscriptionTopic string `envconfig:"BIOSHOP_PUBSUB_SUBSCRIPTION_TOPIC" default:"bioshop-subscription-events"`
	// OrderedDelivery keys messages by aggregate so one subscription's
	// status changes arrive in commit order.
	OrderedDelivery bool `envconfig:"BIOSHOP_PUBSUB_ORDERED_DELIVERY" default:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BIOSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BIOSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BIOSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// JobsConfig drives the maintenance worker.
type JobsConfig struct {
	Interval              time.Duration `envconfig:"BIOSHOP_JOBS_INTERVAL" default:"24h"`
	LockTTL               time.Duration `envconfig:"BIOSHOP_JOBS_LOCK_TTL" default:"1h"`
	OutboxRetention       time.Duration `envconfig:"BIOSHOP_OUTBOX_RETENTION" default:"720h"`
	WebhookAuditRetention time.Duration `envconfig:"BIOSHOP_WEBHOOK_AUDIT_RETENTION" default:"2160h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
