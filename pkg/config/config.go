package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	MercadoPago  MercadoPagoConfig
	Checkout     CheckoutConfig
	Mail         MailConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	RateLimit    RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLUBE_APP_ENV" required:"true"`
	Port         string `envconfig:"CLUBE_APP_PORT" required:"true"`
	PublicURL    string `envconfig:"CLUBE_APP_PUBLIC_URL" default:"http://localhost:8080"`
	FrontendURL  string `envconfig:"CLUBE_APP_FRONTEND_URL" default:"http://localhost:3000"`
	LogLevel     string `envconfig:"CLUBE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLUBE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLUBE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLUBE_DB_DSN"`
	Driver string `envconfig:"CLUBE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CLUBE_DB_HOST"`
	LegacyPort     int    `envconfig:"CLUBE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLUBE_DB_USER"`
	LegacyPassword string `envconfig:"CLUBE_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLUBE_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLUBE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLUBE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLUBE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLUBE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLUBE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLUBE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CLUBE_REDIS_ADDR"`
	Password     string        `envconfig:"CLUBE_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLUBE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLUBE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLUBE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLUBE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLUBE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLUBE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies tokens issued by the identity service. ExpirationMinutes is only
// used when minting tokens for local tooling and tests.
type JWTConfig struct {
	Secret            string `envconfig:"CLUBE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CLUBE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CLUBE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CLUBE_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL  time.Duration `envconfig:"CLUBE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookIdempotencyTTL time.Duration `envconfig:"CLUBE_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"168h"`
}

// MercadoPagoConfig holds the gateway credentials and the checkout preference defaults.
type MercadoPagoConfig struct {
	AccessToken         string        `envconfig:"CLUBE_MERCADOPAGO_ACCESS_TOKEN" required:"true"`
	WebhookSecret       string        `envconfig:"CLUBE_MERCADOPAGO_WEBHOOK_SECRET"`
	NotificationURL     string        `envconfig:"CLUBE_MERCADOPAGO_NOTIFICATION_URL"`
	StatementDescriptor string        `envconfig:"CLUBE_MERCADOPAGO_STATEMENT_DESCRIPTOR" default:"CLUBE MECANICO"`
	RequestTimeout      time.Duration `envconfig:"CLUBE_MERCADOPAGO_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries          uint64        `envconfig:"CLUBE_MERCADOPAGO_MAX_RETRIES" default:"3"`
	RetryBaseDelay      time.Duration `envconfig:"CLUBE_MERCADOPAGO_RETRY_BASE_DELAY" default:"200ms"`
}

// WebhookURL returns the notification URL sent with every preference.
func (m MercadoPagoConfig) WebhookURL(publicURL string) string {
	if strings.TrimSpace(m.NotificationURL) != "" {
		return m.NotificationURL
	}
	return strings.TrimRight(publicURL, "/") + "/api/v1/webhooks/mercadopago"
}

type CheckoutConfig struct {
	CouponCode     string        `envconfig:"CLUBE_CHECKOUT_COUPON_CODE" default:"BEMVINDO10"`
	CouponPercent  int           `envconfig:"CLUBE_CHECKOUT_COUPON_PERCENT" default:"10"`
	DefaultMethod  string        `envconfig:"CLUBE_CHECKOUT_DEFAULT_METHOD" default:"mercadopago"`
	PixExpiry      time.Duration `envconfig:"CLUBE_CHECKOUT_PIX_EXPIRY" default:"1h"`
	BoletoExpiry   time.Duration `envconfig:"CLUBE_CHECKOUT_BOLETO_EXPIRY" default:"72h"`
	StrictSeats    bool          `envconfig:"CLUBE_CHECKOUT_STRICT_SEATS" default:"false"`
	AdminEmail     string        `envconfig:"CLUBE_CHECKOUT_ADMIN_EMAIL"`
	SuccessPath    string        `envconfig:"CLUBE_CHECKOUT_SUCCESS_PATH" default:"/pagamento/sucesso"`
	FailurePath    string        `envconfig:"CLUBE_CHECKOUT_FAILURE_PATH" default:"/pagamento/falha"`
	PendingPath    string        `envconfig:"CLUBE_CHECKOUT_PENDING_PATH" default:"/pagamento/pendente"`
	NumberAttempts int           `envconfig:"CLUBE_CHECKOUT_ORDER_NUMBER_ATTEMPTS" default:"3"`
}

func (c CheckoutConfig) validate() error {
	if c.CouponPercent < 0 || c.CouponPercent >= 100 {
		return fmt.Errorf("%s must be between 0 and 99", EnvCouponPercent)
	}
	if c.PixExpiry <= 0 || c.BoletoExpiry <= 0 {
		return fmt.Errorf("payment expiry windows must be positive")
	}
	return nil
}

type MailConfig struct {
	Host     string `envconfig:"CLUBE_SMTP_HOST"`
	Port     int    `envconfig:"CLUBE_SMTP_PORT" default:"587"`
	Username string `envconfig:"CLUBE_SMTP_USERNAME"`
	Password string `envconfig:"CLUBE_SMTP_PASSWORD"`
	From     string `envconfig:"CLUBE_SMTP_FROM" default:"no-reply@clubemecanico.com.br"`
	TLS      bool   `envconfig:"CLUBE_SMTP_TLS" default:"true"`
}

// Enabled reports whether an SMTP relay is configured.
func (m MailConfig) Enabled() bool {
	return strings.TrimSpace(m.Host) != ""
}

type GCPConfig struct {
	ProjectID       string `envconfig:"CLUBE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"CLUBE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"CLUBE_PUBSUB_ORDERS_TOPIC" default:"clube-order-events"`
	NotificationTopic        string `envconfig:"CLUBE_PUBSUB_NOTIFICATION_TOPIC" default:"clube-notification-events"`
	NotificationSubscription string `envconfig:"CLUBE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"clube-notification-events-worker"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"CLUBE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"CLUBE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"CLUBE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"CLUBE_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"CLUBE_CRON_INTERVAL" default:"5m"`
	OrphanOrderTTL time.Duration `envconfig:"CLUBE_CRON_ORPHAN_ORDER_TTL" default:"24h"`
	BatchSize      int           `envconfig:"CLUBE_CRON_BATCH_SIZE" default:"200"`
	RetentionEvery time.Duration `envconfig:"CLUBE_CRON_RETENTION_EVERY" default:"1h"`
}

// RateLimitConfig holds the fixed-window throttles for checkout and the public seat lookup.
type RateLimitConfig struct {
	Window          time.Duration `envconfig:"CLUBE_RATE_LIMIT_WINDOW" default:"1m"`
	CheckoutPerUser int           `envconfig:"CLUBE_RATE_LIMIT_CHECKOUT_PER_USER" default:"10"`
	PublicPerIP     int           `envconfig:"CLUBE_RATE_LIMIT_PUBLIC_PER_IP" default:"120"`
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
