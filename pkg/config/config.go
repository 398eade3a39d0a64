package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "hookrelay"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv      = "HOOKRELAY_APP_ENV"
	EnvLogLevel    = "HOOKRELAY_LOG_LEVEL"
	EnvDBDSN       = "HOOKRELAY_DB_DSN"
	EnvDBHost      = "HOOKRELAY_DB_HOST"
	EnvDBUser      = "HOOKRELAY_DB_USER"
	EnvDBName      = "HOOKRELAY_DB_NAME"
	EnvRedisURL    = "HOOKRELAY_REDIS_URL"
	EnvGCPProject  = "HOOKRELAY_GCP_PROJECT_ID"
	EnvEventsSub   = "HOOKRELAY_PUBSUB_EVENTS_SUBSCRIPTION"
	EnvDigestTopic = "HOOKRELAY_PUBSUB_DIGEST_TOPIC"
	EnvBridgeTopic = "HOOKRELAY_PUBSUB_INTEGRATIONS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Delivery     DeliveryConfig
	Aggregation  AggregationConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HOOKRELAY_APP_ENV" required:"true"`
	LogLevel     string `envconfig:"HOOKRELAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HOOKRELAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HOOKRELAY_SERVICE_KIND" default:"delivery-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"HOOKRELAY_DB_DSN"`
	Driver string `envconfig:"HOOKRELAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HOOKRELAY_DB_HOST"`
	LegacyPort     int    `envconfig:"HOOKRELAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HOOKRELAY_DB_USER"`
	LegacyPassword string `envconfig:"HOOKRELAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"HOOKRELAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"HOOKRELAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HOOKRELAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HOOKRELAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HOOKRELAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HOOKRELAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HOOKRELAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HOOKRELAY_REDIS_ADDR"`
	Password     string        `envconfig:"HOOKRELAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"HOOKRELAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HOOKRELAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HOOKRELAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HOOKRELAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HOOKRELAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HOOKRELAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"HOOKRELAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"HOOKRELAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"HOOKRELAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	EventsSubscription string `envconfig:"HOOKRELAY_PUBSUB_EVENTS_SUBSCRIPTION" required:"true"`
	DigestTopic        string `envconfig:"HOOKRELAY_PUBSUB_DIGEST_TOPIC" default:"hr-digest-commands"`
	IntegrationsTopic  string `envconfig:"HOOKRELAY_PUBSUB_INTEGRATIONS_TOPIC" default:"hr-integration-deliveries"`
}

// DeliveryConfig bounds the webhook retry state machine.
type DeliveryConfig struct {
	MaxRetries     int           `envconfig:"HOOKRELAY_DELIVERY_MAX_RETRIES" default:"3"`
	InitialBackoff time.Duration `envconfig:"HOOKRELAY_DELIVERY_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"HOOKRELAY_DELIVERY_MAX_BACKOFF" default:"30s"`
	RequestTimeout time.Duration `envconfig:"HOOKRELAY_DELIVERY_REQUEST_TIMEOUT" default:"30s"`
}

type AggregationConfig struct {
	Interval      time.Duration `envconfig:"HOOKRELAY_AGGREGATION_INTERVAL" default:"1h"`
	DefaultWindow time.Duration `envconfig:"HOOKRELAY_AGGREGATION_DEFAULT_WINDOW" default:"24h"`
	OrgBatchSize  int           `envconfig:"HOOKRELAY_AGGREGATION_ORG_BATCH_SIZE" default:"100"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HOOKRELAY_AUTO_MIGRATE" default:"false"`
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
