package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/carehub/clinic-api/internal/core/domain"
)

const envPrefix = "CLINIC"

// Store drivers accepted by revocation.store.driver.
const (
	StoreDriverMemory   = "memory"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	HTTP       HTTPSettings       `mapstructure:"http"`
	Postgres   PostgresSettings   `mapstructure:"postgres"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	JWT        JWTSettings        `mapstructure:"jwt"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	Revocation RevocationSettings `mapstructure:"revocation"`
	Gate       GateSettings       `mapstructure:"gate"`
}

type AppSettings struct {
	Name            string        `mapstructure:"name"`
	Env             string        `mapstructure:"env"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	InstanceID      string        `mapstructure:"instance_id"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type HTTPSettings struct {
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	ReadHeaderTimeout  time.Duration `mapstructure:"read_header_timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures revocation event fan-out between instances.
type KafkaSettings struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
	Async         bool     `mapstructure:"async"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

type JWTSettings struct {
	Secret         string        `mapstructure:"secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	Insecure       bool    `mapstructure:"insecure"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

type RevocationSettings struct {
	Store             RevocationStoreSettings    `mapstructure:"store"`
	EntryTTL          time.Duration              `mapstructure:"entry_ttl"`
	StoreTimeout      time.Duration              `mapstructure:"store_timeout"`
	SweepInterval     time.Duration              `mapstructure:"sweep_interval"`
	DegradationPolicy string                     `mapstructure:"degradation_policy"`
	Snapshot          RevocationSnapshotSettings `mapstructure:"snapshot"`
}

type RevocationStoreSettings struct {
	Driver     string `mapstructure:"driver"`
	KeyPrefix  string `mapstructure:"key_prefix"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// RevocationSnapshotSettings controls warm starts of the memory driver.
type RevocationSnapshotSettings struct {
	Enabled     bool          `mapstructure:"enabled"`
	Key         string        `mapstructure:"key"`
	TTL         time.Duration `mapstructure:"ttl"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type GateSettings struct {
	BypassPaths []string `mapstructure:"bypass_paths"`
}

// Policy returns the configured degradation policy.
func (s RevocationSettings) Policy() domain.DegradationPolicy {
	return domain.NewDegradationPolicy(domain.ParseDegradationPolicyMode(s.DegradationPolicy))
}

// Addr returns the host:port the HTTP server listens on.
func (s AppSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.instance_id",
		"app.shutdown_timeout",
		"http.cors_allowed_origins",
		"http.read_header_timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.schema",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.consumer_group",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.insecure",
		"telemetry.service_name",
		"telemetry.service_version",
		"telemetry.sampling_rate",
		"revocation.store.driver",
		"revocation.store.key_prefix",
		"revocation.store.max_entries",
		"revocation.entry_ttl",
		"revocation.store_timeout",
		"revocation.sweep_interval",
		"revocation.degradation_policy",
		"revocation.snapshot.enabled",
		"revocation.snapshot.key",
		"revocation.snapshot.ttl",
		"revocation.snapshot.min_interval",
		"gate.bypass_paths",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *AppConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Revocation.Store.Driver)) {
	case StoreDriverMemory, StoreDriverRedis, StoreDriverPostgres:
	default:
		return fmt.Errorf("config: unsupported revocation.store.driver %q", c.Revocation.Store.Driver)
	}
	if c.Revocation.EntryTTL <= 0 {
		return fmt.Errorf("config: revocation.entry_ttl must be positive")
	}
	if c.Revocation.StoreTimeout <= 0 {
		return fmt.Errorf("config: revocation.store_timeout must be positive")
	}
	if c.Revocation.SweepInterval <= 0 {
		return fmt.Errorf("config: revocation.sweep_interval must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers required when kafka.enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "clinic-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.instance_id", "")
	v.SetDefault("app.shutdown_timeout", "15s")

	v.SetDefault("http.cors_allowed_origins", []string{"*"})
	v.SetDefault("http.read_header_timeout", "10s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "clinic")
	v.SetDefault("postgres.password", "clinic_password")
	v.SetDefault("postgres.database", "clinic")
	v.SetDefault("postgres.schema", "clinic")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "clinic")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.consumer_group", "clinic-api-revocations")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "clinic-api")
	v.SetDefault("jwt.access_token_ttl", "15m")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.service_name", "clinic-api")
	v.SetDefault("telemetry.service_version", "dev")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	// Entries must outlive the longest refresh token so a revoked session cannot be resurrected.
	v.SetDefault("revocation.store.driver", StoreDriverRedis)
	v.SetDefault("revocation.store.key_prefix", "clinic:revoked")
	v.SetDefault("revocation.store.max_entries", 0)
	v.SetDefault("revocation.entry_ttl", "24h")
	v.SetDefault("revocation.store_timeout", "250ms")
	v.SetDefault("revocation.sweep_interval", "5m")
	v.SetDefault("revocation.degradation_policy", string(domain.DegradationPolicyModeLenient))
	v.SetDefault("revocation.snapshot.enabled", true)
	v.SetDefault("revocation.snapshot.key", "clinic:revocations:snapshot")
	v.SetDefault("revocation.snapshot.ttl", "48h")
	v.SetDefault("revocation.snapshot.min_interval", "30s")

	v.SetDefault("gate.bypass_paths", []string{
		"/api/clinics/users/login",
		"/api/clinics/super-admins",
		"/api/clinics/signup",
		"/api/clinics/login",
		"/api/auth",
		"/api/health",
		"/api/public",
	})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
