// Package config loads service configuration from the environment, an
// optional .env file and an optional config.yaml.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Auth     AuthConfig
	Approval ApprovalConfig
	Tracing  TracingConfig
	Store    StoreConfig
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
	LogLevel    string
}

type ServerConfig struct {
	Port            int
	GRPCPort        int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

type NATSConfig struct {
	URL            string
	Stream         string
	PublishTimeout time.Duration
	QueueSize      int
}

type AuthConfig struct {
	JWTSecret string
}

// ApprovalConfig holds workflow switches that are not per-company.
type ApprovalConfig struct {
	RejectRequiresApprover bool
	SeedFile               string
}

type TracingConfig struct {
	Enabled bool
	Output  string
}

// StoreConfig selects the persistence driver: "postgres" or "memory".
type StoreConfig struct {
	Driver string
}

var defaults = map[string]any{
	"service.name":                      "be-po-approvals",
	"service.version":                   "dev",
	"service.environment":               "development",
	"service.loglevel":                  "info",
	"server.port":                       8086,
	"server.grpcport":                   9086,
	"server.readtimeout":                "15s",
	"server.writetimeout":               "15s",
	"server.idletimeout":                "60s",
	"server.shutdowntimeout":            "10s",
	"database.host":                     "localhost",
	"database.port":                     5432,
	"database.user":                     "postgres",
	"database.password":                 "",
	"database.database":                 "procurement",
	"database.sslmode":                  "disable",
	"database.maxconns":                 10,
	"database.minconns":                 2,
	"database.maxconntime":              "1h",
	"database.maxidletime":              "30m",
	"database.healthcheck":              "1m",
	"nats.url":                          "",
	"nats.stream":                       "NOTIFICATIONS",
	"nats.publishtimeout":               "2s",
	"nats.queuesize":                    256,
	"auth.jwtsecret":                    "",
	"approval.rejectrequiresapprover":   false,
	"approval.seedfile":                 "",
	"tracing.enabled":                   false,
	"tracing.output":                    "",
	"store.driver":                      "postgres",
}

// envAliases binds the conventional flat env names used in deployments.
var envAliases = map[string]string{
	"service.environment":             "ENVIRONMENT",
	"service.loglevel":                "LOG_LEVEL",
	"server.port":                     "HTTP_PORT",
	"server.grpcport":                 "GRPC_PORT",
	"database.host":                   "DB_HOST",
	"database.port":                   "DB_PORT",
	"database.user":                   "DB_USER",
	"database.password":               "DB_PASSWORD",
	"database.database":               "DB_NAME",
	"database.sslmode":                "DB_SSLMODE",
	"nats.url":                        "NATS_URL",
	"nats.publishtimeout":             "NATS_PUBLISH_TIMEOUT",
	"nats.queuesize":                  "NATS_QUEUE_SIZE",
	"auth.jwtsecret":                  "JWT_SECRET",
	"approval.rejectrequiresapprover": "APPROVAL_REJECT_REQUIRES_APPROVER",
	"approval.seedfile":               "APPROVAL_SEED_FILE",
	"tracing.enabled":                 "TRACING_ENABLED",
	"tracing.output":                  "TRACING_OUTPUT",
	"store.driver":                    "STORE_DRIVER",
}

// Load reads configuration. A missing .env or config.yaml is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("config")
	v.AddConfigPath(".")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive, got %d", c.Server.Port)
	}
	return nil
}

// DSN returns the pgx connection string for the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}
