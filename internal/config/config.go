// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/domain-controller/pkg/db"
	"github.com/morezero/domain-controller/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Config holds domain-controller configuration.
type Config struct {
	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"domain-controller"`

	// LocalHostName is the host whose servers this controller resolves operations for.
	LocalHostName string `envconfig:"LOCAL_HOST_NAME" default:"master"`
	// RemoteHosts are hosts owned by other controllers; their subtrees are proxied over COMMS.
	RemoteHosts []string `envconfig:"REMOTE_HOSTS"`

	// Subject overrides (empty = derive from LocalHostName)
	ControllerSubject string `envconfig:"CONTROLLER_SUBJECT"`
	PlanEventSubject  string `envconfig:"PLAN_EVENT_SUBJECT"`

	// Management API version served; requests may constrain it via ctx.managementVersion.
	ManagementVersion string `envconfig:"MANAGEMENT_VERSION" default:"1.0.0"`

	// Timeouts
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"25s"`

	// Resource layout (empty = DOMAIN_LAYOUT_FILE lookup, then built-in layout)
	LayoutFile string `envconfig:"DOMAIN_LAYOUT_FILE"`

	// Domain model
	DomainModelFile  string `envconfig:"DOMAIN_MODEL_FILE" default:"domain.yaml"`
	WatchDomainModel bool   `envconfig:"WATCH_DOMAIN_MODEL" default:"true"`
	DomainModelName  string `envconfig:"DOMAIN_MODEL_NAME" default:"default"`

	// Database (optional: empty = domain model from DOMAIN_MODEL_FILE, no audit log)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`
	DBMaxConns    int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns    int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	// HTTP health endpoint (HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Tracing
	TracingEnabled    bool    `envconfig:"TRACING_ENABLED" default:"false"`
	TracingExporter   string  `envconfig:"TRACING_EXPORTER" default:"stdout"`
	OTLPEndpoint      string  `envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`
	TracingSampleRate float64 `envconfig:"TRACING_SAMPLE_RATE" default:"1.0"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// UseDatabase reports whether the domain model and audit log live in Postgres.
func (c *Config) UseDatabase() bool {
	return c.DatabaseURL != ""
}

// ValidateForServe checks required config when running the controller.
func (c *Config) ValidateForServe() error {
	if c.LocalHostName == "" {
		return fmt.Errorf("%s - LOCAL_HOST_NAME is required for serve", logPrefix)
	}
	for _, h := range c.RemoteHosts {
		if h == c.LocalHostName {
			return fmt.Errorf("%s - REMOTE_HOSTS must not contain the local host %q", logPrefix, h)
		}
	}
	if !c.UseDatabase() && c.DomainModelFile == "" {
		return fmt.Errorf("%s - DOMAIN_MODEL_FILE is required when DATABASE_URL is not set", logPrefix)
	}
	if _, err := semver.ParseVersion(c.ManagementVersion); err != nil {
		return fmt.Errorf("%s - MANAGEMENT_VERSION: %w", logPrefix, err)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.TracingEnabled {
		switch c.TracingExporter {
		case "stdout", "none", "":
		case "otlp":
			if c.OTLPEndpoint == "" {
				return fmt.Errorf("%s - OTLP_ENDPOINT is required for the otlp exporter", logPrefix)
			}
		default:
			return fmt.Errorf("%s - unsupported TRACING_EXPORTER %q", logPrefix, c.TracingExporter)
		}
	}
	return nil
}

// PoolOptions returns the database pool settings; connections are named after the service.
func (c *Config) PoolOptions() db.PoolOptions {
	return db.PoolOptions{MaxConns: c.DBMaxConns, MinConns: c.DBMinConns, ApplicationName: c.COMMSName}
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	if c.DBMaxConns < 0 || c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return fmt.Errorf("%s - DB_MIN_CONNS %d / DB_MAX_CONNS %d are invalid", logPrefix, c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
