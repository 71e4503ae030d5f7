package config

import (
	"os"
	"testing"
	"time"
)

var allEnvVars = []string{
	"COMMS_URL", "SERVICE_NAME", "LOCAL_HOST_NAME", "REMOTE_HOSTS",
	"CONTROLLER_SUBJECT", "PLAN_EVENT_SUBJECT", "MANAGEMENT_VERSION",
	"REQUEST_TIMEOUT", "DOMAIN_LAYOUT_FILE", "DOMAIN_MODEL_FILE", "WATCH_DOMAIN_MODEL", "DOMAIN_MODEL_NAME",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
	"TRACING_ENABLED", "TRACING_EXPORTER", "OTLP_ENDPOINT", "TRACING_SAMPLE_RATE",
}

// clearEnv unsets every config variable and restores the previous values after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range allEnvVars {
		if prev, ok := os.LookupEnv(env); ok {
			t.Cleanup(func() { os.Setenv(env, prev) })
		} else {
			t.Cleanup(func() { os.Unsetenv(env) })
		}
		os.Unsetenv(env)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://127.0.0.1:4222" {
		t.Errorf("config:config_test - COMMSURL = %q, want %q", cfg.COMMSURL, "nats://127.0.0.1:4222")
	}
	if cfg.COMMSName != "domain-controller" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "domain-controller")
	}
	if cfg.LocalHostName != "master" {
		t.Errorf("config:config_test - LocalHostName = %q, want master", cfg.LocalHostName)
	}
	if len(cfg.RemoteHosts) != 0 {
		t.Errorf("config:config_test - RemoteHosts = %v, want empty", cfg.RemoteHosts)
	}
	if cfg.ControllerSubject != "" || cfg.PlanEventSubject != "" {
		t.Errorf("config:config_test - subjects should default to empty, got %q / %q", cfg.ControllerSubject, cfg.PlanEventSubject)
	}
	if cfg.ManagementVersion != "1.0.0" {
		t.Errorf("config:config_test - ManagementVersion = %q, want 1.0.0", cfg.ManagementVersion)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if cfg.DomainModelFile != "domain.yaml" {
		t.Errorf("config:config_test - DomainModelFile = %q, want domain.yaml", cfg.DomainModelFile)
	}
	if !cfg.WatchDomainModel {
		t.Error("config:config_test - expected WatchDomainModel=true by default")
	}
	if cfg.DomainModelName != "default" {
		t.Errorf("config:config_test - DomainModelName = %q, want default", cfg.DomainModelName)
	}
	if cfg.UseDatabase() {
		t.Error("config:config_test - expected no database by default")
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 1 {
		t.Errorf("config:config_test - pool defaults = %d/%d, want 10/1", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("config:config_test - HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("config:config_test - LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.TracingEnabled {
		t.Error("config:config_test - expected tracing disabled by default")
	}
	if cfg.TracingExporter != "stdout" || cfg.OTLPEndpoint != "localhost:4317" || cfg.TracingSampleRate != 1.0 {
		t.Errorf("config:config_test - unexpected tracing defaults: %q %q %v", cfg.TracingExporter, cfg.OTLPEndpoint, cfg.TracingSampleRate)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)

	overrides := map[string]string{
		"COMMS_URL":            "nats://custom:4222",
		"SERVICE_NAME":         "dc-test",
		"LOCAL_HOST_NAME":      "slave-1",
		"REMOTE_HOSTS":         "master,slave-2",
		"CONTROLLER_SUBJECT":   "custom.controller",
		"PLAN_EVENT_SUBJECT":   "custom.resolved",
		"MANAGEMENT_VERSION":   "2.1.0",
		"REQUEST_TIMEOUT":      "10s",
		"DOMAIN_LAYOUT_FILE":   "/tmp/layout.yaml",
		"DOMAIN_MODEL_FILE":    "/tmp/domain.yaml",
		"WATCH_DOMAIN_MODEL":   "false",
		"DATABASE_URL":         "postgres://test@localhost/test",
		"RUN_MIGRATIONS":       "true",
		"DB_MAX_CONNS":         "20",
		"DB_MIN_CONNS":         "4",
		"HTTP_PORT":            "9090",
		"HEALTH_CHECK_TIMEOUT": "10s",
		"LOG_LEVEL":            "debug",
		"TRACING_ENABLED":      "true",
		"TRACING_EXPORTER":     "otlp",
		"TRACING_SAMPLE_RATE":  "0.25",
	}
	for k, v := range overrides {
		os.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q", cfg.COMMSURL)
	}
	if cfg.COMMSName != "dc-test" {
		t.Errorf("config:config_test - COMMSName = %q", cfg.COMMSName)
	}
	if cfg.LocalHostName != "slave-1" {
		t.Errorf("config:config_test - LocalHostName = %q", cfg.LocalHostName)
	}
	if len(cfg.RemoteHosts) != 2 || cfg.RemoteHosts[0] != "master" || cfg.RemoteHosts[1] != "slave-2" {
		t.Errorf("config:config_test - RemoteHosts = %v", cfg.RemoteHosts)
	}
	if cfg.LayoutFile != "/tmp/layout.yaml" {
		t.Errorf("config:config_test - LayoutFile = %q", cfg.LayoutFile)
	}
	if cfg.ControllerSubject != "custom.controller" || cfg.PlanEventSubject != "custom.resolved" {
		t.Errorf("config:config_test - subjects = %q / %q", cfg.ControllerSubject, cfg.PlanEventSubject)
	}
	if cfg.ManagementVersion != "2.1.0" {
		t.Errorf("config:config_test - ManagementVersion = %q", cfg.ManagementVersion)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.DomainModelFile != "/tmp/domain.yaml" || cfg.WatchDomainModel {
		t.Errorf("config:config_test - domain model = %q watch=%v", cfg.DomainModelFile, cfg.WatchDomainModel)
	}
	if !cfg.UseDatabase() || !cfg.RunMigrations {
		t.Error("config:config_test - expected database with migrations")
	}
	if opts := cfg.PoolOptions(); opts.MaxConns != 20 || opts.MinConns != 4 || opts.ApplicationName != "dc-test" {
		t.Errorf("config:config_test - PoolOptions = %+v", opts)
	}
	if cfg.HTTPPort != 9090 {
		t.Errorf("config:config_test - HTTPPort = %d", cfg.HTTPPort)
	}
	if cfg.HealthCheckTimeout != 10*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v", cfg.HealthCheckTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("config:config_test - LogLevel = %q", cfg.LogLevel)
	}
	if !cfg.TracingEnabled || cfg.TracingExporter != "otlp" || cfg.TracingSampleRate != 0.25 {
		t.Errorf("config:config_test - tracing = %v %q %v", cfg.TracingEnabled, cfg.TracingExporter, cfg.TracingSampleRate)
	}
}

func validConfig() *Config {
	return &Config{
		LocalHostName:      "master",
		DomainModelFile:    "domain.yaml",
		ManagementVersion:  "1.0.0",
		RequestTimeout:     time.Second,
		HealthCheckTimeout: time.Second,
		TracingExporter:    "stdout",
	}
}

func TestValidateForServe(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.LocalHostName = "" }, true},
		{"local host listed as remote", func(c *Config) { c.RemoteHosts = []string{"slave", "master"} }, true},
		{"no model source", func(c *Config) { c.DomainModelFile = "" }, true},
		{"database instead of file", func(c *Config) { c.DomainModelFile = ""; c.DatabaseURL = "postgres://x" }, false},
		{"bad management version", func(c *Config) { c.ManagementVersion = "one" }, true},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"zero health timeout", func(c *Config) { c.HealthCheckTimeout = 0 }, true},
		{"otlp without endpoint", func(c *Config) { c.TracingEnabled = true; c.TracingExporter = "otlp" }, true},
		{"otlp with endpoint", func(c *Config) {
			c.TracingEnabled = true
			c.TracingExporter = "otlp"
			c.OTLPEndpoint = "collector:4317"
		}, false},
		{"unknown exporter", func(c *Config) { c.TracingEnabled = true; c.TracingExporter = "zipkin" }, true},
		{"unknown exporter ignored when disabled", func(c *Config) { c.TracingExporter = "zipkin" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
	cfg.DatabaseURL = "postgres://test@localhost/test"
	if err := cfg.ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
	cfg.DBMaxConns, cfg.DBMinConns = 2, 5
	if err := cfg.ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error when DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
}
