package config

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/hashicorp/go-multierror"

	pkgconfig "github.com/lewisedginton/bot_manager_console/pkg/config"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// AppConfig holds all application configuration
type AppConfig struct {
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"bot-manager-console"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	Backend    BackendConfig    `yaml:"backend"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	LocalStore LocalStoreConfig `yaml:"local_store"`
	AdminAPI   AdminAPIConfig   `yaml:"admin_api"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// Load reads path (optional) and the environment into a validated AppConfig.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := pkgconfig.GetConfig(&cfg, path, false); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	logging := pkgconfig.CommonConfig{LogLevel: c.Logging.Level, LogFormat: c.Logging.Format}
	if err := logging.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := validateURL("backend.url", c.Backend.URL); err != nil {
		result = multierror.Append(result, err)
	}
	switch c.Backend.Contract {
	case ContractChat, ContractAdmin:
	default:
		result = multierror.Append(result, fmt.Errorf("backend.contract must be one of [chat, admin], got %q", c.Backend.Contract))
	}
	switch c.Backend.PasswordEncoding {
	case "bcrypt", "plaintext":
	default:
		result = multierror.Append(result, fmt.Errorf("backend.password_encoding must be one of [bcrypt, plaintext], got %q", c.Backend.PasswordEncoding))
	}
	switch strings.ToUpper(c.Backend.ConfigMethod) {
	case "POST", "PUT":
	default:
		result = multierror.Append(result, fmt.Errorf("backend.config_method must be POST or PUT, got %q", c.Backend.ConfigMethod))
	}
	if c.Backend.Timeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("backend.timeout must be greater than 0"))
	}

	if err := validateURL("matrix.homeserver_url", c.Matrix.HomeserverURL); err != nil {
		result = multierror.Append(result, err)
	}
	if c.Matrix.TimelineLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("matrix.timeline_limit must be greater than 0"))
	}

	switch c.LocalStore.Backend {
	case "file", "sqlite", "memory":
		if c.LocalStore.Backend != "memory" && c.LocalStore.Path == "" {
			result = multierror.Append(result, fmt.Errorf("local_store.path is required for the %s backend", c.LocalStore.Backend))
		}
	case "s3":
		if c.LocalStore.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("local_store.s3_bucket is required for the s3 backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("local_store.backend must be one of [file, sqlite, s3, memory], got %q", c.LocalStore.Backend))
	}

	if c.AdminAPI.Port < 1 || c.AdminAPI.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("admin_api.port must be between 1 and 65535, got %d", c.AdminAPI.Port))
	}
	if c.AdminAPI.SessionTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("admin_api.session_ttl must be greater than 0"))
	}
	switch c.AdminAPI.ConfigStorage {
	case "local":
	case "postgres":
		if c.AdminAPI.DatabaseURL == "" {
			result = multierror.Append(result, fmt.Errorf("admin_api.database_url is required for postgres config storage"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("admin_api.config_storage must be one of [local, postgres], got %q", c.AdminAPI.ConfigStorage))
	}

	if c.Monitoring.MetricsEnabled && (c.Monitoring.MetricsPort < 1 || c.Monitoring.MetricsPort > 65535) {
		result = multierror.Append(result, fmt.Errorf("monitoring.metrics_port must be between 1 and 65535, got %d", c.Monitoring.MetricsPort))
	}
	if c.Monitoring.HealthFailureThreshold < 1 {
		result = multierror.Append(result, fmt.Errorf("monitoring.health_failure_threshold must be at least 1, got %d", c.Monitoring.HealthFailureThreshold))
	}

	return result
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.Level)
}

// NewLogger builds the application logger from the logging section.
func (c *AppConfig) NewLogger(out io.Writer) logger.Logger {
	return c.Logging.NewLogger(c.ServiceName, out)
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.StringField("backend_url", c.Backend.URL),
		logger.StringField("backend_contract", c.Backend.Contract),
		logger.StringField("matrix_homeserver", c.Matrix.HomeserverURL),
		logger.StringField("local_store", c.LocalStore.Backend),
		logger.IntField("admin_api_port", c.AdminAPI.Port),
		logger.BoolField("admin_api_key_configured", c.AdminAPI.APIKey != ""),
		logger.StringField("config_storage", c.AdminAPI.ConfigStorage),
		logger.StringField("log_level", c.Logging.Level),
		logger.BoolField("metrics_enabled", c.Monitoring.MetricsEnabled),
	)
}
