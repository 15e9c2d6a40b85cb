package config

import "time"

// MonitoringConfig covers the health checks and the Prometheus listener.
type MonitoringConfig struct {
	HealthCheckTimeout     time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"10s"`
	HealthFailureThreshold int           `env:"HEALTH_FAILURE_THRESHOLD" yaml:"health_failure_threshold" default:"3"`
	MetricsEnabled         bool          `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
	MetricsPort            int           `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// SeparateMetricsListener reports whether /metrics needs its own listener
// next to a server already bound to serverPort. A zero serverPort means no
// server is running.
func (c MonitoringConfig) SeparateMetricsListener(serverPort int) bool {
	return c.MetricsEnabled && c.MetricsPort != serverPort
}
