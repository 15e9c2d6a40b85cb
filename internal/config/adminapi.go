package config

import "time"

// AdminAPIConfig configures the admin backend served by `botconsole serve`.
type AdminAPIConfig struct {
	Port int `env:"ADMIN_API_PORT" yaml:"port" default:"5000"`
	// APIKey is the admin password. Empty means setup is still required and
	// any login succeeds.
	APIKey             string        `env:"ADMIN_API_KEY" yaml:"-"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" yaml:"cors_allowed_origins" default:"http://localhost:3000"`
	SessionTTL         time.Duration `env:"ADMIN_SESSION_TTL" yaml:"session_ttl" default:"24h"`
	ConfigStorage      string        `env:"ADMIN_CONFIG_STORAGE" yaml:"config_storage" default:"local"` // "local" or "postgres"
	DatabaseURL        string        `env:"DATABASE_URL" yaml:"-"`
	MaxRequestSize     int64         `env:"MAX_REQUEST_SIZE" yaml:"max_request_size" default:"10485760"`
}
