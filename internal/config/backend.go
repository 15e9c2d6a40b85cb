package config

import "time"

// Auth-check response shapes understood by the session store.
const (
	ContractChat  = "chat"
	ContractAdmin = "admin"
)

// BackendConfig points the session and config stores at the admin backend.
type BackendConfig struct {
	URL              string        `env:"BACKEND_URL" yaml:"url" default:"http://localhost:5000/api"`
	Contract         string        `env:"BACKEND_CONTRACT" yaml:"contract" default:"chat"`
	PasswordEncoding string        `env:"BACKEND_PASSWORD_ENCODING" yaml:"password_encoding" default:"bcrypt"`
	ConfigMethod     string        `env:"BACKEND_CONFIG_METHOD" yaml:"config_method" default:"POST"`
	Timeout          time.Duration `env:"BACKEND_TIMEOUT" yaml:"timeout" default:"30s"`
}
