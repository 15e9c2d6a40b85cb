package config

import (
	"io"

	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// LoggingConfig is the log output of the console. The --log-level and
// --log-format flags override it when given.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"text"`
}

// NewLogger builds a logger writing to out and tagged with service.
func (c LoggingConfig) NewLogger(service string, out io.Writer) logger.Logger {
	return logger.NewLogger(logger.Config{
		Level:   logger.ParseLevel(c.Level),
		Format:  c.Format,
		Service: service,
		Output:  out,
	})
}
