package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	appconfig "github.com/lewisedginton/bot_manager_console/internal/config"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// getLogger retrieves the logger from the CLI context metadata
func getLogger(ctx *cli.Context) logger.Logger {
	if ctx.App.Metadata != nil {
		if log, ok := ctx.App.Metadata["logger"].(logger.Logger); ok {
			return log
		}
	}

	// Fallback to default logger if not found
	return logger.NewLogger(logger.Config{
		Level:   logger.InfoLevel,
		Format:  "json",
		Service: "botconsole",
		Output:  os.Stderr,
	})
}

// commandLogger returns the flag-built logger when --log-level or
// --log-format was given, and otherwise one built from cfg's logging section.
func commandLogger(ctx *cli.Context, cfg *appconfig.AppConfig) logger.Logger {
	if ctx.IsSet("log-level") || ctx.IsSet("log-format") {
		return getLogger(ctx)
	}
	return cfg.NewLogger(ctx.App.ErrWriter)
}

// loadConfig reads the file named by --config-file plus the environment.
func loadConfig(ctx *cli.Context) (*appconfig.AppConfig, error) {
	cfg, err := appconfig.Load(ctx.String("config-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func writer(ctx *cli.Context) io.Writer {
	if ctx.App.Writer != nil {
		return ctx.App.Writer
	}
	return os.Stdout
}

func printJSON(ctx *cli.Context, v any) error {
	enc := json.NewEncoder(writer(ctx))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printf(ctx *cli.Context, format string, args ...any) {
	_, _ = fmt.Fprintf(writer(ctx), format, args...)
}
