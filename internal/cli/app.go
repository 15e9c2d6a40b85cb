// Package cli implements the botconsole commands.
package cli

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// NewApp builds the botconsole application.
func NewApp(version string) *cli.App {
	return &cli.App{
		Name:    "botconsole",
		Usage:   "Manage a chat bot's admin session, configuration and Matrix rooms",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format (json, text)",
				EnvVars: []string{"LOG_FORMAT"},
			},
			&cli.StringFlag{
				Name:    "config-file",
				Value:   "",
				Usage:   "Path to configuration file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Before: func(ctx *cli.Context) error {
			log := logger.NewLogger(logger.Config{
				Level:   logger.ParseLevel(ctx.String("log-level")),
				Format:  ctx.String("log-format"),
				Service: "botconsole",
				Output:  os.Stderr,
			})

			if ctx.App.Metadata == nil {
				ctx.App.Metadata = map[string]interface{}{}
			}
			ctx.App.Metadata["logger"] = log
			return nil
		},
		Commands: []*cli.Command{
			ConfigCommand(),
			ServeCommand(),
			SessionCommand(),
			ChatCommand(),
		},
	}
}
