package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/bot_manager_console/internal/botconfig"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// ConfigCommand returns a command for configuration operations
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Configuration operations",
		Subcommands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Print the bot configuration document",
				Action: configGetAction,
			},
			{
				Name:  "set",
				Usage: "Replace the bot configuration document",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "file",
						Usage: "JSON file holding the whole document",
					},
					&cli.StringFlag{
						Name:  "profile-name",
						Usage: "Change only the profile name of the current document",
					},
				},
				Action: configSetAction,
			},
			{
				Name:   "validate",
				Usage:  "Validate configuration",
				Action: configValidateAction,
			},
		},
	}
}

func configGetAction(ctx *cli.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.backendClient(ctx.Context)
	if err != nil {
		return err
	}
	configs := rt.configStore(client)
	if err := configs.Fetch(ctx.Context); err != nil {
		rt.log.Error("Failed to fetch config", logger.ErrorField(err))
		return fmt.Errorf("failed to fetch config: %w", err)
	}
	return printJSON(ctx, configs.Document())
}

func configSetAction(ctx *cli.Context) error {
	file, profileName := ctx.String("file"), ctx.String("profile-name")
	if file == "" && profileName == "" {
		return cli.Exit("one of --file or --profile-name is required", 2)
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.backendClient(ctx.Context)
	if err != nil {
		return err
	}
	configs := rt.configStore(client)

	if file != "" {
		doc, err := readDocument(file)
		if err != nil {
			return err
		}
		configs.SetDocument(doc)
	} else if err := configs.Fetch(ctx.Context); err != nil {
		return fmt.Errorf("failed to fetch config: %w", err)
	}

	if profileName != "" {
		if err := configs.Edit(func(d *botconfig.Document) { d.BotConfig.ProfileName = profileName }); err != nil {
			return err
		}
	}

	if err := configs.Update(ctx.Context); err != nil {
		rt.log.Error("Failed to update config", logger.ErrorField(err))
		return fmt.Errorf("failed to update config: %w", err)
	}
	return printJSON(ctx, configs.Document())
}

func readDocument(path string) (*botconfig.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var doc botconfig.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, nil
}

func configValidateAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	log.Info("Validating configuration")

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Configuration validation failed", logger.ErrorField(err))
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg.LogConfig(log)

	log.Info("Configuration validation passed")
	printf(ctx, "Configuration is valid\n")
	return nil
}
