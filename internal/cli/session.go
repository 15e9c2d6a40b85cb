package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// SessionCommand returns a command for admin backend session operations
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Admin backend session operations",
		Subcommands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Ask the backend whether the stored session is live",
				Action: sessionCheckAction,
			},
			{
				Name:  "login",
				Usage: "Log in to the admin backend",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "password",
						Usage:    "Admin password",
						EnvVars:  []string{"BOTCONSOLE_PASSWORD"},
						Required: true,
					},
				},
				Action: sessionLoginAction,
			},
			{
				Name:   "logout",
				Usage:  "Log out and forget the stored session",
				Action: sessionLogoutAction,
			},
		},
	}
}

func sessionCheckAction(ctx *cli.Context) error {
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
	sessions, err := rt.sessionStore(client, configs)
	if err != nil {
		return err
	}

	sessions.CheckLogin(ctx.Context)
	status := sessions.Status()
	rt.log.Debug("Session checked", logger.StringField("logged_in", status.LoggedIn.String()))
	out := map[string]string{
		"loggedIn":      status.LoggedIn.String(),
		"requiresSetup": status.RequiresSetup.String(),
	}
	if doc := configs.Document(); doc != nil {
		out["profileName"] = doc.BotConfig.ProfileName
	}
	return printJSON(ctx, out)
}

func sessionLoginAction(ctx *cli.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.backendClient(ctx.Context)
	if err != nil {
		return err
	}
	sessions, err := rt.sessionStore(client, nil)
	if err != nil {
		return err
	}

	resp, err := sessions.Login(ctx.Context, ctx.String("password"))
	if err != nil {
		rt.log.Error("Login failed", logger.ErrorField(err))
		return fmt.Errorf("login failed: %w", err)
	}
	if err := printJSON(ctx, resp); err != nil {
		return err
	}
	if !resp.Success {
		return cli.Exit("login rejected", 1)
	}
	return nil
}

func sessionLogoutAction(ctx *cli.Context) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	client, err := rt.backendClient(ctx.Context)
	if err != nil {
		return err
	}
	sessions, err := rt.sessionStore(client, nil)
	if err != nil {
		return err
	}

	if err := sessions.Logout(ctx.Context); err != nil {
		rt.log.Warn("Logout request failed", logger.ErrorField(err))
		return fmt.Errorf("logout: %w", err)
	}
	printf(ctx, "logged out\n")
	return nil
}
