package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/bot_manager_console/internal/chatsync"
	"github.com/lewisedginton/bot_manager_console/internal/messaging"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/utils"
)

var credentialFlags = []cli.Flag{
	&cli.StringFlag{Name: "username", Usage: "Matrix user name", Required: true},
	&cli.StringFlag{Name: "password", Usage: "Matrix password", EnvVars: []string{"MATRIX_PASSWORD"}, Required: true},
}

var roomFlag = &cli.StringFlag{
	Name:  "room",
	Usage: "Room id; defaults to the selected room",
}

// ChatCommand returns a command for Matrix chat operations
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:    "chat",
		Aliases: []string{"m"},
		Usage:   "Matrix chat operations",
		Subcommands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Initialize the chat client and report its state",
				Action: chatInitAction,
			},
			{
				Name:   "register",
				Usage:  "Register a new Matrix account",
				Flags:  credentialFlags,
				Action: chatRegisterAction,
			},
			{
				Name:   "login",
				Usage:  "Log in to Matrix and remember the login",
				Flags:  credentialFlags,
				Action: chatLoginAction,
			},
			{
				Name:   "rooms",
				Usage:  "List joined rooms",
				Action: chatRoomsAction,
			},
			{
				Name:      "select",
				Usage:     "Select a room; no argument clears the selection",
				ArgsUsage: "[room-id]",
				Action:    chatSelectAction,
			},
			{
				Name:   "history",
				Usage:  "Print a room's recent timeline",
				Flags:  []cli.Flag{roomFlag},
				Action: chatHistoryAction,
			},
			{
				Name:      "send",
				Usage:     "Send a text message",
				ArgsUsage: "<text>",
				Flags:     []cli.Flag{roomFlag},
				Action:    chatSendAction,
			},
			{
				Name:   "watch",
				Usage:  "Print live messages until interrupted",
				Action: chatWatchAction,
			},
		},
	}
}

type credentialSummary struct {
	UserID     string `json:"user_id"`
	DeviceID   string `json:"device_id,omitempty"`
	HomeServer string `json:"home_server,omitempty"`
}

func summarize(creds *messaging.Credentials) credentialSummary {
	if creds == nil {
		return credentialSummary{}
	}
	return credentialSummary{UserID: creds.UserID, DeviceID: creds.DeviceID, HomeServer: creds.HomeServer}
}

// withChat runs fn against an initialized chat store.
func withChat(ctx *cli.Context, fn func(rt *runtime, chat *chatsync.Store) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	chat, err := rt.initChat(ctx.Context)
	if err != nil {
		return err
	}
	defer func() {
		if err := chat.Close(); err != nil {
			rt.log.Warn("Failed to stop chat client", logger.ErrorField(err))
		}
	}()
	return fn(rt, chat)
}

func chatInitAction(ctx *cli.Context) error {
	return withChat(ctx, func(_ *runtime, chat *chatsync.Store) error {
		creds, _ := chat.LoginCredentials()
		return printJSON(ctx, map[string]any{
			"state":         chat.State().String(),
			"user_id":       creds.UserID,
			"rooms":         len(chat.Rooms()),
			"selected_room": chat.SelectedRoomID(),
		})
	})
}

func chatRegisterAction(ctx *cli.Context) error {
	return withChat(ctx, func(rt *runtime, chat *chatsync.Store) error {
		creds, err := chat.RegisterUser(ctx.Context, ctx.String("username"), ctx.String("password"))
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		rt.log.Info("Registered", logger.StringField("user_id", creds.UserID))
		return printJSON(ctx, summarize(creds))
	})
}

func chatLoginAction(ctx *cli.Context) error {
	return withChat(ctx, func(_ *runtime, chat *chatsync.Store) error {
		creds, err := chat.Login(ctx.Context, ctx.String("username"), ctx.String("password"))
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return printJSON(ctx, summarize(creds))
	})
}

func chatRoomsAction(ctx *cli.Context) error {
	return withChat(ctx, func(_ *runtime, chat *chatsync.Store) error {
		selected := chat.SelectedRoomID()
		for _, room := range chat.Rooms() {
			marker := " "
			if room.RoomID == selected {
				marker = "*"
			}
			printf(ctx, "%s %s\n", marker, room.RoomID)
		}
		return nil
	})
}

func chatSelectAction(ctx *cli.Context) error {
	return withChat(ctx, func(_ *runtime, chat *chatsync.Store) error {
		roomID := ctx.Args().First()
		if err := chat.SetSelectedRoom(ctx.Context, roomID); err != nil {
			return fmt.Errorf("select room: %w", err)
		}
		if roomID == "" {
			printf(ctx, "selection cleared\n")
			return nil
		}
		if _, err := chat.SelectedRoom(); errors.Is(err, chatsync.ErrRoomNotReady) {
			printf(ctx, "selected %s (not joined yet)\n", roomID)
			return nil
		}
		printf(ctx, "selected %s\n", roomID)
		return nil
	})
}

// targetRoom resolves --room or falls back to the selection.
func targetRoom(ctx *cli.Context, chat *chatsync.Store) (string, error) {
	if roomID := ctx.String("room"); roomID != "" {
		return roomID, nil
	}
	room, err := chat.SelectedRoom()
	if err != nil {
		return "", err
	}
	return room.RoomID, nil
}

func chatHistoryAction(ctx *cli.Context) error {
	return withChat(ctx, func(_ *runtime, chat *chatsync.Store) error {
		roomID, err := targetRoom(ctx, chat)
		if err != nil {
			return err
		}
		if err := chat.InitRoom(ctx.Context, roomID); err != nil {
			return err
		}
		room, _ := chat.Room(roomID)
		for _, evt := range room.TimelineEvents {
			if evt.Type != messaging.EventTypeRoomMessage {
				continue
			}
			printf(ctx, "[%s] %s: %s\n", evt.Timestamp.Format("2006-01-02 15:04:05"), evt.Sender, evt.Body())
		}
		return nil
	})
}

func chatSendAction(ctx *cli.Context) error {
	text := strings.Join(ctx.Args().Slice(), " ")
	if text == "" {
		return cli.Exit("message text is required", 2)
	}
	return withChat(ctx, func(_ *runtime, chat *chatsync.Store) error {
		roomID, err := targetRoom(ctx, chat)
		if err != nil {
			return err
		}
		if _, err := chat.SendMessage(ctx.Context, roomID, text); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		ack, _ := chat.LastSend()
		printf(ctx, "sent %s\n", ack.EventID)
		return nil
	})
}

func chatWatchAction(ctx *cli.Context) error {
	return withChat(ctx, func(rt *runtime, chat *chatsync.Store) error {
		if chat.State() != chatsync.AuthenticatedReady {
			return cli.Exit("not logged in; run `chat login` first", 1)
		}

		runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		cancel := chat.Watch(func(update messaging.Update) {
			if update.Event.Type != messaging.EventTypeRoomMessage {
				return
			}
			printf(ctx, "%s %s: %s\n", update.RoomID, update.Event.Sender, update.Event.Body())
		})
		defer cancel()

		var metricsErrs <-chan error
		if rt.cfg.Monitoring.SeparateMetricsListener(0) {
			metricsErrs = rt.metrics.Listen(runCtx, rt.cfg.Monitoring.MetricsPort)
		}
		rt.log.Info("Watching rooms", logger.IntField("rooms", len(chat.Rooms())))

		errs := utils.MergeErrorChans(metricsErrs)
		select {
		case <-runCtx.Done():
			rt.log.Info("Stopped watching")
			return nil
		case err, ok := <-errs:
			if !ok {
				<-runCtx.Done()
				return nil
			}
			return fmt.Errorf("metrics listener: %w", err)
		}
	})
}
