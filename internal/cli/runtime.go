package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/bot_manager_console/internal/backend"
	"github.com/lewisedginton/bot_manager_console/internal/botconfig"
	"github.com/lewisedginton/bot_manager_console/internal/chatsync"
	appconfig "github.com/lewisedginton/bot_manager_console/internal/config"
	"github.com/lewisedginton/bot_manager_console/internal/localstore"
	"github.com/lewisedginton/bot_manager_console/internal/matrix"
	"github.com/lewisedginton/bot_manager_console/internal/messaging"
	"github.com/lewisedginton/bot_manager_console/internal/session"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/metrics"
)

// runtime wires the stores for a single command invocation.
type runtime struct {
	cfg     *appconfig.AppConfig
	log     logger.Logger
	store   localstore.Store
	closer  io.Closer
	metrics *metrics.Metrics

	// factory overrides the Matrix client factory in tests.
	factory messaging.Factory
}

func newRuntime(ctx *cli.Context) (*runtime, error) {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Failed to load configuration", logger.ErrorField(err))
		return nil, err
	}
	log = commandLogger(ctx, cfg)

	store, closer, err := localstore.Open(ctx.Context, localstore.Config{
		Backend: localstore.Backend(cfg.LocalStore.Backend),
		Path:    cfg.LocalStore.Path,
		Bucket:  cfg.LocalStore.S3Bucket,
		Prefix:  cfg.LocalStore.S3Prefix,
	})
	if err != nil {
		log.Error("Failed to open local store", logger.ErrorField(err))
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		log:     log,
		store:   store,
		closer:  closer,
		metrics: metrics.NewMetrics(false, cfg.Monitoring.MetricsEnabled, log),
	}
	if f, ok := ctx.App.Metadata["messaging_factory"].(messaging.Factory); ok {
		rt.factory = f
	}
	return rt, nil
}

func (r *runtime) Close() {
	if err := r.closer.Close(); err != nil {
		r.log.Warn("Failed to close local store", logger.ErrorField(err))
	}
}

func (r *runtime) backendClient(ctx context.Context) (*backend.Client, error) {
	return backend.New(ctx, backend.Config{
		BaseURL: r.cfg.Backend.URL,
		Timeout: r.cfg.Backend.Timeout,
		Store:   r.store,
		Logger:  r.log,
	})
}

func (r *runtime) configStore(client *backend.Client) *botconfig.Store {
	return botconfig.NewStore(client, botconfig.Options{
		UpdateMethod: strings.ToUpper(r.cfg.Backend.ConfigMethod),
		Logger:       r.log,
		Observer:     r.metrics.StoreObserver("config"),
	})
}

func (r *runtime) sessionStore(client *backend.Client, configs *botconfig.Store) (*session.Store, error) {
	encoder, err := session.EncoderByName(r.cfg.Backend.PasswordEncoding)
	if err != nil {
		return nil, err
	}
	opts := session.Options{
		Contract: session.Contract(r.cfg.Backend.Contract),
		Encoder:  encoder,
		Logger:   r.log,
		Observer: r.metrics.StoreObserver("session"),
	}
	if configs != nil {
		opts.Config = configs
	}
	return session.NewStore(client, opts), nil
}

func (r *runtime) chatStore() *chatsync.Store {
	factory := r.factory
	if factory == nil {
		factory = matrix.NewFactory(matrix.Options{
			DeviceName: r.cfg.Matrix.DeviceName,
			Logger:     r.log,
		})
	}
	return chatsync.NewStore(chatsync.Options{
		BaseURL:           r.cfg.Matrix.HomeserverURL,
		Factory:           factory,
		Store:             r.store,
		TimelineLimit:     r.cfg.Matrix.TimelineLimit,
		AutoRegisterRooms: r.cfg.Matrix.AutoRegisterRooms,
		Logger:            r.log,
		Observer:          r.metrics.StoreObserver("chat_sync"),
	})
}

// initChat creates and initializes the chat store.
func (r *runtime) initChat(ctx context.Context) (*chatsync.Store, error) {
	chat := r.chatStore()
	if err := chat.Init(ctx); err != nil {
		r.log.Error("Failed to initialize chat client", logger.ErrorField(err))
		return nil, fmt.Errorf("failed to initialize chat client: %w", err)
	}
	return chat, nil
}
