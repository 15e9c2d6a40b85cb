package adminapi

import (
	"context"
	"fmt"

	"github.com/lewisedginton/bot_manager_console/internal/botconfig"
	"github.com/lewisedginton/bot_manager_console/internal/localstore"
)

// ConfigRepository stores the single configuration document.
type ConfigRepository interface {
	// Load returns the stored document, seeding the default on first use.
	Load(ctx context.Context) (*botconfig.Document, error)
	// Save replaces the stored document and returns the stored copy.
	Save(ctx context.Context, doc *botconfig.Document) (*botconfig.Document, error)
	// Ping reports whether the repository is reachable.
	Ping(ctx context.Context) error
}

// configKey is the localstore key holding the document.
const configKey = "bot_config"

// LocalConfigRepository keeps the document in a localstore.Store.
type LocalConfigRepository struct {
	store localstore.Store
}

// NewLocalConfigRepository creates a repository over store.
func NewLocalConfigRepository(store localstore.Store) *LocalConfigRepository {
	return &LocalConfigRepository{store: store}
}

func (r *LocalConfigRepository) Load(ctx context.Context) (*botconfig.Document, error) {
	var doc botconfig.Document
	found, err := localstore.GetJSON(ctx, r.store, configKey, &doc)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if !found {
		return r.Save(ctx, botconfig.DefaultDocument())
	}
	return &doc, nil
}

func (r *LocalConfigRepository) Save(ctx context.Context, doc *botconfig.Document) (*botconfig.Document, error) {
	if err := localstore.SetJSON(ctx, r.store, configKey, doc); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}
	return doc.Clone(), nil
}

func (r *LocalConfigRepository) Ping(ctx context.Context) error {
	_, _, err := r.store.Get(ctx, configKey)
	return err
}
