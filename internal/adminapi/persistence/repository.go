package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewisedginton/bot_manager_console/internal/botconfig"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

const (
	selectConfig = `SELECT document FROM bot_config WHERE id = 1`
	upsertConfig = `INSERT INTO bot_config (id, document, updated_at) VALUES (1, $1, NOW())
ON CONFLICT (id) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
RETURNING document`
	insertDefaultConfig = `INSERT INTO bot_config (id, document) VALUES (1, $1)
ON CONFLICT (id) DO NOTHING`
)

// ConfigRepository keeps the configuration document in a single-row table.
type ConfigRepository struct {
	db     *pgxpool.Pool
	logger logger.Logger
}

// NewConfigRepository creates a repository over db. Migrations must have run.
func NewConfigRepository(db *pgxpool.Pool, log logger.Logger) *ConfigRepository {
	return &ConfigRepository{db: db, logger: log}
}

// Open connects to databaseURL, runs migrations and returns the repository.
// Close the returned pool when done.
func Open(ctx context.Context, databaseURL string, log logger.Logger) (*ConfigRepository, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	migrations := NewMigrationManager(pool, log)
	err = migrations.RunMigrations()
	if closeErr := migrations.Close(); closeErr != nil {
		log.Warn("Failed to close migration connection", logger.ErrorField(closeErr))
	}
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return NewConfigRepository(pool, log), pool, nil
}

// Load returns the stored document, inserting the default on first use.
func (r *ConfigRepository) Load(ctx context.Context) (*botconfig.Document, error) {
	doc, err := r.selectDocument(ctx)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("failed to load config", logger.ErrorField(err))
		return nil, fmt.Errorf("load config: %w", err)
	}

	seed, err := json.Marshal(botconfig.DefaultDocument())
	if err != nil {
		return nil, fmt.Errorf("encode default config: %w", err)
	}
	// Concurrent first loads race here; whichever insert lands is the seed.
	if _, err := r.db.Exec(ctx, insertDefaultConfig, seed); err != nil {
		return nil, fmt.Errorf("seed default config: %w", err)
	}
	r.logger.Info("seeded default config")

	doc, err = r.selectDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("load seeded config: %w", err)
	}
	return doc, nil
}

// Save replaces the document and returns the stored copy.
func (r *ConfigRepository) Save(ctx context.Context, doc *botconfig.Document) (*botconfig.Document, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}

	var stored []byte
	if err := r.db.QueryRow(ctx, upsertConfig, encoded).Scan(&stored); err != nil {
		r.logger.Error("failed to save config", logger.ErrorField(err))
		return nil, fmt.Errorf("save config: %w", err)
	}
	return decode(stored)
}

// Ping checks connectivity.
func (r *ConfigRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *ConfigRepository) selectDocument(ctx context.Context) (*botconfig.Document, error) {
	var raw []byte
	if err := r.db.QueryRow(ctx, selectConfig).Scan(&raw); err != nil {
		return nil, err
	}
	return decode(raw)
}

func decode(raw []byte) (*botconfig.Document, error) {
	var doc botconfig.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode stored config: %w", err)
	}
	return &doc, nil
}
