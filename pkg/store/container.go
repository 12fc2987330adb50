package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/Storm-bit/vk-bot-sdk/pkg/store/upgrades"
)

// Container holds the bot's tables. They are versioned in their own
// vkbot_version table, so the database may be shared with other dbutil users.
type Container struct {
	db *dbutil.Database
	// owned is closed by Close; nil when the caller passed the database in.
	owned *dbutil.Database
}

func NewStore(db *dbutil.Database, log dbutil.DatabaseLogger) *Container {
	return &Container{db: db.Child("vkbot_version", upgrades.Table, log)}
}

// Open connects to the database described by cfg and brings the tables up
// to date.
func Open(ctx context.Context, cfg dbutil.Config, log zerolog.Logger) (*Container, error) {
	db, err := dbutil.NewFromConfig("vkbot", cfg, dbutil.ZeroLogger(log.With().Str("db_section", "main").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	container := NewStore(db, dbutil.ZeroLogger(log.With().Str("db_section", "vkbot").Logger()))
	container.owned = db
	if err = container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return container, nil
}

func (c *Container) Upgrade(ctx context.Context) error {
	return c.db.Upgrade(ctx)
}

func (c *Container) Close() error {
	if c.owned == nil {
		return nil
	}
	return c.owned.Close()
}

func newCursor(qh *dbutil.QueryHelper[*Cursor]) *Cursor {
	return &Cursor{}
}

// GetCursorQuery returns the long poll cursor table. It implements
// vkapi.CursorStore.
func (c *Container) GetCursorQuery() *CursorQuery {
	return &CursorQuery{dbutil.MakeQueryHelper(c.db, newCursor)}
}
