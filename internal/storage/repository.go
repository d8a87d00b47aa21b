package storage

import (
	"context"

	"embedfix/internal/domain"
)

// Repository is the guild-settings store. The bot only ever needs
// read-your-writes consistency per guild; concurrent messages in the same
// guild may race on settings writes (last write wins), which is acceptable
// because settings changes are rare and user directed.
type Repository interface {
	// GetOrCreate returns the guild's settings, creating and persisting the
	// defaults on first sight.
	GetOrCreate(ctx context.Context, guildID int64) (*domain.GuildSettings, error)

	// Save persists the settings snapshot.
	Save(ctx context.Context, settings *domain.GuildSettings) error

	// Reset drops the guild's settings entirely. The next GetOrCreate
	// recreates the defaults.
	Reset(ctx context.Context, guildID int64) error

	// Close gracefully shuts down the repository.
	Close() error
}
