package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"embedfix/internal/domain"
)

// DefaultGCInterval is how often the value-log garbage collector runs.
const DefaultGCInterval = 10 * time.Minute

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerRepository opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	return nil
}

// settingsKey creates the key for a guild's settings.
// Format: guild:{guildID}:settings
func settingsKey(guildID int64) []byte {
	return []byte(fmt.Sprintf("guild:%d:settings", guildID))
}

// GetOrCreate loads a guild's settings, creating the defaults on first sight.
func (r *BadgerRepository) GetOrCreate(ctx context.Context, guildID int64) (*domain.GuildSettings, error) {
	var settings *domain.GuildSettings

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(settingsKey(guildID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded := &domain.GuildSettings{}
			if err := json.Unmarshal(val, decoded); err != nil {
				return fmt.Errorf("failed to unmarshal settings for guild %d: %w", guildID, err)
			}
			settings = decoded
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		settings = domain.NewGuildSettings(guildID)
		if err := r.Save(ctx, settings); err != nil {
			return nil, err
		}
		r.log.WithField("guild_id", guildID).Info("Created default guild settings")
		return settings, nil
	}
	if err != nil {
		r.log.WithError(err).WithField("guild_id", guildID).Error("Failed to load guild settings")
		return nil, fmt.Errorf("failed to get settings for guild %d: %w", guildID, err)
	}

	// Fields added after the blob was stored decode to zero values;
	// ApplyDefaults fills them in, which is the whole migration path.
	settings.ApplyDefaults()
	return settings, nil
}

// Save persists the settings snapshot.
func (r *BadgerRepository) Save(_ context.Context, settings *domain.GuildSettings) error {
	log := r.log.WithField("guild_id", settings.ID)

	blob, err := json.Marshal(settings)
	if err != nil {
		log.WithError(err).Error("Failed to marshal guild settings")
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(settingsKey(settings.ID), blob))
	})
	if err != nil {
		log.WithError(err).Error("Failed to save guild settings")
		return fmt.Errorf("failed to save settings for guild %d: %w", settings.ID, err)
	}

	log.Debug("Guild settings saved")
	return nil
}

// Reset drops a guild's settings. Deleting a missing key is a no-op.
func (r *BadgerRepository) Reset(_ context.Context, guildID int64) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(settingsKey(guildID))
	})
	if err != nil {
		r.log.WithError(err).WithField("guild_id", guildID).Error("Failed to reset guild settings")
		return fmt.Errorf("failed to reset settings for guild %d: %w", guildID, err)
	}
	return nil
}

// RunGC reclaims value-log space periodically until the context is cancelled.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Info("BadgerDB GC completed")
			case errors.Is(err, badger.ErrNoRewrite):
				r.log.Debug("BadgerDB GC: no rewrite needed")
			default:
				r.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
