package storage

import (
	"context"
	"time"

	"github.com/pagegate-org/pagegate/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Purger drops expired and long-untouched asset cache pairs. Redis entries
// expire on their own; only the S3/postgres pairs need sweeping.
type Purger struct {
	logger  *logrus.Logger
	db      *gorm.DB
	storage Storage
}

func NewPurger(logger *logrus.Logger, db *gorm.DB, storage Storage) *Purger {
	return &Purger{
		logger:  logger,
		db:      db,
		storage: storage,
	}
}

func (p *Purger) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	logEntry := p.logger.WithField("component", "asset_purger")
	logEntry.Info("Starting asset cache purger")

	for {
		select {
		case <-ticker.C:
			p.purgeExpired(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping asset cache purger")
			return
		}
	}
}

func (p *Purger) purgeExpired(ctx context.Context, log *logrus.Entry) {
	log = log.WithField("operation", "asset_purge")

	var entries []models.AssetCache
	if err := p.db.WithContext(ctx).
		Where("expires_at < ? OR last_access < ?", time.Now(), time.Now().Add(-7*24*time.Hour)).
		Find(&entries).Error; err != nil {
		log.WithError(err).Error("Asset cache purge query failed")
		return
	}

	log.WithField("count", len(entries)).Info("Processing expired asset entries")

	for _, entry := range entries {
		if err := p.storage.Delete(ctx, entry.Key); err != nil {
			log.WithFields(logrus.Fields{"key": entry.Key, "error": err}).Error("Failed to delete asset cache entry")
		}
	}
}
