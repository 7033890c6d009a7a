// Package sqlite is the default storage.Store: GORM over a single-file SQLite database.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/sensus/peek/internal/models"
	"github.com/sensus/peek/internal/storage"
)

type Store struct {
	db *gorm.DB
}

// New opens (creating if needed) the database file at path and ensures the tables exist.
func New(path string) (*Store, error) {
	const op = "storage/sqlite/New"

	if path == "" {
		return nil, fmt.Errorf("%s: database path is required", op)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open database: %w", op, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get underlying sql.DB: %w", op, err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY between our own goroutines.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Profile{}, &models.PushSubscription{}, &models.Credentials{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%s: failed to create tables: %w", op, err)
	}

	return &Store{db: db}, nil
}

var _ storage.Store = (*Store)(nil)

func (s *Store) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.db.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) SaveProfile(ctx context.Context, profile *models.Profile) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(profile).Error
}

func (s *Store) Subscriptions(ctx context.Context, userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (s *Store) ReplaceSubscription(ctx context.Context, sub *models.PushSubscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", sub.UserID).Delete(&models.PushSubscription{}).Error; err != nil {
			return err
		}
		return tx.Create(sub).Error
	})
}

func (s *Store) Credentials(ctx context.Context, userID string) (*models.Credentials, error) {
	var c models.Credentials
	if err := s.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) SaveCredentials(ctx context.Context, creds *models.Credentials) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(creds).Error
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", userID).Delete(&models.Profile{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		if err := tx.Where("user_id = ?", userID).Delete(&models.PushSubscription{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.Credentials{}).Error
	})
}

func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}
