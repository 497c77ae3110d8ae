package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"xui-shop-core/internal/models"
)

// MemoryPath opens a private in-memory registry
const MemoryPath = ":memory:"

// Registry is the local user registry backed by sqlite
type Registry struct {
	db     *gorm.DB
	now    func() time.Time
	logger *logrus.Logger
}

// Open opens (and migrates) the registry at path
func Open(path string, logger *logrus.Logger) (*Registry, error) {
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create registry directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open registry %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get registry connection: %w", err)
	}
	// sqlite allows one writer; an in-memory database exists per connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.LocalUser{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry: %w", err)
	}

	logger.Infof("Registry opened at %s", path)
	return &Registry{db: db, now: time.Now, logger: logger}, nil
}

// Close closes the underlying connection
func (r *Registry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertOnStart registers a user on first interaction. Known users keep
// stored profile fields unless a non-empty value is given; last_action is touched.
func (r *Registry) UpsertOnStart(ctx context.Context, telegramID int64, profile models.Profile) error {
	now := r.now()
	user := models.LocalUser{
		TelegramID:     telegramID,
		Username:       optional(profile.Username),
		FirstName:      optional(profile.FirstName),
		LastName:       optional(profile.LastName),
		DateRegistered: now,
		LastAction:     now,
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "telegram_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"username":    gorm.Expr("COALESCE(excluded.username, users.username)"),
			"first_name":  gorm.Expr("COALESCE(excluded.first_name, users.first_name)"),
			"last_name":   gorm.Expr("COALESCE(excluded.last_name, users.last_name)"),
			"last_action": now,
		}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user %d: %w", telegramID, err)
	}
	return nil
}

// Get returns a user or nil when unknown
func (r *Registry) Get(ctx context.Context, telegramID int64) (*models.LocalUser, error) {
	var user models.LocalUser
	err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", telegramID, err)
	}
	return &user, nil
}

// SetVPNEmail stores or clears (nil) the canonical vpn email
func (r *Registry) SetVPNEmail(ctx context.Context, telegramID int64, email *string) error {
	res := r.db.WithContext(ctx).Model(&models.LocalUser{}).
		Where("telegram_id = ?", telegramID).
		Update("vpn_email", email)
	if res.Error != nil {
		return fmt.Errorf("failed to set vpn email for %d: %w", telegramID, res.Error)
	}
	if res.RowsAffected == 0 {
		r.logger.Warnf("SetVPNEmail: user %d is not registered", telegramID)
	}
	return nil
}

// List returns every registered user ordered by telegram id
func (r *Registry) List(ctx context.Context) ([]models.LocalUser, error) {
	var users []models.LocalUser
	if err := r.db.WithContext(ctx).Order("telegram_id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Count returns the number of registered users
func (r *Registry) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.LocalUser{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// CountWithVPN returns the number of users with a stored vpn email
func (r *Registry) CountWithVPN(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.LocalUser{}).
		Where("vpn_email IS NOT NULL AND vpn_email <> ''").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count users with vpn: %w", err)
	}
	return n, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
