package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/rps-lan/internal/engine"
)

// Record is one player's persisted counters.
type Record struct {
	ID        uint   `gorm:"primaryKey"`
	Username  string `gorm:"uniqueIndex;not null"`
	Wins      int    `gorm:"not null;default:0"`
	Losses    int    `gorm:"not null;default:0"`
	Ties      int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Record) TableName() string { return "profiles" }

// Store persists counters for one username in Postgres.
type Store struct {
	db       *gorm.DB
	username string
	logger   *zap.Logger
}

func OpenPostgres(dsn, username string, logger *zap.Logger) (*Store, error) {
	const maxRetries = 3
	const retryInterval = 2 * time.Second

	var db *gorm.DB
	var err error
	for i := 0; i <= maxRetries; i++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err == nil {
			break
		}
		logger.Warn("profile database connect failed, retrying", zap.Int("retry", i), zap.Error(err))
		time.Sleep(retryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("open profile database: %w", err)
	}
	return NewStore(db, username, logger)
}

// NewStore migrates the schema and ensures a row exists for username.
func NewStore(db *gorm.DB, username string, logger *zap.Logger) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate profiles: %w", err)
	}
	rec := Record{Username: username}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("ensure profile %q: %w", username, err)
	}
	logger.Info("profile store ready", zap.String("username", username))
	return &Store{db: db, username: username, logger: logger}, nil
}

func (s *Store) CurrentUsername() string { return s.username }

// RecordOutcome adds delta in a single UPDATE so concurrent writers never
// lose increments.
func (s *Store) RecordOutcome(ctx context.Context, delta engine.Tally) error {
	res := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("username = ?", s.username).
		Updates(map[string]any{
			"wins":   gorm.Expr("wins + ?", delta.Wins),
			"losses": gorm.Expr("losses + ?", delta.Losses),
			"ties":   gorm.Expr("ties + ?", delta.Ties),
		})
	if res.Error != nil {
		return fmt.Errorf("record outcome: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record outcome: profile %q not found", s.username)
	}
	return nil
}

func (s *Store) Tally(ctx context.Context) (engine.Tally, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("username = ?", s.username).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Tally{}, nil
	}
	if err != nil {
		return engine.Tally{}, fmt.Errorf("load tally: %w", err)
	}
	return engine.Tally{Wins: rec.Wins, Losses: rec.Losses, Ties: rec.Ties}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
