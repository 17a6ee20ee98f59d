// Package store reads synced mail records and maintains link statistics in
// postgres.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/MagnunAVF/mail-deeplink/internal"
	applog "github.com/MagnunAVF/mail-deeplink/internal/logger"
)

var ErrNotFound = errors.New("record not found")

func Open(dsn, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: applog.NewGormLogger(logLevel)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// Migrate creates the tables this module writes. mail_records belongs to the
// mail-sync service and is left alone.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&internal.LinkTierStat{})
}

type RecordStore struct {
	db *gorm.DB
}

func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) FindRecord(ctx context.Context, id string) (*internal.MailRecord, error) {
	var rec internal.MailRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find mail record %s: %w", id, err)
	}
	return &rec, nil
}

type StatsStore struct {
	db *gorm.DB
}

func NewStatsStore(db *gorm.DB) *StatsStore {
	return &StatsStore{db: db}
}

// AddTierCounts increments the per-tier counters in one transaction.
func (s *StatsStore) AddTierCounts(ctx context.Context, counts map[internal.Tier]int64) error {
	if len(counts) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for tier, n := range counts {
			if err := upsertTierCount(tx, tier, n).Error; err != nil {
				return fmt.Errorf("upsert %s count: %w", tier, err)
			}
		}
		return nil
	})
}

func upsertTierCount(tx *gorm.DB, tier internal.Tier, n int64) *gorm.DB {
	rec := internal.LinkTierStat{Tier: string(tier), OpenCount: n}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tier"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"open_count": gorm.Expr("link_tier_stats.open_count + EXCLUDED.open_count"),
			"updated_at": gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(&rec)
}

func (s *StatsStore) TierStats(ctx context.Context) ([]internal.LinkTierStat, error) {
	var stats []internal.LinkTierStat
	if err := s.db.WithContext(ctx).Order("tier").Find(&stats).Error; err != nil {
		return nil, fmt.Errorf("list tier stats: %w", err)
	}
	return stats, nil
}
