package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/domain/catalog"
	types "github.com/yungbote/rankset/internal/domain/ranking"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Ranking store
		&types.RankingEntry{},

		// Ranked models
		&catalog.Article{},
	)
}

func EnsureRankingIndexes(db *gorm.DB) error {
	// Reads only ever touch the published generation.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ranking_entry_published
		ON ranking_entry (entity_type, typology, position)
		WHERE usable;
	`).Error; err != nil {
		return fmt.Errorf("create idx_ranking_entry_published: %w", err)
	}
	return nil
}
