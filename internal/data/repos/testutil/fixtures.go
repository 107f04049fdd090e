package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/domain/catalog"
	types "github.com/yungbote/rankset/internal/domain/ranking"
)

// SeedArticles creates one published article per id with views[i] views,
// published i hours ago.
func SeedArticles(tb testing.TB, ctx context.Context, tx *gorm.DB, ids []int64, views []int64) []*catalog.Article {
	tb.Helper()
	now := time.Now().UTC()
	out := make([]*catalog.Article, 0, len(ids))
	for i, id := range ids {
		publishedAt := now.Add(-time.Duration(i) * time.Hour)
		a := &catalog.Article{
			ID:          id,
			Title:       "article",
			Published:   true,
			PublishedAt: &publishedAt,
		}
		if i < len(views) {
			a.ViewCount = views[i]
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed articles: %v", err)
	}
	return out
}

func SeedRankingEntries(tb testing.TB, ctx context.Context, tx *gorm.DB, entityType, typology string, usable bool, entityIDs ...string) []*types.RankingEntry {
	tb.Helper()
	out := make([]*types.RankingEntry, 0, len(entityIDs))
	for i, id := range entityIDs {
		out = append(out, &types.RankingEntry{
			EntityType: entityType,
			EntityID:   id,
			Typology:   typology,
			Usable:     usable,
			Position:   int64(i + 1),
		})
	}
	if len(out) == 0 {
		return out
	}
	if err := tx.WithContext(ctx).Create(&out).Error; err != nil {
		tb.Fatalf("seed ranking entries: %v", err)
	}
	return out
}
