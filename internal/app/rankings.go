package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/data/repos"
	"github.com/yungbote/rankset/internal/observability"
	"github.com/yungbote/rankset/internal/platform/logger"
	"github.com/yungbote/rankset/internal/ranking"
	"github.com/yungbote/rankset/internal/rankings"
)

func wireRegistry(db *gorm.DB, log *logger.Logger, cfg Config, reposet repos.Set, metrics *observability.Metrics) (*ranking.Registry, error) {
	log.Info("Registering rankings...")
	opts := []ranking.RegistryOption{
		ranking.WithDefaultHandlerOptions(ranking.WithBatchSize(cfg.BatchSize)),
	}
	if metrics != nil {
		opts = append(opts, ranking.WithObserver(metrics))
	}
	reg := ranking.NewRegistry(db, reposet.RankingEntry, log, opts...)
	if err := rankings.RegisterAll(reg, reposet.Article, cfg.ArticleLimit); err != nil {
		return nil, fmt.Errorf("register rankings: %w", err)
	}
	return reg, nil
}
