package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/data/repos/catalog"
	"github.com/yungbote/rankset/internal/data/repos/ranking"
	"github.com/yungbote/rankset/internal/platform/logger"
)

type RankingEntryRepo = ranking.RankingEntryRepo
type ArticleRepo = catalog.ArticleRepo

type Set struct {
	RankingEntry RankingEntryRepo
	Article      ArticleRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		RankingEntry: ranking.NewRankingEntryRepo(db, log),
		Article:      catalog.NewArticleRepo(db, log),
	}
}
