package rankings

import (
	"gorm.io/gorm"

	catalogrepo "github.com/yungbote/rankset/internal/data/repos/catalog"
	"github.com/yungbote/rankset/internal/domain/catalog"
	"github.com/yungbote/rankset/internal/platform/dbctx"
	"github.com/yungbote/rankset/internal/ranking"
)

const (
	ArticleType ranking.EntityType = "article"

	Popularity = "popularity"
	Recency    = "recency"

	PublishedManager = "published"
)

// ArticleEntity describes catalog.Article with a manager limited to
// published articles.
func ArticleEntity() ranking.Entity {
	return ranking.Entity{
		Type:  ArticleType,
		Model: &catalog.Article{},
		Managers: map[string]ranking.Manager{
			PublishedManager: func(db *gorm.DB) *gorm.DB {
				return db.Where("article.published = ? AND article.published_at IS NOT NULL", true)
			},
		},
	}
}

// ArticleTypologies ranks at most limit published articles per typology.
func ArticleTypologies(articles catalogrepo.ArticleRepo, limit int) ranking.Typologies {
	return ranking.Typologies{
		Popularity: func(dbc dbctx.Context) ([]any, error) {
			ids, err := articles.IDsByViews(dbc, limit)
			if err != nil {
				return nil, err
			}
			return ranking.IDs(ids), nil
		},
		Recency: func(dbc dbctx.Context) ([]any, error) {
			ids, err := articles.IDsByPublishedAt(dbc, limit)
			if err != nil {
				return nil, err
			}
			return ranking.IDs(ids), nil
		},
	}
}

func RegisterArticles(reg *ranking.Registry, articles catalogrepo.ArticleRepo, limit int, opts ...ranking.HandlerOption) (*ranking.Handler, error) {
	all := append([]ranking.HandlerOption{ranking.WithManager(PublishedManager)}, opts...)
	return reg.Register(ArticleEntity(), ArticleTypologies(articles, limit), all...)
}

// RegisterAll registers every ranked model of the catalog.
func RegisterAll(reg *ranking.Registry, articles catalogrepo.ArticleRepo, articleLimit int) error {
	_, err := RegisterArticles(reg, articles, articleLimit)
	return err
}
