package catalog

import (
	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/domain/catalog"
	"github.com/yungbote/rankset/internal/platform/dbctx"
	"github.com/yungbote/rankset/internal/platform/logger"
)

type ArticleRepo interface {
	Create(dbc dbctx.Context, articles []*catalog.Article) ([]*catalog.Article, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*catalog.Article, error)
	// IDsByViews lists published article ids, most viewed first.
	IDsByViews(dbc dbctx.Context, limit int) ([]int64, error)
	// IDsByPublishedAt lists published article ids, newest first.
	IDsByPublishedAt(dbc dbctx.Context, limit int) ([]int64, error)
}

type articleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewArticleRepo(db *gorm.DB, baseLog *logger.Logger) ArticleRepo {
	return &articleRepo{
		db:  db,
		log: baseLog.With("repo", "ArticleRepo"),
	}
}

func (r *articleRepo) Create(dbc dbctx.Context, articles []*catalog.Article) ([]*catalog.Article, error) {
	if len(articles) == 0 {
		return []*catalog.Article{}, nil
	}
	if err := dbc.DB(r.db).Create(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

func (r *articleRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*catalog.Article, error) {
	var out []*catalog.Article
	if len(ids) == 0 {
		return out, nil
	}
	if err := dbc.DB(r.db).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *articleRepo) IDsByViews(dbc dbctx.Context, limit int) ([]int64, error) {
	return r.publishedIDs(dbc, "view_count DESC, id ASC", limit)
}

func (r *articleRepo) IDsByPublishedAt(dbc dbctx.Context, limit int) ([]int64, error) {
	return r.publishedIDs(dbc, "published_at DESC, id ASC", limit)
}

func (r *articleRepo) publishedIDs(dbc dbctx.Context, order string, limit int) ([]int64, error) {
	ids := []int64{}
	q := dbc.DB(r.db).
		Model(&catalog.Article{}).
		Where("published = ? AND published_at IS NOT NULL", true).
		Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
