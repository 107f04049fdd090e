package ranking

import (
	"gorm.io/gorm"

	types "github.com/yungbote/rankset/internal/domain/ranking"
	"github.com/yungbote/rankset/internal/platform/dbctx"
	"github.com/yungbote/rankset/internal/platform/logger"
)

// Scope selects one generation of one typology.
type Scope struct {
	EntityType string
	Typology   string
	Usable     bool
}

type RankingEntryRepo interface {
	Create(dbc dbctx.Context, entries []*types.RankingEntry) error
	// PageIDs returns up to limit ids in scope greater than afterID, ascending.
	PageIDs(dbc dbctx.Context, scope Scope, afterID int64, limit int) ([]int64, error)
	DeleteByIDs(dbc dbctx.Context, ids []int64) (int64, error)
	MarkUsable(dbc dbctx.Context, ids []int64) (int64, error)
	DeleteScope(dbc dbctx.Context, scope Scope) (int64, error)
	Count(dbc dbctx.Context, scope Scope) (int64, error)
	// ListEntityIDs returns the entity ids of scope ordered by position.
	ListEntityIDs(dbc dbctx.Context, scope Scope, desc bool, limit int) ([]string, error)
	ListAll(dbc dbctx.Context, entityType string) ([]*types.RankingEntry, error)
}

type rankingEntryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRankingEntryRepo(db *gorm.DB, baseLog *logger.Logger) RankingEntryRepo {
	return &rankingEntryRepo{
		db:  db,
		log: baseLog.With("repo", "RankingEntryRepo"),
	}
}

func (r *rankingEntryRepo) Create(dbc dbctx.Context, entries []*types.RankingEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&entries).Error
}

func (r *rankingEntryRepo) scoped(dbc dbctx.Context, scope Scope) *gorm.DB {
	return dbc.DB(r.db).
		Model(&types.RankingEntry{}).
		Where("entity_type = ? AND typology = ? AND usable = ?", scope.EntityType, scope.Typology, scope.Usable)
}

func (r *rankingEntryRepo) PageIDs(dbc dbctx.Context, scope Scope, afterID int64, limit int) ([]int64, error) {
	ids := []int64{}
	q := r.scoped(dbc, scope).Where("id > ?", afterID).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *rankingEntryRepo) DeleteByIDs(dbc dbctx.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).Where("id IN ?", ids).Delete(&types.RankingEntry{})
	return res.RowsAffected, res.Error
}

func (r *rankingEntryRepo) MarkUsable(dbc dbctx.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.RankingEntry{}).
		Where("id IN ?", ids).
		Update("usable", true)
	return res.RowsAffected, res.Error
}

func (r *rankingEntryRepo) DeleteScope(dbc dbctx.Context, scope Scope) (int64, error) {
	res := dbc.DB(r.db).
		Where("entity_type = ? AND typology = ? AND usable = ?", scope.EntityType, scope.Typology, scope.Usable).
		Delete(&types.RankingEntry{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		r.log.Debug("Deleted ranking entries", "entity_type", scope.EntityType, "typology", scope.Typology, "usable", scope.Usable, "rows", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

func (r *rankingEntryRepo) Count(dbc dbctx.Context, scope Scope) (int64, error) {
	var n int64
	if err := r.scoped(dbc, scope).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *rankingEntryRepo) ListEntityIDs(dbc dbctx.Context, scope Scope, desc bool, limit int) ([]string, error) {
	out := []string{}
	order := "position ASC"
	if desc {
		order = "position DESC"
	}
	q := r.scoped(dbc, scope).Order(order)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Pluck("entity_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *rankingEntryRepo) ListAll(dbc dbctx.Context, entityType string) ([]*types.RankingEntry, error) {
	var out []*types.RankingEntry
	if err := dbc.DB(r.db).
		Where("entity_type = ?", entityType).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
