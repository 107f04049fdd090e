package ranking

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/rankset/internal/domain/ranking"
	"github.com/yungbote/rankset/internal/platform/dbctx"
)

// OrderedBy returns a query over the entity table, narrowed by the handler's
// manager, holding only rows ranked by the typology and ordered by their
// position. A leading "-" in spec reverses the order.
//
// The query is not executed; callers add Where, Limit, Offset and Find as
// with any gorm query. Columns shared with ranking_entry (such as id) must
// be qualified with the entity table name in further conditions.
//
// For models with an integer primary key the stored id is cast to BIGINT so
// the join can use the entity table's primary-key index. Entities given only
// as a table, or keyed by another type, join on the key cast to TEXT, which
// leaves that index unused; large tables of that kind are hash-joined.
func (h *Handler) OrderedBy(dbc dbctx.Context, spec string) (*gorm.DB, error) {
	typology, desc := ParseTypologySpec(spec)
	if err := h.typs.Validate(typology); err != nil {
		return nil, err
	}
	manager, err := h.entity.manager(h.manager)
	if err != nil {
		return nil, err
	}

	q := dbc.DB(h.db)
	if h.entity.Model != nil {
		q = q.Model(h.entity.Model)
	}
	if h.entity.Table != "" {
		q = q.Table(h.entity.Table)
	}
	q = manager(q)

	rankTable := types.RankingEntry{}.TableName()
	q = q.Joins(h.rankingJoin(rankTable)).
		Where(rankTable+".entity_type = ?", string(h.entity.Type)).
		Where(rankTable+".typology = ?", typology).
		Where(rankTable+".usable = ?", true).
		Order(clause.OrderByColumn{
			Column: clause.Column{Table: rankTable, Name: "position"},
			Desc:   desc,
		})
	return q, nil
}

func (h *Handler) rankingJoin(rankTable string) string {
	if h.entity.intKey {
		return fmt.Sprintf("INNER JOIN %s ON CAST(%s.entity_id AS BIGINT) = %s.%s",
			rankTable, rankTable, h.entity.Table, h.entity.PrimaryKey)
	}
	return fmt.Sprintf("INNER JOIN %s ON %s.entity_id = CAST(%s.%s AS TEXT)",
		rankTable, rankTable, h.entity.Table, h.entity.PrimaryKey)
}

// OrderedIDs reads the stored entity ids of a typology without touching the
// entity table. limit <= 0 means no limit.
func (h *Handler) OrderedIDs(dbc dbctx.Context, spec string, limit int) ([]string, error) {
	typology, desc := ParseTypologySpec(spec)
	if err := h.typs.Validate(typology); err != nil {
		return nil, err
	}
	return h.repo.ListEntityIDs(dbc, h.scope(typology, true), desc, limit)
}
