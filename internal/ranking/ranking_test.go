package ranking

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	rankingrepo "github.com/yungbote/rankset/internal/data/repos/ranking"
	"github.com/yungbote/rankset/internal/data/repos/testutil"
	"github.com/yungbote/rankset/internal/domain/catalog"
	types "github.com/yungbote/rankset/internal/domain/ranking"
	"github.com/yungbote/rankset/internal/platform/dbctx"
)

const articleType EntityType = "article"

type fixture struct {
	db       *gorm.DB
	repo     rankingrepo.RankingEntryRepo
	reg      *Registry
	observer *recorder
	dbc      dbctx.Context
}

func newFixture(t *testing.T, opts ...RegistryOption) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := rankingrepo.NewRankingEntryRepo(db, log)
	rec := &recorder{}
	reg := NewRegistry(db, repo, log, append([]RegistryOption{WithObserver(rec)}, opts...)...)
	return &fixture{
		db:       db,
		repo:     repo,
		reg:      reg,
		observer: rec,
		dbc:      dbctx.Context{Ctx: context.Background()},
	}
}

func articleEntity() Entity {
	return Entity{
		Type:  articleType,
		Model: &catalog.Article{},
		Managers: map[string]Manager{
			"published": func(db *gorm.DB) *gorm.DB {
				return db.Where("article.published = ?", true)
			},
		},
	}
}

// staticRanking returns a RankFunc whose result can be swapped between
// refreshes.
type staticRanking struct {
	mu  sync.Mutex
	ids []any
	err error
}

func rankingOf(ids ...int64) *staticRanking {
	return &staticRanking{ids: IDs(ids)}
}

func (s *staticRanking) set(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = IDs(ids)
	s.err = nil
}

func (s *staticRanking) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *staticRanking) fn(dbc dbctx.Context) ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dbc.Tx == nil {
		panic("rank function called outside the refresh transaction")
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]any(nil), s.ids...), nil
}

func orderedArticleIDs(t *testing.T, h *Handler, dbc dbctx.Context, spec string) []int64 {
	t.Helper()
	q, err := h.OrderedBy(dbc, spec)
	require.NoError(t, err)
	var rows []catalog.Article
	require.NoError(t, q.Find(&rows).Error)
	return articleIDs(rows)
}

func articleIDs(rows []catalog.Article) []int64 {
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ID)
	}
	return out
}

func strIDs(ids ...int64) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, strconv.FormatInt(id, 10))
	}
	return out
}

type phaseEvent struct {
	Typology string
	Phase    string
	Rows     int
}

type refreshEvent struct {
	Typology string
	Status   string
}

type recorder struct {
	mu        sync.Mutex
	phases    []phaseEvent
	refreshes []refreshEvent
}

func (r *recorder) ObservePhase(entityType, typology, phase string, rows int, dur time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phaseEvent{Typology: typology, Phase: phase, Rows: rows})
}

func (r *recorder) ObserveRefresh(entityType, typology, status string, dur time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, refreshEvent{Typology: typology, Status: status})
}

// countingRepo records every store call.
type countingRepo struct {
	rankingrepo.RankingEntryRepo
	mu    sync.Mutex
	calls int
}

func (c *countingRepo) touch() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingRepo) PageIDs(dbc dbctx.Context, scope rankingrepo.Scope, afterID int64, limit int) ([]int64, error) {
	c.touch()
	return c.RankingEntryRepo.PageIDs(dbc, scope, afterID, limit)
}

func (c *countingRepo) DeleteScope(dbc dbctx.Context, scope rankingrepo.Scope) (int64, error) {
	c.touch()
	return c.RankingEntryRepo.DeleteScope(dbc, scope)
}

func (c *countingRepo) ListEntityIDs(dbc dbctx.Context, scope rankingrepo.Scope, desc bool, limit int) ([]string, error) {
	c.touch()
	return c.RankingEntryRepo.ListEntityIDs(dbc, scope, desc, limit)
}

func (c *countingRepo) Create(dbc dbctx.Context, entries []*types.RankingEntry) error {
	c.touch()
	return c.RankingEntryRepo.Create(dbc, entries)
}
