package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/rankset/internal/clients/redis"
	catalogrepo "github.com/yungbote/rankset/internal/data/repos/catalog"
	rankingrepo "github.com/yungbote/rankset/internal/data/repos/ranking"
	"github.com/yungbote/rankset/internal/data/repos/testutil"
	"github.com/yungbote/rankset/internal/domain/catalog"
	"github.com/yungbote/rankset/internal/platform/dbctx"
	"github.com/yungbote/rankset/internal/ranking"
	"github.com/yungbote/rankset/internal/rankings"
)

type fakeLocker struct {
	mu         sync.Mutex
	held       map[string]bool
	obtained   []string
	released   []string
	refreshes  int
	refreshErr error
	releaseErr error
}

func (l *fakeLocker) Obtain(_ context.Context, key string, _ time.Duration) (redis.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, redis.ErrNotObtained
	}
	l.obtained = append(l.obtained, key)
	return fakeLease{l: l, key: key}, nil
}

func (l *fakeLocker) Close() error { return nil }

type fakeLease struct {
	l   *fakeLocker
	key string
}

func (f fakeLease) Refresh(context.Context, time.Duration) error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	f.l.refreshes++
	return f.l.refreshErr
}

func (f fakeLease) Release(context.Context) error {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	f.l.released = append(f.l.released, f.key)
	return f.l.releaseErr
}

type lockCounter struct {
	mu   sync.Mutex
	keys []string
}

func (c *lockCounter) ObserveLockNotObtained(entityType, typology string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, entityType+"/"+typology)
}

type runnerFixture struct {
	db      *gorm.DB
	repo    rankingrepo.RankingEntryRepo
	reg     *ranking.Registry
	locker  *fakeLocker
	locks   *lockCounter
	service RankingRefreshService
	dbc     dbctx.Context
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	testutil.SeedArticles(t, ctx, db, []int64{1, 2, 3}, []int64{10, 30, 20})

	repo := rankingrepo.NewRankingEntryRepo(db, log)
	reg := ranking.NewRegistry(db, repo, log)
	require.NoError(t, rankings.RegisterAll(reg, catalogrepo.NewArticleRepo(db, log), 100))

	locker := &fakeLocker{held: map[string]bool{}}
	locks := &lockCounter{}
	return &runnerFixture{
		db:      db,
		repo:    repo,
		reg:     reg,
		locker:  locker,
		locks:   locks,
		service: NewRankingRefreshService(log, reg, locker, time.Minute, locks),
		dbc:     dbctx.Context{Ctx: ctx},
	}
}

func (f *runnerFixture) ordered(t *testing.T, typology string) []string {
	t.Helper()
	h, err := f.reg.Handler(rankings.ArticleType)
	require.NoError(t, err)
	ids, err := h.OrderedIDs(f.dbc, typology, 0)
	require.NoError(t, err)
	return ids
}

func TestRefreshRunAllHandlers(t *testing.T) {
	f := newRunnerFixture(t)

	var out bytes.Buffer
	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{Progress: &out, Concurrency: 2})
	require.NoError(t, err)
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", report.RunID.String())
	require.Len(t, report.Results, 2)
	for _, res := range report.Results {
		require.Equal(t, RefreshStatusOK, res.Status, res.Typology)
		require.NoError(t, res.Err)
	}
	require.Zero(t, report.Failed())

	require.Equal(t, []string{"2", "3", "1"}, f.ordered(t, rankings.Popularity))
	require.Equal(t, []string{"1", "2", "3"}, f.ordered(t, rankings.Recency))

	s := out.String()
	require.Equal(t, 1, strings.Count(s, "Flushing...\n"))
	require.Contains(t, s, "Handler: article - Typology: popularity\n")
	require.Contains(t, s, "Handler: article - Typology: recency\n")

	require.ElementsMatch(t, []string{
		"rankset:refresh:article:popularity",
		"rankset:refresh:article:recency",
	}, f.locker.obtained)
	require.ElementsMatch(t, f.locker.obtained, f.locker.released)
}

func TestRefreshRunDryRunTakesNoLocks(t *testing.T) {
	f := newRunnerFixture(t)

	var out bytes.Buffer
	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{DryRun: true, Progress: &out})
	require.NoError(t, err)
	for _, res := range report.Results {
		require.Equal(t, RefreshStatusDryRun, res.Status)
	}
	require.Empty(t, f.locker.obtained)
	require.Contains(t, out.String(), "Simulating flushing...\n")

	all, err := f.repo.ListAll(f.dbc, string(rankings.ArticleType))
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestRefreshRunLockedTypology(t *testing.T) {
	f := newRunnerFixture(t)
	f.locker.held[redis.RefreshLockKey("article", rankings.Popularity)] = true

	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{ContinueOnError: true})
	require.ErrorIs(t, err, redis.ErrNotObtained)
	require.Equal(t, 1, report.Failed())

	byTypology := map[string]TypologyResult{}
	for _, res := range report.Results {
		byTypology[res.Typology] = res
	}
	require.Equal(t, RefreshStatusLocked, byTypology[rankings.Popularity].Status)
	require.Equal(t, RefreshStatusOK, byTypology[rankings.Recency].Status)
	require.Equal(t, []string{"article/popularity"}, f.locks.keys)

	require.Empty(t, f.ordered(t, rankings.Popularity))
	require.Equal(t, []string{"1", "2", "3"}, f.ordered(t, rankings.Recency))
}

func TestRefreshRunStopsOnFirstFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.locker.held[redis.RefreshLockKey("article", rankings.Popularity)] = true

	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{Concurrency: 1})
	require.ErrorIs(t, err, redis.ErrNotObtained)
	// popularity sorts first, so recency never starts.
	require.Equal(t, RefreshStatusLocked, report.Results[0].Status)
	require.Equal(t, RefreshStatusSkipped, report.Results[1].Status)
	require.Empty(t, f.ordered(t, rankings.Recency))
}

func TestRefreshRunValidatesBeforeWork(t *testing.T) {
	f := newRunnerFixture(t)

	_, err := f.service.Run(f.dbc.Ctx, RefreshRequest{Models: []string{"video"}})
	require.ErrorIs(t, err, ranking.ErrModelNotRegistered)

	_, err = f.service.Run(f.dbc.Ctx, RefreshRequest{Typologies: []string{rankings.Recency, "freshness"}})
	require.ErrorIs(t, err, ranking.ErrTypologyNotImplemented)

	require.Empty(t, f.locker.obtained)
}

func TestRefreshRunSelection(t *testing.T) {
	f := newRunnerFixture(t)

	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{
		Models:     []string{"article", "article"},
		Typologies: []string{"-" + rankings.Recency, rankings.Recency},
	})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Equal(t, rankings.Recency, report.Results[0].Typology)
	require.Empty(t, f.ordered(t, rankings.Popularity))
}

func TestRefreshRunPurge(t *testing.T) {
	f := newRunnerFixture(t)
	testutil.SeedRankingEntries(t, f.dbc.Ctx, f.db, "article", rankings.Popularity, false, "1", "2")
	testutil.SeedRankingEntries(t, f.dbc.Ctx, f.db, "article", rankings.Recency, true, "3")

	var out bytes.Buffer
	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{Purge: true, DryRun: true, Progress: &out})
	require.NoError(t, err)
	require.Contains(t, out.String(), "Simulating purge...\n")
	require.Contains(t, out.String(), "Handler: article - Typology: popularity - would purge 2\n")
	var purged int64
	for _, res := range report.Results {
		purged += res.Purged
	}
	require.EqualValues(t, 2, purged)

	report, err = f.service.Run(f.dbc.Ctx, RefreshRequest{Purge: true})
	require.NoError(t, err)
	purged = 0
	for _, res := range report.Results {
		require.Equal(t, RefreshStatusOK, res.Status)
		purged += res.Purged
	}
	require.EqualValues(t, 2, purged)

	all, err := f.repo.ListAll(f.dbc, "article")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Usable)
}

func TestRefreshRunNotConfigured(t *testing.T) {
	var s *rankingRefreshService
	_, err := s.Run(context.Background(), RefreshRequest{})
	require.Error(t, err)

	_, err = (&rankingRefreshService{}).Run(context.Background(), RefreshRequest{})
	require.Error(t, err)
	require.False(t, errors.Is(err, ranking.ErrModelNotRegistered))
}

// slowArticles registers a single typology whose ranking waits for wait or
// for its context to end, then ranks articles 1..3.
func slowArticles(t *testing.T, f *runnerFixture, ttl, wait time.Duration) RankingRefreshService {
	t.Helper()
	log := testutil.Logger(t)
	reg := ranking.NewRegistry(f.db, f.repo, log)
	_, err := reg.Register(ranking.Entity{Type: rankings.ArticleType, Model: &catalog.Article{}}, ranking.Typologies{
		rankings.Popularity: func(dbc dbctx.Context) ([]any, error) {
			select {
			case <-dbc.Ctx.Done():
			case <-time.After(wait):
			}
			return ranking.IDs([]int64{1, 2, 3}), nil
		},
	})
	require.NoError(t, err)
	return NewRankingRefreshService(log, reg, f.locker, ttl, f.locks)
}

func TestRefreshRunExtendsLease(t *testing.T) {
	f := newRunnerFixture(t)
	svc := slowArticles(t, f, 20*time.Millisecond, 100*time.Millisecond)

	report, err := svc.Run(f.dbc.Ctx, RefreshRequest{})
	require.NoError(t, err)
	require.Equal(t, RefreshStatusOK, report.Results[0].Status)
	require.Positive(t, f.locker.refreshes)
	require.Equal(t, []string{"1", "2", "3"}, f.ordered(t, rankings.Popularity))
}

func TestRefreshRunLostLeaseAbortsTypology(t *testing.T) {
	f := newRunnerFixture(t)
	f.locker.refreshErr = redis.ErrLockLost
	svc := slowArticles(t, f, 20*time.Millisecond, 5*time.Second)

	started := time.Now()
	report, err := svc.Run(f.dbc.Ctx, RefreshRequest{})
	require.ErrorIs(t, err, redis.ErrLockLost)
	require.Less(t, time.Since(started), 5*time.Second)
	require.Equal(t, RefreshStatusFailed, report.Results[0].Status)
	require.ErrorIs(t, report.Results[0].Err, redis.ErrLockLost)
	require.Equal(t, f.locker.obtained, f.locker.released)

	all, err := f.repo.ListAll(f.dbc, string(rankings.ArticleType))
	require.NoError(t, err)
	require.Empty(t, all, "aborted generation must roll back")
}

func TestRefreshRunLeaseExpiredAtRelease(t *testing.T) {
	f := newRunnerFixture(t)
	f.locker.releaseErr = redis.ErrLockLost

	report, err := f.service.Run(f.dbc.Ctx, RefreshRequest{Typologies: []string{rankings.Recency}})
	require.ErrorIs(t, err, redis.ErrLockLost)
	require.Equal(t, RefreshStatusFailed, report.Results[0].Status)
	require.Equal(t, 1, report.Failed())
}
