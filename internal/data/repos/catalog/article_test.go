package catalog

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/yungbote/rankset/internal/data/repos/testutil"
	"github.com/yungbote/rankset/internal/domain/catalog"
	"github.com/yungbote/rankset/internal/platform/dbctx"
)

func TestArticleRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewArticleRepo(db, testutil.Logger(t))

	// 10 is the newest, 30 the oldest; 20 has the most views.
	testutil.SeedArticles(t, ctx, tx, []int64{10, 20, 30}, []int64{5, 50, 5})

	draftAt := time.Now().UTC()
	if _, err := repo.Create(dbc, []*catalog.Article{{ID: 40, Title: "draft", ViewCount: 1000, PublishedAt: &draftAt}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	byViews, err := repo.IDsByViews(dbc, 0)
	if err != nil {
		t.Fatalf("IDsByViews: %v", err)
	}
	if want := []int64{20, 10, 30}; !reflect.DeepEqual(byViews, want) {
		t.Fatalf("IDsByViews: want=%v got=%v", want, byViews)
	}

	byDate, err := repo.IDsByPublishedAt(dbc, 2)
	if err != nil {
		t.Fatalf("IDsByPublishedAt: %v", err)
	}
	if want := []int64{10, 20}; !reflect.DeepEqual(byDate, want) {
		t.Fatalf("IDsByPublishedAt: want=%v got=%v", want, byDate)
	}

	rows, err := repo.GetByIDs(dbc, []int64{30, 40})
	if err != nil || len(rows) != 2 {
		t.Fatalf("GetByIDs: err=%v len=%d", err, len(rows))
	}
}
