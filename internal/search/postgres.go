package search

import (
	"context"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/model"
)

// postsDocument はpostsテーブルのGINインデックスと同じ式でなければならない。
const postsDocument = "to_tsvector('english', title || ' ' || content)"

// PostgresAdapter はtsvectorとplainto_tsqueryで検索し、ts_rankの降順に並べる。
type PostgresAdapter struct{}

// Name はアダプタ名を返す。
func (PostgresAdapter) Name() config.SearchAdapterName { return config.SearchAdapterPostgres }

// Driver はlib/pqのドライバ名を返す。
func (PostgresAdapter) Driver() string { return database.DriverPostgres }

// Search は検索語に一致する公開済み記事を関連度順に返す。
func (PostgresAdapter) Search(ctx context.Context, q Querier, term string, scope Scope) ([]*model.Post, error) {
	b := newPublishedQuery(dollar, scope)
	tsquery := "plainto_tsquery('english', " + b.arg(term) + ")"
	b.where(postsDocument + " @@ " + tsquery)
	b.order = "ts_rank(" + postsDocument + ", " + tsquery + ") DESC, published_at DESC, id"

	query, args := b.build(scope)
	return runQuery(ctx, q, query, args)
}
