package search

import (
	"context"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/model"
)

// SQLiteAdapter はLIKE ... ESCAPEで部分一致検索する。
type SQLiteAdapter struct{}

// Name はアダプタ名を返す。
func (SQLiteAdapter) Name() config.SearchAdapterName { return config.SearchAdapterSQLite3 }

// Driver はmodernc.org/sqliteのドライバ名を返す。
func (SQLiteAdapter) Driver() string { return database.DriverSQLite }

// Search は検索語を含む公開済み記事を新しい順に返す。
func (SQLiteAdapter) Search(ctx context.Context, q Querier, term string, scope Scope) ([]*model.Post, error) {
	b := newPublishedQuery(question, scope)
	pattern := likePattern(term)
	b.where(`(title LIKE ` + b.arg(pattern) + ` ESCAPE '\' OR content LIKE ` + b.arg(pattern) + ` ESCAPE '\')`)

	query, args := b.build(scope)
	return runQuery(ctx, q, query, args)
}
