package search

import (
	"context"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/model"
)

// NoneAdapter は検索アダプタ未設定時のアダプタ。
// 検索語による絞り込みを行わず、公開済みの記事を新しい順に返す。
type NoneAdapter struct{}

// Name はアダプタ名を返す。
func (NoneAdapter) Name() config.SearchAdapterName { return config.SearchAdapterNone }

// Driver は主データベースと同じPostgreSQLドライバを返す。
func (NoneAdapter) Driver() string { return database.DriverPostgres }

// Search は検索語を無視してスコープ内の公開済み記事を返す。
func (NoneAdapter) Search(ctx context.Context, q Querier, _ string, scope Scope) ([]*model.Post, error) {
	query, args := newPublishedQuery(dollar, scope).build(scope)
	return runQuery(ctx, q, query, args)
}
