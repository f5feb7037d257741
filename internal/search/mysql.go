package search

import (
	"context"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/model"
)

// MySQLAdapter はタイトルと本文のLIKE部分一致で検索する。
type MySQLAdapter struct{}

// Name はアダプタ名を返す。
func (MySQLAdapter) Name() config.SearchAdapterName { return config.SearchAdapterMySQL }

// Driver はgo-sql-driver/mysqlのドライバ名を返す。
func (MySQLAdapter) Driver() string { return database.DriverMySQL }

// Search は検索語を含む公開済み記事を新しい順に返す。
func (MySQLAdapter) Search(ctx context.Context, q Querier, term string, scope Scope) ([]*model.Post, error) {
	b := newPublishedQuery(question, scope)
	pattern := likePattern(term)
	b.where("(title LIKE " + b.arg(pattern) + " OR content LIKE " + b.arg(pattern) + ")")

	query, args := b.build(scope)
	return runQuery(ctx, q, query, args)
}

// MySQLFulltextAdapter はFULLTEXTインデックスのMATCH ... AGAINSTで検索し、関連度順に並べる。
// postsテーブルに (title, content) のFULLTEXTインデックスが必要。
type MySQLFulltextAdapter struct{}

// Name はアダプタ名を返す。
func (MySQLFulltextAdapter) Name() config.SearchAdapterName {
	return config.SearchAdapterMySQLFulltext
}

// Driver はgo-sql-driver/mysqlのドライバ名を返す。
func (MySQLFulltextAdapter) Driver() string { return database.DriverMySQL }

// Search は検索語に一致する公開済み記事を関連度順に返す。
func (MySQLFulltextAdapter) Search(ctx context.Context, q Querier, term string, scope Scope) ([]*model.Post, error) {
	b := newPublishedQuery(question, scope)
	b.where("MATCH(title, content) AGAINST(" + b.arg(term) + " IN NATURAL LANGUAGE MODE)")
	b.order = "MATCH(title, content) AGAINST(" + b.arg(term) + " IN NATURAL LANGUAGE MODE) DESC, published_at DESC, id"

	query, args := b.build(scope)
	return runQuery(ctx, q, query, args)
}
