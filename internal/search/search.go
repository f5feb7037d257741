// Package search は設定で選択される全文検索アダプタを提供する。
// 各アダプタは自身のSQL方言とdatabase/sqlドライバを持ち、公開済みの記事だけを検索する。
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/repository"
)

// Querier は検索クエリの実行に必要なインターフェース。*sql.DBと*sql.Txが満たす。
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Scope は検索対象の絞り込み条件。
type Scope struct {
	PostType model.PostType // 空なら全種別
	Limit    int            // 0以下なら無制限
	Offset   int
}

// Adapter は全文検索アダプタのインターフェース。
type Adapter interface {
	// Name は設定値としてのアダプタ名を返す。
	Name() config.SearchAdapterName
	// Driver は検索用接続に必要なdatabase/sqlドライバ名を返す。
	Driver() string
	// Search は公開済みの記事から検索語に一致するものを返す。
	Search(ctx context.Context, q Querier, term string, scope Scope) ([]*model.Post, error)
}

// New はアダプタ名に対応するAdapterを返す。
// 認識できない名前はエラーになる。
func New(name config.SearchAdapterName) (Adapter, error) {
	switch name {
	case config.SearchAdapterNone:
		return NoneAdapter{}, nil
	case config.SearchAdapterPostgres:
		return PostgresAdapter{}, nil
	case config.SearchAdapterMySQL:
		return MySQLAdapter{}, nil
	case config.SearchAdapterMySQLFulltext:
		return MySQLFulltextAdapter{}, nil
	case config.SearchAdapterSQLite3:
		return SQLiteAdapter{}, nil
	default:
		return nil, fmt.Errorf("unknown search adapter %q", name)
	}
}

// queryBuilder はプレースホルダ形式の違いを吸収してSELECT文を組み立てる。
type queryBuilder struct {
	placeholder func(n int) string
	conds       []string
	args        []any
	order       string
}

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func question(int) string { return "?" }

// arg は引数を追加してプレースホルダを返す。
func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.placeholder(len(b.args))
}

func (b *queryBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

// build はSELECT文と引数を返す。
// "?"形式では引数の順序が文中の出現順と一致している必要があるため、LIMITとOFFSETは最後に積む。
func (b *queryBuilder) build(scope Scope) (string, []any) {
	query := "SELECT " + repository.PostColumns + " FROM posts"
	if len(b.conds) > 0 {
		query += " WHERE " + strings.Join(b.conds, " AND ")
	}
	query += " ORDER BY " + b.order
	if scope.Limit > 0 {
		query += " LIMIT " + b.arg(scope.Limit) + " OFFSET " + b.arg(scope.Offset)
	}
	return query, b.args
}

// newPublishedQuery は公開済みかつスコープの種別に一致する記事を対象とするbuilderを返す。
func newPublishedQuery(placeholder func(int) string, scope Scope) *queryBuilder {
	b := &queryBuilder{placeholder: placeholder, order: "published_at DESC, id"}
	b.where("published = " + b.arg(true))
	if scope.PostType != "" {
		b.where("type = " + b.arg(string(scope.PostType)))
	}
	return b
}

func runQuery(ctx context.Context, q Querier, query string, args []any) ([]*model.Post, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("検索クエリの実行に失敗しました: %w", err)
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		post, err := repository.ScanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("検索結果の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("検索結果の走査に失敗しました: %w", err)
	}
	return posts, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern は検索語をLIKEの部分一致パターンに変換する。
// ワイルドカード文字はバックスラッシュでエスケープする。
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
