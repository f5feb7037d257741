package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/storytime/internal/database"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/repository"
)

// Indexer は記事の変更を検索用データベースへ反映する。
type Indexer interface {
	Index(ctx context.Context, post *model.Post) error
}

// PostSource はRebuildが全記事を読み出す元。repository.PostRepositoryが満たす。
type PostSource interface {
	List(ctx context.Context, filter repository.PostFilter) ([]*model.Post, error)
}

// Execer は書き込みクエリの実行に必要なインターフェース。*sql.DBと*sql.Txが満たす。
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rebuildBatch はRebuildで1回に読み出す記事数。
const rebuildBatch = 200

const mysqlPostsSchema = `CREATE TABLE IF NOT EXISTS posts (
	id                    VARCHAR(36) PRIMARY KEY,
	site_id               VARCHAR(36) NOT NULL,
	user_id               VARCHAR(36) NOT NULL,
	type                  VARCHAR(64) NOT NULL,
	title                 VARCHAR(255) NOT NULL,
	slug                  VARCHAR(255) NOT NULL,
	excerpt               TEXT NOT NULL,
	draft_content         MEDIUMTEXT NOT NULL,
	content               MEDIUMTEXT NOT NULL,
	published             BOOLEAN NOT NULL,
	published_at          DATETIME(6) NULL,
	notify_subscribers    BOOLEAN NOT NULL,
	notifications_sent_at DATETIME(6) NULL,
	created_at            DATETIME(6) NOT NULL,
	updated_at            DATETIME(6) NOT NULL,
	FULLTEXT KEY posts_title_content_fulltext (title, content)
) DEFAULT CHARSET=utf8mb4`

const sqlitePostsSchema = `CREATE TABLE IF NOT EXISTS posts (
	id                    TEXT PRIMARY KEY,
	site_id               TEXT NOT NULL,
	user_id               TEXT NOT NULL,
	type                  TEXT NOT NULL,
	title                 TEXT NOT NULL,
	slug                  TEXT NOT NULL,
	excerpt               TEXT NOT NULL DEFAULT '',
	draft_content         TEXT NOT NULL DEFAULT '',
	content               TEXT NOT NULL DEFAULT '',
	published             BOOLEAN NOT NULL,
	published_at          DATETIME,
	notify_subscribers    BOOLEAN NOT NULL DEFAULT 1,
	notifications_sent_at DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
)`

// mirrorColumns はREPLACE文で書き込むカラム。PostColumnsと同じ並び。
var mirrorColumns = []string{
	"id", "site_id", "user_id", "type", "title", "slug", "excerpt", "draft_content", "content",
	"published", "published_at", "notify_subscribers", "notifications_sent_at", "created_at", "updated_at",
}

// Mirror はPostgreSQL以外の方言の検索用データベースに記事の写しを保持する。
// 主データベースへの書き込み後にIndexを呼び、起動時にRebuildで全件を同期する。
type Mirror struct {
	db     Execer
	schema string
	upsert string
	logger *slog.Logger
}

// NewMirror はadapterの方言に対応するMirrorを返す。
// PostgreSQL方言のアダプタは主データベースを直接検索するため対象外。
func NewMirror(adapter Adapter, db Execer) (*Mirror, error) {
	var schema string
	switch adapter.Driver() {
	case database.DriverMySQL:
		schema = mysqlPostsSchema
	case database.DriverSQLite:
		schema = sqlitePostsSchema
	default:
		return nil, fmt.Errorf("search adapter %q does not use a mirrored index", adapter.Name())
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(mirrorColumns)), ", ")
	return &Mirror{
		db:     db,
		schema: schema,
		// REPLACE INTOはMySQLとSQLiteの両方で主キー衝突時に行を置き換える
		upsert: "REPLACE INTO posts (" + strings.Join(mirrorColumns, ", ") + ") VALUES (" + placeholders + ")",
		logger: slog.Default(),
	}, nil
}

// EnsureSchema は検索用のpostsテーブルが無ければ作成する。
func (m *Mirror) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, m.schema); err != nil {
		return fmt.Errorf("検索用テーブルの作成に失敗しました: %w", err)
	}
	return nil
}

// Index は記事1件を検索用データベースに書き込む。既存の行は置き換える。
func (m *Mirror) Index(ctx context.Context, post *model.Post) error {
	_, err := m.db.ExecContext(ctx, m.upsert,
		post.ID, post.SiteID, post.UserID, string(post.Type), post.Title, post.Slug,
		post.Excerpt, post.DraftContent, post.Content,
		post.Published, nullTime(post.PublishedAt), post.NotifySubscribers, nullTime(post.NotificationsSentAt),
		post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("検索インデックスの更新に失敗しました: %w", err)
	}
	return nil
}

// Rebuild は検索用データベースの記事を全件削除し、srcの全記事で作り直す。
// 書き込んだ件数を返す。
func (m *Mirror) Rebuild(ctx context.Context, src PostSource) (int, error) {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM posts"); err != nil {
		return 0, fmt.Errorf("検索インデックスの削除に失敗しました: %w", err)
	}

	total := 0
	for offset := 0; ; offset += rebuildBatch {
		posts, err := src.List(ctx, repository.PostFilter{Limit: rebuildBatch, Offset: offset})
		if err != nil {
			return total, fmt.Errorf("記事の読み出しに失敗しました: %w", err)
		}
		for _, p := range posts {
			if err := m.Index(ctx, p); err != nil {
				return total, err
			}
			total++
		}
		if len(posts) < rebuildBatch {
			break
		}
	}

	m.logger.InfoContext(ctx, "検索インデックスを再構築しました", slog.Int("post_count", total))
	return total, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
