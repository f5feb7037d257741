package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/storytime/internal/model"
)

// PostColumns はpostsテーブルから読み出すカラムの並び。ScanPostと対応する。
const PostColumns = `id, site_id, user_id, type, title, slug, excerpt, draft_content, content,
	published, published_at, notify_subscribers, notifications_sent_at, created_at, updated_at`

// RowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type RowScanner interface {
	Scan(dest ...any) error
}

// ScanPost はPostColumnsの順で1行を読み出す。
// 検索アダプタもこの関数で結果を組み立てる。
func ScanPost(row RowScanner) (*model.Post, error) {
	post := &model.Post{}
	var postType string
	var publishedAt, sentAt sql.NullTime
	err := row.Scan(
		&post.ID, &post.SiteID, &post.UserID, &postType, &post.Title, &post.Slug,
		&post.Excerpt, &post.DraftContent, &post.Content,
		&post.Published, &publishedAt, &post.NotifySubscribers, &sentAt,
		&post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	post.Type = model.PostType(postType)
	if publishedAt.Valid {
		t := publishedAt.Time
		post.PublishedAt = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		post.NotificationsSentAt = &t
	}
	return post, nil
}

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

func (r *PostgresPostRepo) findOne(ctx context.Context, column, value string) (*model.Post, error) {
	post, err := ScanPost(r.db.QueryRowContext(ctx,
		`SELECT `+PostColumns+` FROM posts WHERE `+column+` = $1`,
		value,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return post, err
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	post, err := r.findOne(ctx, "id", id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return post, nil
}

// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	post, err := r.findOne(ctx, "slug", slug)
	if err != nil {
		return nil, fmt.Errorf("スラッグによる記事の取得に失敗しました: %w", err)
	}
	return post, nil
}

// Create は記事を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, site_id, user_id, type, title, slug, excerpt, draft_content, content,
		   published, published_at, notify_subscribers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		post.ID, post.SiteID, post.UserID, string(post.Type), post.Title, post.Slug,
		post.Excerpt, post.DraftContent, post.Content,
		post.Published, post.PublishedAt, post.NotifySubscribers, post.CreatedAt, post.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("記事の作成に失敗しました: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は記事の本文・公開状態を上書き更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $2, excerpt = $3, draft_content = $4, content = $5,
		   published = $6, published_at = $7, notify_subscribers = $8, updated_at = $9
		 WHERE id = $1`,
		post.ID, post.Title, post.Excerpt, post.DraftContent, post.Content,
		post.Published, post.PublishedAt, post.NotifySubscribers, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("記事が見つかりません: %s", post.ID)
	}
	return nil
}

// MarkNotificationsSent は通知送信日時を未送信の場合のみ記録する。
func (r *PostgresPostRepo) MarkNotificationsSent(ctx context.Context, id string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET notifications_sent_at = $2
		 WHERE id = $1 AND notifications_sent_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, fmt.Errorf("通知送信日時の記録に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	return rowsAffected == 1, nil
}

func buildPostWhere(filter PostFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.PublishedOnly {
		conds = append(conds, "published = true")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List は条件に一致する記事を新しい順に返す。
// 公開済みの記事は公開日時、下書きは作成日時で並べる。
func (r *PostgresPostRepo) List(ctx context.Context, filter PostFilter) ([]*model.Post, error) {
	where, args := buildPostWhere(filter)
	query := `SELECT ` + PostColumns + ` FROM posts` + where +
		` ORDER BY COALESCE(published_at, created_at) DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := ScanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return posts, nil
}

// Count は条件に一致する記事数を返す。
func (r *PostgresPostRepo) Count(ctx context.Context, filter PostFilter) (int, error) {
	where, args := buildPostWhere(filter)
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("記事数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
