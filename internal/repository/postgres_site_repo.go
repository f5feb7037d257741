package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/storytime/internal/model"
)

// PostgresSiteRepo はPostgreSQLを使用したサイト設定リポジトリ。
type PostgresSiteRepo struct {
	db *sql.DB
}

// NewPostgresSiteRepo はPostgresSiteRepoを生成する。
func NewPostgresSiteRepo(db *sql.DB) *PostgresSiteRepo {
	return &PostgresSiteRepo{db: db}
}

// FindFirst は最初に作成されたサイトを返す。存在しない場合はnilを返す。
func (r *PostgresSiteRepo) FindFirst(ctx context.Context) (*model.Site, error) {
	site := &model.Site{}
	var rootContent string
	var rootPostID sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, root_page_content, root_post_id, created_at, updated_at
		 FROM sites ORDER BY created_at ASC LIMIT 1`,
	).Scan(&site.ID, &site.Title, &rootContent, &rootPostID, &site.CreatedAt, &site.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}

	site.RootPageContent = model.RootPageContent(rootContent)
	site.RootPostID = rootPostID.String
	return site, nil
}

// Create はサイトを作成する。
func (r *PostgresSiteRepo) Create(ctx context.Context, site *model.Site) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sites (id, title, root_page_content, root_post_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		site.ID, site.Title, string(site.RootPageContent), nullString(site.RootPostID), site.CreatedAt, site.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタイトルとトップページ設定を更新する。
func (r *PostgresSiteRepo) Update(ctx context.Context, site *model.Site) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE sites SET title = $2, root_page_content = $3, root_post_id = $4, updated_at = $5
		 WHERE id = $1`,
		site.ID, site.Title, string(site.RootPageContent), nullString(site.RootPostID), site.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("サイトの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("サイトが見つかりません: %s", site.ID)
	}
	return nil
}

// compile-time interface check
var _ SiteRepository = (*PostgresSiteRepo)(nil)
