package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/storytime/internal/model"
)

// PostgresMediaRepo はPostgreSQLを使用したメディアリポジトリ。
type PostgresMediaRepo struct {
	db *sql.DB
}

// NewPostgresMediaRepo はPostgresMediaRepoを生成する。
func NewPostgresMediaRepo(db *sql.DB) *PostgresMediaRepo {
	return &PostgresMediaRepo{db: db}
}

const mediaColumns = `id, file_key, file_name, content_type, size, user_id, created_at`

func scanMedia(row RowScanner) (*model.Media, error) {
	m := &model.Media{}
	if err := row.Scan(&m.ID, &m.FileKey, &m.FileName, &m.ContentType, &m.Size, &m.UserID, &m.CreatedAt); err != nil {
		return nil, err
	}
	return m, nil
}

// FindByID は指定IDのメディアを取得する。見つからない場合はnilを返す。
func (r *PostgresMediaRepo) FindByID(ctx context.Context, id string) (*model.Media, error) {
	m, err := scanMedia(r.db.QueryRowContext(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メディアの取得に失敗しました: %w", err)
	}
	return m, nil
}

// Create はメディアを作成する。
func (r *PostgresMediaRepo) Create(ctx context.Context, m *model.Media) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media (id, file_key, file_name, content_type, size, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.FileKey, m.FileName, m.ContentType, m.Size, m.UserID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("メディアの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのメディアを削除する。
func (r *PostgresMediaRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("メディアの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除結果の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("メディアが見つかりません: %s", id)
	}
	return nil
}

// List はメディアを作成日時の降順で返す。
func (r *PostgresMediaRepo) List(ctx context.Context, limit, offset int) ([]*model.Media, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("メディア一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var media []*model.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("メディア行の読み取りに失敗しました: %w", err)
		}
		media = append(media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メディア一覧の走査に失敗しました: %w", err)
	}
	return media, nil
}

// Count はメディアの総数を返す。
func (r *PostgresMediaRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media`).Scan(&count); err != nil {
		return 0, fmt.Errorf("メディア数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ MediaRepository = (*PostgresMediaRepo)(nil)
