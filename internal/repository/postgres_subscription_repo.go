package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/storytime/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用した購読リポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

const subscriptionColumns = `id, site_id, email, subscribed, token, created_at, updated_at`

func scanSubscription(row RowScanner) (*model.Subscription, error) {
	sub := &model.Subscription{}
	var siteID sql.NullString
	if err := row.Scan(&sub.ID, &siteID, &sub.Email, &sub.Subscribed, &sub.Token, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return nil, err
	}
	sub.SiteID = siteID.String
	return sub, nil
}

func (r *PostgresSubscriptionRepo) findOne(ctx context.Context, column, value string) (*model.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE `+column+` = $1`, value,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sub, err
}

// FindByID は指定IDの購読を取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := r.findOne(ctx, "id", id)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	return sub, nil
}

// FindByEmail はメールアドレスで購読を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	sub, err := r.findOne(ctx, "email", email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスによる購読の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// FindByToken はトークンで購読を検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByToken(ctx context.Context, token string) (*model.Subscription, error) {
	sub, err := r.findOne(ctx, "token", token)
	if err != nil {
		return nil, fmt.Errorf("トークンによる購読の検索に失敗しました: %w", err)
	}
	return sub, nil
}

// Create は購読を作成する。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, site_id, email, subscribed, token, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sub.ID, nullString(sub.SiteID), sub.Email, sub.Subscribed, sub.Token, sub.CreatedAt, sub.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("購読の作成に失敗しました: %w", ErrUniqueViolation)
	}
	if err != nil {
		return fmt.Errorf("購読の作成に失敗しました: %w", err)
	}
	return nil
}

// Unsubscribe は購読を停止状態にする。既に停止済みでもエラーにならない。
func (r *PostgresSubscriptionRepo) Unsubscribe(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET subscribed = false, updated_at = now()
		 WHERE id = $1 AND subscribed = true`,
		id,
	)
	if err != nil {
		return fmt.Errorf("購読の停止に失敗しました: %w", err)
	}
	return nil
}

func (r *PostgresSubscriptionRepo) queryList(ctx context.Context, query string, args ...any) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("購読行の読み取りに失敗しました: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("購読一覧の走査に失敗しました: %w", err)
	}
	return subs, nil
}

// ListActive はサイトの購読中の購読者を返す。
// サイト作成前に登録されsite_idを持たない購読も対象に含める。
func (r *PostgresSubscriptionRepo) ListActive(ctx context.Context, siteID string) ([]*model.Subscription, error) {
	return r.queryList(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE (site_id = $1 OR site_id IS NULL) AND subscribed = true ORDER BY created_at ASC`,
		siteID,
	)
}

// List は全購読を作成日時の降順で返す。
func (r *PostgresSubscriptionRepo) List(ctx context.Context, limit, offset int) ([]*model.Subscription, error) {
	return r.queryList(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		limit, offset,
	)
}

// Count は全購読数を返す。
func (r *PostgresSubscriptionRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("購読数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
