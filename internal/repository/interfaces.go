// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/storytime/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// Create はユーザーを作成する。メールアドレスが重複する場合はErrUniqueViolationを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SiteRepository はサイト設定の永続化インターフェース。
type SiteRepository interface {
	// FindFirst は最初に作成されたサイトを返す。存在しない場合はnilを返す。
	FindFirst(ctx context.Context) (*model.Site, error)
	// Create はサイトを作成する。
	Create(ctx context.Context, site *model.Site) error
	// Update はタイトルとトップページ設定を更新する。
	Update(ctx context.Context, site *model.Site) error
}

// PostFilter は記事一覧の絞り込み条件。
type PostFilter struct {
	Type          model.PostType // 空なら全種別
	UserID        string         // 空なら全ユーザー
	PublishedOnly bool
	Limit         int
	Offset        int
}

// PostRepository は記事・固定ページの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)
	// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Post, error)
	// Create は記事を作成する。スラッグが重複する場合はErrUniqueViolationを返す。
	Create(ctx context.Context, post *model.Post) error
	// Update は記事の本文・公開状態を上書き更新する。
	Update(ctx context.Context, post *model.Post) error
	// MarkNotificationsSent は通知送信日時を未送信の場合のみ記録する。
	// 記録できた場合trueを返す。既に送信済みならfalseを返す。
	MarkNotificationsSent(ctx context.Context, id string, at time.Time) (bool, error)
	// List は条件に一致する記事を新しい順に返す。
	List(ctx context.Context, filter PostFilter) ([]*model.Post, error)
	// Count は条件に一致する記事数を返す。LimitとOffsetは無視する。
	Count(ctx context.Context, filter PostFilter) (int, error)
}

// MediaRepository はアップロードメディアの永続化インターフェース。
type MediaRepository interface {
	// FindByID は指定IDのメディアを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Media, error)
	// Create はメディアを作成する。
	Create(ctx context.Context, media *model.Media) error
	// Delete は指定IDのメディアを削除する。
	Delete(ctx context.Context, id string) error
	// List はメディアを作成日時の降順で返す。
	List(ctx context.Context, limit, offset int) ([]*model.Media, error)
	// Count はメディアの総数を返す。
	Count(ctx context.Context) (int, error)
}

// SubscriptionRepository はメール購読者の永続化インターフェース。
type SubscriptionRepository interface {
	// FindByID は指定IDの購読を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Subscription, error)
	// FindByEmail はメールアドレスで購読を検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Subscription, error)
	// FindByToken はトークンで購読を検索する。見つからない場合はnilを返す。
	FindByToken(ctx context.Context, token string) (*model.Subscription, error)
	// Create は購読を作成する。メールアドレスが重複する場合はErrUniqueViolationを返す。
	Create(ctx context.Context, sub *model.Subscription) error
	// Unsubscribe は購読を停止状態にする。既に停止済みでもエラーにならない。
	Unsubscribe(ctx context.Context, id string) error
	// ListActive はサイトの購読中の購読者を返す。site_id未設定の購読も含む。
	ListActive(ctx context.Context, siteID string) ([]*model.Subscription, error)
	// List は全購読を作成日時の降順で返す。
	List(ctx context.Context, limit, offset int) ([]*model.Subscription, error)
	// Count は全購読数を返す。
	Count(ctx context.Context) (int, error)
}
