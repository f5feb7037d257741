// Package model はドメインモデルを定義する。
package model

import "time"

// Role はダッシュボード利用者の権限ロールを表す。
type Role string

const (
	// RoleAdmin は全操作が可能な管理者。
	RoleAdmin Role = "admin"
	// RoleEditor は他人のコンテンツも編集・削除できる編集者。
	RoleEditor Role = "editor"
	// RoleWriter は自分のコンテンツのみ扱える執筆者。
	RoleWriter Role = "writer"
)

// User はホストアプリケーションのユーザーを表す。
// 認可判定ではリクエストを行うアクターとして扱う。
type User struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAdmin は管理者ロールかどうかを返す。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CanManageOthers は他人のコンテンツを扱えるロールかどうかを返す。
func (u *User) CanManageOthers() bool {
	return u != nil && (u.Role == RoleAdmin || u.Role == RoleEditor)
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
