// Package policy はダッシュボード操作の認可判定を提供する。
// ホストアプリケーションはAuthorizerを差し替えて独自の認可規則を使える。
package policy

import (
	"github.com/hitoshi/storytime/internal/model"
)

// Action は認可対象の操作。
type Action string

const (
	ActionIndex   Action = "index"
	ActionShow    Action = "show"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
	ActionPublish Action = "publish"
)

// Resource は認可対象のリソース種別。
type Resource string

const (
	ResourceMedia        Resource = "media"
	ResourcePost         Resource = "post"
	ResourceSubscription Resource = "subscription"
	ResourceSite         Resource = "site"
	ResourceSettings     Resource = "settings"
)

// Target は認可判定の対象。OwnerIDはコレクション操作では空。
type Target struct {
	Resource Resource
	OwnerID  string
}

// Authorizer は操作の可否を判定する。
// 未認証ならUNAUTHORIZED、権限不足ならFORBIDDENの*model.APIErrorを返す。
type Authorizer interface {
	Authorize(actor *model.User, action Action, target Target) error
}

// AuthorizerFunc は関数をAuthorizerとして扱うためのアダプタ。
type AuthorizerFunc func(actor *model.User, action Action, target Target) error

// Authorize はf(actor, action, target)を呼ぶ。
func (f AuthorizerFunc) Authorize(actor *model.User, action Action, target Target) error {
	return f(actor, action, target)
}

// RolePolicy はユーザーロールに基づく既定の認可規則。
//
//   - admin: 全操作
//   - editor: 購読者管理とサイト設定以外の全操作
//   - writer: 一覧・作成と、自分が所有するリソースの更新・削除・公開
type RolePolicy struct{}

// NewRolePolicy はRolePolicyを返す。
func NewRolePolicy() RolePolicy {
	return RolePolicy{}
}

// Authorize は操作の可否を判定する。
func (RolePolicy) Authorize(actor *model.User, action Action, target Target) error {
	if actor == nil {
		return model.NewUnauthorizedError()
	}
	if allowed(actor, action, target) {
		return nil
	}
	return model.NewForbiddenError(string(action), string(target.Resource))
}

func allowed(actor *model.User, action Action, target Target) bool {
	if actor.IsAdmin() {
		return true
	}

	switch target.Resource {
	case ResourceSubscription, ResourceSite:
		// サイトの閲覧以外は管理者のみ
		return target.Resource == ResourceSite && action == ActionShow
	case ResourceSettings:
		return action == ActionShow
	case ResourceMedia, ResourcePost:
		switch action {
		case ActionIndex, ActionShow, ActionCreate:
			return true
		case ActionUpdate, ActionDestroy, ActionPublish:
			return actor.CanManageOthers() || (target.OwnerID != "" && target.OwnerID == actor.ID)
		}
	}
	return false
}

// compile-time interface check
var _ Authorizer = RolePolicy{}
