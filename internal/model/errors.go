// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"sort"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string              // エラーコード
	Message  string              // エラーメッセージ
	Category string              // カテゴリ: auth, validation, media, subscription, post, system
	Action   string              // ユーザー向け対処方法
	Fields   map[string][]string // フィールド単位の検証メッセージ（検証エラーのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.FieldSummary())
}

// FieldSummary はフィールドエラーを "field: msg, msg; field: msg" 形式で返す。
// フィールド名の昇順に並べるため出力は決定的になる。
func (e *APIError) FieldSummary() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+strings.Join(e.Fields[name], ", "))
	}
	return strings.Join(parts, "; ")
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeMediaNotFound        = "MEDIA_NOT_FOUND"
	ErrCodeSubscriptionNotFound = "SUBSCRIPTION_NOT_FOUND"
	ErrCodePostNotFound         = "POST_NOT_FOUND"
	ErrCodeSiteNotFound         = "SITE_NOT_FOUND"
	ErrCodeSiteAlreadyExists    = "SITE_ALREADY_EXISTS"
	ErrCodeUploadsDisabled      = "UPLOADS_DISABLED"
	ErrCodeSearchTermRequired   = "SEARCH_TERM_REQUIRED"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
)

// 検証メッセージ
const (
	MsgBlank    = "can't be blank"
	MsgInvalid  = "is invalid"
	MsgTaken    = "has already been taken"
	MsgTooLong  = "is too long"
	MsgNotAllow = "is not included in the list"
)

// ValidationErrors はフィールド単位の検証エラーを蓄積する。
type ValidationErrors map[string][]string

// Add はフィールドに検証メッセージを追加する。
func (v ValidationErrors) Add(field, msg string) {
	v[field] = append(v[field], msg)
}

// Any は検証エラーが1件以上あるかを返す。
func (v ValidationErrors) Any() bool {
	return len(v) > 0
}

// Err は検証エラーがあればAPIErrorを、なければnilを返す。
func (v ValidationErrors) Err() error {
	if !v.Any() {
		return nil
	}
	return NewValidationError(v)
}

// NewValidationError は検証エラーを生成する。
func NewValidationError(fields map[string][]string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各項目のエラーメッセージを確認して再度送信してください。",
		Fields:   fields,
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError(action, resource string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を実行する権限がありません: %s %s", action, resource),
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewMediaNotFoundError はメディア未検出エラーを生成する。
func NewMediaNotFoundError(mediaID string) *APIError {
	return &APIError{
		Code:     ErrCodeMediaNotFound,
		Message:  fmt.Sprintf("指定されたメディアが見つかりません: %s", mediaID),
		Category: "media",
		Action:   "メディアIDを確認してください。",
	}
}

// NewSubscriptionNotFoundError は購読者が見つからない場合のエラーを生成する。
func NewSubscriptionNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定された購読が見つかりません: %s", ref),
		Category: "subscription",
		Action:   "配信停止リンクが正しいか確認してください。",
	}
}

// NewPostNotFoundError は投稿未検出エラーを生成する。
func NewPostNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された投稿が見つかりません: %s", ref),
		Category: "post",
		Action:   "投稿IDまたはスラッグを確認してください。",
	}
}

// NewSiteNotFoundError はサイト未設定エラーを生成する。
func NewSiteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSiteNotFound,
		Message:  "サイトがまだ設定されていません。",
		Category: "system",
		Action:   "ダッシュボードからサイトの初期設定を行ってください。",
	}
}

// NewSiteAlreadyExistsError はサイト重複作成エラーを生成する。
func NewSiteAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeSiteAlreadyExists,
		Message:  "サイトは既に設定されています。",
		Category: "system",
		Action:   "既存のサイト設定を利用してください。",
	}
}

// NewUploadsDisabledError はファイルアップロード無効時のエラーを生成する。
func NewUploadsDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeUploadsDisabled,
		Message:  "ファイルアップロードは無効化されています。",
		Category: "media",
		Action:   "管理者にファイルアップロードの有効化を依頼してください。",
	}
}

// NewSearchTermRequiredError は検索語未指定エラーを生成する。
func NewSearchTermRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSearchTermRequired,
		Message:  "検索語が指定されていません。",
		Category: "validation",
		Action:   "検索語を入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
