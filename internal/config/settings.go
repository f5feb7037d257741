// Package config はプロセス設定（環境変数）とエンジン設定（Settings）を提供する。
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/security"
)

// ErrAlreadyConfigured はConfigureが2回以上呼ばれた場合に返される。
var ErrAlreadyConfigured = errors.New("settings are already configured")

// DefaultEmailPattern は購読メールアドレスの形式検証に使う既定の正規表現。
const DefaultEmailPattern = `\A[^@\s]+@([^@\s]+\.)+[^@\s]+\z`

// SearchAdapterName は全文検索アダプタの識別子。
type SearchAdapterName string

const (
	// SearchAdapterNone は全文検索を無効にする。
	SearchAdapterNone SearchAdapterName = ""
	// SearchAdapterPostgres はPostgreSQLのtsvectorを使う。
	SearchAdapterPostgres SearchAdapterName = "postgres"
	// SearchAdapterMySQL はMySQLのLIKE検索を使う。
	SearchAdapterMySQL SearchAdapterName = "mysql"
	// SearchAdapterMySQLFulltext はMySQLのMATCH ... AGAINSTを使う。
	SearchAdapterMySQLFulltext SearchAdapterName = "mysql_fulltext"
	// SearchAdapterSQLite3 はSQLiteのLIKE検索を使う。
	SearchAdapterSQLite3 SearchAdapterName = "sqlite3"
)

// SearchAdapterNames は認識される全アダプタ名を返す。
func SearchAdapterNames() []SearchAdapterName {
	return []SearchAdapterName{
		SearchAdapterNone,
		SearchAdapterPostgres,
		SearchAdapterMySQL,
		SearchAdapterMySQLFulltext,
		SearchAdapterSQLite3,
	}
}

// ParseSearchAdapterName は文字列をアダプタ名に変換する。
// 認識できない値はエラーになる。
func ParseSearchAdapterName(s string) (SearchAdapterName, error) {
	name := SearchAdapterName(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range SearchAdapterNames() {
		if name == known {
			return name, nil
		}
	}
	return "", fmt.Errorf("unknown search adapter %q", s)
}

// MediaStorage はメディアファイルの保存先。
type MediaStorage string

const (
	// MediaStorageFile はローカルファイルシステムに保存する。
	MediaStorageFile MediaStorage = "file"
	// MediaStorageS3 はAWS S3に保存する。
	MediaStorageS3 MediaStorage = "s3"
	// MediaStorageMinio はS3互換のMinIOに保存する。
	MediaStorageMinio MediaStorage = "minio"
)

// PublishHook は通知付きで投稿が公開されたときに呼ばれる関数。
type PublishHook func(ctx context.Context, post *model.Post) error

// Settings はエンジンの振る舞いを決める設定の集合。
// 起動時にConfigureで1回だけ変更し、以後は読み取り専用として各コンポーネントに渡す。
// 書き込みは起動時の1回に限られるためロックは持たない。
type Settings struct {
	// ユーザーモデルのクラス名。"Admin::User" のような名前空間付きも可。
	UserClass string

	// マウントポイントからの相対パス
	DashboardNamespacePath string
	HomePagePath           string
	LoginPath              string
	LogoutPath             string
	LogoutMethod           string

	EnableFileUpload bool

	PostTitleCharacterLimit   int
	PostExcerptCharacterLimit int

	// 空の場合は既定のタグ一覧を許可する
	WhitelistedPostHTMLTags []string

	// nilの場合はWhitelistedPostHTMLTagsに基づく既定のサニタイザを使う
	PostSanitizer func(draftContent string) string

	DisqusForumShortname string
	DiscourseName        string

	EmailRegexp           *regexp.Regexp
	SubscriptionEmailFrom string

	// nilの場合は何もしない
	OnPublishWithNotifications PublishHook

	SearchAdapter SearchAdapterName

	Layout       string
	MediaStorage MediaStorage
	S3Bucket     string
	PostTypes    []string

	defaultSanitizer *security.PostSanitizer
	configured       bool
}

// DefaultSettings は既定値で初期化されたSettingsを返す。
func DefaultSettings() *Settings {
	return &Settings{
		UserClass:                 "User",
		DashboardNamespacePath:    "/storytime",
		HomePagePath:              "/",
		LoginPath:                 "/users/sign_in",
		LogoutPath:                "/users/sign_out",
		LogoutMethod:              http.MethodDelete,
		EnableFileUpload:          true,
		PostTitleCharacterLimit:   255,
		PostExcerptCharacterLimit: 500,
		EmailRegexp:               regexp.MustCompile(DefaultEmailPattern),
		SubscriptionEmailFrom:     "no-reply@example.com",
		SearchAdapter:             SearchAdapterNone,
		MediaStorage:              MediaStorageFile,
		defaultSanitizer:          security.NewPostSanitizer(nil),
	}
}

// Configure はfnにSettingsを渡して一括変更させる。
// 呼び出しは1回限りで、2回目以降はErrAlreadyConfiguredを返す。
// fnの実行後に値を検証し、不正な値があればエラーを返す。
func (s *Settings) Configure(fn func(*Settings)) error {
	if s.configured {
		return ErrAlreadyConfigured
	}
	s.configured = true

	if s.PostTypes == nil {
		s.PostTypes = []string{}
	}

	if fn != nil {
		fn(s)
	}

	s.LogoutMethod = strings.ToUpper(s.LogoutMethod)
	if name, err := ParseSearchAdapterName(string(s.SearchAdapter)); err == nil {
		s.SearchAdapter = name
	}
	s.defaultSanitizer = security.NewPostSanitizer(s.WhitelistedPostHTMLTags)

	return s.Validate()
}

// Configured はConfigureが呼ばれたかどうかを返す。
func (s *Settings) Configured() bool {
	return s.configured
}

var userClassPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*(::[A-Z][A-Za-z0-9]*)*$`)

// Validate は設定値を検証する。
// 全ての不正値をまとめて1つのエラーとして返す。
func (s *Settings) Validate() error {
	var errs []error

	if !userClassPattern.MatchString(s.UserClass) {
		errs = append(errs, fmt.Errorf("user class %q is not a valid class name", s.UserClass))
	}
	if _, err := ParseSearchAdapterName(string(s.SearchAdapter)); err != nil {
		errs = append(errs, err)
	}
	for name, p := range map[string]string{
		"dashboard namespace path": s.DashboardNamespacePath,
		"home page path":           s.HomePagePath,
		"login path":               s.LoginPath,
		"logout path":              s.LogoutPath,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s %q must start with '/'", name, p))
		}
	}
	switch s.LogoutMethod {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		errs = append(errs, fmt.Errorf("logout method %q must be one of GET, POST, DELETE", s.LogoutMethod))
	}
	if s.PostTitleCharacterLimit <= 0 || s.PostTitleCharacterLimit > 255 {
		errs = append(errs, fmt.Errorf("post title character limit must be between 1 and 255, got %d", s.PostTitleCharacterLimit))
	}
	if s.PostExcerptCharacterLimit <= 0 {
		errs = append(errs, fmt.Errorf("post excerpt character limit must be positive, got %d", s.PostExcerptCharacterLimit))
	}
	if s.EmailRegexp == nil {
		errs = append(errs, errors.New("email regexp must be set"))
	}
	switch s.MediaStorage {
	case MediaStorageFile:
	case MediaStorageS3, MediaStorageMinio:
		if s.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("media storage %q requires s3 bucket", s.MediaStorage))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown media storage %q", s.MediaStorage))
	}

	return errors.Join(errs...)
}

// SanitizePost は投稿本文をサニタイズする。
// PostSanitizerが設定されていればそれを使い、なければ既定のサニタイザを使う。
func (s *Settings) SanitizePost(draftContent string) string {
	if s.PostSanitizer != nil {
		return s.PostSanitizer(draftContent)
	}
	if s.defaultSanitizer == nil {
		return security.NewPostSanitizer(s.WhitelistedPostHTMLTags).Sanitize(draftContent)
	}
	return s.defaultSanitizer.Sanitize(draftContent)
}

// NotifyPublished は公開通知フックを呼び出す。フック未設定の場合は何もしない。
func (s *Settings) NotifyPublished(ctx context.Context, post *model.Post) error {
	if s.OnPublishWithNotifications == nil {
		return nil
	}
	return s.OnPublishWithNotifications(ctx, post)
}

// ValidEmail はメールアドレスがEmailRegexpに一致するかを返す。
func (s *Settings) ValidEmail(email string) bool {
	return s.EmailRegexp != nil && s.EmailRegexp.MatchString(email)
}

var (
	acronymBoundary = regexp.MustCompile(`([A-Z\d]+)([A-Z][a-z])`)
	wordBoundary    = regexp.MustCompile(`([a-z\d])([A-Z])`)
)

// underscore はCamelCaseのクラス名をsnake_caseのパスに変換する。
// "Admin::EditorUser" は "admin/editor_user" になる。
func underscore(className string) string {
	s := strings.ReplaceAll(className, "::", "/")
	s = acronymBoundary.ReplaceAllString(s, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}

// UserClassUnderscore はユーザークラス名のsnake_case形式を返す。
func (s *Settings) UserClassUnderscore() string {
	return underscore(s.UserClass)
}

// UserClassUnderscoreAll は名前空間の区切りも "_" にしたsnake_case形式を返す。
func (s *Settings) UserClassUnderscoreAll() string {
	return strings.ReplaceAll(underscore(s.UserClass), "/", "_")
}

// UserClassSymbol はユーザークラスの識別子形式を返す。JSONのキーに使う。
func (s *Settings) UserClassSymbol() string {
	return underscore(s.UserClass)
}

// UsersTable はユーザークラスから導出したテーブル名を返す。
// 名前の表示用で、永続化は常にusersテーブルを使う。
func (s *Settings) UsersTable() string {
	return s.UserClassUnderscoreAll() + "s"
}

// DashboardPath はマウントポイントからダッシュボード配下のパスを組み立てる。
func (s *Settings) DashboardPath(elem ...string) string {
	p := strings.TrimSuffix(s.DashboardNamespacePath, "/") + "/dashboard"
	for _, e := range elem {
		p += "/" + strings.Trim(e, "/")
	}
	return p
}
