package model

import "time"

// RootPageContent はサイトのトップページに表示する内容を表す。
type RootPageContent string

const (
	// RootPageContentPosts はトップページに記事一覧を表示する。
	RootPageContentPosts RootPageContent = "posts"
	// RootPageContentPage はトップページに固定ページを表示する。
	RootPageContentPage RootPageContent = "page"
)

// Site はエンジンが配信するサイトの設定を表す。
// 1インストールにつき1件のみ作成される。
type Site struct {
	ID              string
	Title           string
	RootPageContent RootPageContent
	RootPostID      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
