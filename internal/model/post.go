package model

import "time"

// PostType は投稿の種別を表す。
type PostType string

const (
	// PostTypePost はブログ記事。
	PostTypePost PostType = "post"
	// PostTypePage は固定ページ。
	PostTypePage PostType = "page"
)

// Post は記事または固定ページを表す。
// DraftContentは編集中の本文、Contentは公開済みの本文を保持する。
type Post struct {
	ID                  string
	SiteID              string
	UserID              string
	Type                PostType
	Title               string
	Slug                string
	Excerpt             string
	DraftContent        string
	Content             string
	Published           bool
	PublishedAt         *time.Time
	NotifySubscribers   bool
	NotificationsSentAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
