package model

import "time"

// Media はダッシュボードからアップロードされたファイルを表す。
// 実体はストレージバックエンドに保存され、FileKeyで参照する。
type Media struct {
	ID          string
	FileKey     string
	FileName    string
	ContentType string
	Size        int64
	UserID      string
	CreatedAt   time.Time

	// URL は保存先から導出した公開URL。永続化しない。
	URL string
}
