package model

import "time"

// Subscription はメール購読者を表す。
// Tokenは作成時にメールアドレスから一度だけ導出され、以後変更されない。
type Subscription struct {
	ID         string
	SiteID     string
	Email      string
	Subscribed bool
	Token      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
