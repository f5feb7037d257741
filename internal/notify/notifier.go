// Package notify は記事公開時の購読者へのメール通知を提供する。
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/logger"
	"github.com/hitoshi/storytime/internal/mailer"
	"github.com/hitoshi/storytime/internal/model"
)

// SubscriberLister は通知先の購読者を取得する。
type SubscriberLister interface {
	ListActive(ctx context.Context, siteID string) ([]*model.Subscription, error)
}

// DeliveryRecorder は通知メールの送信結果を記録する。
type DeliveryRecorder interface {
	RecordNotifications(sent, failed int)
}

// PostNotifier は公開された記事を購読中の全員にメールで知らせる。
type PostNotifier struct {
	subscribers SubscriberLister
	mailer      mailer.Mailer
	settings    *config.Settings
	baseURL     string
	recorder    DeliveryRecorder
	logger      *slog.Logger
}

// NewPostNotifier はPostNotifierを返す。
// baseURLはホストアプリケーションの公開URL（末尾のスラッシュは無視する）。
func NewPostNotifier(subscribers SubscriberLister, m mailer.Mailer, settings *config.Settings, baseURL string) *PostNotifier {
	return &PostNotifier{
		subscribers: subscribers,
		mailer:      m,
		settings:    settings,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		logger:      slog.Default(),
	}
}

// SetRecorder は送信結果の記録先を設定する。
func (n *PostNotifier) SetRecorder(r DeliveryRecorder) {
	n.recorder = r
}

// Hook はSettings.OnPublishWithNotificationsに設定できる関数を返す。
func (n *PostNotifier) Hook() config.PublishHook {
	return n.Notify
}

// Notify は記事のサイトの購読者全員に通知メールを送る。
// 一部の送信に失敗しても残りの宛先には送信を続け、失敗をまとめて返す。
func (n *PostNotifier) Notify(ctx context.Context, post *model.Post) error {
	subs, err := n.subscribers.ListActive(ctx, post.SiteID)
	if err != nil {
		return fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}

	var errs []error
	sent := 0
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := n.mailer.Send(ctx, n.message(post, sub)); err != nil {
			n.logger.WarnContext(ctx, "通知メールの送信に失敗しました",
				slog.String("post_id", post.ID),
				slog.String("to", logger.RedactEmail(sub.Email)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		sent++
	}
	if n.recorder != nil {
		n.recorder.RecordNotifications(sent, len(subs)-sent)
	}

	n.logger.InfoContext(ctx, "公開通知を送信しました",
		slog.String("post_id", post.ID),
		slog.Int("recipients", len(subs)),
		slog.Int("sent", sent),
	)
	return errors.Join(errs...)
}

func (n *PostNotifier) message(post *model.Post, sub *model.Subscription) mailer.Message {
	postURL := n.PostURL(post)
	unsubscribeURL := n.UnsubscribeURL(sub.Token)

	var text strings.Builder
	text.WriteString(post.Title + "\n\n")
	if post.Excerpt != "" {
		text.WriteString(post.Excerpt + "\n\n")
	}
	text.WriteString("続きを読む: " + postURL + "\n\n")
	text.WriteString("配信停止: " + unsubscribeURL + "\n")

	return mailer.Message{
		From:     n.settings.SubscriptionEmailFrom,
		To:       sub.Email,
		Subject:  post.Title,
		TextBody: text.String(),
	}
}

// PostURL は記事の公開URLを返す。
func (n *PostNotifier) PostURL(post *model.Post) string {
	return n.mountURL() + "/posts/" + url.PathEscape(post.Slug)
}

// UnsubscribeURL は配信停止リンクを返す。
func (n *PostNotifier) UnsubscribeURL(token string) string {
	return n.mountURL() + "/subscriptions/unsubscribe?" + url.Values{"t": {token}}.Encode()
}

func (n *PostNotifier) mountURL() string {
	return n.baseURL + strings.TrimSuffix(n.settings.DashboardNamespacePath, "/")
}
