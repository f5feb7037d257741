// Package mailer はメール送信を抽象化する。
// 開発環境ではログ出力、本番ではAWS SESを使う。
package mailer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/storytime/internal/logger"
)

// Message は送信するメール1通。
type Message struct {
	From     string
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Validate は必須項目を検証する。
func (m Message) Validate() error {
	if m.From == "" {
		return errors.New("mail sender is empty")
	}
	if m.To == "" {
		return errors.New("mail recipient is empty")
	}
	if m.TextBody == "" && m.HTMLBody == "" {
		return errors.New("mail body is empty")
	}
	return nil
}

// Mailer はメールを送信する。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer は送信せずに内容をログに記録する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを返す。
func NewLogMailer(l *slog.Logger) *LogMailer {
	if l == nil {
		l = slog.Default()
	}
	return &LogMailer{logger: l}
}

// Send はメール内容をINFOログに出力する。
func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "メールを送信しました（ログ配信）",
		slog.String("from", msg.From),
		slog.String("to", logger.RedactEmail(msg.To)),
		slog.String("subject", msg.Subject),
		slog.Int("text_bytes", len(msg.TextBody)),
		slog.Int("html_bytes", len(msg.HTMLBody)),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
