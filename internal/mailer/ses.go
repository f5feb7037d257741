package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/hitoshi/storytime/internal/logger"
)

// sesAPI はSESMailerが使うSES v2クライアントの操作。
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESMailer はAWS SES v2でメールを送信する。
type SESMailer struct {
	client sesAPI
	logger *slog.Logger
}

// NewSESMailer はSESクライアントを生成する。
// accessKeyIDとsecretAccessKeyが両方指定された場合は静的認証情報を、
// それ以外は既定の認証情報チェーンを使う。
func NewSESMailer(ctx context.Context, region, accessKeyID, secretAccessKey string, l *slog.Logger) (*SESMailer, error) {
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newSESMailerWithClient(sesv2.NewFromConfig(cfg), l), nil
}

func newSESMailerWithClient(client sesAPI, l *slog.Logger) *SESMailer {
	if l == nil {
		l = slog.Default()
	}
	return &SESMailer{client: client, logger: l}
}

func utf8Content(data string) *types.Content {
	return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
}

// Send はメールを1通送信する。
func (m *SESMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body := &types.Body{}
	if msg.HTMLBody != "" {
		body.Html = utf8Content(msg.HTMLBody)
	}
	if msg.TextBody != "" {
		body.Text = utf8Content(msg.TextBody)
	}

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    body,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SESでのメール送信に失敗しました: %w", err)
	}

	m.logger.InfoContext(ctx, "メールを送信しました",
		slog.String("to", logger.RedactEmail(msg.To)),
		slog.String("message_id", aws.ToString(out.MessageId)),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*SESMailer)(nil)
