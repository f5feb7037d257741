// Package subscription はメール購読者の登録・配信停止のドメインロジックを提供する。
package subscription

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/logger"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/hitoshi/storytime/internal/repository"
)

// PerPage はダッシュボードの購読者一覧の1ページあたりの件数。
const PerPage = 25

// GenerateToken はメールアドレスから配信停止トークンを導出する。
// secretKeyBaseをキーとしたHMAC-SHA1の16進文字列を返す。
func GenerateToken(secretKeyBase, email string) string {
	mac := hmac.New(sha1.New, []byte(secretKeyBase))
	mac.Write([]byte(email))
	return hex.EncodeToString(mac.Sum(nil))
}

// Service は購読管理のサービス層。
type Service struct {
	subRepo       repository.SubscriptionRepository
	siteRepo      repository.SiteRepository
	settings      *config.Settings
	authorizer    policy.Authorizer
	secretKeyBase string
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subRepo repository.SubscriptionRepository,
	siteRepo repository.SiteRepository,
	settings *config.Settings,
	authorizer policy.Authorizer,
	secretKeyBase string,
) *Service {
	return &Service{
		subRepo:       subRepo,
		siteRepo:      siteRepo,
		settings:      settings,
		authorizer:    authorizer,
		secretKeyBase: secretKeyBase,
		logger:        slog.Default(),
	}
}

// Subscribe はメールアドレスを購読者として登録する。
// 登録時にトークンを1回だけ導出し、以後は再計算しない。
func (s *Service) Subscribe(ctx context.Context, email string) (*model.Subscription, error) {
	email = strings.TrimSpace(email)

	verrs := model.ValidationErrors{}
	switch {
	case email == "":
		verrs.Add("email", model.MsgBlank)
	case !s.settings.ValidEmail(email):
		verrs.Add("email", model.MsgInvalid)
	default:
		existing, err := s.subRepo.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("購読の重複確認に失敗しました: %w", err)
		}
		if existing != nil {
			verrs.Add("email", model.MsgTaken)
		}
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	sub := &model.Subscription{
		ID:         uuid.New().String(),
		Email:      email,
		Subscribed: true,
		Token:      GenerateToken(s.secretKeyBase, email),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	site, err := s.siteRepo.FindFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if site != nil {
		sub.SiteID = site.ID
	}

	if err := s.subRepo.Create(ctx, sub); err != nil {
		// 同時登録で一意制約に違反した場合も重複として扱う
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewValidationError(map[string][]string{"email": {model.MsgTaken}})
		}
		return nil, fmt.Errorf("購読の作成に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "購読者を登録しました",
		slog.String("subscription_id", sub.ID),
		slog.String("email", logger.RedactEmail(email)),
	)
	return sub, nil
}

// Unsubscribe はIDで指定した購読を停止する。既に停止済みでも成功する。
func (s *Service) Unsubscribe(ctx context.Context, id string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError(id)
	}
	return s.unsubscribe(ctx, sub)
}

// UnsubscribeAs はダッシュボードの操作主体として購読を停止する。
func (s *Service) UnsubscribeAs(ctx context.Context, actor *model.User, id string) (*model.Subscription, error) {
	if err := s.authorizer.Authorize(actor, policy.ActionDestroy, policy.Target{Resource: policy.ResourceSubscription}); err != nil {
		return nil, err
	}
	return s.Unsubscribe(ctx, id)
}

// UnsubscribeByToken はメールの配信停止リンクのトークンで購読を停止する。
func (s *Service) UnsubscribeByToken(ctx context.Context, token string) (*model.Subscription, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.NewSubscriptionNotFoundError("token")
	}

	sub, err := s.subRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("購読の取得に失敗しました: %w", err)
	}
	if sub == nil {
		return nil, model.NewSubscriptionNotFoundError("token")
	}
	return s.unsubscribe(ctx, sub)
}

func (s *Service) unsubscribe(ctx context.Context, sub *model.Subscription) (*model.Subscription, error) {
	if !sub.Subscribed {
		return sub, nil
	}
	if err := s.subRepo.Unsubscribe(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("購読の停止に失敗しました: %w", err)
	}
	sub.Subscribed = false

	s.logger.InfoContext(ctx, "購読を停止しました", slog.String("subscription_id", sub.ID))
	return sub, nil
}

// ListSubscriptions はダッシュボード向けに購読一覧を新しい順で返す。
func (s *Service) ListSubscriptions(ctx context.Context, actor *model.User, page int) ([]*model.Subscription, model.Pagination, error) {
	pg := model.NewPagination(page, PerPage)

	if err := s.authorizer.Authorize(actor, policy.ActionIndex, policy.Target{Resource: policy.ResourceSubscription}); err != nil {
		return nil, pg, err
	}

	subs, err := s.subRepo.List(ctx, pg.PerPage, pg.Offset())
	if err != nil {
		return nil, pg, fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	total, err := s.subRepo.Count(ctx)
	if err != nil {
		return nil, pg, fmt.Errorf("購読数の取得に失敗しました: %w", err)
	}
	pg.Total = total

	return subs, pg, nil
}

// ListActive はサイトの購読中の購読者を返す。
func (s *Service) ListActive(ctx context.Context, siteID string) ([]*model.Subscription, error) {
	subs, err := s.subRepo.ListActive(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("購読者一覧の取得に失敗しました: %w", err)
	}
	return subs, nil
}
