// Package post は記事・固定ページの作成、公開、閲覧、検索のドメインロジックを提供する。
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/hitoshi/storytime/internal/repository"
	"github.com/hitoshi/storytime/internal/search"
)

// PerPage は記事一覧の1ページあたりの件数。
const PerPage = 10

// Input は記事の作成・更新で受け付ける値。
type Input struct {
	Type              model.PostType
	Title             string
	Slug              string
	Excerpt           string
	DraftContent      string
	NotifySubscribers *bool // nilなら既定値（作成時true、更新時は変更しない）
}

// Service は記事管理のサービス層。
type Service struct {
	repo       repository.PostRepository
	siteRepo   repository.SiteRepository
	settings   *config.Settings
	authorizer policy.Authorizer
	adapter    search.Adapter
	searchDB   search.Querier
	indexer    search.Indexer // 検索用データベースが主データベースと別の場合のみ設定する
	now        func() time.Time
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// searchDBはadapter.Driver()に対応する接続を渡す。
func NewService(
	repo repository.PostRepository,
	siteRepo repository.SiteRepository,
	settings *config.Settings,
	authorizer policy.Authorizer,
	adapter search.Adapter,
	searchDB search.Querier,
) *Service {
	return &Service{
		repo:       repo,
		siteRepo:   siteRepo,
		settings:   settings,
		authorizer: authorizer,
		adapter:    adapter,
		searchDB:   searchDB,
		now:        time.Now,
		logger:     slog.Default(),
	}
}

// SetIndexer は記事の書き込み後に検索用データベースへ反映するIndexerを設定する。
func (s *Service) SetIndexer(ix search.Indexer) {
	s.indexer = ix
}

// reindex はIndexerに記事を反映する。失敗は記録するのみで呼び出し元の操作は成功とする。
func (s *Service) reindex(ctx context.Context, p *model.Post) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Index(ctx, p); err != nil {
		s.logger.ErrorContext(ctx, "検索インデックスの更新に失敗しました",
			slog.String("post_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Create は下書き状態の記事を作成する。本文はサニタイズして保存する。
func (s *Service) Create(ctx context.Context, actor *model.User, in Input) (*model.Post, error) {
	if err := s.authorizer.Authorize(actor, policy.ActionCreate, policy.Target{Resource: policy.ResourcePost}); err != nil {
		return nil, err
	}

	if in.Type == "" {
		in.Type = model.PostTypePost
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	site, err := s.siteRepo.FindFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	if site == nil {
		return nil, model.NewSiteNotFoundError()
	}

	now := s.now()
	p := &model.Post{
		ID:                uuid.New().String(),
		SiteID:            site.ID,
		UserID:            actor.ID,
		Type:              in.Type,
		Title:             strings.TrimSpace(in.Title),
		Excerpt:           in.Excerpt,
		DraftContent:      s.settings.SanitizePost(in.DraftContent),
		NotifySubscribers: true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.NotifySubscribers != nil {
		p.NotifySubscribers = *in.NotifySubscribers
	}

	p.Slug = Slugify(in.Slug)
	if p.Slug == "" {
		p.Slug = Slugify(p.Title)
	}
	if p.Slug == "" {
		p.Slug = p.ID[:8]
	}

	if err := s.repo.Create(ctx, p); err != nil {
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
		}
		// スラッグが重複した場合はIDの先頭を付けて1回だけ再試行する
		p.Slug = p.Slug + "-" + p.ID[:8]
		if err := s.repo.Create(ctx, p); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return nil, model.NewValidationError(map[string][]string{"slug": {model.MsgTaken}})
			}
			return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
		}
	}

	s.logger.InfoContext(ctx, "記事を作成しました",
		slog.String("post_id", p.ID),
		slog.String("user_id", actor.ID),
		slog.String("type", string(p.Type)),
	)
	s.reindex(ctx, p)
	return p, nil
}

// Update は記事のタイトル・抜粋・下書き本文を更新する。公開中の本文は変更しない。
func (s *Service) Update(ctx context.Context, actor *model.User, id string, in Input) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(actor, policy.ActionUpdate, policy.Target{Resource: policy.ResourcePost, OwnerID: p.UserID}); err != nil {
		return nil, err
	}

	in.Type = p.Type
	if err := s.validate(in); err != nil {
		return nil, err
	}

	p.Title = strings.TrimSpace(in.Title)
	p.Excerpt = in.Excerpt
	p.DraftContent = s.settings.SanitizePost(in.DraftContent)
	if in.NotifySubscribers != nil {
		p.NotifySubscribers = *in.NotifySubscribers
	}
	p.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	s.reindex(ctx, p)
	return p, nil
}

// Publish は下書き本文を公開本文にコピーして記事を公開する。
// 通知が有効な記事は、最初の公開時に1回だけ公開通知フックを呼ぶ。
// フックの失敗はログに記録するのみで公開自体は成功とする。
func (s *Service) Publish(ctx context.Context, actor *model.User, id string) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(actor, policy.ActionPublish, policy.Target{Resource: policy.ResourcePost, OwnerID: p.UserID}); err != nil {
		return nil, err
	}

	now := s.now()
	p.Content = p.DraftContent
	p.Published = true
	p.UpdatedAt = now
	if p.PublishedAt == nil {
		p.PublishedAt = &now
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("記事の公開に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "記事を公開しました", slog.String("post_id", p.ID))
	s.reindex(ctx, p)

	if p.Type != model.PostTypePost || !p.NotifySubscribers || p.NotificationsSentAt != nil {
		return p, nil
	}

	marked, err := s.repo.MarkNotificationsSent(ctx, p.ID, now)
	if err != nil {
		return nil, fmt.Errorf("通知送信日時の記録に失敗しました: %w", err)
	}
	if !marked {
		return p, nil
	}
	p.NotificationsSentAt = &now
	s.reindex(ctx, p)

	if err := s.settings.NotifyPublished(ctx, p); err != nil {
		s.logger.ErrorContext(ctx, "公開通知に失敗しました",
			slog.String("post_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
	return p, nil
}

// Unpublish は記事を非公開にする。公開日時と通知送信日時は保持する。
func (s *Service) Unpublish(ctx context.Context, actor *model.User, id string) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(actor, policy.ActionPublish, policy.Target{Resource: policy.ResourcePost, OwnerID: p.UserID}); err != nil {
		return nil, err
	}

	p.Published = false
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("記事の非公開化に失敗しました: %w", err)
	}
	s.reindex(ctx, p)
	return p, nil
}

// Show は公開済みの記事をスラッグで取得する。
func (s *Service) Show(ctx context.Context, slug string) (*model.Post, error) {
	p, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if p == nil || !p.Published {
		return nil, model.NewPostNotFoundError(slug)
	}
	return p, nil
}

// ShowByID は公開済みの記事をIDで取得する。サイトのルート固定ページ表示に使う。
func (s *Service) ShowByID(ctx context.Context, id string) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Published {
		return nil, model.NewPostNotFoundError(id)
	}
	return p, nil
}

// Get はダッシュボード向けに下書きを含む記事を取得する。
func (s *Service) Get(ctx context.Context, actor *model.User, id string) (*model.Post, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer.Authorize(actor, policy.ActionShow, policy.Target{Resource: policy.ResourcePost, OwnerID: p.UserID}); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPublished は公開済みの記事を新しい順に返す。
func (s *Service) ListPublished(ctx context.Context, postType model.PostType, page int) ([]*model.Post, model.Pagination, error) {
	return s.list(ctx, repository.PostFilter{Type: postType, PublishedOnly: true}, page)
}

// ListDashboard はダッシュボード向けに下書きを含む記事を新しい順に返す。
func (s *Service) ListDashboard(ctx context.Context, actor *model.User, postType model.PostType, page int) ([]*model.Post, model.Pagination, error) {
	if err := s.authorizer.Authorize(actor, policy.ActionIndex, policy.Target{Resource: policy.ResourcePost}); err != nil {
		return nil, model.NewPagination(page, PerPage), err
	}
	return s.list(ctx, repository.PostFilter{Type: postType}, page)
}

func (s *Service) list(ctx context.Context, filter repository.PostFilter, page int) ([]*model.Post, model.Pagination, error) {
	pg := model.NewPagination(page, PerPage)
	filter.Limit = pg.PerPage
	filter.Offset = pg.Offset()

	posts, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pg, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, pg, fmt.Errorf("記事数の取得に失敗しました: %w", err)
	}
	pg.Total = total
	return posts, pg, nil
}

// Search は設定された検索アダプタで公開済みの記事を検索する。
func (s *Service) Search(ctx context.Context, term string, postType model.PostType, page int) ([]*model.Post, model.Pagination, error) {
	pg := model.NewPagination(page, PerPage)

	term = strings.TrimSpace(term)
	if term == "" {
		return nil, pg, model.NewSearchTermRequiredError()
	}

	posts, err := s.adapter.Search(ctx, s.searchDB, term, search.Scope{
		PostType: postType,
		Limit:    pg.PerPage,
		Offset:   pg.Offset(),
	})
	if err != nil {
		return nil, pg, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}
	return posts, pg, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Post, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError(id)
	}
	return p, nil
}

func (s *Service) validate(in Input) error {
	verrs := model.ValidationErrors{}

	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		verrs.Add("title", model.MsgBlank)
	case utf8.RuneCountInString(title) > s.settings.PostTitleCharacterLimit:
		verrs.Add("title", model.MsgTooLong)
	}
	if utf8.RuneCountInString(in.Excerpt) > s.settings.PostExcerptCharacterLimit {
		verrs.Add("excerpt", model.MsgTooLong)
	}
	if !s.validType(in.Type) {
		verrs.Add("type", model.MsgNotAllow)
	}

	return verrs.Err()
}

func (s *Service) validType(t model.PostType) bool {
	if t == model.PostTypePost || t == model.PostTypePage {
		return true
	}
	for _, custom := range s.settings.PostTypes {
		if string(t) == custom {
			return true
		}
	}
	return false
}

var nonSlugChars = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Slugify はタイトルをURLに使えるスラッグに変換する。
// 英数字以外の連続は "-" にまとめ、小文字化する。
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
