// Package site はサイト設定（1インストールにつき1件）の管理を提供する。
package site

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/hitoshi/storytime/internal/repository"
)

// Input はサイトの作成・更新で受け付ける値。
type Input struct {
	Title           string
	RootPageContent model.RootPageContent
	RootPostID      string
}

// Service はサイト設定のサービス層。
type Service struct {
	repo       repository.SiteRepository
	postRepo   repository.PostRepository
	authorizer policy.Authorizer
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.SiteRepository, postRepo repository.PostRepository, authorizer policy.Authorizer) *Service {
	return &Service{
		repo:       repo,
		postRepo:   postRepo,
		authorizer: authorizer,
		logger:     slog.Default(),
	}
}

// FindFirst はサイトを返す。未作成の場合はnilを返す。
func (s *Service) FindFirst(ctx context.Context) (*model.Site, error) {
	site, err := s.repo.FindFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("サイトの取得に失敗しました: %w", err)
	}
	return site, nil
}

// Show はサイトを返す。未作成の場合はSITE_NOT_FOUNDを返す。
func (s *Service) Show(ctx context.Context, actor *model.User) (*model.Site, error) {
	if err := s.authorizer.Authorize(actor, policy.ActionShow, policy.Target{Resource: policy.ResourceSite}); err != nil {
		return nil, err
	}
	site, err := s.FindFirst(ctx)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, model.NewSiteNotFoundError()
	}
	return site, nil
}

// Create はサイトの初期設定を行う。既に存在する場合はSITE_ALREADY_EXISTSを返す。
func (s *Service) Create(ctx context.Context, actor *model.User, in Input) (*model.Site, error) {
	if err := s.authorizer.Authorize(actor, policy.ActionCreate, policy.Target{Resource: policy.ResourceSite}); err != nil {
		return nil, err
	}

	existing, err := s.FindFirst(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewSiteAlreadyExistsError()
	}

	if in.RootPageContent == "" {
		in.RootPageContent = model.RootPageContentPosts
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	now := time.Now()
	site := &model.Site{
		ID:              uuid.New().String(),
		Title:           strings.TrimSpace(in.Title),
		RootPageContent: in.RootPageContent,
		RootPostID:      in.RootPostID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, site); err != nil {
		return nil, fmt.Errorf("サイトの作成に失敗しました: %w", err)
	}

	s.logger.InfoContext(ctx, "サイトを作成しました", slog.String("site_id", site.ID))
	return site, nil
}

// Update はサイトのタイトルとトップページ設定を更新する。
func (s *Service) Update(ctx context.Context, actor *model.User, in Input) (*model.Site, error) {
	if err := s.authorizer.Authorize(actor, policy.ActionUpdate, policy.Target{Resource: policy.ResourceSite}); err != nil {
		return nil, err
	}

	site, err := s.FindFirst(ctx)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, model.NewSiteNotFoundError()
	}

	if in.RootPageContent == "" {
		in.RootPageContent = site.RootPageContent
	}
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	site.Title = strings.TrimSpace(in.Title)
	site.RootPageContent = in.RootPageContent
	site.RootPostID = in.RootPostID
	site.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, site); err != nil {
		return nil, fmt.Errorf("サイトの更新に失敗しました: %w", err)
	}
	return site, nil
}

func (s *Service) validate(ctx context.Context, in Input) error {
	verrs := model.ValidationErrors{}

	if strings.TrimSpace(in.Title) == "" {
		verrs.Add("title", model.MsgBlank)
	}

	switch in.RootPageContent {
	case model.RootPageContentPosts:
	case model.RootPageContentPage:
		if in.RootPostID == "" {
			verrs.Add("root_post_id", model.MsgBlank)
			break
		}
		p, err := s.postRepo.FindByID(ctx, in.RootPostID)
		if err != nil {
			return fmt.Errorf("ルートページの取得に失敗しました: %w", err)
		}
		if p == nil || p.Type != model.PostTypePage {
			verrs.Add("root_post_id", model.MsgInvalid)
		}
	default:
		verrs.Add("root_page_content", model.MsgNotAllow)
	}

	return verrs.Err()
}
