package config

import (
	"context"
	"fmt"

	"github.com/hitoshi/storytime/internal/model"
)

// SiteFinder はサイト設定の検索に必要なインターフェース。
// repository.SiteRepositoryの部分集合として定義する。
type SiteFinder interface {
	// FindFirst は最初に作成されたサイトを返す。存在しない場合はnilを返す。
	FindFirst(ctx context.Context) (*model.Site, error)
}

// HomeRoute はホームページに割り当てるハンドラーの種別。
type HomeRoute string

const (
	// HomeRouteSetup はサイト未設定時の初期設定案内。
	HomeRouteSetup HomeRoute = "setup"
	// HomeRoutePage はルート固定ページの表示。
	HomeRoutePage HomeRoute = "page"
	// HomeRoutePosts は記事一覧の表示。
	HomeRoutePosts HomeRoute = "posts"
)

// RouteOptions はホームページのルーティング設定。
type RouteOptions struct {
	To HomeRoute
	As string
}

// PathOptions は記事一覧ルートのパス設定。Pathが空なら既定のパスを使う。
type PathOptions struct {
	Path string
}

// HomePageRouteOptions はサイトの有無とルート表示内容からホームページのルートを決める。
// サイト未作成なら初期設定、ルートが固定ページなら固定ページ表示、それ以外は記事一覧。
func (s *Settings) HomePageRouteOptions(ctx context.Context, sites SiteFinder) (RouteOptions, error) {
	site, err := sites.FindFirst(ctx)
	if err != nil {
		return RouteOptions{}, fmt.Errorf("サイト設定の取得に失敗しました: %w", err)
	}

	if site == nil {
		return RouteOptions{To: HomeRouteSetup, As: "storytime_root"}, nil
	}
	if site.RootPageContent == model.RootPageContentPage {
		return RouteOptions{To: HomeRoutePage, As: "storytime_root_post"}, nil
	}
	return RouteOptions{To: HomeRoutePosts, As: "storytime_root_post"}, nil
}

// PostIndexPathOptions はサイトのルートが記事一覧の場合にホームページのパスを返す。
func (s *Settings) PostIndexPathOptions(ctx context.Context, sites SiteFinder) (PathOptions, error) {
	site, err := sites.FindFirst(ctx)
	if err != nil {
		return PathOptions{}, fmt.Errorf("サイト設定の取得に失敗しました: %w", err)
	}

	if site != nil && site.RootPageContent == model.RootPageContentPosts {
		return PathOptions{Path: s.HomePagePath}, nil
	}
	return PathOptions{}, nil
}
