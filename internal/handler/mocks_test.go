package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/storytime/internal/media"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/post"
	"github.com/hitoshi/storytime/internal/site"
)

// --- モック定義 ---

// mockPostService はPostServiceInterfaceのモック実装。
type mockPostService struct {
	createFn        func(ctx context.Context, actor *model.User, in post.Input) (*model.Post, error)
	updateFn        func(ctx context.Context, actor *model.User, id string, in post.Input) (*model.Post, error)
	publishFn       func(ctx context.Context, actor *model.User, id string) (*model.Post, error)
	unpublishFn     func(ctx context.Context, actor *model.User, id string) (*model.Post, error)
	showFn          func(ctx context.Context, slug string) (*model.Post, error)
	showByIDFn      func(ctx context.Context, id string) (*model.Post, error)
	getFn           func(ctx context.Context, actor *model.User, id string) (*model.Post, error)
	listPublishedFn func(ctx context.Context, postType model.PostType, page int) ([]*model.Post, model.Pagination, error)
	listDashboardFn func(ctx context.Context, actor *model.User, postType model.PostType, page int) ([]*model.Post, model.Pagination, error)
	searchFn        func(ctx context.Context, term string, postType model.PostType, page int) ([]*model.Post, model.Pagination, error)
}

func (m *mockPostService) Create(ctx context.Context, actor *model.User, in post.Input) (*model.Post, error) {
	return m.createFn(ctx, actor, in)
}
func (m *mockPostService) Update(ctx context.Context, actor *model.User, id string, in post.Input) (*model.Post, error) {
	return m.updateFn(ctx, actor, id, in)
}
func (m *mockPostService) Publish(ctx context.Context, actor *model.User, id string) (*model.Post, error) {
	return m.publishFn(ctx, actor, id)
}
func (m *mockPostService) Unpublish(ctx context.Context, actor *model.User, id string) (*model.Post, error) {
	return m.unpublishFn(ctx, actor, id)
}
func (m *mockPostService) Show(ctx context.Context, slug string) (*model.Post, error) {
	return m.showFn(ctx, slug)
}
func (m *mockPostService) ShowByID(ctx context.Context, id string) (*model.Post, error) {
	return m.showByIDFn(ctx, id)
}
func (m *mockPostService) Get(ctx context.Context, actor *model.User, id string) (*model.Post, error) {
	return m.getFn(ctx, actor, id)
}
func (m *mockPostService) ListPublished(ctx context.Context, postType model.PostType, page int) ([]*model.Post, model.Pagination, error) {
	if m.listPublishedFn != nil {
		return m.listPublishedFn(ctx, postType, page)
	}
	return nil, model.NewPagination(page, post.PerPage), nil
}
func (m *mockPostService) ListDashboard(ctx context.Context, actor *model.User, postType model.PostType, page int) ([]*model.Post, model.Pagination, error) {
	if m.listDashboardFn != nil {
		return m.listDashboardFn(ctx, actor, postType, page)
	}
	return nil, model.NewPagination(page, post.PerPage), nil
}
func (m *mockPostService) Search(ctx context.Context, term string, postType model.PostType, page int) ([]*model.Post, model.Pagination, error) {
	return m.searchFn(ctx, term, postType, page)
}

// mockSiteService はSiteServiceInterfaceのモック実装。
type mockSiteService struct {
	showFn   func(ctx context.Context, actor *model.User) (*model.Site, error)
	createFn func(ctx context.Context, actor *model.User, in site.Input) (*model.Site, error)
	updateFn func(ctx context.Context, actor *model.User, in site.Input) (*model.Site, error)
}

func (m *mockSiteService) Show(ctx context.Context, actor *model.User) (*model.Site, error) {
	return m.showFn(ctx, actor)
}
func (m *mockSiteService) Create(ctx context.Context, actor *model.User, in site.Input) (*model.Site, error) {
	return m.createFn(ctx, actor, in)
}
func (m *mockSiteService) Update(ctx context.Context, actor *model.User, in site.Input) (*model.Site, error) {
	return m.updateFn(ctx, actor, in)
}

// mockMediaService はMediaServiceInterfaceのモック実装。
type mockMediaService struct {
	enabled   bool
	createFn  func(ctx context.Context, actor *model.User, up media.Upload) (*model.Media, error)
	destroyFn func(ctx context.Context, actor *model.User, id string) error
	listFn    func(ctx context.Context, actor *model.User, page int) ([]*model.Media, model.Pagination, error)
}

func (m *mockMediaService) UploadsEnabled() bool { return m.enabled }
func (m *mockMediaService) Create(ctx context.Context, actor *model.User, up media.Upload) (*model.Media, error) {
	return m.createFn(ctx, actor, up)
}
func (m *mockMediaService) Destroy(ctx context.Context, actor *model.User, id string) error {
	return m.destroyFn(ctx, actor, id)
}
func (m *mockMediaService) List(ctx context.Context, actor *model.User, page int) ([]*model.Media, model.Pagination, error) {
	return m.listFn(ctx, actor, page)
}

// mockSubscriptionService はSubscriptionServiceInterfaceのモック実装。
type mockSubscriptionService struct {
	subscribeFn          func(ctx context.Context, email string) (*model.Subscription, error)
	unsubscribeByTokenFn func(ctx context.Context, token string) (*model.Subscription, error)
	unsubscribeAsFn      func(ctx context.Context, actor *model.User, id string) (*model.Subscription, error)
	listFn               func(ctx context.Context, actor *model.User, page int) ([]*model.Subscription, model.Pagination, error)
}

func (m *mockSubscriptionService) Subscribe(ctx context.Context, email string) (*model.Subscription, error) {
	return m.subscribeFn(ctx, email)
}
func (m *mockSubscriptionService) UnsubscribeByToken(ctx context.Context, token string) (*model.Subscription, error) {
	return m.unsubscribeByTokenFn(ctx, token)
}
func (m *mockSubscriptionService) UnsubscribeAs(ctx context.Context, actor *model.User, id string) (*model.Subscription, error) {
	return m.unsubscribeAsFn(ctx, actor, id)
}
func (m *mockSubscriptionService) ListSubscriptions(ctx context.Context, actor *model.User, page int) ([]*model.Subscription, model.Pagination, error) {
	return m.listFn(ctx, actor, page)
}

// mockSiteFinder はconfig.SiteFinderのモック実装。
type mockSiteFinder struct {
	site *model.Site
	err  error
}

func (m *mockSiteFinder) FindFirst(ctx context.Context) (*model.Site, error) {
	return m.site, m.err
}

// --- テストヘルパー ---

var (
	testAdmin  = &model.User{ID: "admin-1", Role: model.RoleAdmin}
	testWriter = &model.User{ID: "writer-1", Role: model.RoleWriter}
)

// withActor はテスト用にリクエストコンテキストに操作主体を注入するヘルパー。
func withActor(r *http.Request, actor *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithActor(r.Context(), actor))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// decodeBody はレスポンスボディをvにデコードするヘルパー。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%q)", err, w.Body.String())
	}
}

// errorCode はエラーレスポンスのcodeを返すヘルパー。
func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	return body.Code
}

func writeFile(dir, rel, content string) error {
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(content), 0o644)
}
