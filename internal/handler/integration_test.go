package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/storytime/internal/config"
	"github.com/hitoshi/storytime/internal/mailer"
	"github.com/hitoshi/storytime/internal/media"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/notify"
	"github.com/hitoshi/storytime/internal/policy"
	"github.com/hitoshi/storytime/internal/post"
	"github.com/hitoshi/storytime/internal/repository"
	"github.com/hitoshi/storytime/internal/search"
	"github.com/hitoshi/storytime/internal/site"
	"github.com/hitoshi/storytime/internal/storage"
	"github.com/hitoshi/storytime/internal/subscription"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- 統合テスト用のインメモリリポジトリ ---

type memStore struct {
	mu    sync.Mutex
	site  *model.Site
	posts map[string]*model.Post
	subs  map[string]*model.Subscription
	media map[string]*model.Media
}

func newMemStore() *memStore {
	return &memStore{
		posts: map[string]*model.Post{},
		subs:  map[string]*model.Subscription{},
		media: map[string]*model.Media{},
	}
}

type memSiteRepo struct{ *memStore }

func (r memSiteRepo) FindFirst(ctx context.Context) (*model.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.site == nil {
		return nil, nil
	}
	cp := *r.site
	return &cp, nil
}
func (r memSiteRepo) Create(ctx context.Context, s *model.Site) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.site = &cp
	return nil
}
func (r memSiteRepo) Update(ctx context.Context, s *model.Site) error { return r.Create(ctx, s) }

type memPostRepo struct{ *memStore }

func (r memPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.posts[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, nil
}
func (r memPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.Slug == slug {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}
func (r memPostRepo) Create(ctx context.Context, p *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.posts {
		if existing.Slug == p.Slug {
			return repository.ErrUniqueViolation
		}
	}
	cp := *p
	r.posts[p.ID] = &cp
	return nil
}
func (r memPostRepo) Update(ctx context.Context, p *model.Post) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sent := r.posts[p.ID].NotificationsSentAt
	cp := *p
	cp.NotificationsSentAt = sent
	r.posts[p.ID] = &cp
	return nil
}
func (r memPostRepo) MarkNotificationsSent(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.posts[id]
	if p == nil || p.NotificationsSentAt != nil {
		return false, nil
	}
	p.NotificationsSentAt = &at
	return true, nil
}
func (r memPostRepo) filter(f repository.PostFilter) []*model.Post {
	var out []*model.Post
	for _, p := range r.posts {
		if (f.Type == "" || p.Type == f.Type) && (!f.PublishedOnly || p.Published) && (f.UserID == "" || p.UserID == f.UserID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
func (r memPostRepo) List(ctx context.Context, f repository.PostFilter) ([]*model.Post, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.filter(f)
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
func (r memPostRepo) Count(ctx context.Context, f repository.PostFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.filter(f)), nil
}

type memSubRepo struct{ *memStore }

func (r memSubRepo) find(match func(*model.Subscription) bool) *model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if match(s) {
			cp := *s
			return &cp
		}
	}
	return nil
}
func (r memSubRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	return r.find(func(s *model.Subscription) bool { return s.ID == id }), nil
}
func (r memSubRepo) FindByEmail(ctx context.Context, email string) (*model.Subscription, error) {
	return r.find(func(s *model.Subscription) bool { return s.Email == email }), nil
}
func (r memSubRepo) FindByToken(ctx context.Context, token string) (*model.Subscription, error) {
	return r.find(func(s *model.Subscription) bool { return s.Token == token }), nil
}
func (r memSubRepo) Create(ctx context.Context, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}
func (r memSubRepo) Unsubscribe(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		s.Subscribed = false
	}
	return nil
}
func (r memSubRepo) ListActive(ctx context.Context, siteID string) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.subs {
		if s.Subscribed && (s.SiteID == siteID || s.SiteID == "") {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}
func (r memSubRepo) List(ctx context.Context, limit, offset int) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.subs {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}
func (r memSubRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs), nil
}

type memMediaRepo struct{ *memStore }

func (r memMediaRepo) FindByID(ctx context.Context, id string) (*model.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.media[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}
func (r memMediaRepo) Create(ctx context.Context, m *model.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.media[m.ID] = &cp
	return nil
}
func (r memMediaRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.media, id)
	return nil
}
func (r memMediaRepo) List(ctx context.Context, limit, offset int) ([]*model.Media, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Media
	for _, m := range r.media {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}
func (r memMediaRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.media), nil
}

type capturingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *capturingMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// --- 統合テスト用ルーター構築ヘルパー ---

type integrationEnv struct {
	router http.Handler
	store  *memStore
	mail   *capturingMailer
	dir    string
}

func newIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()

	store := newMemStore()
	sites := memSiteRepo{store}
	posts := memPostRepo{store}
	subs := memSubRepo{store}
	mail := &capturingMailer{}
	dir := t.TempDir()

	users := map[string]*model.User{
		"admin":  {ID: "admin", Role: model.RoleAdmin},
		"writer": {ID: "writer", Role: model.RoleWriter},
	}
	resolver := middleware.ActorResolverFunc(func(r *http.Request) (*model.User, error) {
		c, err := r.Cookie(middleware.SessionCookieName)
		if err != nil {
			return nil, nil
		}
		return users[c.Value], nil
	})

	authorizer := policy.NewRolePolicy()
	settings := config.DefaultSettings()
	subSvc := subscription.NewService(subs, sites, settings, authorizer, "integration-secret")
	notifier := notify.NewPostNotifier(subSvc, mail, settings, "https://blog.example.com")
	require.NoError(t, settings.Configure(func(s *config.Settings) {
		s.SubscriptionEmailFrom = "news@blog.example.com"
		s.OnPublishWithNotifications = notifier.Hook()
	}))

	store2, err := storage.NewFileStore(dir, "/uploads")
	require.NoError(t, err)

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(1000, 1000))
	t.Cleanup(rl.Stop)

	siteSvc := site.NewService(sites, posts, authorizer)
	router := NewRouter(&RouterDeps{
		Settings:            settings,
		ActorResolver:       resolver,
		Authorizer:          authorizer,
		RateLimiter:         rl,
		CORSAllowedOrigin:   "http://localhost:3000",
		MediaDir:            dir,
		MediaBaseURL:        "/uploads",
		Sites:               siteSvc,
		PostService:         post.NewService(posts, sites, settings, authorizer, search.NoneAdapter{}, nil),
		SiteService:         siteSvc,
		MediaService:        media.NewService(memMediaRepo{store}, store2, settings, authorizer),
		SubscriptionService: subSvc,
	})

	return &integrationEnv{router: router, store: store, mail: mail, dir: dir}
}

func (e *integrationEnv) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: user})
		withCSRF(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// --- 統合テスト ---

func TestIntegration_SetupPublishNotifyUnsubscribe(t *testing.T) {
	env := newIntegrationEnv(t)

	// サイト未作成ならホームは初期設定案内
	w := env.do(t, http.MethodGet, "/storytime/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"setup_required":true`)

	// 記事はサイト作成前には作れない
	w = env.do(t, http.MethodPost, "/storytime/dashboard/posts", "writer", `{"title":"Too early"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 執筆者はサイトを作成できない
	w = env.do(t, http.MethodPost, "/storytime/dashboard/site", "writer", `{"title":"Blog"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/storytime/dashboard/site", "admin", `{"title":"Blog"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodPost, "/storytime/dashboard/site", "admin", `{"title":"Again"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 購読登録（重複は422）
	w = env.do(t, http.MethodPost, "/storytime/subscriptions", "", `{"email":"reader@example.com"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.do(t, http.MethodPost, "/storytime/subscriptions", "", `{"email":"reader@example.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = env.do(t, http.MethodPost, "/storytime/subscriptions", "", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// 記事を作成して公開する
	w = env.do(t, http.MethodPost, "/storytime/dashboard/posts", "writer",
		`{"title":"Hello World","draft_content":"<p>Hi</p><script>alert(1)</script>"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created postResponse
	decodeBody(t, w, &created)
	assert.Equal(t, "hello-world", created.Slug)
	assert.NotContains(t, *created.DraftContent, "<script>")

	// 公開前は公開ルートから見えない
	w = env.do(t, http.MethodGet, "/storytime/posts/hello-world", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/storytime/dashboard/posts/"+created.ID+"/publish", "writer", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/storytime/posts/hello-world", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var shown postResponse
	decodeBody(t, w, &shown)
	assert.Equal(t, "<p>Hi</p>", shown.Content)
	assert.Nil(t, shown.DraftContent)

	// 公開通知は1回だけ送られる
	w = env.do(t, http.MethodPost, "/storytime/dashboard/posts/"+created.ID+"/publish", "writer", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, env.mail.sent, 1)
	msg := env.mail.sent[0]
	assert.Equal(t, "reader@example.com", msg.To)
	assert.Equal(t, "news@blog.example.com", msg.From)

	// メールの配信停止リンクをたどる
	token := subscription.GenerateToken("integration-secret", "reader@example.com")
	unsubscribeURL := "https://blog.example.com/storytime/subscriptions/unsubscribe?" + url.Values{"t": {token}}.Encode()
	require.Contains(t, msg.TextBody, unsubscribeURL)

	link, err := url.Parse(unsubscribeURL)
	require.NoError(t, err)
	w = env.do(t, http.MethodGet, link.RequestURI(), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subscribed":false`)

	// 停止済みでも成功する
	w = env.do(t, http.MethodGet, link.RequestURI(), "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	// ホームは記事一覧
	w = env.do(t, http.MethodGet, "/storytime/", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"slug":"hello-world"`)
}

func TestIntegration_MediaUploadAndDelete(t *testing.T) {
	env := newIntegrationEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("media[file]", "../../evil name.txt")
	require.NoError(t, err)
	fw.Write([]byte("hello media"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/storytime/dashboard/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "writer"})
	withCSRF(req)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var m mediaResponse
	decodeBody(t, w, &m)
	assert.NotContains(t, m.URL, "..")
	assert.True(t, strings.HasPrefix(m.URL, "/uploads/media/"))

	// 保存したファイルはメディア配信ルートから取得できる
	w = env.do(t, http.MethodGet, m.URL, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello media", w.Body.String())

	w = env.do(t, http.MethodGet, "/storytime/dashboard/media", "writer", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), m.ID)

	w = env.do(t, http.MethodDelete, "/storytime/dashboard/media/"+m.ID, "writer", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/storytime/dashboard/media/"+m.ID, "writer", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, m.URL, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
