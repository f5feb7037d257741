// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/storytime/internal/model"
)

// SessionCookieName はセッションIDを保持するCookieの名前。
const SessionCookieName = "storytime_session"

type contextKey string

var actorContextKey = contextKey("actor")

// ActorResolver はリクエストから操作主体（ログイン中のユーザー）を解決する。
// ホストアプリケーションは独自の認証方式に合わせて差し替えられる。
// 未ログインの場合は(nil, nil)を返す。
type ActorResolver interface {
	ResolveActor(r *http.Request) (*model.User, error)
}

// ActorResolverFunc は関数をActorResolverとして扱うためのアダプタ。
type ActorResolverFunc func(r *http.Request) (*model.User, error)

// ResolveActor はf(r)を呼ぶ。
func (f ActorResolverFunc) ResolveActor(r *http.Request) (*model.User, error) {
	return f(r)
}

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SessionActorResolver はセッションCookieから操作主体を解決する既定のActorResolver。
type SessionActorResolver struct {
	sessions SessionFinder
	users    UserFinder
}

// NewSessionActorResolver はSessionActorResolverを返す。
func NewSessionActorResolver(sessions SessionFinder, users UserFinder) *SessionActorResolver {
	return &SessionActorResolver{sessions: sessions, users: users}
}

// ResolveActor はCookieのセッションIDから有効なセッションとユーザーを引く。
func (s *SessionActorResolver) ResolveActor(r *http.Request) (*model.User, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	session, err := s.sessions.FindByID(r.Context(), cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.users.FindByID(r.Context(), session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// NewActorMiddleware は操作主体を解決してリクエストコンテキストに注入するミドルウェアを返す。
// 解決に失敗した場合は未ログインとして扱い、リクエストは止めない。
func NewActorMiddleware(resolver ActorResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolver.ResolveActor(r)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to resolve actor",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
			}
			if actor != nil {
				r = r.WithContext(ContextWithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRequireActorMiddleware は未ログインのリクエストを拒否するミドルウェアを返す。
// HTMLを求めるリクエストはloginPathへリダイレクトし、それ以外は401を返す。
func NewRequireActorMiddleware(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ActorFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			if WantsHTML(r) {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		})
	}
}

// WantsHTML はAcceptヘッダーがJSONよりHTMLを求めているかを返す。
func WantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}

// ActorFromContext はリクエストコンテキストから操作主体を取得する。未ログインならnil。
func ActorFromContext(ctx context.Context) *model.User {
	actor, _ := ctx.Value(actorContextKey).(*model.User)
	return actor
}

// ContextWithActor はコンテキストに操作主体を注入する。
func ContextWithActor(ctx context.Context, actor *model.User) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

// UserIDFromContext はリクエストコンテキストから操作主体のIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	actor := ActorFromContext(ctx)
	if actor == nil || actor.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return actor.ID, nil
}
