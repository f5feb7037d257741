package handler

import (
	"context"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
)

// SubscriptionServiceInterface は購読ハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// Subscribe はメールアドレスを購読者として登録する。
	Subscribe(ctx context.Context, email string) (*model.Subscription, error)
	// UnsubscribeByToken は配信停止リンクのトークンで購読を停止する。
	UnsubscribeByToken(ctx context.Context, token string) (*model.Subscription, error)
	// UnsubscribeAs はダッシュボードの操作主体として購読を停止する。
	UnsubscribeAs(ctx context.Context, actor *model.User, id string) (*model.Subscription, error)
	// ListSubscriptions はダッシュボード向けの購読一覧を返す。
	ListSubscriptions(ctx context.Context, actor *model.User, page int) ([]*model.Subscription, model.Pagination, error)
}

// SubscriptionHandler はメール購読のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// subscribeRequest は購読登録リクエストのボディ。
// {"email": ...} と {"subscription": {"email": ...}} のどちらも受け付ける。
type subscribeRequest struct {
	Email        string `json:"email"`
	Subscription *struct {
		Email string `json:"email"`
	} `json:"subscription"`
}

// subscriptionResponse は購読情報のAPIレスポンス。トークンは含めない。
type subscriptionResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Subscribed bool   `json:"subscribed"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type subscriptionListResponse struct {
	Subscriptions []subscriptionResponse `json:"subscriptions"`
	Pagination    paginationResponse     `json:"pagination"`
}

func toSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:         sub.ID,
		Email:      sub.Email,
		Subscribed: sub.Subscribed,
		CreatedAt:  sub.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Subscribe は購読登録を処理する。JSONとフォーム送信の両方に対応する。
// POST {mount}/subscriptions
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var email string
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "application/json" {
		var req subscribeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeInvalidRequest(w)
			return
		}
		email = req.Email
		if email == "" && req.Subscription != nil {
			email = req.Subscription.Email
		}
	} else {
		email = r.FormValue("subscription[email]")
		if email == "" {
			email = r.FormValue("email")
		}
	}

	sub, err := h.service.Subscribe(r.Context(), email)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
}

// Unsubscribe は配信停止リンクからの購読停止を処理する。
// メールクライアントからはGETで開かれるため、GETとPOSTの両方で停止する。停止済みでも成功する。
// GET|POST {mount}/subscriptions/unsubscribe?t=...
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.UnsubscribeByToken(r.Context(), r.URL.Query().Get("t"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}

// ListSubscriptions はダッシュボード向けの購読一覧を返す。
// GET {mount}/dashboard/subscriptions
func (h *SubscriptionHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	subs, pg, err := h.service.ListSubscriptions(r.Context(), actor, pageParam(r))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	resp := subscriptionListResponse{
		Subscriptions: make([]subscriptionResponse, 0, len(subs)),
		Pagination:    toPaginationResponse(pg),
	}
	for _, sub := range subs {
		resp.Subscriptions = append(resp.Subscriptions, toSubscriptionResponse(sub))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Destroy はダッシュボードから購読を停止する。
// DELETE {mount}/dashboard/subscriptions/{id}
func (h *SubscriptionHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	sub, err := h.service.UnsubscribeAs(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubscriptionResponse(sub))
}
