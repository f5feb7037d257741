package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/storytime/internal/media"
	"github.com/hitoshi/storytime/internal/middleware"
	"github.com/hitoshi/storytime/internal/model"
)

const (
	// MaxUploadBytes はアップロード1件あたりのリクエストボディ上限。
	MaxUploadBytes = 32 << 20

	multipartMemory = 8 << 20
)

// MediaServiceInterface はメディアハンドラーが必要とするサービスインターフェース。
type MediaServiceInterface interface {
	UploadsEnabled() bool
	Create(ctx context.Context, actor *model.User, up media.Upload) (*model.Media, error)
	Destroy(ctx context.Context, actor *model.User, id string) error
	List(ctx context.Context, actor *model.User, page int) ([]*model.Media, model.Pagination, error)
}

// UploadRecorder はアップロードの成功を記録する。
type UploadRecorder interface {
	RecordMediaUpload(size int64)
}

// MediaHandler はメディアギャラリーのHTTPハンドラー。
type MediaHandler struct {
	service   MediaServiceInterface
	recorder  UploadRecorder
	postsPath string
}

// NewMediaHandler はMediaHandlerを生成する。
// postsPathはアップロード無効時にギャラリーからリダイレクトする先。recorderはnilでもよい。
func NewMediaHandler(service MediaServiceInterface, recorder UploadRecorder, postsPath string) *MediaHandler {
	return &MediaHandler{
		service:   service,
		recorder:  recorder,
		postsPath: postsPath,
	}
}

type mediaResponse struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	UserID      string `json:"user_id"`
	CreatedAt   string `json:"created_at"`
}

type mediaListResponse struct {
	Media      []mediaResponse    `json:"media"`
	Pagination paginationResponse `json:"pagination"`
}

func toMediaResponse(m *model.Media) mediaResponse {
	return mediaResponse{
		ID:          m.ID,
		FileName:    m.FileName,
		ContentType: m.ContentType,
		Size:        m.Size,
		URL:         m.URL,
		UserID:      m.UserID,
		CreatedAt:   m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Index はメディアギャラリーを返す。
// アップロードが無効な場合は記事一覧へリダイレクトする。
// GET {mount}/dashboard/media
func (h *MediaHandler) Index(w http.ResponseWriter, r *http.Request) {
	if !h.service.UploadsEnabled() {
		http.Redirect(w, r, h.postsPath, http.StatusFound)
		return
	}

	items, pg, err := h.service.List(r.Context(), middleware.ActorFromContext(r.Context()), pageParam(r))
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}

	resp := mediaListResponse{
		Media:      make([]mediaResponse, 0, len(items)),
		Pagination: toPaginationResponse(pg),
	}
	for _, m := range items {
		resp.Media = append(resp.Media, toMediaResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はmultipartのファイルを受け取りメディアを作成する。
// ファイルフィールドは "media[file]"、無ければ "file" を使う。
// POST {mount}/dashboard/media
func (h *MediaHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())

	var up media.Upload
	if h.service.UploadsEnabled() {
		r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, &model.APIError{
					Code:     "UPLOAD_TOO_LARGE",
					Message:  "ファイルサイズが上限を超えています。",
					Category: "media",
					Action:   "より小さいファイルを選択してください。",
				})
				return
			}
			writeInvalidRequest(w)
			return
		}
		if r.MultipartForm != nil {
			defer r.MultipartForm.RemoveAll()
		}

		file, header := formFile(r, "media[file]", "file")
		if file != nil {
			defer file.Close()
			up = media.Upload{
				File:        file,
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Size:        header.Size,
			}
		}
	}

	m, err := h.service.Create(r.Context(), actor, up)
	if err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	if h.recorder != nil {
		h.recorder.RecordMediaUpload(m.Size)
	}
	writeJSON(w, http.StatusCreated, toMediaResponse(m))
}

// Destroy はメディアを削除する。
// DELETE {mount}/dashboard/media/{id}
func (h *MediaHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromContext(r.Context())
	if err := h.service.Destroy(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		middleware.WriteServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func formFile(r *http.Request, keys ...string) (multipart.File, *multipart.FileHeader) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	for _, key := range keys {
		if file, header, err := r.FormFile(key); err == nil {
			return file, header
		}
	}
	return nil, nil
}
