// Package user はダッシュボード利用者とログインセッションの管理を提供する。
// ユーザー認証そのものはホストアプリケーションが担い、ここでは
// 運用コマンドから利用者の登録とセッション発行を行う。
package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storytime/internal/logger"
	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/repository"
)

// EmailValidator はメールアドレスの形式を検証する。*config.Settingsが満たす。
type EmailValidator interface {
	ValidEmail(email string) bool
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	emails      EmailValidator
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	emails EmailValidator,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		emails:      emails,
		now:         time.Now,
	}
}

// Create はダッシュボード利用者を登録する。
// roleが空の場合はwriterとして登録する。
func (s *Service) Create(ctx context.Context, email, name string, role model.Role) (*model.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if role == "" {
		role = model.RoleWriter
	}

	errs := model.ValidationErrors{}
	switch {
	case email == "":
		errs.Add("email", model.MsgBlank)
	case !s.emails.ValidEmail(email):
		errs.Add("email", model.MsgInvalid)
	}
	if name == "" {
		errs.Add("name", model.MsgBlank)
	}
	switch role {
	case model.RoleAdmin, model.RoleEditor, model.RoleWriter:
	default:
		errs.Add("role", model.MsgNotAllow)
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	u := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, model.NewValidationError(map[string][]string{"email": {model.MsgTaken}})
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを作成しました",
		slog.String("user_id", u.ID),
		slog.String("email", logger.RedactEmail(email)),
		slog.String("role", string(role)),
	)
	return u, nil
}

// IssueSession はメールアドレスで特定した利用者のセッションを発行する。
// 戻り値のIDをセッションCookieの値として使う。
func (s *Service) IssueSession(ctx context.Context, email string, ttl time.Duration) (*model.Session, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	u, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	id, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("セッションIDの生成に失敗しました: %w", err)
	}
	now := s.now()
	session := &model.Session{
		ID:        id,
		UserID:    u.ID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}

	slog.Info("セッションを発行しました",
		slog.String("user_id", u.ID),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// RevokeSessions は利用者の全セッションを破棄する。
func (s *Service) RevokeSessions(ctx context.Context, email string) error {
	u, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByUserID(ctx, u.ID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	slog.Info("セッションを破棄しました", slog.String("user_id", u.ID))
	return nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
