package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/hitoshi/storytime/internal/model"
	"github.com/hitoshi/storytime/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByEmailFn func(ctx context.Context, email string) (*model.User, error)
	createFn      func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}
func (m *mockSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type regexpValidator struct{ re *regexp.Regexp }

func (v regexpValidator) ValidEmail(email string) bool { return v.re.MatchString(email) }

func newValidator() EmailValidator {
	return regexpValidator{re: regexp.MustCompile(`\A[^@\s]+@([^@\s]+\.)+[^@\s]+\z`)}
}

func apiErrorFields(t *testing.T, err error) map[string][]string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返されるべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeValidationFailed {
		t.Fatalf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidationFailed)
	}
	return apiErr.Fields
}

// --- テスト ---

func TestService_Create_Success(t *testing.T) {
	var saved *model.User
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			saved = user
			return nil
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, newValidator())

	u, err := svc.Create(context.Background(), " admin@example.com ", "Admin", model.RoleAdmin)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if saved == nil || saved != u {
		t.Fatal("作成したユーザーがリポジトリに保存されていない")
	}
	if u.ID == "" {
		t.Error("IDが採番されていない")
	}
	if u.Email != "admin@example.com" {
		t.Errorf("Email = %q, want trimmed address", u.Email)
	}
	if u.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want admin", u.Role)
	}
}

func TestService_Create_DefaultsToWriter(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, newValidator())

	u, err := svc.Create(context.Background(), "w@example.com", "Writer", "")
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if u.Role != model.RoleWriter {
		t.Errorf("Role = %q, want writer", u.Role)
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	svc := NewService(&mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			t.Fatal("検証エラー時に保存してはならない")
			return nil
		},
	}, &mockSessionRepo{}, newValidator())

	tests := []struct {
		name  string
		email string
		uname string
		role  model.Role
		field string
		msg   string
	}{
		{"blank email", "", "A", model.RoleWriter, "email", model.MsgBlank},
		{"invalid email", "not-an-email", "A", model.RoleWriter, "email", model.MsgInvalid},
		{"blank name", "a@example.com", "  ", model.RoleWriter, "name", model.MsgBlank},
		{"unknown role", "a@example.com", "A", "owner", "role", model.MsgNotAllow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.email, tt.uname, tt.role)
			fields := apiErrorFields(t, err)
			msgs := fields[tt.field]
			if len(msgs) != 1 || msgs[0] != tt.msg {
				t.Errorf("Fields[%s] = %v, want [%s]", tt.field, msgs, tt.msg)
			}
		})
	}
}

func TestService_Create_DuplicateEmail(t *testing.T) {
	repo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			return fmt.Errorf("insert: %w", repository.ErrUniqueViolation)
		},
	}
	svc := NewService(repo, &mockSessionRepo{}, newValidator())

	_, err := svc.Create(context.Background(), "dup@example.com", "Dup", model.RoleEditor)
	fields := apiErrorFields(t, err)
	if got := fields["email"]; len(got) != 1 || got[0] != model.MsgTaken {
		t.Errorf("Fields[email] = %v, want [%s]", got, model.MsgTaken)
	}
}

func TestService_IssueSession_Success(t *testing.T) {
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			if email != "a@example.com" {
				t.Errorf("email = %q", email)
			}
			return &model.User{ID: "user-1", Email: email}, nil
		},
	}
	var saved *model.Session
	sessions := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			saved = session
			return nil
		},
	}
	svc := NewService(users, sessions, newValidator())
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	session, err := svc.IssueSession(context.Background(), "a@example.com", 2*time.Hour)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if saved != session {
		t.Fatal("発行したセッションが保存されていない")
	}
	if session.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", session.UserID)
	}
	if len(session.ID) != 64 {
		t.Errorf("セッションIDは64文字の16進数であるべき: %q", session.ID)
	}
	if !session.ExpiresAt.Equal(fixed.Add(2 * time.Hour)) {
		t.Errorf("ExpiresAt = %v", session.ExpiresAt)
	}
}

func TestService_IssueSession_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, newValidator())

	_, err := svc.IssueSession(context.Background(), "missing@example.com", time.Hour)
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("USER_NOT_FOUNDが返されるべき: %v", err)
	}
}

func TestService_IssueSession_RejectsNonPositiveTTL(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, newValidator())

	if _, err := svc.IssueSession(context.Background(), "a@example.com", 0); err == nil {
		t.Fatal("ttlが0の場合はエラーになるべき")
	}
}

func TestService_RevokeSessions(t *testing.T) {
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1"}, nil
		},
	}
	var deletedFor string
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			deletedFor = userID
			return nil
		},
	}
	svc := NewService(users, sessions, newValidator())

	if err := svc.RevokeSessions(context.Background(), "a@example.com"); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if deletedFor != "user-1" {
		t.Errorf("DeleteByUserID called with %q, want user-1", deletedFor)
	}
}

func TestService_RevokeSessions_PropagatesError(t *testing.T) {
	users := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1"}, nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}
	svc := NewService(users, sessions, newValidator())

	if err := svc.RevokeSessions(context.Background(), "a@example.com"); err == nil {
		t.Fatal("削除エラーが返されるべき")
	}
}
