package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/storytime/internal/model"
)

var mediaRowColumns = []string{"id", "file_key", "file_name", "content_type", "size", "user_id", "created_at"}

func TestPostgresMediaRepo_FindByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMediaRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM media WHERE id = $1")).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(mediaRowColumns).
			AddRow("m-1", "media/m-1/photo.png", "photo.png", "image/png", int64(1024), "u-1", now))

	m, err := repo.FindByID(context.Background(), "m-1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "media/m-1/photo.png", m.FileKey)
	assert.Equal(t, int64(1024), m.Size)
	assert.Equal(t, "u-1", m.UserID)
}

func TestPostgresMediaRepo_FindByID_NotFoundReturnsNil(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMediaRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM media WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(mediaRowColumns))

	m, err := repo.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestPostgresMediaRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMediaRepo(db)

	mock.ExpectExec("INSERT INTO media").
		WithArgs("m-1", "media/m-1/a.txt", "a.txt", "text/plain", int64(3), "u-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.Media{
		ID: "m-1", FileKey: "media/m-1/a.txt", FileName: "a.txt", ContentType: "text/plain",
		Size: 3, UserID: "u-1", CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestPostgresMediaRepo_Delete_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMediaRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM media WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	require.Error(t, err)
}

func TestPostgresMediaRepo_List_NewestFirst(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresMediaRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC, id LIMIT $1 OFFSET $2")).
		WithArgs(9, 9).
		WillReturnRows(sqlmock.NewRows(mediaRowColumns).
			AddRow("m-2", "k2", "b.png", "image/png", int64(2), "u-1", now).
			AddRow("m-1", "k1", "a.png", "image/png", int64(1), "u-1", now.Add(-time.Hour)))

	list, err := repo.List(context.Background(), 9, 9)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m-2", list[0].ID)
}
