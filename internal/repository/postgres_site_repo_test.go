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

var siteRowColumns = []string{"id", "title", "root_page_content", "root_post_id", "created_at", "updated_at"}

func TestPostgresSiteRepo_FindFirst(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresSiteRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM sites ORDER BY created_at ASC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows(siteRowColumns).AddRow("s-1", "Blog", "page", "p-1", now, now))

	site, err := repo.FindFirst(context.Background())
	require.NoError(t, err)
	require.NotNil(t, site)
	assert.Equal(t, model.RootPageContentPage, site.RootPageContent)
	assert.Equal(t, "p-1", site.RootPostID)
}

func TestPostgresSiteRepo_FindFirst_NoSite(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresSiteRepo(db)

	mock.ExpectQuery("FROM sites").WillReturnRows(sqlmock.NewRows(siteRowColumns))

	site, err := repo.FindFirst(context.Background())
	require.NoError(t, err)
	assert.Nil(t, site)
}

func TestPostgresSiteRepo_Create_NullRootPost(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPostgresSiteRepo(db)
	now := time.Now()

	mock.ExpectExec("INSERT INTO sites").
		WithArgs("s-1", "Blog", "posts", nil, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.Site{
		ID: "s-1", Title: "Blog", RootPageContent: model.RootPageContentPosts, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
}
