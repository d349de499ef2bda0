package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubermorgenland/firefly-iii-mcp/pkg/models"
)

var columns = []string{"id", "name", "title", "version", "content", "file_format", "file_size", "checksum", "is_active", "created_at", "updated_at"}

func newMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewDocumentRepository(db), mock
}

func documentRow(id int, name string, active bool) []driver.Value {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []driver.Value{id, name, "Firefly III API", "6.1.0", "openapi: 3.0.3", "yaml", 14, models.Checksum("openapi: 3.0.3"), active, now, now}
}

func TestCreate(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()

	doc := models.NewOpenAPIDocument("firefly-iii", "openapi: 3.0.3", "yaml")
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO openapi_documents")).
		WithArgs(doc.Name, doc.Title, doc.Version, doc.Content, doc.FileFormat, doc.FileSize, doc.Checksum, doc.IsActive).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))

	created, err := repo.Create(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 7, created.ID)
	require.NotNil(t, created.CreatedAt)
}

func TestCreate_Error(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("INSERT INTO openapi_documents").WillReturnError(errors.New("duplicate key"))

	_, err := repo.Create(context.Background(), models.NewOpenAPIDocument("x", "y", "json"))
	assert.ErrorContains(t, err, "failed to create document")
}

func TestGetByName(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM openapi_documents WHERE name = $1")).
		WithArgs("firefly-iii").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(documentRow(3, "firefly-iii", true)...))

	doc, err := repo.GetByName(context.Background(), "firefly-iii")
	require.NoError(t, err)
	assert.Equal(t, 3, doc.ID)
	assert.Equal(t, "6.1.0", *doc.Version)
	assert.True(t, doc.Active())
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).WithArgs(9).WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.GetByID(context.Background(), 9)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetActive(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE is_active = true ORDER BY updated_at DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(documentRow(4, "firefly-iii-6.1", true)...))

	doc, err := repo.GetActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "firefly-iii-6.1", doc.Name)
}

func TestGetActive_None(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("WHERE is_active = true").WillReturnRows(sqlmock.NewRows(columns))

	_, err := repo.GetActive(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM openapi_documents ORDER BY created_at DESC")).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(documentRow(2, "b", false)...).
			AddRow(documentRow(1, "a", true)...))

	docs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].Name)
	assert.False(t, docs[0].Active())
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectQuery("UPDATE openapi_documents").WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	doc := models.NewOpenAPIDocument("x", "y", "yaml")
	doc.ID = 12
	_, err := repo.Update(context.Background(), doc)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM openapi_documents WHERE id = $1")).WithArgs(5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM openapi_documents").WithArgs(6).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 5))
	assert.ErrorIs(t, repo.Delete(context.Background(), 6), ErrNotFound)
}

func TestActivate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET is_active = false WHERE is_active = true AND id <> $1")).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET is_active = true")).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Activate(context.Background(), 3))
}

func TestActivate_MissingRollsBack(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("SET is_active = false").WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET is_active = true").WithArgs(8).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Activate(context.Background(), 8), ErrNotFound)
}

func TestDeactivate(t *testing.T) {
	repo, mock := newMock(t)
	mock.ExpectExec("SET is_active = false").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Deactivate(context.Background(), 2))
}

func TestSaveCatalog(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (document_id) DO UPDATE")).
		WithArgs(3, `{"tools":[]}`, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "generated_at"}).AddRow(11, now))

	c, err := repo.SaveCatalog(context.Background(), &models.ToolCatalog{DocumentID: 3, Artifact: `{"tools":[]}`})
	require.NoError(t, err)
	assert.Equal(t, 11, c.ID)
}

func TestGetCatalog(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM tool_catalogs WHERE document_id = $1")).WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "artifact", "tool_count", "generated_at"}).
			AddRow(11, 3, `{"tools":[]}`, 0, now))
	mock.ExpectQuery("FROM tool_catalogs").WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "artifact", "tool_count", "generated_at"}))

	c, err := repo.GetCatalog(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, `{"tools":[]}`, c.Artifact)

	_, err = repo.GetCatalog(context.Background(), 4)
	assert.ErrorIs(t, err, ErrNotFound)
}
