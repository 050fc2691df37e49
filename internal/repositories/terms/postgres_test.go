package terms

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/extmedia/internal/common"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var termCols = []string{"id", "name", "service", "directory_url", "enabled", "recursive"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresRepository(db), mock
}

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectExec(`INSERT INTO directory_terms`).
		WithArgs(sqlmock.AnyArg(), "photos", "nas", "ftp://nas/photos/", true, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	term := &models.DirectoryTerm{Name: "photos", Service: "nas", DirectoryURL: "ftp://nas/photos/", Enabled: true}
	require.NoError(t, repo.Create(context.Background(), term))
	assert.NotEmpty(t, term.ID)
}

func TestCreate_DuplicateName(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectExec(`INSERT INTO directory_terms`).WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.DirectoryTerm{Name: "photos"})
	assert.ErrorIs(t, err, common.ErrDuplicate)
}

func TestGetByName(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM directory_terms WHERE name = $1`)).
		WithArgs("photos").
		WillReturnRows(sqlmock.NewRows(termCols).AddRow("t1", "photos", "nas", "ftp://nas/photos/", true, true))

	term, err := repo.GetByName(context.Background(), "photos")
	require.NoError(t, err)
	assert.Equal(t, "t1", term.ID)
	assert.True(t, term.Recursive)
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM directory_terms WHERE id = $1`)).WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "x")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE enabled OR NOT $1 ORDER BY name`)).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows(termCols).
			AddRow("t1", "a", "nas", "ftp://nas/a/", true, false).
			AddRow("t2", "b", "bucket", "s3://b/p/", true, true))

	got, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSetEnabledAndDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE directory_terms SET enabled = $2 WHERE id = $1`)).
		WithArgs("t1", false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SetEnabled(ctx, "t1", false))

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM directory_terms WHERE id = $1`)).
		WithArgs("t9").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Delete(ctx, "t9"), common.ErrorNotFound)
}
