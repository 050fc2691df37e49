package logs

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/extmedia/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

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

func TestAppend(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO event_log (created_at, message, url, severity) VALUES ($1, $2, $3, $4) RETURNING id`)).
		WithArgs(now, "import failed", "https://x/a", "error").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	e := &models.LogEntry{CreatedAt: now, Message: "import failed", URL: "https://x/a", Severity: models.SeverityError}
	require.NoError(t, repo.Append(context.Background(), e))
	assert.EqualValues(t, 11, e.ID)
}

func TestAppend_Error(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	mock.ExpectQuery(`INSERT INTO event_log`).WillReturnError(errors.New("down"))

	err := repo.Append(context.Background(), &models.LogEntry{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append log entry")
}

func TestDeleteOlderThan(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	cut := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM event_log WHERE created_at < $1`)).
		WithArgs(cut).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteOlderThan(context.Background(), cut)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}

func TestRecent(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM event_log ORDER BY id DESC LIMIT $1`)).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "message", "url", "severity"}).
			AddRow(int64(2), now, "b", "", "info").
			AddRow(int64(1), now, "a", "u", "warning"))

	got, err := repo.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SeverityWarning, got[1].Severity)
}
