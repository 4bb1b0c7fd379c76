package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func newMockRepo(t *testing.T) (*UserRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	return NewUserRepository(gdb), mock
}

var selectByUsername = regexp.QuoteMeta("SELECT * FROM `users` WHERE username = ?")

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "password_hash", "salt", "session_key", "created_at"}).
		AddRow(1, "alice", "hash", []byte("0123456789abcdef"), "key", time.Now())
}

func TestGetByUsername_RetriesTransientReadOnce(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(selectByUsername).WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(selectByUsername).WillReturnRows(userRows())

	user, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, uint(1), user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByUsername_NotFoundIsNotRetried(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(selectByUsername).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "salt", "session_key", "created_at"}))

	user, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet(), "a miss must consume exactly one query")
}

func TestGetByUsername_PersistentFailureSurfaces(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(selectByUsername).WillReturnError(errors.New("connection reset"))
	mock.ExpectQuery(selectByUsername).WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByUsername(context.Background(), "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query user by username failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
