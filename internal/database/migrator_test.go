package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListMigrations_Embedded(t *testing.T) {
	names, err := ListMigrations(Migrations, MigrationsRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users_telegram.up.sql"}, names)
}

func TestMigrator_AppliesPendingOnly(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"m/0001_a.up.sql":   {Data: []byte("CREATE TABLE a (id INT);")},
		"m/0002_b.up.sql":   {Data: []byte("CREATE TABLE b (id INT);")},
		"m/0002_b.down.sql": {Data: []byte("DROP TABLE b;")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectApplied)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_a.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id INT);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(insertApplied)).
		WithArgs("0002_b.up.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, NewMigrator(db, testLogger()).Apply(context.Background(), fsys, "m"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	fsys := fstest.MapFS{
		"m/0001_a.up.sql": {Data: []byte("BROKEN SQL")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectApplied)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("BROKEN SQL").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err = NewMigrator(db, testLogger()).Apply(context.Background(), fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0001_a.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
