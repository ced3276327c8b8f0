package runner

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jaswdr/faker"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/sqlbootstrap/internal/connector"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

func newConnection(t *testing.T, d connector.Dialect) (*connector.Connection, sqlmock.Sqlmock, *logrus.Logger) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	profile, err := connector.LookupProfile(d)
	require.NoError(t, err)
	cfg := connector.ConnectionConfig{Dialect: d, Database: "coffeehouse"}
	if profile.Network {
		cfg.Host = "localhost"
		cfg.Port = profile.DefaultPort
	}
	if profile.SupportsExplicitCreate {
		mock.ExpectExec("CREATE DATABASE IF NOT EXISTS `coffeehouse`").WillReturnResult(sqlmock.NewResult(0, 1))
	}
	if profile.SupportsCatalogSelect {
		mock.ExpectExec("USE `coffeehouse`").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	conn, err := connector.FromDB(context.Background(), profile, cfg, db, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, conn.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return conn, mock, logger
}

func TestParseScript(t *testing.T) {
	unit := ParseScript("CREATE TABLE T (x INT);  ; INSERT INTO T VALUES (1);")
	require.Equal(t, 2, unit.Len())
	assert.Equal(t, "CREATE TABLE T (x INT)", unit.Statements[0])
	assert.Equal(t, " INSERT INTO T VALUES (1)", unit.Statements[1])

	for _, blank := range []string{"", ";", " ; \n\t;", "\n"} {
		assert.Equal(t, 0, ParseScript(blank).Len(), "%q", blank)
	}

	unit = ParseScript("INSERT INTO COFFEES VALUES ('Colombian',  101)\n")
	require.Equal(t, 1, unit.Len())
	assert.Equal(t, "INSERT INTO COFFEES VALUES ('Colombian',  101)\n", unit.Statements[0])
}

func TestParseScriptPreservesOrder(t *testing.T) {
	f := faker.New()

	for i := 0; i < 100; i++ {
		var statements []string
		var b strings.Builder
		for j := f.IntBetween(0, 12); j > 0; j-- {
			if f.IntBetween(0, 1) == 0 {
				b.WriteString(strings.Repeat(" ", f.IntBetween(0, 3)))
				b.WriteString(StatementTerminator)
				continue
			}
			statement := "INSERT INTO T VALUES ('" + f.Lorem().Word() + "')"
			statements = append(statements, statement)
			b.WriteString(statement)
			b.WriteString(StatementTerminator)
		}

		unit := ParseScript(b.String())
		assert.Equal(t, statements, unit.Statements, b.String())
	}
}

func TestParseIsolation(t *testing.T) {
	tests := map[string]sql.IsolationLevel{
		"":                 sql.LevelDefault,
		"default":          sql.LevelDefault,
		"read-uncommitted": sql.LevelReadUncommitted,
		"READ_COMMITTED":   sql.LevelReadCommitted,
		"repeatable read":  sql.LevelRepeatableRead,
		" Serializable ":   sql.LevelSerializable,
	}
	for name, want := range tests {
		got, err := ParseIsolation(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseIsolation("snapshot-ish")
	assert.True(t, errors.Is(err, models.ErrInvalidConfig))
}

func TestRunScriptCommits(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.Postgres)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE T (x INT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(" INSERT INTO T VALUES (1)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn,
		"CREATE TABLE T (x INT); INSERT INTO T VALUES (1);", sql.LevelReadCommitted)
	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.False(t, outcome.RolledBack)
	require.Len(t, outcome.Steps, 2)
	assert.Equal(t, 1, outcome.Steps[1].Index)
	assert.Equal(t, int64(1), outcome.Steps[1].RowsAffected)
	assert.Empty(t, outcome.Warnings)
}

func TestRunScriptRollsBackOnFailure(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.Postgres)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE T (x INT)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(" INSERT INTO T VALUES (1)").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn,
		"CREATE TABLE T (x INT);  ; INSERT INTO T VALUES (1);", sql.LevelSerializable)
	require.Error(t, err)
	assert.False(t, outcome.Succeeded)
	assert.True(t, outcome.RolledBack)
	assert.Equal(t, err, outcome.Err())

	var backendErr *models.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, models.PhaseScript, backendErr.Phase)
	assert.Equal(t, 1, backendErr.Index)
	assert.Equal(t, " INSERT INTO T VALUES (1)", backendErr.Statement)
	assert.Equal(t, "23505", backendErr.Code)
	assert.Equal(t, "postgres", backendErr.Dialect)
	assert.False(t, backendErr.Ignorable)
	assert.Len(t, outcome.Steps, 1)
}

func TestRunScriptMarksIgnorableCodes(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.Postgres)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE COFFEES (COF_NAME VARCHAR(32))").WillReturnError(&pq.Error{Code: "42P07", Message: `relation "coffees" already exists`})
	mock.ExpectRollback()

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn,
		"CREATE TABLE COFFEES (COF_NAME VARCHAR(32));", sql.LevelDefault)
	require.Error(t, err)
	assert.True(t, outcome.RolledBack)

	var backendErr *models.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.True(t, backendErr.Ignorable)
	assert.Equal(t, 0, backendErr.Index)
}

func TestRunScriptEmptyIsNoOp(t *testing.T) {
	conn, _, logger := newConnection(t, connector.Postgres)

	for _, text := range []string{"", "  ;\n; ", ";;;"} {
		outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn, text, sql.LevelSerializable)
		require.NoError(t, err)
		assert.True(t, outcome.Succeeded)
		assert.Empty(t, outcome.Steps)
		assert.False(t, outcome.RolledBack)
	}
}

func TestRunScriptFallsBackWithoutIsolationSupport(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.InMemory)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM COFFEES").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn, "DELETE FROM COFFEES", sql.LevelSerializable)
	require.NoError(t, err)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0].Message, "not supported by memory")
}

func TestRunScriptCollectsWarningsInsideTransaction(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.MySQL)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO COFFEES VALUES ('Espresso', 150, 9.999)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SHOW WARNINGS").WillReturnRows(
		sqlmock.NewRows([]string{"Level", "Code", "Message"}).AddRow("Note", 1265, "Data truncated for column 'PRICE' at row 1"),
	)
	mock.ExpectCommit()

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn,
		"INSERT INTO COFFEES VALUES ('Espresso', 150, 9.999);", sql.LevelRepeatableRead)
	require.NoError(t, err)
	require.Len(t, outcome.Warnings, 1)
	assert.Equal(t, 1265, outcome.Warnings[0].VendorCode)
}

func TestRunScriptCommitFailure(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.Postgres)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE COFFEES SET PRICE = 9.99").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn, "UPDATE COFFEES SET PRICE = 9.99;", sql.LevelSerializable)
	require.Error(t, err)
	assert.False(t, outcome.Succeeded)

	var backendErr *models.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, models.PhaseCommit, backendErr.Phase)
	assert.Equal(t, "40001", backendErr.Code)
}

func TestRunScriptBeginFailure(t *testing.T) {
	conn, mock, logger := newConnection(t, connector.Postgres)

	mock.ExpectBegin().WillReturnError(errors.New("connection reset by peer"))

	outcome, err := NewScriptRunner(logger).RunScript(context.Background(), conn, "SELECT 1;", sql.LevelDefault)
	require.Error(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Empty(t, outcome.Steps)

	var backendErr *models.BackendError
	require.True(t, errors.As(err, &backendErr))
	assert.Equal(t, models.PhaseBegin, backendErr.Phase)
}
