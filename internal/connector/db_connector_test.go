package connector

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	return db, mock
}

func TestResolveMySQLCreatesAndSelectsDatabase(t *testing.T) {
	db, mock := newMock(t)
	logger, hook := test.NewNullLogger()

	var gotDriver, gotDSN string
	dc := NewDatabaseConnector(logger)
	dc.Open = func(driverName, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driverName, dsn
		return db, nil
	}

	mock.ExpectExec("CREATE DATABASE IF NOT EXISTS `coffeehouse`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("USE `coffeehouse`").WillReturnResult(sqlmock.NewResult(0, 0))

	conn, err := dc.Resolve(context.Background(), ConnectionConfig{
		Dialect:  MySQL,
		Host:     "localhost",
		Database: "coffeehouse",
		User:     "root",
		Password: "root",
	})
	require.NoError(t, err)

	assert.Equal(t, "mysql", gotDriver)
	assert.Contains(t, gotDSN, "@tcp(localhost:3306)/")
	assert.Equal(t, "mysql://localhost:3306/coffeehouse", conn.URL)

	var connected bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "connected" {
			connected = true
			assert.Equal(t, "mysql", entry.Data["dialect"])
			assert.Equal(t, "localhost", entry.Data["host"])
			assert.Equal(t, "coffeehouse", entry.Data["database"])
		}
	}
	assert.True(t, connected, "expected a connected event")

	mock.ExpectClose()
	require.NoError(t, conn.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveDriverOverride(t *testing.T) {
	db, mock := newMock(t)
	logger, _ := test.NewNullLogger()

	var gotDriver string
	dc := NewDatabaseConnector(logger)
	dc.Open = func(driverName, dsn string) (*sql.DB, error) {
		gotDriver = driverName
		return db, nil
	}

	conn, err := dc.Resolve(context.Background(), ConnectionConfig{
		Dialect:  Postgres,
		Driver:   "pgx",
		Host:     "localhost",
		Database: "coffeehouse",
	})
	require.NoError(t, err)
	assert.Equal(t, "pgx", gotDriver)

	mock.ExpectClose()
	require.NoError(t, conn.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveUnsupportedDialect(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dc := NewDatabaseConnector(logger)
	dc.Open = func(driverName, dsn string) (*sql.DB, error) {
		t.Fatal("open must not be called for an unknown dialect")
		return nil, nil
	}

	_, err := dc.Resolve(context.Background(), ConnectionConfig{Dialect: Dialect(42), Database: "x"})
	assert.True(t, errors.Is(err, models.ErrUnsupportedDialect))
}

func TestResolveOpenFailure(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dc := NewDatabaseConnector(logger)
	dc.Open = func(driverName, dsn string) (*sql.DB, error) {
		return nil, errors.New("unknown driver")
	}

	_, err := dc.Resolve(context.Background(), ConnectionConfig{Dialect: Embedded, Database: "coffeehouse.db"})
	var connErr *models.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "embedded", connErr.Dialect)
	assert.Equal(t, "coffeehouse.db", connErr.Database)
}

func TestResolvePingFailureReleasesHandle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	dc := NewDatabaseConnector(logger)
	dc.Open = func(driverName, dsn string) (*sql.DB, error) {
		return db, nil
	}

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	_, err = dc.Resolve(context.Background(), ConnectionConfig{Dialect: Postgres, Host: "localhost", Database: "coffeehouse"})
	var connErr *models.ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Contains(t, connErr.Error(), "connection refused")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCatalogSelectFailureReleasesHandle(t *testing.T) {
	db, mock := newMock(t)
	logger, _ := test.NewNullLogger()

	dc := NewDatabaseConnector(logger)
	dc.Open = func(driverName, dsn string) (*sql.DB, error) {
		return db, nil
	}

	mock.ExpectExec("CREATE DATABASE IF NOT EXISTS `coffeehouse`").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("USE `coffeehouse`").WillReturnError(errors.New("access denied"))
	mock.ExpectClose()

	_, err := dc.Resolve(context.Background(), ConnectionConfig{Dialect: MySQL, Host: "localhost", Database: "coffeehouse"})
	var connErr *models.ConnectionError
	require.True(t, errors.As(err, &connErr))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecBatchStopsAtFirstFailure(t *testing.T) {
	db, mock := newMock(t)
	logger, _ := test.NewNullLogger()
	profile, _ := LookupProfile(InMemory)

	conn, err := FromDB(context.Background(), profile, ConnectionConfig{Dialect: InMemory, Database: "coffeehouse"}, db, logger)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO SUPPLIERS VALUES (49, 'Superior Coffee')").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO SUPPLIERS VALUES (49, 'Duplicate')").WillReturnError(errors.New("UNIQUE constraint failed"))

	counts, err := conn.ExecBatch(context.Background(), []string{
		"INSERT INTO SUPPLIERS VALUES (49, 'Superior Coffee')",
		"INSERT INTO SUPPLIERS VALUES (49, 'Duplicate')",
		"INSERT INTO SUPPLIERS VALUES (101, 'Acme, Inc.')",
	})
	assert.Equal(t, []int64{1, models.UpdateCountFailed}, counts)

	var batchErr *models.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 1, batchErr.Index)
	assert.Equal(t, counts, batchErr.UpdateCounts)

	mock.ExpectClose()
	require.NoError(t, conn.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFetchWarnings(t *testing.T) {
	db, mock := newMock(t)
	defer db.Close()
	ctx := context.Background()

	mysqlProfile, _ := LookupProfile(MySQL)
	mock.ExpectQuery("SHOW WARNINGS").WillReturnRows(
		sqlmock.NewRows([]string{"Level", "Code", "Message"}).
			AddRow("Note", 1051, "Unknown table 'coffeehouse.COFFEES'").
			AddRow("Warning", 1265, "Data truncated for column 'PRICE' at row 1"),
	)

	records, err := FetchWarnings(ctx, mysqlProfile, db)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Note", records[0].Level)
	assert.Equal(t, 1051, records[0].VendorCode)
	assert.Equal(t, 1265, records[1].VendorCode)

	pgProfile, _ := LookupProfile(Postgres)
	records, err = FetchWarnings(ctx, pgProfile, db)
	require.NoError(t, err)
	assert.Nil(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}
