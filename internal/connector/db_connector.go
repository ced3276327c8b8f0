package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/sqlbootstrap/internal/diagnostics"
	"github.com/vitebski/sqlbootstrap/pkg/models"
	_ "modernc.org/sqlite"
)

// ConnectionConfig holds everything needed to reach one database
type ConnectionConfig struct {
	Dialect  Dialect
	Driver   string
	JarFile  string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Params   map[string]string
}

// OpenFunc opens a database handle for a driver name and DSN
type OpenFunc func(driverName, dsn string) (*sql.DB, error)

// DatabaseConnector resolves connection configs into live connections
type DatabaseConnector struct {
	Open   OpenFunc
	Logger *logrus.Logger
}

// NewDatabaseConnector creates a new database connector
func NewDatabaseConnector(logger *logrus.Logger) *DatabaseConnector {
	return &DatabaseConnector{
		Open:   sql.Open,
		Logger: logger,
	}
}

// Resolve opens a connection for cfg. Failures are never retried here.
func (dc *DatabaseConnector) Resolve(ctx context.Context, cfg ConnectionConfig) (*Connection, error) {
	profile, err := LookupProfile(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	cfg, err = profile.Normalize(cfg)
	if err != nil {
		return nil, err
	}

	dsn, err := profile.DSN(cfg)
	if err != nil {
		return nil, err
	}

	driverName := profile.DriverName
	if cfg.Driver != "" {
		driverName = cfg.Driver
	}

	db, err := dc.Open(driverName, dsn)
	if err != nil {
		dc.Logger.Errorf("Error opening %s database: %v", profile.Name, err)
		return nil, &models.ConnectionError{Dialect: profile.Name, Host: cfg.Host, Database: cfg.Database, Err: err}
	}

	return FromDB(ctx, profile, cfg, db, dc.Logger)
}

// Connection is an exclusively owned session pinned to one physical connection
type Connection struct {
	Profile Profile
	Config  ConnectionConfig
	URL     string
	DB      *sql.DB
	Conn    *sql.Conn
	Logger  *logrus.Logger
}

// FromDB takes ownership of db, pins a connection from it and prepares the
// session for cfg. db is closed if preparation fails.
func FromDB(ctx context.Context, profile Profile, cfg ConnectionConfig, db *sql.DB, logger *logrus.Logger) (*Connection, error) {
	connErr := func(err error) error {
		return &models.ConnectionError{Dialect: profile.Name, Host: cfg.Host, Database: cfg.Database, Err: err}
	}

	if err := db.PingContext(ctx); err != nil {
		logger.Errorf("Error pinging %s database: %v", profile.Name, err)
		db.Close()
		return nil, connErr(err)
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, connErr(err)
	}

	c := &Connection{
		Profile: profile,
		Config:  cfg,
		URL:     profile.ConnectionString(cfg),
		DB:      db,
		Conn:    conn,
		Logger:  logger,
	}

	if profile.SupportsExplicitCreate {
		if err := c.CreateDatabase(ctx); err != nil {
			c.Close()
			return nil, connErr(err)
		}
	}

	if profile.SupportsCatalogSelect {
		if err := c.SelectCatalog(ctx); err != nil {
			c.Close()
			return nil, connErr(err)
		}
	}

	logger.WithFields(logrus.Fields{
		"dialect":  profile.Name,
		"host":     cfg.Host,
		"database": cfg.Database,
		"url":      c.URL,
	}).Info("connected")
	return c, nil
}

// CreateDatabase creates the configured database if the server lacks it
func (c *Connection) CreateDatabase(ctx context.Context) error {
	if !c.Profile.SupportsExplicitCreate {
		return nil
	}
	query := fmt.Sprintf(c.Profile.CreateDatabaseFormat, c.Profile.QuoteIdentifier(c.Config.Database))
	if _, err := c.Conn.ExecContext(ctx, query); err != nil {
		c.Logger.Errorf("Error creating database %s: %v", c.Config.Database, err)
		return err
	}
	c.Logger.Debugf("Ensured database %s exists", c.Config.Database)
	return nil
}

// SelectCatalog makes the configured database the session default
func (c *Connection) SelectCatalog(ctx context.Context) error {
	if !c.Profile.SupportsCatalogSelect {
		return nil
	}
	query := fmt.Sprintf(c.Profile.CatalogSelectFormat, c.Profile.QuoteIdentifier(c.Config.Database))
	if _, err := c.Conn.ExecContext(ctx, query); err != nil {
		c.Logger.Errorf("Error selecting catalog %s: %v", c.Config.Database, err)
		return err
	}
	return nil
}

// ExecStatement executes one statement in auto-commit mode and returns the
// number of affected rows, or UpdateCountNoInfo when the driver cannot tell
func (c *Connection) ExecStatement(ctx context.Context, query string) (int64, error) {
	result, err := c.Conn.ExecContext(ctx, query)
	if err != nil {
		c.Logger.Debugf("Error executing statement: %v", err)
		return 0, err
	}
	return rowsAffected(result), nil
}

// ExecBatch executes statements in order without a transaction and stops at
// the first failure, which is returned as a *models.BatchError
func (c *Connection) ExecBatch(ctx context.Context, statements []string) ([]int64, error) {
	counts := make([]int64, 0, len(statements))

	for i, statement := range statements {
		result, err := c.Conn.ExecContext(ctx, statement)
		if err != nil {
			counts = append(counts, models.UpdateCountFailed)
			c.Logger.Errorf("Error executing batch statement %d: %v", i, err)
			return counts, &models.BatchError{UpdateCounts: counts, Index: i, Err: err}
		}
		counts = append(counts, rowsAffected(result))
	}

	return counts, nil
}

// BeginTx starts a transaction on the pinned connection
func (c *Connection) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return c.Conn.BeginTx(ctx, opts)
}

// QueryContext runs a query on the pinned connection
func (c *Connection) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.Conn.QueryContext(ctx, query, args...)
}

// Warnings returns the warnings left by the last statement, if the dialect reports them
func (c *Connection) Warnings(ctx context.Context) ([]models.WarningRecord, error) {
	return FetchWarnings(ctx, c.Profile, c.Conn)
}

// FetchWarnings reads the session warnings through q when the profile has a warnings query
func FetchWarnings(ctx context.Context, profile Profile, q diagnostics.Querier) ([]models.WarningRecord, error) {
	if profile.WarningsQuery == "" {
		return nil, nil
	}
	chain, err := diagnostics.FetchWarnings(ctx, q, profile.WarningsQuery)
	if err != nil {
		return nil, err
	}
	return diagnostics.CollectWarnings(chain), nil
}

// Close releases the pinned connection and the database handle
func (c *Connection) Close() error {
	var errs []error
	if c.Conn != nil {
		errs = append(errs, c.Conn.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}

	err := errors.Join(errs...)
	if err != nil {
		c.Logger.Errorf("Error closing database connection: %v", err)
	} else {
		c.Logger.Infof("%s connection closed", c.Profile.Name)
	}
	return err
}

// rowsAffected reads the affected row count of a result
func rowsAffected(result sql.Result) int64 {
	affected, err := result.RowsAffected()
	if err != nil {
		return models.UpdateCountNoInfo
	}
	return affected
}
