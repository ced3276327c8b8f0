package connector

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	go_ora "github.com/sijms/go-ora/v2"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// Dialect identifies a supported database backend
type Dialect int

const (
	MySQL Dialect = iota
	Postgres
	SQLServer
	Oracle
	// Embedded is a file-backed SQLite database created on first use
	Embedded
	// InMemory is a named shared-cache SQLite memory database
	InMemory

	dialectCount
)

// Profile describes how to reach a backend and what it supports
type Profile struct {
	Dialect     Dialect
	Name        string
	Scheme      string
	DriverName  string
	Network     bool
	DefaultPort int

	// SupportsExplicitCreate issues CREATE DATABASE IF NOT EXISTS after connecting
	SupportsExplicitCreate bool
	// CreateOnConnect appends a create-on-first-use directive to the connection string
	CreateOnConnect bool
	// SupportsCatalogSelect switches the session to the configured database after connecting
	SupportsCatalogSelect bool
	InMemory              bool
	SupportsIsolation     bool
	DropIfExists          bool

	CreateDatabaseFormat string
	CatalogSelectFormat  string
	QuoteOpen            string
	QuoteClose           string
	WarningsQuery        string
	IgnorableCodes       []string
	ScriptDir            string
}

var profiles = [...]Profile{
	MySQL: {
		Dialect:                MySQL,
		Name:                   "mysql",
		Scheme:                 "mysql",
		DriverName:             "mysql",
		Network:                true,
		DefaultPort:            3306,
		SupportsExplicitCreate: true,
		SupportsCatalogSelect:  true,
		SupportsIsolation:      true,
		DropIfExists:           true,
		CreateDatabaseFormat:   "CREATE DATABASE IF NOT EXISTS %s",
		CatalogSelectFormat:    "USE %s",
		QuoteOpen:              "`",
		QuoteClose:             "`",
		WarningsQuery:          "SHOW WARNINGS",
		IgnorableCodes:         []string{"42S01", "42S02"},
		ScriptDir:              "mysql",
	},
	Postgres: {
		Dialect:           Postgres,
		Name:              "postgres",
		Scheme:            "postgres",
		DriverName:        "postgres",
		Network:           true,
		DefaultPort:       5432,
		SupportsIsolation: true,
		DropIfExists:      true,
		QuoteOpen:         `"`,
		QuoteClose:        `"`,
		IgnorableCodes:    []string{"42P07", "42P01"},
		ScriptDir:         "postgres",
	},
	SQLServer: {
		Dialect:               SQLServer,
		Name:                  "sqlserver",
		Scheme:                "sqlserver",
		DriverName:            "sqlserver",
		Network:               true,
		DefaultPort:           1433,
		SupportsCatalogSelect: true,
		SupportsIsolation:     true,
		DropIfExists:          true,
		CatalogSelectFormat:   "USE %s",
		QuoteOpen:             "[",
		QuoteClose:            "]",
		IgnorableCodes:        []string{"2714", "3701"},
		ScriptDir:             "sqlserver",
	},
	Oracle: {
		Dialect:        Oracle,
		Name:           "oracle",
		Scheme:         "oracle",
		DriverName:     "oracle",
		Network:        true,
		DefaultPort:    1521,
		QuoteOpen:      `"`,
		QuoteClose:     `"`,
		IgnorableCodes: []string{"ORA-00955", "ORA-00942"},
		ScriptDir:      "oracle",
	},
	Embedded: {
		Dialect:         Embedded,
		Name:            "embedded",
		Scheme:          "file",
		DriverName:      "sqlite",
		CreateOnConnect: true,
		DropIfExists:    true,
		QuoteOpen:       `"`,
		QuoteClose:      `"`,
		ScriptDir:       "sqlite",
	},
	InMemory: {
		Dialect:      InMemory,
		Name:         "memory",
		Scheme:       "file",
		DriverName:   "sqlite",
		InMemory:     true,
		DropIfExists: true,
		QuoteOpen:    `"`,
		QuoteClose:   `"`,
		ScriptDir:    "sqlite",
	},
}

// Fails to compile when a Dialect constant has no profile or vice versa.
var _ = [1]struct{}{}[len(profiles)-int(dialectCount)]

// dialectNames maps accepted names, including the original backend names, to dialects
var dialectNames = map[string]Dialect{
	"mysql":      MySQL,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"pg":         Postgres,
	"sqlserver":  SQLServer,
	"mssql":      SQLServer,
	"oracle":     Oracle,
	"embedded":   Embedded,
	"sqlite":     Embedded,
	"derby":      Embedded,
	"memory":     InMemory,
	"inmemory":   InMemory,
	"sqlite-mem": InMemory,
	"hsqldb":     InMemory,
}

func (d Dialect) String() string {
	if d >= 0 && d < dialectCount {
		return profiles[d].Name
	}
	return "Dialect(" + strconv.Itoa(int(d)) + ")"
}

// ParseDialect resolves a dialect name case-insensitively
func ParseDialect(name string) (Dialect, error) {
	if d, ok := dialectNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("%w: %q", models.ErrUnsupportedDialect, name)
}

// DialectNames returns every accepted dialect name in sorted order
func DialectNames() []string {
	names := make([]string, 0, len(dialectNames))
	for name := range dialectNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dialects returns all known dialects
func Dialects() []Dialect {
	dialects := make([]Dialect, 0, dialectCount)
	for d := Dialect(0); d < dialectCount; d++ {
		dialects = append(dialects, d)
	}
	return dialects
}

// LookupProfile returns the profile of a dialect
func LookupProfile(d Dialect) (Profile, error) {
	if d < 0 || d >= dialectCount {
		return Profile{}, fmt.Errorf("%w: %s", models.ErrUnsupportedDialect, d)
	}
	return profiles[d], nil
}

// QuoteIdentifier quotes a database or table name for this dialect
func (p Profile) QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, p.QuoteClose, p.QuoteClose+p.QuoteClose)
	return p.QuoteOpen + escaped + p.QuoteClose
}

// Normalize validates cfg against the profile and fills in defaults
func (p Profile) Normalize(cfg ConnectionConfig) (ConnectionConfig, error) {
	if cfg.Database == "" {
		return cfg, fmt.Errorf("%w: database name is required", models.ErrInvalidConfig)
	}

	if !p.Network {
		if cfg.Port != 0 {
			return cfg, fmt.Errorf("%w: %s does not use a network port (got %d)", models.ErrInvalidConfig, p.Name, cfg.Port)
		}
		return cfg, nil
	}

	if cfg.Host == "" {
		return cfg, fmt.Errorf("%w: %s requires a server host", models.ErrInvalidConfig, p.Name)
	}
	if cfg.Port == 0 {
		cfg.Port = p.DefaultPort
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("%w: invalid port number %d", models.ErrInvalidConfig, cfg.Port)
	}
	return cfg, nil
}

// ConnectionString builds the canonical connection string of cfg:
// scheme://host:port/database for network dialects, file:database with an
// optional create directive for embedded ones, and a shared-cache memory
// file name for in-memory ones. Credentials are never included.
func (p Profile) ConnectionString(cfg ConnectionConfig) string {
	switch {
	case p.Network:
		return fmt.Sprintf("%s://%s/%s", p.Scheme, net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), cfg.Database)
	case p.InMemory:
		return p.Scheme + ":" + cfg.Database + "?mode=memory&cache=shared"
	case p.CreateOnConnect:
		return p.Scheme + ":" + cfg.Database + "?mode=rwc"
	default:
		return p.Scheme + ":" + cfg.Database
	}
}

// DSN builds the driver-specific data source name of cfg
func (p Profile) DSN(cfg ConnectionConfig) (string, error) {
	switch p.Dialect {
	case MySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		mc.ParseTime = true
		mc.Params = cfg.Params
		// The schema may not exist yet; it is created and selected after connecting.
		if !p.SupportsExplicitCreate {
			mc.DBName = cfg.Database
		}
		return mc.FormatDSN(), nil
	case Postgres:
		u := &url.URL{
			Scheme:   p.Scheme,
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Path:     "/" + cfg.Database,
			RawQuery: encodeParams(cfg.Params, nil),
		}
		return u.String(), nil
	case SQLServer:
		u := &url.URL{
			Scheme:   p.Scheme,
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			RawQuery: encodeParams(cfg.Params, map[string]string{"database": cfg.Database}),
		}
		return u.String(), nil
	case Oracle:
		return go_ora.BuildUrl(cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password, cfg.Params), nil
	case Embedded, InMemory:
		return p.ConnectionString(cfg), nil
	}
	return "", fmt.Errorf("%w: %s", models.ErrUnsupportedDialect, p.Dialect)
}

// encodeParams merges fixed into params and encodes them in key order
func encodeParams(params, fixed map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	for k, v := range fixed {
		values.Set(k, v)
	}
	return values.Encode()
}
