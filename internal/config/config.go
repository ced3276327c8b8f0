package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"github.com/vitebski/sqlbootstrap/internal/connector"
	"github.com/vitebski/sqlbootstrap/pkg/models"
)

// EnvPrefix is prepended to every key when read from the environment,
// e.g. SQLBOOT_DATABASE_NAME
const EnvPrefix = "SQLBOOT"

// DefaultConfigName is looked up in the working and executable directories
// when no config file is given
const DefaultConfigName = "sqlbootstrap"

// Property keys
const (
	KeyDialect      = "dialect"
	KeyDBMS         = "dbms"
	KeyJarFile      = "jar_file"
	KeyDriver       = "driver"
	KeyDatabaseName = "database_name"
	KeyUserName     = "user_name"
	KeyPassword     = "password"
	KeyServerName   = "server_name"
	KeyPortNumber   = "port_number"
	KeyParams       = "params"
)

// Config holds the connection properties of one database
type Config struct {
	Dialect      string
	JarFile      string
	Driver       string
	DatabaseName string
	UserName     string
	Password     string
	ServerName   string
	PortNumber   int
	Params       map[string]string
	// Source is the config file used, empty when none was found
	Source string
}

// NewViper returns a viper instance reading SQLBOOT_* environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file into v, or the default config when file is empty, and
// returns the resulting properties. A missing default config is not an
// error: environment variables and bound flags may carry everything.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(ex))
		}
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: reading config: %v", models.ErrInvalidConfig, err)
		}
	}

	cfg := &Config{
		Dialect:      v.GetString(KeyDialect),
		JarFile:      v.GetString(KeyJarFile),
		Driver:       v.GetString(KeyDriver),
		DatabaseName: v.GetString(KeyDatabaseName),
		UserName:     v.GetString(KeyUserName),
		Password:     v.GetString(KeyPassword),
		ServerName:   v.GetString(KeyServerName),
		Params:       v.GetStringMapString(KeyParams),
		Source:       v.ConfigFileUsed(),
	}
	if cfg.Dialect == "" {
		cfg.Dialect = v.GetString(KeyDBMS)
	}

	// A blank port means "no port", as for embedded databases
	if port := strings.TrimSpace(v.GetString(KeyPortNumber)); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("%w: port_number %q is not a number", models.ErrInvalidConfig, port)
		}
		cfg.PortNumber = n
	}

	return cfg, nil
}

// ConnectionConfig validates the properties against the dialect profile and
// converts them into a connector.ConnectionConfig
func (c *Config) ConnectionConfig() (connector.ConnectionConfig, error) {
	if c.Dialect == "" {
		return connector.ConnectionConfig{}, fmt.Errorf("%w: %s is required", models.ErrInvalidConfig, KeyDialect)
	}
	dialect, err := connector.ParseDialect(c.Dialect)
	if err != nil {
		return connector.ConnectionConfig{}, err
	}
	profile, err := connector.LookupProfile(dialect)
	if err != nil {
		return connector.ConnectionConfig{}, err
	}

	return profile.Normalize(connector.ConnectionConfig{
		Dialect:  dialect,
		Driver:   c.Driver,
		JarFile:  c.JarFile,
		Host:     c.ServerName,
		Port:     c.PortNumber,
		Database: c.DatabaseName,
		User:     c.UserName,
		Password: c.Password,
		Params:   c.Params,
	})
}

// Properties returns the properties as key/value pairs in a fixed order,
// with the password masked
func (c *Config) Properties() [][2]string {
	password := ""
	if c.Password != "" {
		password = "********"
	}
	port := ""
	if c.PortNumber != 0 {
		port = strconv.Itoa(c.PortNumber)
	}
	return [][2]string{
		{KeyDialect, c.Dialect},
		{KeyDriver, c.Driver},
		{KeyJarFile, c.JarFile},
		{KeyDatabaseName, c.DatabaseName},
		{KeyUserName, c.UserName},
		{KeyPassword, password},
		{KeyServerName, c.ServerName},
		{KeyPortNumber, port},
	}
}
