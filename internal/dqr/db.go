package dqr

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Conn describes how to reach the REDCap database.
type Conn struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Configured reports whether enough is set to open a connection.
func (c Conn) Configured() bool {
	return c.DSN != "" || (c.Host != "" && c.Name != "")
}

// DataSourceName returns DSN as given, or builds a MySQL DSN from the parts.
func (c Conn) DataSourceName() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	if c.Driver != DriverMySQL {
		return "", fmt.Errorf("driver %q needs an explicit DSN", c.Driver)
	}
	if c.Host == "" || c.Name == "" {
		return "", fmt.Errorf("database host and name are required")
	}

	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Host
	if c.Port > 0 {
		cfg.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	}
	cfg.DBName = c.Name
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN(), nil
}

// Open opens and pings the database.
func Open(ctx context.Context, c Conn) (*sql.DB, error) {
	switch c.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q (must be one of: %s, %s)", c.Driver, DriverMySQL, DriverSQLite)
	}
	dsn, err := c.DataSourceName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(c.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", c.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s database: %w", c.Driver, err)
	}
	return db, nil
}
