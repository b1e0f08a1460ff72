package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/triage-ai/sqlgate/internal/apperr"
)

// Provider hands out one fresh database connection per call.
type Provider interface {
	Acquire(ctx context.Context) (*Conn, error)
}

// Conn is a single checked-out connection. Closing it also closes the
// *sql.DB it came from, so nothing is kept between operations.
type Conn struct {
	db   *sql.DB
	conn *sql.Conn
}

// NewConn checks a connection out of db. The returned Conn owns db.
func NewConn(ctx context.Context, db *sql.DB) (*Conn, error) {
	c, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, apperr.Wrap(apperr.ConnectionError, fmt.Errorf("acquire connection: %w", err))
	}
	return &Conn{db: db, conn: c}, nil
}

// Close releases the connection and its handle.
func (c *Conn) Close() error {
	err := c.conn.Close()
	if dbErr := c.db.Close(); err == nil {
		err = dbErr
	}
	return err
}

// SQLServerConfig is the endpoint and credential for SQL Server.
type SQLServerConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// DSN renders the go-mssqldb URL form with credentials escaped.
func (c SQLServerConfig) DSN() string {
	q := url.Values{}
	q.Set("database", c.Database)
	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLServerProvider dials SQL Server on every Acquire.
type SQLServerProvider struct {
	connector driver.Connector
}

// NewSQLServerProvider parses the configuration once; it does not dial.
func NewSQLServerProvider(cfg SQLServerConfig) (*SQLServerProvider, error) {
	connector, err := mssql.NewConnector(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("NewSQLServerProvider: %w", err)
	}
	return &SQLServerProvider{connector: connector}, nil
}

func (p *SQLServerProvider) Acquire(ctx context.Context) (*Conn, error) {
	db := sql.OpenDB(p.connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(0)
	return NewConn(ctx, db)
}
