// Package trac reads tickets, history, attachments, milestones and
// category values from a Trac project database. Nothing is ever written.
package trac

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver names a Trac database backend
type Driver string

const (
	SQLite   Driver = "sqlite"
	MySQL    Driver = "mysql"
	Postgres Driver = "pgsql"
)

// ParseDriver validates a configured driver name
func ParseDriver(name string) (Driver, error) {
	switch d := Driver(strings.ToLower(name)); d {
	case SQLite, MySQL, Postgres:
		return d, nil
	}
	return "", fmt.Errorf("unknown database driver %q", name)
}

func (d Driver) sqlName() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "pgx"
	}
	return "sqlite"
}

// Open connects to the Trac database and checks the connection
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver.sqlName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open trac database: %w", err)
	}
	if driver == SQLite {
		// One connection keeps every query on the same handle, which also
		// makes :memory: databases usable.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to trac database: %w", err)
	}

	return db, nil
}

// MySQLDSN builds a go-sql-driver DSN for a Trac MySQL database
func MySQLDSN(host string, port int, database, user, password string) string {
	cfg := mysql.NewConfig()
	cfg.User = user
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = host
	if port > 0 {
		cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	}
	cfg.DBName = database
	cfg.Params = map[string]string{"charset": "utf8"}
	return cfg.FormatDSN()
}

// PostgresDSN builds a connection URL for a Trac PostgreSQL database
func PostgresDSN(host string, port int, database, user, password string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + database,
	}
	if port > 0 {
		u.Host = net.JoinHostPort(host, strconv.Itoa(port))
	}
	if user != "" {
		u.User = url.UserPassword(user, password)
	}
	return u.String()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func rebind(driver Driver, query string) string {
	if driver != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// inClause returns "col IN (?, ?)" with its arguments
func inClause(col string, values []string) (string, []any) {
	marks := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		marks[i] = "?"
		args[i] = v
	}
	return col + " IN (" + strings.Join(marks, ", ") + ")", args
}
