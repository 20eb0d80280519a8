// Package sqldb provides support for accessing the SQL database the agent
// answers questions against. Postgres is the primary target, DuckDB exists
// as a local mode so the system runs without a server.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Dialect names as presented to the model in the system prompt.
const (
	DialectPostgres = "postgresql"
	DialectDuckDB   = "duckdb"
)

// Config is the required properties to use the database.
type Config struct {
	User         string
	Password     string
	Host         string
	Name         string
	MaxIdleConns int
	MaxOpenConns int
	DisableTLS   bool
}

// Open knows how to open a Postgres database connection based on the
// configuration.
func Open(cfg Config) (*sqlx.DB, error) {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}

	db, err := sqlx.Open("pgx", u.String())
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	return db, nil
}

// OpenDuckDB opens a DuckDB database at the given path. An empty path gives
// an in-memory database.
func OpenDuckDB(path string) (*sqlx.DB, error) {
	connector, err := duckdb.NewConnector(path, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating connector: %w", err)
	}

	return sqlx.NewDb(sql.OpenDB(connector), "duckdb"), nil
}

// Dialect reports which SQL dialect the connection speaks.
func Dialect(db *sqlx.DB) string {
	if db.DriverName() == "duckdb" {
		return DialectDuckDB
	}

	return DialectPostgres
}

// StatusCheck returns nil if it can successfully talk to the database. It
// returns a non-nil error otherwise.
func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Second)
		defer cancel()
	}

	var pingError error
	for attempts := 1; ; attempts++ {
		pingError = db.Ping()
		if pingError == nil {
			break
		}

		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Run a simple query to determine connectivity. Running this query forces
	// a round trip through the database.
	const q = `SELECT true`
	var tmp bool
	return db.QueryRowContext(ctx, q).Scan(&tmp)
}

// QueryMap executes the specified query and populates data with the set of
// key/value pairs that represent each row.
func QueryMap(ctx context.Context, db *sqlx.DB, query string, data *[]map[string]any) error {
	rows, err := db.QueryxContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m := map[string]any{}
		if err := rows.MapScan(m); err != nil {
			return fmt.Errorf("mapscan: %w", err)
		}

		*data = append(*data, m)
	}

	return rows.Err()
}

// ExecuteTx runs the specified statements inside a single transaction.
func ExecuteTx(ctx context.Context, db *sqlx.DB, query string) error {
	if err := StatusCheck(ctx, db); err != nil {
		return fmt.Errorf("status check database: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}

	// Rollback after a commit is a no-op.
	defer tx.Rollback()

	if _, err := tx.Exec(query); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}
