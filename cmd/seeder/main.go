// This program creates the demo schema (employees, products, sales) and
// seeds it with the sample data set.
//
// # Running the seeder:
//
//	$ make seed
//
// # This requires running the following commands:
//
//	$ make compose-up  // Not needed when SQL_DRIVER=duckdb.

package main

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ardanlabs/sql-agent/foundation/sqldb"
)

var (
	//go:embed sql/schema.sql
	schemaSQL string

	//go:embed sql/insert.sql
	insertSQL string
)

var (
	driver     = "postgres"
	duckdbPath = "zarf/data/sales.duckdb"
	dbUser     = "postgres"
	dbPassword = "postgres"
	dbHost     = "localhost:5432"
	dbName     = "postgres"
)

func init() {
	if v := os.Getenv("SQL_DRIVER"); v != "" {
		driver = v
	}

	if v := os.Getenv("DUCKDB_PATH"); v != "" {
		duckdbPath = v
	}

	if v := os.Getenv("SQL_USER"); v != "" {
		dbUser = v
	}

	if v := os.Getenv("SQL_PASSWORD"); v != "" {
		dbPassword = v
	}

	if v := os.Getenv("SQL_HOST"); v != "" {
		dbHost = v
	}

	if v := os.Getenv("SQL_NAME"); v != "" {
		dbName = v
	}
}

// =============================================================================

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := dbConnection()
	if err != nil {
		return fmt.Errorf("dbConnection: %w", err)
	}
	defer db.Close()

	fmt.Println("Creating Schema")

	if err := sqldb.ExecuteTx(ctx, db, schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	fmt.Println("Inserting Data")

	if err := sqldb.ExecuteTx(ctx, db, insertSQL); err != nil {
		return fmt.Errorf("execute insert: %w", err)
	}

	tables, err := sqldb.ListTables(ctx, db)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}

	fmt.Printf("Seeded tables: %v\n", tables)

	return nil
}

func dbConnection() (*sqlx.DB, error) {
	if driver == "duckdb" {
		return sqldb.OpenDuckDB(duckdbPath)
	}

	db, err := sqldb.Open(sqldb.Config{
		User:       dbUser,
		Password:   dbPassword,
		Host:       dbHost,
		Name:       dbName,
		DisableTLS: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to db: %w", err)
	}

	return db, nil
}
