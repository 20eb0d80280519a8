// This program serves the SQL database toolkit over MCP so clients other
// than the built-in agent can list tables, fetch schemas, and run read-only
// queries.
//
// # Running the server:
//
//	$ make sqlagent-mcp
//
// # This requires running the following commands:
//
//	$ make compose-up  // Not needed when SQL_DRIVER=duckdb.
//	$ make seed

package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ardanlabs/sql-agent/foundation/sqldb"
	"github.com/ardanlabs/sql-agent/toolkit"
)

var (
	mcpHost = "localhost:8090"

	driver     = "postgres"
	duckdbPath = "zarf/data/sales.duckdb"
	dbUser     = "postgres"
	dbPassword = "postgres"
	dbHost     = "localhost:5432"
	dbName     = "postgres"
)

func init() {
	if v := os.Getenv("MCP_HOST"); v != "" {
		mcpHost = v
	}

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
	db, err := dbConnection()
	if err != nil {
		return fmt.Errorf("dbConnection: %w", err)
	}
	defer db.Close()

	fmt.Printf("\nServer: MCP server serving at %s\n", mcpHost)

	sqlDatabase := mcp.NewServer(&mcp.Implementation{Name: "sql_database", Version: "v1.0.0"}, nil)

	f := func(request *http.Request) *mcp.Server {
		url := request.URL.Path

		switch url {
		case toolkit.RegisterListTablesMCP(sqlDatabase, db),
			toolkit.RegisterTablesSchemaMCP(sqlDatabase, db),
			toolkit.RegisterRunQueryMCP(sqlDatabase, db):
			return sqlDatabase

		default:
			return mcp.NewServer(&mcp.Implementation{Name: "unknown_tool", Version: "v1.0.0"}, nil)
		}
	}

	handler := mcp.NewSSEHandler(f, &mcp.SSEOptions{})

	return http.ListenAndServe(mcpHost, handler)
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
