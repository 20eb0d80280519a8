// This program runs the text-to-SQL agent in interactive mode. Ask a
// question about the sales data in plain language and the agent will
// generate, check, and execute SQL queries until it can answer.
//
// # Running the agent:
//
//	$ make sqlagent
//
// # This requires running the following commands:
//
//	$ make compose-up  // Not needed when SQL_DRIVER=duckdb.
//	$ make seed
//
// LLM_SERVER must point at an OpenAI-compatible chat completions endpoint.

package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ardanlabs/sql-agent/agent"
	"github.com/ardanlabs/sql-agent/foundation/client"
	"github.com/ardanlabs/sql-agent/foundation/sqldb"
)

var (
	url   = "http://localhost:8080/v1/chat/completions"
	model = "cerebras_Qwen3-Coder-REAP-25B-A3B-Q8_0"

	driver     = "postgres"
	duckdbPath = "zarf/data/sales.duckdb"
	dbUser     = "postgres"
	dbPassword = "postgres"
	dbHost     = "localhost:5432"
	dbName     = "postgres"
)

func init() {
	if v := os.Getenv("LLM_SERVER"); v != "" {
		url = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		model = v
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
	ctx := context.Background()

	fmt.Println("\nConnecting to the DB")

	db, err := dbConnection()
	if err != nil {
		return fmt.Errorf("dbConnection: %w", err)
	}
	defer db.Close()

	if err := sqldb.StatusCheck(ctx, db); err != nil {
		return fmt.Errorf("status check database: %w", err)
	}

	// -------------------------------------------------------------------------

	llm := client.NewLLM(url, model)

	agt, err := agent.New(agent.Config{
		LLM: llm,
		DB:  db,
	})
	if err != nil {
		return fmt.Errorf("new agent: %w", err)
	}

	// -------------------------------------------------------------------------

	fmt.Printf("\nText-to-SQL agent using %s (use 'quit' to exit, 'help' for samples)\n", model)

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print("\u001b[94m\nEnter your question\u001b[0m: ")

		question, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		question = strings.TrimSpace(question)

		switch strings.ToLower(question) {
		case "quit", "exit":
			fmt.Println("Goodbye!")
			return nil

		case "help":
			showHelp()
			continue

		case "":
			fmt.Println("Please enter a question.")
			continue
		}

		fmt.Print("\nGive me a second...\n\n")

		if err := ask(ctx, agt, question); err != nil {
			fmt.Printf("\n\u001b[91mERROR: %s\u001b[0m\n", err)
		}
	}

	return nil
}

func ask(ctx context.Context, agt *agent.Agent, question string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	// The answer streams to stdout while the agent works, so only failures
	// need reporting here.
	if _, err := agt.Ask(ctx, question); err != nil {
		return err
	}

	fmt.Print("\n")

	return nil
}

func showHelp() {
	fmt.Print(`
Sample questions you can ask:
- How many employees are in each department?
- What are the top 3 best-selling products?
- Which employee made the most sales?
- Show me all products with their prices
- What is the average salary by department?
- List all sales from January 2024
`)
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
