// Package toolkit provides the SQL database tools the agent exposes to the
// model: listing tables, fetching table schemas, and running queries.
package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/ardanlabs/sql-agent/foundation/client"
	"github.com/ardanlabs/sql-agent/foundation/sqldb"
)

// Tool names as the model sees them.
const (
	ToolListTables   = "tool_list_tables"
	ToolTablesSchema = "tool_tables_schema"
	ToolRunQuery     = "tool_run_query"
)

// Tool represents a callable tool the model can request by name.
type Tool interface {
	Call(ctx context.Context, toolCall client.ToolCall) client.D
}

// =============================================================================

func toolSuccessResponse(toolID string, keyValues ...any) client.D {
	data := make(map[string]any)
	for i := 0; i < len(keyValues); i = i + 2 {
		data[keyValues[i].(string)] = keyValues[i+1]
	}

	return toolResponse(toolID, data, "SUCCESS")
}

func toolErrorResponse(toolID string, err error) client.D {
	data := map[string]any{"error": err.Error()}

	return toolResponse(toolID, data, "FAILED")
}

func toolResponse(toolID string, data map[string]any, status string) client.D {
	info := struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}{
		Status: status,
		Data:   data,
	}

	content, err := json.Marshal(info)
	if err != nil {
		return client.D{
			"role":         "tool",
			"tool_call_id": toolID,
			"content":      `{"status": "FAILED", "data": "error marshaling tool response"}`,
		}
	}

	return client.D{
		"role":         "tool",
		"tool_call_id": toolID,
		"content":      string(content),
	}
}

// =============================================================================

// ListTables lists the base tables the model can query.
type ListTables struct {
	name string
	db   *sqlx.DB
}

// RegisterListTables constructs the tool, adds it to the set of available
// tools, and returns its tool document for the model.
func RegisterListTables(tools map[string]Tool, db *sqlx.DB) client.D {
	lt := ListTables{
		name: ToolListTables,
		db:   db,
	}
	tools[lt.name] = &lt

	return lt.toolDocument()
}

func (lt *ListTables) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        lt.name,
			"description": "List the names of all tables in the database. Input is an empty string.",
			"parameters": client.D{
				"type":       "object",
				"properties": client.D{},
				"required":   []string{},
			},
		},
	}
}

func (lt *ListTables) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = toolErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	tables, err := sqldb.ListTables(ctx, lt.db)
	if err != nil {
		return toolErrorResponse(toolCall.ID, err)
	}

	return toolSuccessResponse(toolCall.ID,
		"tables", tables,
	)
}

// =============================================================================

// TablesSchema returns the schema and sample rows for the requested tables.
type TablesSchema struct {
	name string
	db   *sqlx.DB
}

// RegisterTablesSchema constructs the tool, adds it to the set of available
// tools, and returns its tool document for the model.
func RegisterTablesSchema(tools map[string]Tool, db *sqlx.DB) client.D {
	ts := TablesSchema{
		name: ToolTablesSchema,
		db:   db,
	}
	tools[ts.name] = &ts

	return ts.toolDocument()
}

func (ts *TablesSchema) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        ts.name,
			"description": "Get the schema and sample rows for the specified tables. Input is a comma separated list of table names.",
			"parameters": client.D{
				"type": "object",
				"properties": client.D{
					"tables": client.D{
						"type":        "string",
						"description": "A comma separated list of table names, e.g. employees, sales",
					},
				},
				"required": []string{"tables"},
			},
		},
	}
}

func (ts *TablesSchema) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = toolErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	arg := toolCall.Function.Arguments["tables"].(string)

	var tables []string
	for _, t := range strings.Split(arg, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tables = append(tables, t)
		}
	}

	if len(tables) == 0 {
		return toolErrorResponse(toolCall.ID, fmt.Errorf("no table names provided"))
	}

	// Each table takes its own round trips, so fetch them concurrently and
	// keep the requested order.
	schemas := make([]string, len(tables))

	g, gCtx := errgroup.WithContext(ctx)
	for i, table := range tables {
		g.Go(func() error {
			schema, err := sqldb.TableSchema(gCtx, ts.db, table)
			if err != nil {
				return err
			}

			schemas[i] = schema
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return toolErrorResponse(toolCall.ID, err)
	}

	return toolSuccessResponse(toolCall.ID,
		"schema", strings.Join(schemas, "\n"),
	)
}

// =============================================================================

// RunQuery executes a read-only SQL query and returns the rows.
type RunQuery struct {
	name string
	db   *sqlx.DB
}

// RegisterRunQuery constructs the tool, adds it to the set of available
// tools, and returns its tool document for the model.
func RegisterRunQuery(tools map[string]Tool, db *sqlx.DB) client.D {
	rq := RunQuery{
		name: ToolRunQuery,
		db:   db,
	}
	tools[rq.name] = &rq

	return rq.toolDocument()
}

func (rq *RunQuery) toolDocument() client.D {
	return client.D{
		"type": "function",
		"function": client.D{
			"name":        rq.name,
			"description": "Execute a SQL SELECT query against the database and get back the result rows. If the query is not correct, an error message will be returned. If an error is returned, rewrite the query and try again.",
			"parameters": client.D{
				"type": "object",
				"properties": client.D{
					"query": client.D{
						"type":        "string",
						"description": "A syntactically correct SQL SELECT query",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}

func (rq *RunQuery) Call(ctx context.Context, toolCall client.ToolCall) (resp client.D) {
	defer func() {
		if r := recover(); r != nil {
			resp = toolErrorResponse(toolCall.ID, fmt.Errorf("%s", r))
		}
	}()

	query := toolCall.Function.Arguments["query"].(string)

	if err := ValidateQuery(query); err != nil {
		return toolErrorResponse(toolCall.ID, err)
	}

	data := []map[string]any{}
	if err := sqldb.QueryMap(ctx, rq.db, query, &data); err != nil {
		return toolErrorResponse(toolCall.ID, err)
	}

	return toolSuccessResponse(toolCall.ID,
		"rows", data,
		"count", len(data),
	)
}
