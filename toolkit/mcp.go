package toolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ardanlabs/sql-agent/foundation/sqldb"
)

// The MCP surface exposes the same tools so clients other than the built-in
// agent can drive the database.

// RegisterListTablesMCP registers the list tables tool with the given MCP server.
func RegisterListTablesMCP(mcpServer *mcp.Server, db *sqlx.DB) string {
	const toolDescription = "List the names of all tables in the database."

	type params struct{}

	f := func(ctx context.Context, req *mcp.CallToolRequest, p params) (*mcp.CallToolResult, any, error) {
		tables, err := sqldb.ListTables(ctx, db)
		if err != nil {
			return nil, nil, err
		}

		info := struct {
			Tables []string `json:"tables"`
		}{
			Tables: tables,
		}

		return textResult(info)
	}

	mcp.AddTool(mcpServer, &mcp.Tool{Name: ToolListTables, Description: toolDescription}, f)

	return "/" + ToolListTables
}

// RegisterTablesSchemaMCP registers the tables schema tool with the given MCP server.
func RegisterTablesSchemaMCP(mcpServer *mcp.Server, db *sqlx.DB) string {
	const toolDescription = "Get the schema and sample rows for the specified tables."

	type params struct {
		Tables string `json:"tables" jsonschema:"A comma separated list of table names."`
	}

	f := func(ctx context.Context, req *mcp.CallToolRequest, p params) (*mcp.CallToolResult, any, error) {
		var schemas []string
		for _, t := range strings.Split(p.Tables, ",") {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}

			schema, err := sqldb.TableSchema(ctx, db, t)
			if err != nil {
				return nil, nil, err
			}

			schemas = append(schemas, schema)
		}

		if len(schemas) == 0 {
			return nil, nil, fmt.Errorf("no table names provided")
		}

		info := struct {
			Schema string `json:"schema"`
		}{
			Schema: strings.Join(schemas, "\n"),
		}

		return textResult(info)
	}

	mcp.AddTool(mcpServer, &mcp.Tool{Name: ToolTablesSchema, Description: toolDescription}, f)

	return "/" + ToolTablesSchema
}

// RegisterRunQueryMCP registers the run query tool with the given MCP server.
func RegisterRunQueryMCP(mcpServer *mcp.Server, db *sqlx.DB) string {
	const toolDescription = "Execute a SQL SELECT query against the database and get back the result rows."

	type params struct {
		Query string `json:"query" jsonschema:"A syntactically correct SQL SELECT query."`
	}

	f := func(ctx context.Context, req *mcp.CallToolRequest, p params) (*mcp.CallToolResult, any, error) {
		if err := ValidateQuery(p.Query); err != nil {
			return nil, nil, err
		}

		data := []map[string]any{}
		if err := sqldb.QueryMap(ctx, db, p.Query, &data); err != nil {
			return nil, nil, err
		}

		info := struct {
			Rows  []map[string]any `json:"rows"`
			Count int              `json:"count"`
		}{
			Rows:  data,
			Count: len(data),
		}

		return textResult(info)
	}

	mcp.AddTool(mcpServer, &mcp.Tool{Name: ToolRunQuery, Description: toolDescription}, f)

	return "/" + ToolRunQuery
}

func textResult(info any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: string(data),
		}},
	}, nil, nil
}
