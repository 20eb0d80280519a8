package toolkit_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/ardanlabs/sql-agent/foundation/client"
	"github.com/ardanlabs/sql-agent/toolkit"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

type toolInfo struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

func decodeResponse(t *testing.T, resp client.D) toolInfo {
	t.Helper()

	content, ok := resp["content"].(string)
	if !ok {
		t.Fatalf("response has no content: %#v", resp)
	}

	var info toolInfo
	if err := json.Unmarshal([]byte(content), &info); err != nil {
		t.Fatalf("decode content: %v", err)
	}

	return info
}

func TestValidateQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr bool
	}{
		{"simple select", "SELECT first_name FROM employees", false},
		{"select with join", "SELECT e.first_name, s.total_amount FROM employees e JOIN sales s ON e.employee_id = s.employee_id", false},
		{"union of selects", "SELECT product_name FROM products UNION ALL SELECT first_name FROM employees", false},
		{"trailing whitespace", "  SELECT 1  ", false},
		{"insert", "INSERT INTO employees (employee_id) VALUES (99)", true},
		{"update", "UPDATE employees SET salary = 0", true},
		{"delete", "DELETE FROM sales", true},
		{"drop", "DROP TABLE employees", true},
		{"garbage", "SELECTT oops", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toolkit.ValidateQuery(tt.query)
			if tt.wantErr && err == nil {
				t.Fatal("expected an error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestListTablesTool(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"table_name"}).
		AddRow("employees").
		AddRow("sales")

	mock.ExpectQuery("information_schema.tables").WillReturnRows(rows)

	tools := map[string]toolkit.Tool{}
	doc := toolkit.RegisterListTables(tools, db)

	if doc["type"] != "function" {
		t.Fatalf("tool document: %#v", doc)
	}

	resp := tools[toolkit.ToolListTables].Call(t.Context(), client.ToolCall{ID: "call_1"})

	info := decodeResponse(t, resp)
	if info.Status != "SUCCESS" {
		t.Fatalf("status: got %q, data %v", info.Status, info.Data)
	}

	tables, ok := info.Data["tables"].([]any)
	if !ok || len(tables) != 2 {
		t.Fatalf("tables: got %v", info.Data["tables"])
	}
}

func TestTablesSchemaTool(t *testing.T) {
	db, mock := newMockDB(t)

	columns := sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("employee_id", "integer", "NO").
		AddRow("salary", "numeric", "YES")

	mock.ExpectQuery("information_schema.columns").
		WithArgs("public", "employees").
		WillReturnRows(columns)

	mock.ExpectQuery("FOREIGN KEY").
		WithArgs("public", "employees").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "foreign_table", "foreign_column"}))

	samples := sqlmock.NewRows([]string{"employee_id", "salary"}).
		AddRow(int64(1), "50000.00")

	mock.ExpectQuery("FROM employees LIMIT").WillReturnRows(samples)

	tools := map[string]toolkit.Tool{}
	toolkit.RegisterTablesSchema(tools, db)

	resp := tools[toolkit.ToolTablesSchema].Call(t.Context(), client.ToolCall{
		ID: "call_1",
		Function: client.Function{
			Name:      toolkit.ToolTablesSchema,
			Arguments: map[string]any{"tables": "employees"},
		},
	})

	info := decodeResponse(t, resp)
	if info.Status != "SUCCESS" {
		t.Fatalf("status: got %q, data %v", info.Status, info.Data)
	}

	schema, _ := info.Data["schema"].(string)
	if !strings.Contains(schema, "CREATE TABLE employees (") {
		t.Fatalf("schema: got %q", schema)
	}
}

func TestTablesSchemaToolMissingArgument(t *testing.T) {
	db, _ := newMockDB(t)

	tools := map[string]toolkit.Tool{}
	toolkit.RegisterTablesSchema(tools, db)

	resp := tools[toolkit.ToolTablesSchema].Call(t.Context(), client.ToolCall{
		ID: "call_1",
		Function: client.Function{
			Name:      toolkit.ToolTablesSchema,
			Arguments: map[string]any{},
		},
	})

	info := decodeResponse(t, resp)
	if info.Status != "FAILED" {
		t.Fatalf("status: got %q, want FAILED", info.Status)
	}
}

func TestRunQueryTool(t *testing.T) {
	db, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"department", "avg_salary"}).
		AddRow("Sales", "50000.00")

	mock.ExpectQuery("GROUP BY department").WillReturnRows(rows)

	tools := map[string]toolkit.Tool{}
	toolkit.RegisterRunQuery(tools, db)

	resp := tools[toolkit.ToolRunQuery].Call(t.Context(), client.ToolCall{
		ID: "call_1",
		Function: client.Function{
			Name:      toolkit.ToolRunQuery,
			Arguments: map[string]any{"query": "SELECT department, AVG(salary) AS avg_salary FROM employees GROUP BY department"},
		},
	})

	info := decodeResponse(t, resp)
	if info.Status != "SUCCESS" {
		t.Fatalf("status: got %q, data %v", info.Status, info.Data)
	}

	if count, _ := info.Data["count"].(float64); count != 1 {
		t.Fatalf("count: got %v", info.Data["count"])
	}
}

func TestRunQueryToolRejectsDML(t *testing.T) {
	db, mock := newMockDB(t)

	tools := map[string]toolkit.Tool{}
	toolkit.RegisterRunQuery(tools, db)

	resp := tools[toolkit.ToolRunQuery].Call(t.Context(), client.ToolCall{
		ID: "call_1",
		Function: client.Function{
			Name:      toolkit.ToolRunQuery,
			Arguments: map[string]any{"query": "DELETE FROM employees"},
		},
	})

	info := decodeResponse(t, resp)
	if info.Status != "FAILED" {
		t.Fatalf("status: got %q, want FAILED", info.Status)
	}

	// The statement must be refused before it reaches the database.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
