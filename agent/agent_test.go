package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/ardanlabs/sql-agent/foundation/client"
)

// The fake server plays the model's side of the workflow: first the forced
// schema request, then a proposed query, then the checker's revision, and
// finally a plain answer that terminates the loop.

const (
	proposedQuery = "SELECT department, AVG(salary) AS avg_salary FROM employees GROUP BY department"
	revisedQuery  = proposedQuery + " LIMIT 5"
	finalAnswer   = "The average salary in Sales is 50000.00."
)

func newFakeModel(t *testing.T) (*httptest.Server, *[][]byte) {
	t.Helper()

	var requests [][]byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, body)

		switch len(requests) {
		case 1:
			writeToolCallChat(w, "tool_tables_schema", `{"tables": "employees"}`)

		case 2:
			writeToolCallSSE(w, "tool_run_query", fmt.Sprintf(`{"query": %q}`, proposedQuery))

		case 3:
			writeToolCallChat(w, "tool_run_query", fmt.Sprintf(`{"query": %q}`, revisedQuery))

		case 4:
			writeContentSSE(w, "The average salary in ", "Sales is 50000.00.")

		default:
			t.Errorf("unexpected model call %d: %s", len(requests), body)
			http.Error(w, "unexpected call", http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func writeToolCallChat(w http.ResponseWriter, name string, args string) {
	argsJSON, _ := json.Marshal(args)

	fmt.Fprintf(w, `{"id":"chat-1","object":"chat.completion","created":1700000000,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call-1","type":"function","function":{"name":%q,"arguments":%s}}]},"finish_reason":"tool_calls"}]}`, name, argsJSON)
}

func writeToolCallSSE(w http.ResponseWriter, name string, args string) {
	argsJSON, _ := json.Marshal(args)

	chunk := fmt.Sprintf(`{"id":"chat-2","object":"chat.completion.chunk","created":1700000000,"model":"test","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"id":"call-2","index":0,"type":"function","function":{"name":%q,"arguments":%s}}]},"finish_reason":"tool_calls"}]}`, name, argsJSON)

	fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", chunk)
}

func writeContentSSE(w http.ResponseWriter, chunks ...string) {
	for _, content := range chunks {
		chunk := fmt.Sprintf(`{"id":"chat-3","object":"chat.completion.chunk","created":1700000000,"model":"test","choices":[{"index":0,"delta":{"content":%q},"finish_reason":""}]}`, content)
		fmt.Fprintf(w, "data: %s\n\n", chunk)
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func expectWorkflowQueries(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("employees").
			AddRow("products").
			AddRow("sales"))

	mock.ExpectQuery("information_schema.columns").
		WithArgs("public", "employees").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("employee_id", "integer", "NO").
			AddRow("department", "character varying", "YES").
			AddRow("salary", "numeric", "YES"))

	mock.ExpectQuery("FOREIGN KEY").
		WithArgs("public", "employees").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "foreign_table", "foreign_column"}))

	mock.ExpectQuery("FROM employees LIMIT").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "department", "salary"}).
			AddRow(int64(1), "Sales", "50000.00"))

	// The executed query is the checker's revision, not the original
	// proposal.
	mock.ExpectQuery("GROUP BY department LIMIT 5").
		WillReturnRows(sqlmock.NewRows([]string{"department", "avg_salary"}).
			AddRow("Sales", "50000.00"))
}

func TestAsk(t *testing.T) {
	srv, requests := newFakeModel(t)

	db, mock := newMockDB(t)
	expectWorkflowQueries(mock)

	var out bytes.Buffer

	agt, err := New(Config{
		LLM:    client.NewLLM(srv.URL, "test"),
		DB:     db,
		Output: &out,
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	answer, err := agt.Ask(t.Context(), "What is the average salary by department?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	if answer != finalAnswer {
		t.Fatalf("answer: got %q, want %q", answer, finalAnswer)
	}

	if got := out.String(); got != finalAnswer {
		t.Fatalf("streamed output: got %q, want %q", got, finalAnswer)
	}

	if len(*requests) != 4 {
		t.Fatalf("model calls: got %d, want 4", len(*requests))
	}

	// The first model call carries the dialect-specific system prompt and
	// the list tables result.
	first := string((*requests)[0])
	for _, want := range []string{"postgresql", "tool_list_tables", "average salary", `"tool_choice":"required"`} {
		if !strings.Contains(first, want) {
			t.Fatalf("first model call missing %q:\n%s", want, first)
		}
	}

	// The final model call sees the revised query and its result rows.
	last := string((*requests)[3])
	for _, want := range []string{"LIMIT 5", "avg_salary"} {
		if !strings.Contains(last, want) {
			t.Fatalf("final model call missing %q:\n%s", want, last)
		}
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAskNoSchemaRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		fmt.Fprint(w, `{"id":"chat-1","object":"chat.completion","created":1700000000,"model":"test","choices":[{"index":0,"message":{"role":"assistant","content":"no tools for you"},"finish_reason":"stop"}]}`)
	}))
	t.Cleanup(srv.Close)

	db, mock := newMockDB(t)

	mock.ExpectQuery("information_schema.tables").
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("employees"))

	agt, err := New(Config{
		LLM:    client.NewLLM(srv.URL, "test"),
		DB:     db,
		Output: io.Discard,
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}

	if _, err := agt.Ask(t.Context(), "anything"); err == nil {
		t.Fatal("expected an error when the model skips the schema request")
	}
}

func TestShouldContinue(t *testing.T) {
	agt := Agent{}

	state := State{}
	if got := agt.shouldContinue(t.Context(), state); got != "__end__" {
		t.Fatalf("no tool calls: got %q, want end", got)
	}

	state.ToolCalls = []client.ToolCall{{ID: "call-1"}}
	if got := agt.shouldContinue(t.Context(), state); got != nodeCheckQuery {
		t.Fatalf("pending tool call: got %q, want %q", got, nodeCheckQuery)
	}
}
