// Package agent implements the text-to-SQL workflow: a state graph that
// discovers the database schema, asks the model to generate a query, has the
// model double check it, executes it, and loops until the model produces a
// plain answer instead of a tool call.
package agent

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/ardanlabs/sql-agent/foundation/client"
	"github.com/ardanlabs/sql-agent/foundation/graph"
	"github.com/ardanlabs/sql-agent/foundation/sqldb"
	"github.com/ardanlabs/sql-agent/toolkit"
)

var (
	//go:embed prompts/system.txt
	systemPrompt string

	//go:embed prompts/check.txt
	checkPrompt string
)

// topK bounds how many rows the model is told to ask for unless the user
// requests otherwise.
const topK = 5

// Node names of the workflow.
const (
	nodeListTables    = "list_tables"
	nodeCallGetSchema = "call_get_schema"
	nodeGetSchema     = "get_schema"
	nodeGenerateQuery = "generate_query"
	nodeCheckQuery    = "check_query"
	nodeRunQuery      = "run_query"
)

// State is the workflow state threaded through the graph.
type State struct {
	Question     string
	Conversation []client.D
	ToolCalls    []client.ToolCall
	Answer       string
}

// Config holds the dependencies for constructing an Agent.
type Config struct {
	LLM    *client.LLM
	DB     *sqlx.DB
	Output io.Writer     // Streamed answer text. Defaults to os.Stdout.
	Log    client.Logger // Defaults to the noop logger.
}

// Agent answers natural language questions against a SQL database.
type Agent struct {
	llm   *client.LLM
	db    *sqlx.DB
	out   io.Writer
	log   client.Logger
	tools map[string]toolkit.Tool

	schemaDoc client.D
	queryDoc  client.D

	run *graph.Runnable[State]
}

// New constructs the agent and compiles its workflow graph.
func New(cfg Config) (*Agent, error) {
	if cfg.LLM == nil || cfg.DB == nil {
		return nil, fmt.Errorf("llm and db are required")
	}

	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	if cfg.Log == nil {
		cfg.Log = client.NoopLogger
	}

	tools := map[string]toolkit.Tool{}
	toolkit.RegisterListTables(tools, cfg.DB)
	schemaDoc := toolkit.RegisterTablesSchema(tools, cfg.DB)
	queryDoc := toolkit.RegisterRunQuery(tools, cfg.DB)

	a := Agent{
		llm:       cfg.LLM,
		db:        cfg.DB,
		out:       cfg.Output,
		log:       cfg.Log,
		tools:     tools,
		schemaDoc: schemaDoc,
		queryDoc:  queryDoc,
	}

	// The five node workflow. The loop continues while the model's latest
	// output carries a tool call and ends when it produces a plain answer.

	g := graph.New[State]()

	g.AddNode(nodeListTables, a.listTables)
	g.AddNode(nodeCallGetSchema, a.callGetSchema)
	g.AddNode(nodeGetSchema, a.getSchema)
	g.AddNode(nodeGenerateQuery, a.generateQuery)
	g.AddNode(nodeCheckQuery, a.checkQuery)
	g.AddNode(nodeRunQuery, a.runQuery)

	g.SetEntryPoint(nodeListTables)
	g.AddEdge(nodeListTables, nodeCallGetSchema)
	g.AddEdge(nodeCallGetSchema, nodeGetSchema)
	g.AddEdge(nodeGetSchema, nodeGenerateQuery)
	g.AddConditionalEdges(nodeGenerateQuery, a.shouldContinue)
	g.AddEdge(nodeCheckQuery, nodeRunQuery)
	g.AddEdge(nodeRunQuery, nodeGenerateQuery)

	run, err := g.Compile(graph.WithLogger[State](cfg.Log))
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	a.run = run

	return &a, nil
}

// Ask runs the workflow for a single question and returns the final natural
// language answer. Intermediate answer text streams to the configured output.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	state := State{
		Question: question,
		Conversation: []client.D{
			{
				"role":    "system",
				"content": fmt.Sprintf(systemPrompt, sqldb.Dialect(a.db), topK),
			},
			{
				"role":    "user",
				"content": question,
			},
		},
	}

	state, err := a.run.Invoke(ctx, state)
	if err != nil {
		return "", fmt.Errorf("invoke: %w", err)
	}

	if state.Answer == "" {
		return "", fmt.Errorf("no answer produced")
	}

	return state.Answer, nil
}

// =============================================================================

// assistantToolCallMessage renders tool calls back into conversation form so
// the model keeps context of what it asked for.
func assistantToolCallMessage(toolCalls ...client.ToolCall) client.D {
	calls := make([]client.D, 0, len(toolCalls))

	for _, toolCall := range toolCalls {
		argsJSON, _ := json.Marshal(toolCall.Function.Arguments)

		calls = append(calls, client.D{
			"id":   toolCall.ID,
			"type": "function",
			"function": client.D{
				"name":      toolCall.Function.Name,
				"arguments": string(argsJSON),
			},
		})
	}

	return client.D{
		"role":       "assistant",
		"tool_calls": calls,
	}
}

// callTools looks up each requested tool by name and calls it with the model
// provided arguments.
func (a *Agent) callTools(ctx context.Context, toolCalls []client.ToolCall) []client.D {
	var resps []client.D

	for _, toolCall := range toolCalls {
		tool, exists := a.tools[toolCall.Function.Name]
		if !exists {
			resps = append(resps, client.D{
				"role":         "tool",
				"tool_call_id": toolCall.ID,
				"content":      fmt.Sprintf(`{"status": "FAILED", "data": {"error": "unknown tool %s"}}`, toolCall.Function.Name),
			})
			continue
		}

		a.log(ctx, "agent: tool call", "name", toolCall.Function.Name, "args", toolCall.Function.Arguments)

		resps = append(resps, tool.Call(ctx, toolCall))
	}

	return resps
}
