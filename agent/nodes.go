package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ardanlabs/sql-agent/foundation/client"
	"github.com/ardanlabs/sql-agent/foundation/graph"
	"github.com/ardanlabs/sql-agent/foundation/sqldb"
	"github.com/ardanlabs/sql-agent/toolkit"
)

// listTables issues the fixed table listing request. No model call is made,
// the tool call is synthesized so the result lands in the conversation the
// same way a model requested call would.
func (a *Agent) listTables(ctx context.Context, state State) (State, error) {
	toolCall := client.ToolCall{
		ID:   uuid.NewString(),
		Type: "function",
		Function: client.Function{
			Name:      toolkit.ToolListTables,
			Arguments: map[string]any{},
		},
	}

	state.Conversation = append(state.Conversation, assistantToolCallMessage(toolCall))
	state.Conversation = append(state.Conversation, a.callTools(ctx, []client.ToolCall{toolCall})...)

	return state, nil
}

// callGetSchema forces the model to request schema details for the tables it
// deems relevant. Only the schema tool is bound and the tool choice is
// required, so the model cannot skip this step.
func (a *Agent) callGetSchema(ctx context.Context, state State) (State, error) {
	msg, err := a.llm.ChatTools(ctx, state.Conversation, []client.D{a.schemaDoc}, client.ToolChoiceRequired)
	if err != nil {
		return state, fmt.Errorf("chat tools: %w", err)
	}

	if len(msg.ToolCalls) == 0 {
		return state, fmt.Errorf("model did not request a schema")
	}

	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = uuid.NewString()
		}
	}

	state.Conversation = append(state.Conversation, assistantToolCallMessage(msg.ToolCalls...))
	state.ToolCalls = msg.ToolCalls

	return state, nil
}

// getSchema executes the pending schema requests.
func (a *Agent) getSchema(ctx context.Context, state State) (State, error) {
	state.Conversation = append(state.Conversation, a.callTools(ctx, state.ToolCalls)...)
	state.ToolCalls = nil

	return state, nil
}

// generateQuery asks the model to either propose a query, as a tool call, or
// produce the final answer. Answer text streams to the configured writer as
// it arrives.
func (a *Agent) generateQuery(ctx context.Context, state State) (State, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := a.llm.ChatToolsSSE(ctx, state.Conversation, []client.D{a.queryDoc}, client.ToolChoiceAuto)
	if err != nil {
		return state, fmt.Errorf("chat tools sse: %w", err)
	}

	var chunks []string
	var pendingToolCalls []client.ToolCall

loop:
	for resp := range ch {
		if len(resp.Choices) == 0 {
			continue
		}

		switch {
		case len(resp.Choices[0].Delta.ToolCalls) > 0:

			// Store the tool calls for processing after the loop so we
			// don't hold the connection hostage.
			pendingToolCalls = resp.Choices[0].Delta.ToolCalls

			break loop

		case resp.Choices[0].Delta.Content != "":
			fmt.Fprint(a.out, resp.Choices[0].Delta.Content)
			chunks = append(chunks, resp.Choices[0].Delta.Content)
		}
	}

	if len(pendingToolCalls) > 0 {
		for i := range pendingToolCalls {
			if pendingToolCalls[i].ID == "" {
				pendingToolCalls[i].ID = uuid.NewString()
			}
		}

		state.Conversation = append(state.Conversation, assistantToolCallMessage(pendingToolCalls...))
		state.ToolCalls = pendingToolCalls

		return state, nil
	}

	content := strings.TrimSpace(strings.Join(chunks, ""))
	if content != "" {
		state.Conversation = append(state.Conversation, client.D{
			"role":    "assistant",
			"content": content,
		})
	}

	state.Answer = content

	return state, nil
}

// shouldContinue is the conditional edge: a pending tool call means the
// proposed query still has to be checked and executed, no tool call means
// the model gave its final answer.
func (a *Agent) shouldContinue(ctx context.Context, state State) string {
	if len(state.ToolCalls) > 0 {
		return nodeCheckQuery
	}

	return graph.End
}

// checkQuery has the model re-validate the proposed query against the fixed
// checklist. The revised tool call keeps the original ID and replaces the
// proposal in the conversation, so the eventual tool result still matches.
func (a *Agent) checkQuery(ctx context.Context, state State) (State, error) {
	if len(state.ToolCalls) == 0 {
		return state, fmt.Errorf("no pending query to check")
	}

	orig := state.ToolCalls[0]
	query, _ := orig.Function.Arguments["query"].(string)

	conversation := []client.D{
		{
			"role":    "system",
			"content": fmt.Sprintf(checkPrompt, sqldb.Dialect(a.db)),
		},
		{
			"role":    "user",
			"content": query,
		},
	}

	msg, err := a.llm.ChatTools(ctx, conversation, []client.D{a.queryDoc}, client.ToolChoiceRequired)
	if err != nil {
		return state, fmt.Errorf("chat tools: %w", err)
	}

	if len(msg.ToolCalls) == 0 {
		return state, fmt.Errorf("model did not re-emit the query")
	}

	revised := msg.ToolCalls[0]
	revised.ID = orig.ID

	state.ToolCalls = []client.ToolCall{revised}
	state.Conversation[len(state.Conversation)-1] = assistantToolCallMessage(revised)

	return state, nil
}

// runQuery executes the validated query and appends the result to the
// conversation, looping back to query generation.
func (a *Agent) runQuery(ctx context.Context, state State) (State, error) {
	state.Conversation = append(state.Conversation, a.callTools(ctx, state.ToolCalls)...)
	state.ToolCalls = nil

	return state, nil
}
