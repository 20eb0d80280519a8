package client

import (
	"context"
	"fmt"
	"maps"
	"net/http"
)

// Tool choice values accepted by the chat completions endpoint.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceRequired = "required"
	ToolChoiceNone     = "none"
)

type LLM struct {
	cln    *Client
	clnSSE *SSEClient[ChatSSE]
	url    string
	model  string
}

func NewLLM(url string, model string) *LLM {
	return NewLLMWithLogger(NoopLogger, url, model)
}

func NewLLMWithLogger(log Logger, url string, model string) *LLM {
	return &LLM{
		cln:    New(log),
		clnSSE: NewSSE[ChatSSE](log),
		url:    url,
		model:  model,
	}
}

type withParam struct {
	typ string
	d   D
}

func WithParams(temperature float32, topP float32, topK int) withParam {
	return withParam{
		typ: "params",
		d: D{
			"temperature": temperature,
			"top_p":       topP,
			"top_k":       topK,
		},
	}
}

func WithMaxTokens(maxTokens int) withParam {
	return withParam{
		typ: "max_tokens",
		d: D{
			"max_tokens": maxTokens,
		},
	}
}

// ChatTools performs a chat completion over the given conversation with the
// given set of tool documents bound. The returned message carries the model's
// content and/or its tool call requests.
func (llm *LLM) ChatTools(ctx context.Context, conversation []D, tools []D, toolChoice string, options ...withParam) (ChatMessage, error) {
	d := llm.request(conversation, tools, toolChoice, options)

	var chat Chat
	if err := llm.cln.Do(ctx, http.MethodPost, llm.url, d, &chat); err != nil {
		return ChatMessage{}, fmt.Errorf("do: %w", err)
	}

	if len(chat.Choices) == 0 {
		return ChatMessage{}, fmt.Errorf("no response")
	}

	return chat.Choices[0].Message, nil
}

// ChatToolsSSE is the streaming version of ChatTools. The caller owns draining
// the channel, watching for content and tool call deltas.
func (llm *LLM) ChatToolsSSE(ctx context.Context, conversation []D, tools []D, toolChoice string, options ...withParam) (chan ChatSSE, error) {
	d := llm.request(conversation, tools, toolChoice, options)
	d["stream"] = true

	ch := make(chan ChatSSE, 100)
	if err := llm.clnSSE.Do(ctx, http.MethodPost, llm.url, d, ch); err != nil {
		return nil, fmt.Errorf("do: %w", err)
	}

	return ch, nil
}

func (llm *LLM) request(conversation []D, tools []D, toolChoice string, options []withParam) D {

	// SQL generation wants determinism, so the sampling defaults are pinned
	// low. WithParams overrides them.
	params := D{
		"temperature": 0.0,
		"top_p":       0.1,
		"top_k":       50,
	}

	var maxTokens D

	for _, opt := range options {
		switch opt.typ {
		case "params":
			params = opt.d
		case "max_tokens":
			maxTokens = opt.d
		}
	}

	d := D{
		"model":    llm.model,
		"messages": conversation,
	}

	if len(tools) > 0 {
		d["tools"] = tools
		d["tool_choice"] = toolChoice
	}

	maps.Copy(d, params)
	maps.Copy(d, maxTokens)

	return d
}
