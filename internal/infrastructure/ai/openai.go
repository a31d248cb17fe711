package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

const (
	openAIEndpoint = "https://api.openai.com/v1/chat/completions"
	openAIModel    = "gpt-4o-mini"
)

type openAIProvider struct {
	providerBase
	apiKey string
	org    string
}

func (p *openAIProvider) Stream(ctx context.Context, req ports.ProviderRequest) ports.EventStream {
	ex := &openAIExchange{
		provider: p,
		messages: openAIMessages(req.System, req.History),
		tools:    openAITools(req.Tools),
	}
	driver := p.driver()
	return newEventStream(ctx, func(ctx context.Context, l *ledger, yield func(domain.Event) bool) {
		driver.run(ctx, ex, l, yield)
	})
}

type openAIRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens,omitempty"`
	Messages  []openAIMessage `json:"messages"`
	Tools     []openAITool    `json:"tools,omitempty"`
	Stream    bool            `json:"stream"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

func openAITools(specs []domain.ToolSpec) []openAITool {
	tools := make([]openAITool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  toolSchema(spec),
			},
		})
	}
	return tools
}

func textContent(s string) *string {
	return &s
}

func toOpenAICall(call domain.ToolCall) openAIToolCall {
	out := openAIToolCall{ID: call.ID, Type: "function"}
	out.Function.Name = call.Name
	out.Function.Arguments = argumentsJSON(call.Arguments)
	return out
}

// openAIMessages converts history into chat completion messages. Assistant
// text and the tool calls that follow it share one message.
func openAIMessages(system string, history []domain.Message) []openAIMessage {
	var out []openAIMessage
	if strings.TrimSpace(system) != "" {
		out = append(out, openAIMessage{Role: "system", Content: textContent(system)})
	}
	lastAssistant := func() *openAIMessage {
		if n := len(out); n > 0 && out[n-1].Role == "assistant" {
			return &out[n-1]
		}
		return nil
	}
	for _, msg := range history {
		switch msg.Kind {
		case domain.KindToolCall:
			if msg.ToolCall == nil {
				continue
			}
			if last := lastAssistant(); last != nil {
				last.ToolCalls = append(last.ToolCalls, toOpenAICall(*msg.ToolCall))
				continue
			}
			out = append(out, openAIMessage{Role: "assistant", ToolCalls: []openAIToolCall{toOpenAICall(*msg.ToolCall)}})
		case domain.KindToolResult:
			if msg.ToolResult == nil {
				continue
			}
			out = append(out, openAIMessage{
				Role:       "tool",
				Content:    textContent(resultText(*msg.ToolResult)),
				ToolCallID: msg.ToolResult.CallID,
			})
		case domain.KindExtracted:
			out = append(out, openAIMessage{Role: "user", Content: textContent(extractedText(msg.Extracted))})
		default:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			switch msg.Role {
			case domain.RoleUser:
				out = append(out, openAIMessage{Role: "user", Content: textContent(msg.Content)})
			case domain.RoleAssistant:
				out = append(out, openAIMessage{Role: "assistant", Content: textContent(msg.Content)})
			}
		}
	}
	return out
}

// openAIExchange is one chat completions conversation inside a turn.
type openAIExchange struct {
	provider *openAIProvider
	messages []openAIMessage
	tools    []openAITool

	lastText  string
	lastCalls []domain.ToolCall
}

type openAIChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type openAICallState struct {
	id   string
	name string
	args strings.Builder
}

func (ex *openAIExchange) round(ctx context.Context, emit func(string) bool) (roundResult, error) {
	p := ex.provider
	payload := openAIRequest{
		Model:     orDefault(p.model.ModelID, openAIModel),
		MaxTokens: p.model.MaxTokens,
		Messages:  ex.messages,
		Tools:     ex.tools,
		Stream:    true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return roundResult{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, orDefault(p.model.Endpoint, openAIEndpoint), bytes.NewReader(body))
	if err != nil {
		return roundResult{}, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "text/event-stream")
	httpReq.Header.Set("authorization", "Bearer "+p.apiKey)
	if p.org != "" {
		httpReq.Header.Set("OpenAI-Organization", p.org)
	}
	p.setExtraHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return roundResult{}, networkError(p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return roundResult{}, readAPIError(p.name, resp)
	}

	states := map[int]*openAICallState{}
	var text strings.Builder
	finish := ""
	done := false

	err = consumeSSE(ctx, resp.Body, func(_ string, data string) error {
		if data == "[DONE]" {
			done = true
			return nil
		}
		var chunk openAIChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			p.logger.Warn("skipping malformed stream event", map[string]interface{}{"provider": p.name, "error": err.Error()})
			return nil
		}
		if chunk.Error != nil {
			errType := chunk.Error.Type
			if chunk.Error.Code != "" {
				errType = chunk.Error.Code
			}
			return streamError(p.name, errType, chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				if !emit(choice.Delta.Content) {
					return errConsumerStopped
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				state, ok := states[tc.Index]
				if !ok {
					state = &openAICallState{}
					states[tc.Index] = state
				}
				if tc.ID != "" {
					state.id = tc.ID
				}
				if tc.Function.Name != "" {
					state.name = tc.Function.Name
				}
				state.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errConsumerStopped) {
			return roundResult{}, err
		}
		return roundResult{}, networkError(p.name, err)
	}
	if !done && finish == "" {
		return roundResult{}, protocolError(p.name, "stream ended before completion")
	}

	calls := ex.collectCalls(states)
	ex.lastText = text.String()
	ex.lastCalls = calls
	return roundResult{calls: calls, stop: openAIStopReason(finish)}, nil
}

func (ex *openAIExchange) collectCalls(states map[int]*openAICallState) []domain.ToolCall {
	indexes := make([]int, 0, len(states))
	for idx := range states {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	calls := make([]domain.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		state := states[idx]
		args, err := decodeArguments(state.args.String())
		if err != nil {
			ex.provider.logger.Warn("tool call arguments undecodable", map[string]interface{}{"provider": ex.provider.name, "call_id": state.id, "error": err.Error()})
		}
		id := state.id
		if id == "" {
			id = fmt.Sprintf("call_%d", idx)
		}
		calls = append(calls, domain.ToolCall{ID: id, Name: state.name, Arguments: args})
	}
	return calls
}

func (ex *openAIExchange) appendResults(results []domain.ToolResult) {
	assistant := openAIMessage{Role: "assistant"}
	if ex.lastText != "" {
		assistant.Content = textContent(ex.lastText)
	}
	for _, call := range ex.lastCalls {
		assistant.ToolCalls = append(assistant.ToolCalls, toOpenAICall(call))
	}
	ex.messages = append(ex.messages, assistant)
	for _, result := range results {
		ex.messages = append(ex.messages, openAIMessage{
			Role:       "tool",
			Content:    textContent(resultText(result)),
			ToolCallID: result.CallID,
		})
	}
	ex.lastText = ""
	ex.lastCalls = nil
}

func openAIStopReason(reason string) domain.StopReason {
	if reason == "length" {
		return domain.StopMaxTokens
	}
	return domain.StopEndTurn
}
