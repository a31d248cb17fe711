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
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicModel    = "claude-3-5-sonnet-20240620"
	anthropicVersion  = "2023-06-01"
)

type anthropicProvider struct {
	providerBase
	apiKey string
}

func (p *anthropicProvider) Stream(ctx context.Context, req ports.ProviderRequest) ports.EventStream {
	ex := &anthropicExchange{
		provider: p,
		system:   req.System,
		messages: anthropicMessages(req.History),
		tools:    anthropicTools(req.Tools),
	}
	driver := p.driver()
	return newEventStream(ctx, func(ctx context.Context, l *ledger, yield func(domain.Event) bool) {
		driver.run(ctx, ex, l, yield)
	})
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

func anthropicTools(specs []domain.ToolSpec) []anthropicTool {
	tools := make([]anthropicTool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, anthropicTool{
			Name:        spec.Name,
			Description: spec.Description,
			InputSchema: toolSchema(spec),
		})
	}
	return tools
}

// anthropicMessages converts history into alternating user/assistant messages.
func anthropicMessages(history []domain.Message) []anthropicMessage {
	var out []anthropicMessage
	add := func(role string, block anthropicBlock) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		out = append(out, anthropicMessage{Role: role, Content: []anthropicBlock{block}})
	}
	for _, msg := range history {
		switch msg.Kind {
		case domain.KindToolCall:
			if msg.ToolCall == nil {
				continue
			}
			add("assistant", anthropicBlock{
				Type:  "tool_use",
				ID:    msg.ToolCall.ID,
				Name:  msg.ToolCall.Name,
				Input: argumentsInput(msg.ToolCall.Arguments),
			})
		case domain.KindToolResult:
			if msg.ToolResult == nil {
				continue
			}
			add("user", anthropicBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolResult.CallID,
				Content:   resultText(*msg.ToolResult),
				IsError:   msg.ToolResult.IsError,
			})
		case domain.KindExtracted:
			add("user", anthropicBlock{Type: "text", Text: extractedText(msg.Extracted)})
		default:
			if strings.TrimSpace(msg.Content) == "" {
				continue
			}
			switch msg.Role {
			case domain.RoleUser:
				add("user", anthropicBlock{Type: "text", Text: msg.Content})
			case domain.RoleAssistant:
				add("assistant", anthropicBlock{Type: "text", Text: msg.Content})
			}
		}
	}
	return out
}

// anthropicExchange is one Messages API conversation inside a turn.
type anthropicExchange struct {
	provider *anthropicProvider
	system   string
	messages []anthropicMessage
	tools    []anthropicTool

	lastText  string
	lastCalls []domain.ToolCall
}

type anthropicBlockState struct {
	kind string
	id   string
	name string
	args strings.Builder
}

type anthropicEvent struct {
	Type         string `json:"type"`
	Index        int    `json:"index"`
	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`
	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (ex *anthropicExchange) round(ctx context.Context, emit func(string) bool) (roundResult, error) {
	p := ex.provider
	payload := anthropicRequest{
		Model:     orDefault(p.model.ModelID, anthropicModel),
		MaxTokens: orDefault(p.model.MaxTokens, domain.DefaultMaxTokens),
		System:    ex.system,
		Messages:  ex.messages,
		Tools:     ex.tools,
		Stream:    true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return roundResult{}, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, orDefault(p.model.Endpoint, anthropicEndpoint), bytes.NewReader(body))
	if err != nil {
		return roundResult{}, fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)
	p.setExtraHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return roundResult{}, networkError(p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return roundResult{}, readAPIError(p.name, resp)
	}

	blocks := map[int]*anthropicBlockState{}
	var text strings.Builder
	stopReason := ""
	finished := false

	err = consumeSSE(ctx, resp.Body, func(_ string, data string) error {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			p.logger.Warn("skipping malformed stream event", map[string]interface{}{"provider": p.name, "error": err.Error()})
			return nil
		}
		switch ev.Type {
		case "content_block_start":
			blocks[ev.Index] = &anthropicBlockState{kind: ev.ContentBlock.Type, id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
		case "content_block_delta":
			state := blocks[ev.Index]
			switch ev.Delta.Type {
			case "text_delta":
				if ev.Delta.Text == "" {
					return nil
				}
				text.WriteString(ev.Delta.Text)
				if !emit(ev.Delta.Text) {
					return errConsumerStopped
				}
			case "input_json_delta":
				if state != nil {
					state.args.WriteString(ev.Delta.PartialJSON)
				}
			}
		case "message_delta":
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}
		case "message_stop":
			finished = true
		case "error":
			return streamError(p.name, ev.Error.Type, ev.Error.Message)
		case "message_start", "content_block_stop", "ping":
		default:
			p.logger.Debug("ignoring unknown stream event", map[string]interface{}{"provider": p.name, "type": ev.Type})
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errConsumerStopped) {
			return roundResult{}, err
		}
		return roundResult{}, networkError(p.name, err)
	}
	if !finished {
		return roundResult{}, protocolError(p.name, "stream ended before message_stop")
	}

	calls := ex.collectCalls(blocks)
	ex.lastText = text.String()
	ex.lastCalls = calls
	return roundResult{calls: calls, stop: anthropicStopReason(stopReason)}, nil
}

func (ex *anthropicExchange) collectCalls(blocks map[int]*anthropicBlockState) []domain.ToolCall {
	indexes := make([]int, 0, len(blocks))
	for idx, state := range blocks {
		if state.kind == "tool_use" {
			indexes = append(indexes, idx)
		}
	}
	sort.Ints(indexes)

	calls := make([]domain.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		state := blocks[idx]
		args, err := decodeArguments(state.args.String())
		if err != nil {
			ex.provider.logger.Warn("tool call arguments undecodable", map[string]interface{}{"provider": ex.provider.name, "call_id": state.id, "error": err.Error()})
		}
		id := state.id
		if id == "" {
			id = fmt.Sprintf("toolu_%d", idx)
		}
		calls = append(calls, domain.ToolCall{ID: id, Name: state.name, Arguments: args})
	}
	return calls
}

func (ex *anthropicExchange) appendResults(results []domain.ToolResult) {
	assistant := anthropicMessage{Role: "assistant"}
	if strings.TrimSpace(ex.lastText) != "" {
		assistant.Content = append(assistant.Content, anthropicBlock{Type: "text", Text: ex.lastText})
	}
	for _, call := range ex.lastCalls {
		assistant.Content = append(assistant.Content, anthropicBlock{
			Type:  "tool_use",
			ID:    call.ID,
			Name:  call.Name,
			Input: argumentsInput(call.Arguments),
		})
	}
	user := anthropicMessage{Role: "user"}
	for _, result := range results {
		user.Content = append(user.Content, anthropicBlock{
			Type:      "tool_result",
			ToolUseID: result.CallID,
			Content:   resultText(result),
			IsError:   result.IsError,
		})
	}
	ex.messages = append(ex.messages, assistant, user)
	ex.lastText = ""
	ex.lastCalls = nil
}

func anthropicStopReason(reason string) domain.StopReason {
	if reason == "max_tokens" {
		return domain.StopMaxTokens
	}
	return domain.StopEndTurn
}
