package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/ports"
)

// maxResponseBytes caps a non-streaming reply body.
const maxResponseBytes = 4 << 20

// httpProvider is a configuration-driven text backend. Request shape,
// authentication and response parsing follow the model's APIFormat.
type httpProvider struct {
	providerBase
	apiKey    string
	extractor ports.CommandExtractor
}

func (p *httpProvider) Stream(ctx context.Context, req ports.ProviderRequest) ports.EventStream {
	messages := flattenHistory(req.System, req.History)
	driver := p.genericDriver(p.extractor)
	return newEventStream(ctx, func(ctx context.Context, l *ledger, yield func(domain.Event) bool) {
		driver.run(ctx, func(ctx context.Context, emit func(string) bool) error {
			return p.complete(ctx, messages, emit)
		}, l, yield)
	})
}

func (p *httpProvider) complete(ctx context.Context, messages []domain.PromptMessage, emit func(string) bool) error {
	requestBody, err := p.buildRequestBody(messages)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.model.Endpoint, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.setAuthHeaders(httpReq)
	p.setExtraHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return networkError(p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readAPIError(p.name, resp)
	}

	if p.model.Stream {
		return p.consumeStream(ctx, resp.Body, emit)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return networkError(p.name, err)
	}
	if len(body) > maxResponseBytes {
		return protocolError(p.name, "response exceeds %d bytes", maxResponseBytes)
	}
	content, err := p.parseResponse(body)
	if err != nil {
		return protocolError(p.name, "parse response: %v", err)
	}
	if content != "" && !emit(content) {
		return errConsumerStopped
	}
	return nil
}

// consumeStream reads NDJSON chunks, or SSE data lines, and emits the
// configured response field of each.
func (p *httpProvider) consumeStream(ctx context.Context, body io.Reader, emit func(string) bool) error {
	path := p.model.APIFormat.GetResponseJSONPath()
	err := consumeLines(ctx, body, func(line string) error {
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(line[len("data:"):])
		}
		if line == "[DONE]" || strings.HasPrefix(line, "event:") || strings.HasPrefix(line, ":") {
			return nil
		}
		var chunk map[string]interface{}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			p.logger.Warn("skipping malformed stream chunk", map[string]interface{}{"provider": p.name, "error": err.Error()})
			return nil
		}
		if errObj, ok := chunk["error"]; ok {
			return streamError(p.name, "", fmt.Sprint(errObj))
		}
		text, err := extractJSONPath(chunk, path)
		if err != nil || text == "" {
			return nil
		}
		if !emit(text) {
			return errConsumerStopped
		}
		return nil
	})
	if err != nil && !errors.Is(err, errConsumerStopped) {
		return networkError(p.name, err)
	}
	return err
}

// buildRequestBody constructs the JSON request body based on the model's APIFormat configuration.
func (p *httpProvider) buildRequestBody(messages []domain.PromptMessage) ([]byte, error) {
	format := p.model.APIFormat

	request := map[string]interface{}{
		"model":  p.model.ModelID,
		"stream": p.model.Stream,
	}
	if p.model.MaxTokens > 0 {
		request["max_tokens"] = p.model.MaxTokens
	}

	if format.IsSystemMessageSeparate() {
		systemPrompt, chatMessages := splitSystemMessages(messages, format)
		if systemPrompt != "" {
			request["system"] = systemPrompt
		}
		request["messages"] = chatMessages
	} else {
		request["messages"] = formatMessagesInline(messages, format)
	}

	return json.Marshal(request)
}

// splitSystemMessages separates system messages for APIs that take them in a separate field.
func splitSystemMessages(messages []domain.PromptMessage, format domain.APIFormat) (string, []map[string]interface{}) {
	var systemLines []string
	var chatMessages []map[string]interface{}

	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "system") {
			systemLines = append(systemLines, msg.Content)
			continue
		}
		chatMessages = append(chatMessages, formatMessage(msg, format))
	}

	return strings.TrimSpace(strings.Join(systemLines, "\n")), chatMessages
}

func formatMessagesInline(messages []domain.PromptMessage, format domain.APIFormat) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(messages))
	for _, msg := range messages {
		result = append(result, formatMessage(msg, format))
	}
	return result
}

// formatMessage formats a single message based on the content wrapper configuration.
func formatMessage(msg domain.PromptMessage, format domain.APIFormat) map[string]interface{} {
	message := map[string]interface{}{
		"role": strings.ToLower(msg.Role),
	}
	if format.IsContentWrapped() {
		message["content"] = []map[string]string{
			{"type": "text", "text": msg.Content},
		}
	} else {
		message["content"] = msg.Content
	}
	return message
}

// setAuthHeaders sends the credential only when one is configured; local
// servers such as Ollama take none.
func (p *httpProvider) setAuthHeaders(req *http.Request) {
	if p.apiKey == "" {
		return
	}
	format := p.model.APIFormat
	req.Header.Set(format.GetAuthHeaderName(), format.GetAuthHeaderPrefix()+p.apiKey)
	if org := firstEnv(p.model.OrgEnvVar); org != "" {
		req.Header.Set("OpenAI-Organization", org)
	}
}

// parseResponse extracts the generated text using the configured JSON path.
func (p *httpProvider) parseResponse(body []byte) (string, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("unmarshal JSON: %w", err)
	}

	path := p.model.APIFormat.GetResponseJSONPath()
	content, err := extractJSONPath(response, path)
	if err != nil {
		return "", fmt.Errorf("extract from path '%s': %w", path, err)
	}
	return strings.TrimSpace(content), nil
}

// extractJSONPath extracts a string value from a nested JSON structure.
// Supported paths: "field", "field.nested", "field[0]", "field[0].nested.field"
func extractJSONPath(data map[string]interface{}, path string) (string, error) {
	var current interface{} = data

	for _, part := range parseJSONPath(path) {
		switch part.kind {
		case "field":
			obj, ok := current.(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("expected object at '%s'", part.value)
			}
			var found bool
			current, found = obj[part.value]
			if !found {
				return "", fmt.Errorf("field '%s' not found", part.value)
			}
		case "index":
			arr, ok := current.([]interface{})
			if !ok {
				return "", fmt.Errorf("expected array at index %s", part.value)
			}
			var idx int
			if _, err := fmt.Sscanf(part.value, "%d", &idx); err != nil {
				return "", fmt.Errorf("invalid index %q", part.value)
			}
			if idx < 0 || idx >= len(arr) {
				return "", fmt.Errorf("index %d out of bounds (len=%d)", idx, len(arr))
			}
			current = arr[idx]
		}
	}

	if str, ok := current.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("final value is not a string: %T", current)
}

type pathPart struct {
	kind  string // "field" or "index"
	value string
}

// parseJSONPath converts "content[0].text" into structured path parts.
func parseJSONPath(path string) []pathPart {
	var parts []pathPart
	current := ""

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			if current != "" {
				parts = append(parts, pathPart{kind: "field", value: current})
				current = ""
			}
		case '[':
			if current != "" {
				parts = append(parts, pathPart{kind: "field", value: current})
				current = ""
			}
			j := i + 1
			for j < len(path) && path[j] != ']' {
				j++
			}
			if j < len(path) {
				parts = append(parts, pathPart{kind: "index", value: path[i+1 : j]})
				i = j
			}
		default:
			current += string(ch)
		}
	}

	if current != "" {
		parts = append(parts, pathPart{kind: "field", value: current})
	}
	return parts
}
