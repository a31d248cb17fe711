package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/doeshing/kshai/internal/domain"
)

// toolSchema renders a tool's parameters as a JSON schema object.
func toolSchema(spec domain.ToolSpec) map[string]any {
	props := make(map[string]any, len(spec.Parameters))
	required := make([]string, 0, len(spec.Parameters))
	for _, param := range spec.Parameters {
		props[param.Name] = map[string]any{
			"type":        "string",
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// decodeArguments turns backend argument JSON into string arguments.
// Undecodable input yields an empty map so the call can still be answered.
func decodeArguments(raw string) (map[string]string, error) {
	args := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return args, nil
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return args, fmt.Errorf("decode tool arguments: %w", err)
	}
	for key, value := range decoded {
		switch v := value.(type) {
		case string:
			args[key] = v
		case nil:
		default:
			encoded, _ := json.Marshal(v)
			args[key] = string(encoded)
		}
	}
	return args, nil
}

func argumentsInput(args map[string]string) map[string]any {
	input := make(map[string]any, len(args))
	for key, value := range args {
		input[key] = value
	}
	return input
}

func argumentsJSON(args map[string]string) string {
	if args == nil {
		args = map[string]string{}
	}
	encoded, _ := json.Marshal(args)
	return string(encoded)
}
