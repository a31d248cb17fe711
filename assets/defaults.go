// Package assets embeds the files written to ~/.kshai on first run.
package assets

import _ "embed"

var (
	//go:embed defaults/config.yaml
	DefaultConfigYAML []byte

	// DefaultGuardrailYAML holds the rules copied to security.rules_file when it is missing.
	//
	//go:embed defaults/guardrail.yaml
	DefaultGuardrailYAML []byte

	// SystemPromptTemplate is parsed with text/template; see prompt.Builder for its fields.
	//
	//go:embed defaults/system_prompt.tmpl
	SystemPromptTemplate string
)
