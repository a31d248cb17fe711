// Package prompt renders the system prompt sent with every turn.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/doeshing/kshai/assets"
	"github.com/doeshing/kshai/internal/domain"
)

// Builder renders the system prompt template with cluster context.
//
// Template Variables Available:
//   - {{.Context}}: active kubeconfig context
//   - {{.Cluster}}: cluster name of the active context
//   - {{.Namespace}}: default namespace
//   - {{.Contexts}}: the other contexts in the kubeconfig
//   - {{.CLI}}: management CLI binary
//   - {{.Structured}}: true when the backend has native tool calls
type Builder struct {
	tmpl *template.Template
}

type templateData struct {
	Context    string
	Cluster    string
	Namespace  string
	Contexts   []string
	CLI        string
	Structured bool
}

// New parses raw, or the embedded default template when raw is empty.
func New(raw string) (*Builder, error) {
	if strings.TrimSpace(raw) == "" {
		raw = assets.SystemPromptTemplate
	}
	tmpl, err := template.New("system").Funcs(template.FuncMap{"join": strings.Join}).Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt template: %w", err)
	}
	return &Builder{tmpl: tmpl}, nil
}

// Build renders the prompt for one provider. System entries of the model's
// prompt list and the operator's extra text are appended in order.
func (b *Builder) Build(cluster domain.ClusterContext, mode domain.BackendMode, model domain.ModelDefinition, extra string) (string, error) {
	data := templateData{
		Context:    cluster.Context,
		Cluster:    cluster.Cluster,
		Namespace:  cluster.Namespace,
		Contexts:   otherContexts(cluster),
		CLI:        cluster.CLI,
		Structured: mode == domain.BackendStructured,
	}
	if data.CLI == "" {
		data.CLI = domain.DefaultClusterCLI
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render system prompt: %w", err)
	}

	parts := []string{strings.TrimSpace(buf.String())}
	for _, msg := range model.Prompt {
		if strings.EqualFold(msg.Role, string(domain.RoleSystem)) && strings.TrimSpace(msg.Content) != "" {
			parts = append(parts, strings.TrimSpace(msg.Content))
		}
	}
	if strings.TrimSpace(extra) != "" {
		parts = append(parts, strings.TrimSpace(extra))
	}
	return strings.Join(parts, "\n\n"), nil
}

func otherContexts(cluster domain.ClusterContext) []string {
	var out []string
	for _, name := range cluster.Contexts {
		if name != cluster.Context {
			out = append(out, name)
		}
	}
	return out
}
