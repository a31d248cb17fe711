package domain

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessageKind distinguishes plain text from tool traffic.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindToolCall   MessageKind = "tool_call"
	KindToolResult MessageKind = "tool_result"
	KindExtracted  MessageKind = "extracted"
)

// Message is one immutable history entry. Exactly one of ToolCall,
// ToolResult or Extracted is set for the non-text kinds.
type Message struct {
	Ordinal    int               `json:"ordinal"`
	Role       Role              `json:"role"`
	Kind       MessageKind       `json:"kind"`
	Content    string            `json:"content,omitempty"`
	ToolCall   *ToolCall         `json:"tool_call,omitempty"`
	ToolResult *ToolResult       `json:"tool_result,omitempty"`
	Extracted  *ExtractedCommand `json:"extracted,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// ToolCall is a native tool invocation from a structured backend.
type ToolCall struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

// Command returns the command argument, if any.
func (c ToolCall) Command() string {
	if c.Arguments == nil {
		return ""
	}
	return c.Arguments[ToolArgCommand]
}

// Outcome classifies what happened to a proposed action.
type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// ToolResult answers exactly one ToolCall.
type ToolResult struct {
	CallID  string  `json:"call_id"`
	Output  string  `json:"output"`
	IsError bool    `json:"is_error"`
	Outcome Outcome `json:"outcome"`
}

// ExtractedCommand is a shell block found in generic backend text. Decision
// and Result are filled in by the session once the gate has ruled.
type ExtractedCommand struct {
	RawText       string      `json:"raw_text"`
	SourceOrdinal int         `json:"source_message_ordinal"`
	Decision      *Decision   `json:"decision,omitempty"`
	Result        *ToolResult `json:"result,omitempty"`
}

// Tool names offered to structured backends.
const (
	ToolKubectl = "kubectl"
	ToolShell   = "shell"

	ToolArgCommand = "command"
)

// ToolSpec describes a tool in a backend-neutral way.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  []ToolParameter
}

// ToolParameter is a single string parameter of a tool.
type ToolParameter struct {
	Name        string
	Description string
	Required    bool
}

// ClusterTools returns the tools offered to structured backends.
func ClusterTools(cli string) []ToolSpec {
	if cli == "" {
		cli = DefaultClusterCLI
	}
	return []ToolSpec{
		{
			Name:        ToolKubectl,
			Description: "Run a " + cli + " command against the active cluster. Pass only the arguments, for example \"get pods -n kube-system\".",
			Parameters: []ToolParameter{
				{Name: ToolArgCommand, Description: "Arguments for " + cli + ".", Required: true},
			},
		},
		{
			Name:        ToolShell,
			Description: "Run a shell command line on the operator workstation, for example helm or jq pipelines.",
			Parameters: []ToolParameter{
				{Name: ToolArgCommand, Description: "Full shell command line.", Required: true},
			},
		},
	}
}
