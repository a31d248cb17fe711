package domain

// Config mirrors ~/.kshai/config.yaml.
type Config struct {
	ConfigFormatVersion string            `yaml:"config_format_version" json:"config_format_version"`
	Preferences         Preferences       `yaml:"preferences" json:"preferences"`
	Models              []ModelDefinition `yaml:"models" json:"models"`
	Cluster             ClusterSettings   `yaml:"cluster" json:"cluster"`
	Security            SecuritySettings  `yaml:"security" json:"security"`
	Execution           ExecutionSettings `yaml:"execution" json:"execution"`
	Audit               AuditSettings     `yaml:"audit" json:"audit"`
	Telemetry           TelemetrySettings `yaml:"telemetry" json:"telemetry"`
}

// Preferences captures operator level toggles. They seed the session policy.
type Preferences struct {
	DefaultModel   string `yaml:"default_model" json:"default_model"`
	AutoExecute    bool   `yaml:"auto_execute" json:"auto_execute"`
	PlanOnly       bool   `yaml:"plan_only" json:"plan_only"`
	VerboseTools   bool   `yaml:"verbose_tools" json:"verbose_tools"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout"`
	MaxToolRounds  int    `yaml:"max_tool_rounds" json:"max_tool_rounds"`
	SystemPrompt   string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// ClusterSettings points at the cluster-management CLI and kubeconfig.
type ClusterSettings struct {
	CLI        string `yaml:"cli" json:"cli"`
	Kubeconfig string `yaml:"kubeconfig,omitempty" json:"kubeconfig,omitempty"`
	Context    string `yaml:"context,omitempty" json:"context,omitempty"`
	Namespace  string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// SecuritySettings defines guardrail behavior.
type SecuritySettings struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	RulesFile string `yaml:"rules_file" json:"rules_file"`
}

// ExecutionSettings controls how commands run.
type ExecutionSettings struct {
	Shell          string `yaml:"shell" json:"shell"`
	TimeoutSeconds int    `yaml:"timeout" json:"timeout"`
	MaxOutputBytes int    `yaml:"max_output_bytes" json:"max_output_bytes"`
}

// AuditSettings controls the gate decision log.
type AuditSettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TelemetrySettings toggles metrics and tracing.
type TelemetrySettings struct {
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	Tracing     bool   `yaml:"tracing" json:"tracing"`
}
