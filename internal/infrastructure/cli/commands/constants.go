package commands

// CLI-specific constants
const (
	// DefaultEditorCommand is the default editor command
	DefaultEditorCommand = "vi"
)

// Error messages
const (
	ErrAuditStoreUnavailable    = "audit log disabled (set audit.enabled in config)"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrModelNameRequired        = "--name is required"
)

// Success messages
const (
	MsgConfigurationValid       = "Configuration valid"
	MsgNoDifferencesFromDefault = "No differences from default configuration."
	MsgNoAuditRecords           = "No gate decisions recorded yet."
)
