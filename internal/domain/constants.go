package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
)

// Timeout and duration constants
const (
	// DefaultCommandTimeout matches the per-call kubectl timeout the assistant has always used.
	DefaultCommandTimeout = 30 * time.Second
	// DefaultRequestTimeout is the timeout for one provider round trip
	DefaultRequestTimeout = 120 * time.Second
	// DefaultModelTestTimeout bounds `kshai models test`
	DefaultModelTestTimeout = 30 * time.Second
	// DefaultKillGrace is how long a killed process group may keep pipes open
	DefaultKillGrace = 2 * time.Second
)

// Limit constants
const (
	// DefaultMaxOutputBytes caps each of stdout and stderr
	DefaultMaxOutputBytes = 16 * 1024
	// DefaultMaxToolRounds bounds structured continuations per turn
	DefaultMaxToolRounds = 8
	// DefaultMaxTokens is the default maximum number of completion tokens
	DefaultMaxTokens = 1024
	// DefaultAuditListLimit is the default number of audit rows to display
	DefaultAuditListLimit = 20
)

// DefaultClusterCLI is the management CLI invoked by the kubectl tool.
const DefaultClusterCLI = "kubectl"

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
)
