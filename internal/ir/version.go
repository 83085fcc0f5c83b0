package ir

// Version constants for the evidence schema and the tool.
const (
	// SchemaVersion is the version of the RunOutcome JSON layout.
	SchemaVersion = "1"

	// ToolVersion is the parity release version.
	ToolVersion = "0.1.0"
)
