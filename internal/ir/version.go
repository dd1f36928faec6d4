package ir

// Version constants.
const (
	// IRVersion is the version of the compiled interface representation.
	// It is part of every SpecHash.
	IRVersion = "1"

	// ToolVersion is the ipcrecord release.
	ToolVersion = "0.1.0"
)
