package ir

const (
	// RecordVersion is the journal record schema version.
	RecordVersion = "1"

	// EngineVersion is the Kelsen engine version.
	EngineVersion = "0.1.0"
)
