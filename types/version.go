package types

// Version is the canonical project version.
// The CLI and the record format share this version.
const Version = "0.3.0"

// RecordVersion is the version of the ipc record format.
// Bumped in lockstep with Version.
const RecordVersion = Version
