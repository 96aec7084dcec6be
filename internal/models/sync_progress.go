package models

// DefaultStatusText is shown before any sync has run
const DefaultStatusText = "Ready."

// SyncProgress is the ephemeral status broadcast by the active sync run.
// It is never persisted.
type SyncProgress struct {
	IsSyncing bool   `json:"isSyncing"`
	Text      string `json:"text"`
}

// NewSyncProgress returns the initial progress state
func NewSyncProgress() SyncProgress {
	return SyncProgress{IsSyncing: false, Text: DefaultStatusText}
}
