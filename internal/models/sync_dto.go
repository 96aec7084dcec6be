package models

import "time"

// SyncStatusResponse for GET /api/sync/status
type SyncStatusResponse struct {
	Progress       SyncProgress `json:"progress"`
	ScanState      string       `json:"scanState"`
	ScanRunID      string       `json:"scanRunId,omitempty"`
	LastScan       *ScanSummary `json:"lastScan,omitempty"`
	LastTick       *TickSummary `json:"lastTick,omitempty"`
	AnchorPoint    *int64       `json:"anchorPoint,omitempty"`
	IntervalCount  int          `json:"intervalCount"`
	PeriodicActive bool         `json:"periodicActive"`
}

// ScanSummary describes a finished full scan
type ScanSummary struct {
	RunID      string    `json:"runId"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// TickSummary describes the most recent periodic sync tick
type TickSummary struct {
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	Uploaded   int       `json:"uploaded"`
	FinishedAt time.Time `json:"finishedAt"`
}

// IntervalsResponse for GET /api/sync/intervals
type IntervalsResponse struct {
	Intervals   []TimeInterval `json:"intervals"`
	AnchorPoint *int64         `json:"anchorPoint,omitempty"`
}

// MergeIntervalsRequest for POST /api/sync/merge
type MergeIntervalsRequest struct {
	Intervals []TimeInterval `json:"intervals"`
}

// MergeIntervalsResponse for POST /api/sync/merge
type MergeIntervalsResponse struct {
	Intervals []TimeInterval `json:"intervals"`
}

// ScanStartResponse for POST /api/sync/scan
type ScanStartResponse struct {
	RunID   string `json:"runId"`
	Started bool   `json:"started"`
}

// TickResponse for POST /api/sync/tick
type TickResponse struct {
	Outcome  string `json:"outcome"`
	Error    string `json:"error,omitempty"`
	Uploaded int    `json:"uploaded"`
}

// AnchorResponse for POST/DELETE /api/sync/anchor
type AnchorResponse struct {
	AnchorPoint *int64 `json:"anchorPoint,omitempty"`
	Enabled     bool   `json:"enabled"`
}
