package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/photosync/syncagent/internal/models"
	"github.com/photosync/syncagent/internal/observability"
	"github.com/photosync/syncagent/internal/repository"
	"github.com/photosync/syncagent/internal/services"
)

// SyncHandler exposes the sync engine over HTTP
type SyncHandler struct {
	store    repository.IntervalStore
	scan     *services.FullScanService
	periodic *services.PeriodicSyncService
	logger   *observability.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(
	store repository.IntervalStore,
	scan *services.FullScanService,
	periodic *services.PeriodicSyncService,
) *SyncHandler {
	return &SyncHandler{
		store:    store,
		scan:     scan,
		periodic: periodic,
		logger:   observability.WithField("component", "sync_handler"),
	}
}

// GetStatus returns the engine status
// @Summary Get sync status
// @Description Current progress text, full scan state, last scan and tick results and the sync anchor
// @Tags sync
// @Produce json
// @Success 200 {object} models.SyncStatusResponse
// @Failure 401 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/status [get]
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	scan := h.scan.Status()
	periodic, err := h.periodic.Status(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Errorf("Error loading periodic status: %v", err)
		writeError(w, http.StatusInternalServerError, "Storage error")
		return
	}

	intervals, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Errorf("Error loading intervals: %v", err)
		writeError(w, http.StatusInternalServerError, "Storage error")
		return
	}

	// The flow currently syncing owns the progress line
	progress := h.scan.Progress().Current()
	if tickProgress := h.periodic.Progress().Current(); !progress.IsSyncing && tickProgress.IsSyncing {
		progress = tickProgress
	}

	resp := models.SyncStatusResponse{
		Progress:       progress,
		ScanState:      string(scan.State),
		AnchorPoint:    periodic.AnchorPoint,
		IntervalCount:  len(intervals),
		PeriodicActive: periodic.Active,
	}
	if scan.Running {
		resp.ScanRunID = scan.RunID
	}
	if scan.Last != nil {
		resp.LastScan = ScanSummary(*scan.Last)
	}
	if periodic.LastTick != nil {
		resp.LastTick = TickSummary(*periodic.LastTick)
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetIntervals returns the persisted synced intervals
// @Summary List synced intervals
// @Tags sync
// @Produce json
// @Success 200 {object} models.IntervalsResponse
// @Failure 401 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/intervals [get]
func (h *SyncHandler) GetIntervals(w http.ResponseWriter, r *http.Request) {
	intervals, err := h.store.Load(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Errorf("Error loading intervals: %v", err)
		writeError(w, http.StatusInternalServerError, "Storage error")
		return
	}

	resp := models.IntervalsResponse{Intervals: intervals}
	if anchor, ok, err := h.store.LoadAnchor(r.Context()); err != nil {
		h.logger.WithContext(r.Context()).Errorf("Error loading anchor: %v", err)
		writeError(w, http.StatusInternalServerError, "Storage error")
		return
	} else if ok {
		resp.AnchorPoint = &anchor
	}

	writeJSON(w, http.StatusOK, resp)
}

// StartScan launches a full scan in the background
// @Summary Start full scan
// @Tags sync
// @Produce json
// @Success 202 {object} models.ScanStartResponse
// @Failure 409 {object} models.ErrorResponse "A scan is already running"
// @Security ApiKeyAuth
// @Router /api/sync/scan [post]
func (h *SyncHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	runID, err := h.scan.Start()
	if errors.Is(err, services.ErrScanInProgress) {
		writeError(w, http.StatusConflict, "A full scan is already running.")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, models.ScanStartResponse{RunID: runID, Started: true})
}

// StopScan cancels the running full scan
// @Summary Stop full scan
// @Tags sync
// @Success 204
// @Security ApiKeyAuth
// @Router /api/sync/scan/stop [post]
func (h *SyncHandler) StopScan(w http.ResponseWriter, r *http.Request) {
	h.scan.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// RunTick runs one periodic sync pass and waits for it
// @Summary Run periodic sync now
// @Tags sync
// @Produce json
// @Success 200 {object} models.TickResponse
// @Failure 409 {object} models.TickResponse "Anchor interval missing"
// @Failure 503 {object} models.TickResponse "Retry later"
// @Security ApiKeyAuth
// @Router /api/sync/tick [post]
func (h *SyncHandler) RunTick(w http.ResponseWriter, r *http.Request) {
	result := h.periodic.RunTick(r.Context())

	status := http.StatusOK
	switch result.Outcome {
	case services.TickRetry:
		status = http.StatusServiceUnavailable
	case services.TickFatalMissingAnchor:
		status = http.StatusConflict
	}

	resp := models.TickResponse{Outcome: string(result.Outcome), Uploaded: result.Uploaded}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeJSON(w, status, resp)
}

// EnableAnchor turns on sync from now
// @Summary Enable sync from now
// @Tags sync
// @Produce json
// @Success 200 {object} models.AnchorResponse
// @Security ApiKeyAuth
// @Router /api/sync/anchor [post]
func (h *SyncHandler) EnableAnchor(w http.ResponseWriter, r *http.Request) {
	anchor, err := h.periodic.EnableSyncFromNow(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Errorf("Error enabling sync from now: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to enable sync from now")
		return
	}
	writeJSON(w, http.StatusOK, models.AnchorResponse{AnchorPoint: &anchor, Enabled: true})
}

// DisableAnchor turns off sync from now
// @Summary Disable sync from now
// @Tags sync
// @Produce json
// @Success 200 {object} models.AnchorResponse
// @Security ApiKeyAuth
// @Router /api/sync/anchor [delete]
func (h *SyncHandler) DisableAnchor(w http.ResponseWriter, r *http.Request) {
	if err := h.periodic.DisableSyncFromNow(r.Context()); err != nil {
		h.logger.WithContext(r.Context()).Errorf("Error disabling sync from now: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to disable sync from now")
		return
	}
	writeJSON(w, http.StatusOK, models.AnchorResponse{Enabled: false})
}

// MergeIntervals normalizes a caller supplied interval list
// @Summary Merge intervals
// @Description Pure utility: returns the sorted, non-overlapping, non-adjacent cover of the input
// @Tags sync
// @Accept json
// @Produce json
// @Param request body models.MergeIntervalsRequest true "Intervals"
// @Success 200 {object} models.MergeIntervalsResponse
// @Failure 400 {object} models.ErrorResponse
// @Security ApiKeyAuth
// @Router /api/sync/merge [post]
func (h *SyncHandler) MergeIntervals(w http.ResponseWriter, r *http.Request) {
	var req models.MergeIntervalsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	for _, iv := range req.Intervals {
		if err := iv.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusOK, models.MergeIntervalsResponse{
		Intervals: models.MergeIntervals(req.Intervals),
	})
}

// ScanSummary converts a scan result for JSON output
func ScanSummary(r services.ScanResult) *models.ScanSummary {
	s := &models.ScanSummary{
		RunID:      r.RunID,
		Outcome:    string(r.Outcome),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// TickSummary converts a tick result for JSON output
func TickSummary(r services.TickResult) *models.TickSummary {
	s := &models.TickSummary{
		Outcome:    string(r.Outcome),
		Uploaded:   r.Uploaded,
		FinishedAt: r.FinishedAt,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}
