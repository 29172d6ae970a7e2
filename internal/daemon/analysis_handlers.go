package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/simpleflo/filescout/internal/analyzer"
	"github.com/simpleflo/filescout/internal/observability"
	"github.com/simpleflo/filescout/pkg/models"
)

// AnalysisRequest is the body of POST /api/v1/analysis.
type AnalysisRequest struct {
	Path           string `json:"path"`
	FindDuplicates *bool  `json:"find_duplicates,omitempty"`
	MaxHashSizeMB  int64  `json:"max_hash_size_mb,omitempty"`
	MinSize        int64  `json:"min_size,omitempty"`
	MaxSize        int64  `json:"max_size,omitempty"`
}

func (req AnalysisRequest) options() analyzer.Options {
	opts := analyzer.Options{
		FindDuplicates: true,
		MaxHashSizeMB:  req.MaxHashSizeMB,
		MinSize:        req.MinSize,
		MaxSize:        req.MaxSize,
	}
	if req.FindDuplicates != nil {
		opts.FindDuplicates = *req.FindDuplicates
	}
	return opts
}

// handleStartAnalysis registers a session and runs the analysis in the
// background. The session id is returned immediately.
// POST /api/v1/analysis
func (d *Daemon) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInvalidRequest, "invalid request body")
		return
	}
	if req.MinSize < 0 || req.MaxSize < 0 || req.MaxHashSizeMB < 0 ||
		(req.MaxSize > 0 && req.MinSize > req.MaxSize) {
		writeError(w, http.StatusBadRequest, models.ErrInvalidRequest, "invalid size limits")
		return
	}

	dir, err := d.validator.Stat(req.Path)
	if err != nil {
		d.writeModelError(w, err, "invalid analysis path")
		return
	}

	id := uuid.New().String()
	d.sessions.Register(id)
	if err := d.store.CreateAnalysis(r.Context(), id, dir, time.Now()); err != nil {
		d.sessions.Unregister(id)
		d.writeModelError(w, err, "failed to create analysis session")
		return
	}

	d.eventBus.Publish(EventAnalysisStarted, AnalysisEventData{
		SessionID: id,
		Path:      d.validator.Display(dir),
		Status:    models.StatusRunning,
	})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.runAnalysis(id, dir, req.options())
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": id,
		"status":     models.StatusRunning,
	})
}

// runAnalysis executes one background analysis and records its result.
// Daemon shutdown cancels it through d.ctx.
func (d *Daemon) runAnalysis(id, dir string, opts analyzer.Options) {
	logger := observability.WithSessionID(d.logger, id)
	start := time.Now()

	out, err := d.analyzer.Run(d.ctx, dir, opts, id)
	if err != nil {
		observability.LogError(logger, err, "analysis failed", map[string]interface{}{"path": dir})
		d.sessions.Unregister(id)
		failed := &models.AnalysisOutcome{
			SessionID: id,
			Path:      dir,
			Status:    models.StatusError,
			StartedAt: start,
			Duration:  time.Since(start),
		}
		if serr := d.store.SaveAnalysis(context.Background(), failed); serr != nil {
			logger.Warn().Err(serr).Msg("failed to persist analysis failure")
		}
		d.eventBus.Publish(EventAnalysisFailed, AnalysisEventData{
			SessionID: id,
			Path:      d.validator.Display(dir),
			Status:    models.StatusError,
			Error:     err.Error(),
		})
		return
	}

	// The run may have been cancelled by shutdown, so persistence gets its
	// own context.
	if err := d.store.SaveAnalysis(context.Background(), out); err != nil {
		logger.Warn().Err(err).Msg("failed to persist analysis outcome")
	}

	event := EventAnalysisCompleted
	if out.Cancelled {
		event = EventAnalysisCancelled
	}
	d.eventBus.Publish(event, AnalysisEventData{
		SessionID:       id,
		Path:            d.validator.Display(dir),
		Status:          out.Status,
		TotalFiles:      out.TotalFiles,
		DuplicateGroups: len(out.DuplicateGroups),
		TotalWasted:     out.TotalWasted,
	})
}

// handleGetAnalysis returns the summary of a session and, once it has
// finished, the full outcome.
// GET /api/v1/analysis/{sessionID}
func (d *Daemon) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	summary, outcome, err := d.store.GetAnalysis(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		d.writeModelError(w, err, "failed to get analysis")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary": summary,
		"outcome": outcome,
	})
}

// handleCancelAnalysis requests cooperative cancellation. Sessions that are
// unknown or already finished yield 404.
// POST /api/v1/analysis/{sessionID}/cancel
func (d *Daemon) handleCancelAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := d.sessions.Cancel(id); err != nil {
		d.writeModelError(w, err, "failed to cancel analysis")
		return
	}

	d.logger.Info().Str("session_id", id).Msg("analysis cancellation requested")
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"session_id": id,
		"status":     "cancelling",
	})
}

func (d *Daemon) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	analyses, err := d.store.ListAnalyses(r.Context())
	if err != nil {
		d.writeModelError(w, err, "failed to list analyses")
		return
	}
	if analyses == nil {
		analyses = []*models.AnalysisSummary{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}
