package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/simpleflo/filescout/pkg/models"
)

// Response helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code models.ErrorCode, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

// statusFor maps an error code to its HTTP status.
func statusFor(code models.ErrorCode) int {
	switch code {
	case models.ErrInvalidPath, models.ErrInvalidPattern, models.ErrNotADirectory, models.ErrConfigInvalid, models.ErrInvalidRequest:
		return http.StatusBadRequest
	case models.ErrPathNotFound, models.ErrNotFound, models.ErrSessionNotFound:
		return http.StatusNotFound
	case models.ErrPermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeModelError renders err using its code. Errors without a code are
// logged and reported as internal.
func (d *Daemon) writeModelError(w http.ResponseWriter, err error, msg string) {
	var e *models.Error
	if errors.As(err, &e) && e.Code != models.ErrInternal {
		writeJSON(w, statusFor(e.Code), map[string]interface{}{"error": e})
		return
	}
	d.logger.Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, models.ErrInternal, msg)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func queryBool(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Health endpoints

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{
		"database": "ok",
	}

	if err := d.store.Health(r.Context()); err != nil {
		status = "unhealthy"
		checks["database"] = err.Error()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (d *Daemon) handleReady(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !d.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"ready":     d.Ready(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus returns the overall daemon status.
func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	startTime := d.startTime
	d.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"daemon": map[string]interface{}{
			"version":    Version,
			"build_time": BuildTime,
			"uptime":     time.Since(startTime).Truncate(time.Second).String(),
			"ready":      d.Ready(),
		},
		"base_dir":        d.validator.Base(),
		"active_analyses": d.sessions.Len(),
		"subscribers":     d.eventBus.SubscriberCount(),
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

// Session endpoints

func (d *Daemon) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := d.store.ListSearchSessions(r.Context())
	if err != nil {
		d.writeModelError(w, err, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.SearchSession{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (d *Daemon) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := d.store.GetSearchSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		d.writeModelError(w, err, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (d *Daemon) handleListResults(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if _, err := d.store.GetSearchSession(r.Context(), sessionID); err != nil {
		d.writeModelError(w, err, "failed to get session")
		return
	}

	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	results, err := d.store.ListSearchResults(r.Context(), sessionID, limit, offset)
	if err != nil {
		d.writeModelError(w, err, "failed to list results")
		return
	}
	if results == nil {
		results = []*models.SearchResult{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"count":   len(results),
		"limit":   limit,
		"offset":  offset,
	})
}

func (d *Daemon) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := d.store.DeleteSearchSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		d.writeModelError(w, err, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleListMatches(w http.ResponseWriter, r *http.Request) {
	resultID, err := strconv.ParseInt(chi.URLParam(r, "resultID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInvalidRequest, "invalid result id")
		return
	}

	matches, err := d.store.ListMatchDetails(r.Context(), resultID)
	if err != nil {
		d.writeModelError(w, err, "failed to list matches")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}
