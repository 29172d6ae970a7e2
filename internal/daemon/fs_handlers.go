package daemon

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/simpleflo/filescout/internal/observability"
	"github.com/simpleflo/filescout/internal/policy"
	"github.com/simpleflo/filescout/pkg/models"
)

// DirEntry is one row of a directory listing.
type DirEntry struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// handleListDirectory lists the immediate children of a directory.
// GET /api/v1/fs/list?path=
func (d *Daemon) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	dir, err := d.validator.Stat(r.URL.Query().Get("path"))
	if err != nil {
		d.writeModelError(w, err, "invalid path")
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		d.writeModelError(w, fsError(err, dir, "cannot read directory"), "failed to list directory")
		return
	}

	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entry := DirEntry{
			Name:     e.Name(),
			Path:     d.validator.Display(filepath.Join(dir, e.Name())),
			IsDir:    e.IsDir(),
			Modified: info.ModTime(),
		}
		if !e.IsDir() {
			entry.Size = info.Size()
		}
		out = append(out, entry)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":    d.validator.Display(dir),
		"entries": out,
		"count":   len(out),
	})
}

// handleDeletePath removes a file or an empty directory. The base directory
// itself is never removed.
// DELETE /api/v1/fs?path=
func (d *Daemon) handleDeletePath(w http.ResponseWriter, r *http.Request) {
	target, err := d.validator.ValidatePath(r.URL.Query().Get("path"))
	if err != nil {
		d.writeModelError(w, err, "invalid path")
		return
	}
	if target == d.validator.Base() {
		writeError(w, http.StatusBadRequest, models.ErrInvalidPath, "cannot delete the base directory")
		return
	}

	info, err := os.Lstat(target)
	if err != nil {
		d.writeModelError(w, fsError(err, target, "cannot access path"), "failed to stat path")
		return
	}

	decision := d.policy.Evaluate(policy.Request{
		Action: policy.ActionDelete,
		Path:   target,
		IsDir:  info.IsDir(),
		Actor:  "api",
	})
	if !decision.Allowed() {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"error": models.NewError(models.ErrPermissionDenied, decision.Reason).
				WithDetails("block_reasons", decision.BlockReasons).
				WithDetails("decision_id", decision.DecisionID),
		})
		return
	}

	isDir := info.IsDir()
	if isDir {
		entries, err := os.ReadDir(target)
		if err != nil {
			d.writeModelError(w, fsError(err, target, "cannot read directory"), "failed to read directory")
			return
		}
		if len(entries) > 0 {
			writeError(w, http.StatusConflict, models.ErrInvalidRequest, "directory is not empty")
			return
		}
	}

	if err := os.Remove(target); err != nil {
		d.writeModelError(w, fsError(err, target, "cannot delete path"), "failed to delete path")
		return
	}

	display := d.validator.Display(target)
	observability.LogEvent(d.logger, observability.EventPathDeleted, map[string]interface{}{
		"path":   display,
		"is_dir": isDir,
	})
	d.eventBus.Publish(EventPathDeleted, PathDeletedData{Path: display, IsDir: isDir})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"path":     display,
		"is_dir":   isDir,
		"deleted":  true,
		"warnings": decision.Warnings,
	})
}

// fsError classifies an os error into a model error.
func fsError(err error, path, msg string) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return models.NewError(models.ErrPathNotFound, "path does not exist").WithDetails("path", path)
	case errors.Is(err, os.ErrPermission):
		return models.Wrap(models.ErrPermissionDenied, msg, err).WithDetails("path", path)
	default:
		return models.Wrap(models.ErrInternal, msg, err)
	}
}
