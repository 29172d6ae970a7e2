package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/simpleflo/filescout/internal/search"
	"github.com/simpleflo/filescout/pkg/models"
)

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Term            string            `json:"search_term"`
	Path            string            `json:"search_path"`
	Mode            models.SearchMode `json:"mode,omitempty"`
	CaseSensitive   bool              `json:"case_sensitive"`
	IncludeArchives *bool             `json:"include_archives,omitempty"`
}

func (d *Daemon) searchRequest(req SearchRequest) search.Request {
	include := d.cfg.Scan.IncludeArchives
	if req.IncludeArchives != nil {
		include = *req.IncludeArchives
	}
	return search.Request{
		Term:            req.Term,
		Path:            req.Path,
		Mode:            req.Mode,
		CaseSensitive:   req.CaseSensitive,
		IncludeArchives: include,
	}
}

// handleSearch runs a search to completion and returns its outcome.
// POST /api/v1/search
func (d *Daemon) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrInvalidRequest, "invalid request body")
		return
	}

	out, err := d.engine.Run(r.Context(), d.searchRequest(req), nil)
	if err != nil {
		d.writeModelError(w, err, "search failed")
		return
	}
	if out.Results == nil {
		out.Results = []models.FileMatches{}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleSearchStream runs a search and streams its progress as SSE.
// GET /api/v1/search/stream?search_term=&search_path=&mode=&case_sensitive=&include_archives=
//
// Each examined file produces one "progress" event and the run ends with a
// single "complete" event. Requests rejected before the walk starts get a
// single "error" event carrying the error body. A client that disconnects
// cancels the run.
func (d *Daemon) handleSearchStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	include := queryBool(r, "include_archives", d.cfg.Scan.IncludeArchives)
	req := SearchRequest{
		Term:            q.Get("search_term"),
		Path:            q.Get("search_path"),
		Mode:            models.SearchMode(q.Get("mode")),
		CaseSensitive:   queryBool(r, "case_sensitive", false),
		IncludeArchives: &include,
	}

	flusher, ok := startSSE(w)
	if !ok {
		return
	}

	sink := &sseProgress{w: w, flusher: flusher, r: r}
	if _, err := d.engine.Run(r.Context(), d.searchRequest(req), sink); err != nil {
		var body interface{} = err
		if models.CodeOf(err) == "" {
			body = models.Wrap(models.ErrInternal, "search failed", err)
		}
		sink.send(EventSearchError, map[string]interface{}{"error": body})
	}
}
