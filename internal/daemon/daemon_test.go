package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleflo/filescout/internal/config"
	"github.com/simpleflo/filescout/internal/policy"
	"github.com/simpleflo/filescout/pkg/models"
)

// newTestDaemon builds a daemon over a fresh data dir and base dir. The
// daemon is not started; handlers are driven through Handler().
func newTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()

	base := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Scan.BaseDir = base
	cfg.API.Address = "127.0.0.1:0"

	d, err := New(cfg)
	if err != nil {
		// go-sqlite3 needs cgo.
		if strings.Contains(err.Error(), "cgo") {
			t.Skip("sqlite3 unavailable, skipping test")
		}
		require.NoError(t, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d, base
}

func writeFile(t *testing.T, base, rel, content string) string {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func do(t *testing.T, d *Daemon, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorCode {
	t.Helper()
	var body struct {
		Error struct {
			Code models.ErrorCode `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

func TestHandleHealth(t *testing.T) {
	d, _ := newTestDaemon(t)

	rec := do(t, d, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleReady_NotStarted(t *testing.T) {
	d, _ := newTestDaemon(t)

	rec := do(t, d, http.MethodGet, "/api/v1/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	d, base := newTestDaemon(t)

	rec := do(t, d, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, base, body["base_dir"])
	assert.EqualValues(t, 0, body["active_analyses"])
}

func TestHandleSearch(t *testing.T) {
	d, base := newTestDaemon(t)
	writeFile(t, base, "notes/a.txt", "first line\nhello needle world\nlast line\n")
	writeFile(t, base, "notes/b.txt", "nothing here\n")

	rec := do(t, d, http.MethodPost, "/api/v1/search", SearchRequest{Term: "needle", Path: "notes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out models.SearchOutcome
	decode(t, rec, &out)
	assert.Equal(t, models.StatusCompleted, out.Status)
	assert.Equal(t, 2, out.FilesSearched)
	assert.Equal(t, 1, out.TotalMatches)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "a.txt", out.Results[0].Name)
	assert.Equal(t, "/notes/a.txt", out.Results[0].Path)
	assert.Equal(t, 2, out.Results[0].Matches[0].Line)
	assert.NotEmpty(t, out.SessionID)
}

func TestHandleSearch_Errors(t *testing.T) {
	d, base := newTestDaemon(t)
	writeFile(t, base, "file.txt", "x")

	tests := []struct {
		name   string
		req    SearchRequest
		status int
		code   models.ErrorCode
	}{
		{"traversal", SearchRequest{Term: "x", Path: "../etc"}, http.StatusBadRequest, models.ErrInvalidPath},
		{"missing", SearchRequest{Term: "x", Path: "nope"}, http.StatusNotFound, models.ErrPathNotFound},
		{"not a directory", SearchRequest{Term: "x", Path: "file.txt"}, http.StatusBadRequest, models.ErrNotADirectory},
		{"empty term", SearchRequest{Term: "", Path: ""}, http.StatusBadRequest, models.ErrInvalidPattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, d, http.MethodPost, "/api/v1/search", tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestHandleSearch_BadBody(t *testing.T) {
	d, _ := newTestDaemon(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	d.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrInvalidRequest, errorCode(t, rec))
}

func TestHandleSearchStream(t *testing.T) {
	d, base := newTestDaemon(t)
	writeFile(t, base, "notes/a.txt", "needle\n")
	writeFile(t, base, "notes/b.txt", "hay\n")

	rec := do(t, d, http.MethodGet, "/api/v1/search/stream?search_term=needle&search_path=notes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: progress\n"))
	assert.Equal(t, 1, strings.Count(body, "event: complete\n"))
	assert.Contains(t, body, `"total_matches":1`)
	assert.Contains(t, body, `"status":"completed"`)
}

func TestHandleSearchStream_ErrorEvent(t *testing.T) {
	d, _ := newTestDaemon(t)

	rec := do(t, d, http.MethodGet, "/api/v1/search/stream?search_term=x&search_path=../etc", nil)
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, string(models.ErrInvalidPath))
	assert.NotContains(t, body, "event: progress")
}

func TestSessionEndpoints(t *testing.T) {
	d, base := newTestDaemon(t)
	writeFile(t, base, "a.txt", "one needle\ntwo needle\n")

	rec := do(t, d, http.MethodPost, "/api/v1/search", SearchRequest{Term: "needle"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out models.SearchOutcome
	decode(t, rec, &out)

	// List
	rec = do(t, d, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []models.SearchSession `json:"sessions"`
		Count    int                    `json:"count"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, out.SessionID, list.Sessions[0].ID)

	// Get
	rec = do(t, d, http.MethodGet, "/api/v1/sessions/"+out.SessionID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess models.SearchSession
	decode(t, rec, &sess)
	assert.Equal(t, models.StatusCompleted, sess.Status)
	assert.Equal(t, 2, sess.TotalMatches)

	// Results
	rec = do(t, d, http.MethodGet, "/api/v1/sessions/"+out.SessionID+"/results?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results struct {
		Results []models.SearchResult `json:"results"`
	}
	decode(t, rec, &results)
	require.Len(t, results.Results, 1)
	assert.Equal(t, 2, results.Results[0].MatchCount)

	// Matches
	rec = do(t, d, http.MethodGet, fmt.Sprintf("/api/v1/results/%d/matches", results.Results[0].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var matches struct {
		Matches []models.MatchRecord `json:"matches"`
	}
	decode(t, rec, &matches)
	require.Len(t, matches.Matches, 2)
	assert.Equal(t, 1, matches.Matches[0].Line)
	assert.Equal(t, 2, matches.Matches[1].Line)

	// Delete
	rec = do(t, d, http.MethodDelete, "/api/v1/sessions/"+out.SessionID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, d, http.MethodGet, "/api/v1/sessions/"+out.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ErrSessionNotFound, errorCode(t, rec))

	rec = do(t, d, http.MethodDelete, "/api/v1/sessions/"+out.SessionID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListMatches_BadID(t *testing.T) {
	d, _ := newTestDaemon(t)

	rec := do(t, d, http.MethodGet, "/api/v1/results/abc/matches", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type analysisResponse struct {
	Summary *models.AnalysisSummary `json:"summary"`
	Outcome *models.AnalysisOutcome `json:"outcome"`
}

func TestAnalysisLifecycle(t *testing.T) {
	d, base := newTestDaemon(t)
	writeFile(t, base, "x/one.bin", "duplicate payload")
	writeFile(t, base, "y/two.bin", "duplicate payload")
	writeFile(t, base, "z/three.txt", "unique")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "empty"), 0755))

	_, events := d.eventBus.Subscribe()

	rec := do(t, d, http.MethodPost, "/api/v1/analysis", AnalysisRequest{})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var started struct {
		SessionID string `json:"session_id"`
	}
	decode(t, rec, &started)
	require.NotEmpty(t, started.SessionID)

	var got analysisResponse
	require.Eventually(t, func() bool {
		rec := do(t, d, http.MethodGet, "/api/v1/analysis/"+started.SessionID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		got = analysisResponse{}
		decode(t, rec, &got)
		return got.Summary.Status != models.StatusRunning
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.StatusCompleted, got.Summary.Status)
	assert.Equal(t, 3, got.Summary.TotalFiles)
	assert.Equal(t, 1, got.Summary.DuplicateGroups)
	require.NotNil(t, got.Outcome)
	require.Len(t, got.Outcome.DuplicateGroups, 1)
	assert.Equal(t, []string{"x/one.bin", "y/two.bin"}, got.Outcome.DuplicateGroups[0].Files)
	assert.Equal(t, []string{"empty"}, got.Outcome.EmptyDirectories)

	// Started then completed on the bus.
	var types []EventType
	timeout := time.After(2 * time.Second)
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-timeout:
			t.Fatalf("events received: %v", types)
		}
	}
	assert.Equal(t, []EventType{EventAnalysisStarted, EventAnalysisCompleted}, types)

	rec = do(t, d, http.MethodGet, "/api/v1/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)

	// Finished sessions are no longer cancellable.
	rec = do(t, d, http.MethodPost, "/api/v1/analysis/"+started.SessionID+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleStartAnalysis_Errors(t *testing.T) {
	d, _ := newTestDaemon(t)

	tests := []struct {
		name   string
		req    AnalysisRequest
		status int
		code   models.ErrorCode
	}{
		{"traversal", AnalysisRequest{Path: "../x"}, http.StatusBadRequest, models.ErrInvalidPath},
		{"missing", AnalysisRequest{Path: "missing"}, http.StatusNotFound, models.ErrPathNotFound},
		{"negative size", AnalysisRequest{MinSize: -1}, http.StatusBadRequest, models.ErrInvalidRequest},
		{"min above max", AnalysisRequest{MinSize: 10, MaxSize: 5}, http.StatusBadRequest, models.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, d, http.MethodPost, "/api/v1/analysis", tt.req)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
	assert.Equal(t, 0, d.sessions.Len())
}

func TestHandleCancelAnalysis(t *testing.T) {
	d, _ := newTestDaemon(t)

	rec := do(t, d, http.MethodPost, "/api/v1/analysis/unknown/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.ErrSessionNotFound, errorCode(t, rec))

	d.sessions.Register("live")
	rec = do(t, d, http.MethodPost, "/api/v1/analysis/live/cancel", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, d.sessions.IsCancelled("live"))
}

func TestHandleGetAnalysis_NotFound(t *testing.T) {
	d, _ := newTestDaemon(t)

	rec := do(t, d, http.MethodGet, "/api/v1/analysis/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListDirectory(t *testing.T) {
	d, base := newTestDaemon(t)
	writeFile(t, base, "docs/a.txt", "12345")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "docs", "sub"), 0755))

	rec := do(t, d, http.MethodGet, "/api/v1/fs/list?path=docs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Path    string     `json:"path"`
		Entries []DirEntry `json:"entries"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "/docs", body.Path)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, DirEntry{Name: "a.txt", Path: "/docs/a.txt", Size: 5, Modified: body.Entries[0].Modified}, body.Entries[0])
	assert.Equal(t, "sub", body.Entries[1].Name)
	assert.True(t, body.Entries[1].IsDir)

	rec = do(t, d, http.MethodGet, "/api/v1/fs/list?path=docs/a.txt", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ErrNotADirectory, errorCode(t, rec))
}

func TestHandleDeletePath(t *testing.T) {
	d, base := newTestDaemon(t)
	file := writeFile(t, base, "trash/old.log", "bye")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "hollow"), 0755))

	_, events := d.eventBus.Subscribe()

	// Non-empty directories are refused.
	rec := do(t, d, http.MethodDelete, "/api/v1/fs?path=trash", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, d, http.MethodDelete, "/api/v1/fs?path=trash/old.log", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoFileExists(t, file)

	select {
	case ev := <-events:
		assert.Equal(t, EventPathDeleted, ev.Type)
		var data PathDeletedData
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, PathDeletedData{Path: "/trash/old.log"}, data)
	case <-time.After(time.Second):
		t.Fatal("no path_deleted event")
	}

	rec = do(t, d, http.MethodDelete, "/api/v1/fs?path=hollow", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NoDirExists(t, filepath.Join(base, "hollow"))

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"base", "", http.StatusBadRequest},
		{"base absolute", base, http.StatusBadRequest},
		{"missing", "gone.txt", http.StatusNotFound},
		{"traversal", "../outside", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, d, http.MethodDelete, "/api/v1/fs?path="+tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
	assert.DirExists(t, base)
}

func TestHandleDeletePath_Protected(t *testing.T) {
	d, base := newTestDaemon(t)
	kept := writeFile(t, base, "keep/ledger.csv", "1,2,3")
	d.policy = policy.NewWithHome("", []string{filepath.Join(base, "keep")})

	rec := do(t, d, http.MethodDelete, "/api/v1/fs?path=keep/ledger.csv", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, models.ErrPermissionDenied, errorCode(t, rec))
	assert.FileExists(t, kept)

	writeFile(t, base, ".cache", "x")
	rec = do(t, d, http.MethodDelete, "/api/v1/fs?path=.cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Warnings []string `json:"warnings"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Warnings, 1)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code models.ErrorCode
		want int
	}{
		{models.ErrInvalidPath, http.StatusBadRequest},
		{models.ErrInvalidPattern, http.StatusBadRequest},
		{models.ErrNotADirectory, http.StatusBadRequest},
		{models.ErrInvalidRequest, http.StatusBadRequest},
		{models.ErrPathNotFound, http.StatusNotFound},
		{models.ErrSessionNotFound, http.StatusNotFound},
		{models.ErrNotFound, http.StatusNotFound},
		{models.ErrPermissionDenied, http.StatusForbidden},
		{models.ErrExtractionFailed, http.StatusInternalServerError},
		{models.ErrInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.code))
		})
	}
}

func TestStartStop(t *testing.T) {
	d, _ := newTestDaemon(t)

	require.NoError(t, d.Start(context.Background()))
	assert.True(t, d.Ready())
	assert.Error(t, d.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	assert.False(t, d.Ready())
}

func TestStart_SecondInstance(t *testing.T) {
	d, _ := newTestDaemon(t)

	other := flock.New(d.cfg.LockPath())
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	assert.ErrorIs(t, d.Start(context.Background()), ErrAlreadyRunning)
	assert.False(t, d.Ready())
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus(2)

	id, ch := bus.Subscribe()
	require.NotNil(t, ch)
	assert.Equal(t, 1, bus.SubscriberCount())

	require.NoError(t, bus.Publish(EventPathDeleted, PathDeletedData{Path: "/a"}))
	require.NoError(t, bus.Publish(EventPathDeleted, PathDeletedData{Path: "/b"}))
	// Buffer full: dropped, not blocked.
	require.NoError(t, bus.Publish(EventPathDeleted, PathDeletedData{Path: "/c"}))

	first := <-ch
	second := <-ch
	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)
	assert.Empty(t, ch)

	bus.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())

	_, ch2 := bus.Subscribe()
	bus.Close()
	_, open = <-ch2
	assert.False(t, open)

	_, ch3 := bus.Subscribe()
	assert.Nil(t, ch3)
	assert.NoError(t, bus.Publish(EventShutdown, nil))
}
