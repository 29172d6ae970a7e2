// Package search runs pattern searches over a directory tree.
package search

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/simpleflo/filescout/internal/extract"
	"github.com/simpleflo/filescout/internal/match"
	"github.com/simpleflo/filescout/internal/observability"
	"github.com/simpleflo/filescout/internal/pathguard"
	"github.com/simpleflo/filescout/internal/walker"
	"github.com/simpleflo/filescout/pkg/models"
)

// Request describes one search run.
type Request struct {
	Term            string
	Path            string
	Mode            models.SearchMode
	CaseSensitive   bool
	IncludeArchives bool
}

// Options tunes the engine. Zero caps, radius and interval fall back to the
// defaults below; zero ContextLines disables context.
type Options struct {
	FileMatchCap       int
	MemberMatchCap     int
	ContextLines       int
	PreviewRadius      int
	CheckpointInterval int
}

const (
	defaultFileMatchCap       = 10
	defaultMemberMatchCap     = 5
	defaultPreviewRadius      = 100
	defaultCheckpointInterval = 100
)

// Engine orchestrates walking, extraction and matching. An Engine holds no
// per-run state and may serve concurrent runs.
type Engine struct {
	validator *pathguard.Validator
	walker    *walker.Walker
	dispatch  *extract.Dispatcher
	store     PersistenceSink
	opts      Options
	logger    zerolog.Logger
}

// NewEngine creates an engine. A nil store discards persistence calls.
func NewEngine(v *pathguard.Validator, w *walker.Walker, d *extract.Dispatcher, store PersistenceSink, opts Options) *Engine {
	if store == nil {
		store = nopPersistence{}
	}
	if opts.FileMatchCap <= 0 {
		opts.FileMatchCap = defaultFileMatchCap
	}
	if opts.MemberMatchCap <= 0 {
		opts.MemberMatchCap = defaultMemberMatchCap
	}
	if opts.PreviewRadius <= 0 {
		opts.PreviewRadius = defaultPreviewRadius
	}
	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = defaultCheckpointInterval
	}
	return &Engine{
		validator: v,
		walker:    w,
		dispatch:  d,
		store:     store,
		opts:      opts,
		logger:    observability.Logger("search"),
	}
}

// run is the mutable state of a single invocation.
type run struct {
	id       string
	req      Request
	root     string
	pattern  *match.Pattern
	progress ProgressSink
	logger   zerolog.Logger

	files   int
	matches int
	results []models.FileMatches
}

// Run validates the request, walks the tree and returns the outcome.
// Invalid roots or patterns fail before any traversal. Cancellation via
// ctx or a departed progress consumer ends the run with StatusCancelled
// and no error.
func (e *Engine) Run(ctx context.Context, req Request, progress ProgressSink) (out *models.SearchOutcome, err error) {
	if req.Mode == "" {
		req.Mode = models.ModeContent
	}
	root, err := e.validator.Stat(req.Path)
	if err != nil {
		return nil, err
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, models.Wrap(models.ErrPermissionDenied, "cannot read search root", err).
			WithDetails("path", req.Path)
	}
	pattern, err := match.Compile(req.Term, req.Mode, req.CaseSensitive)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		progress = nopProgress{}
	}

	r := &run{
		id:       uuid.New().String(),
		req:      req,
		root:     root,
		pattern:  pattern,
		progress: progress,
	}
	r.logger = observability.WithSessionID(e.logger, r.id)

	start := time.Now()
	session := &models.SearchSession{
		ID:            r.id,
		Term:          req.Term,
		Path:          root,
		Mode:          req.Mode,
		CaseSensitive: req.CaseSensitive,
		StartTime:     start,
		Status:        models.StatusRunning,
	}
	if err := e.store.CreateSearchSession(ctx, session); err != nil {
		return nil, models.Wrap(models.ErrInternal, "create search session", err)
	}

	observability.LogEvent(r.logger, observability.EventSearchStarted, map[string]interface{}{
		"path": root,
		"term": req.Term,
		"mode": string(req.Mode),
	})

	status := models.StatusRunning
	defer func() {
		if p := recover(); p != nil {
			status = models.StatusError
			err = models.NewError(models.ErrInternal, fmt.Sprintf("search aborted: %v", p))
			out = nil
			observability.LogError(r.logger, err, "search failed", map[string]interface{}{"path": root})
		}
		e.finish(r, status, start)
	}()

	status = e.walk(ctx, r)

	return &models.SearchOutcome{
		SessionID:     r.id,
		Term:          req.Term,
		Path:          root,
		Mode:          req.Mode,
		FilesSearched: r.files,
		TotalMatches:  r.matches,
		Results:       r.results,
		Status:        status,
		StartedAt:     start,
		Duration:      time.Since(start),
	}, nil
}

func (e *Engine) walk(ctx context.Context, r *run) models.ScanStatus {
	for entry := range e.walker.Files(r.root) {
		if ctx.Err() != nil {
			return models.StatusCancelled
		}
		if err := r.progress.Progress(Progress{
			CurrentFile:   e.validator.Display(entry.Path),
			FilesSearched: r.files,
		}); err != nil {
			r.logger.Info().Err(err).Msg("progress consumer gone, stopping search")
			return models.StatusCancelled
		}

		r.files++
		for _, fm := range e.examine(r, entry) {
			r.matches += fm.MatchCount
			r.results = append(r.results, fm)
			if err := e.store.SaveFileMatches(ctx, r.id, &fm); err != nil {
				r.logger.Warn().Err(err).Str("path", fm.Path).Msg("failed to persist file matches")
			}
		}

		if r.files%e.opts.CheckpointInterval == 0 {
			if err := e.store.CheckpointSearch(ctx, r.id, r.files, r.matches); err != nil {
				r.logger.Warn().Err(err).Int("files", r.files).Msg("checkpoint failed")
			}
		}
	}
	return models.StatusCompleted
}

// examine returns the match groups for one walked file. Per-file failures
// are logged and yield no groups.
func (e *Engine) examine(r *run, entry walker.Entry) []models.FileMatches {
	name := filepath.Base(entry.Path)
	size := entry.Info.Size()
	display := e.validator.Display(entry.Path)

	if r.req.Mode == models.ModeFilename {
		rec, ok := r.pattern.MatchName(name)
		if !ok {
			return nil
		}
		return []models.FileMatches{{
			Path:       display,
			Name:       name,
			Size:       size,
			FileType:   strings.ToLower(filepath.Ext(name)),
			MatchCount: 1,
			Preview:    name,
			Matches:    []models.MatchRecord{rec},
		}}
	}

	c := e.dispatch.Classify(entry.Path, size)
	if c.Kind == extract.KindUnsupported || (c.Kind.Archive() && !r.req.IncludeArchives) {
		return nil
	}

	var groups []models.FileMatches
	res := e.dispatch.Extract(entry.Path, c, func(m extract.Member) bool {
		if c.Kind.Archive() {
			if fm, ok := e.matchMember(r, display, m); ok {
				groups = append(groups, fm)
			}
			return true
		}
		if fm, ok := e.matchFile(r, display, size, c.Kind == extract.KindText, m.Text); ok {
			groups = append(groups, fm)
		}
		return true
	})
	if !res.OK() {
		r.logger.Warn().
			Err(res.Err).
			Str("path", entry.Path).
			Str("status", res.Status.String()).
			Msg("skipping file")
	}
	return groups
}

func (e *Engine) matchFile(r *run, filePath string, size int64, withContext bool, text string) (models.FileMatches, bool) {
	spans, truncated := r.pattern.Find(text, e.opts.FileMatchCap)
	if len(spans) == 0 {
		return models.FileMatches{}, false
	}
	contextLines := 0
	if withContext {
		contextLines = e.opts.ContextLines
	}
	name := filepath.Base(filePath)
	return models.FileMatches{
		Path:       filePath,
		Name:       name,
		Size:       size,
		FileType:   strings.ToLower(filepath.Ext(name)),
		MatchCount: len(spans),
		Truncated:  truncated,
		Preview:    match.Preview(text, spans[0].Start, e.opts.PreviewRadius),
		Matches:    match.Records(text, spans, contextLines),
	}, true
}

func (e *Engine) matchMember(r *run, archivePath string, m extract.Member) (models.FileMatches, bool) {
	spans, truncated := r.pattern.Find(m.Text, e.opts.MemberMatchCap)
	if len(spans) == 0 {
		return models.FileMatches{}, false
	}
	name := path.Base(m.Name)
	return models.FileMatches{
		Path:          archivePath + "/" + m.Name,
		Name:          name,
		Size:          m.Size,
		FileType:      strings.ToLower(path.Ext(name)),
		MatchCount:    len(spans),
		Truncated:     truncated,
		ArchiveMember: true,
		ArchiveParent: archivePath,
		Preview:       match.Preview(m.Text, spans[0].Start, e.opts.PreviewRadius),
		Matches:       match.Records(m.Text, spans, 0),
	}, true
}

func (e *Engine) finish(r *run, status models.ScanStatus, start time.Time) {
	elapsed := time.Since(start)

	// The caller's context may already be cancelled; the final status must
	// still be recorded.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.store.FinishSearch(ctx, r.id, status, r.files, r.matches); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record search completion")
	}

	r.progress.Complete(Summary{
		SessionID:     r.id,
		FilesSearched: r.files,
		TotalMatches:  r.matches,
		Status:        status,
		Duration:      elapsed,
	})

	event := observability.EventSearchCompleted
	switch status {
	case models.StatusCancelled:
		event = observability.EventSearchCancelled
	case models.StatusError:
		event = observability.EventSearchFailed
	}
	observability.LogEvent(r.logger, event, map[string]interface{}{
		"files_searched": r.files,
		"total_matches":  r.matches,
		"duration_ms":    elapsed.Milliseconds(),
	})
}
