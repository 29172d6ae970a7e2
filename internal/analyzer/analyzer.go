// Package analyzer produces a structural report of a directory tree:
// type and size histograms, empty directories and content duplicates.
//
// A run has two phases. Phase 1 walks the tree once on a single goroutine,
// collecting metadata and grouping files by exact size. Phase 2 hashes only
// the files whose size is shared with at least one other file, on a bounded
// worker pool. Files with a unique size can never be duplicates and are
// never opened.
package analyzer

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/simpleflo/filescout/internal/observability"
	"github.com/simpleflo/filescout/internal/pathguard"
	"github.com/simpleflo/filescout/internal/walker"
	"github.com/simpleflo/filescout/pkg/models"
)

// Sessions is the cancellation surface the analyzer needs.
// *cancel.Registry satisfies it.
type Sessions interface {
	Register(id string)
	Active(id string) bool
	IsCancelled(id string) bool
	Unregister(id string)
}

// Options are the per-run knobs.
type Options struct {
	FindDuplicates bool
	// MaxHashSizeMB excludes larger files from hashing. Zero means no limit.
	MaxHashSizeMB int64
	// MinSize and MaxSize bound the files considered, inclusive.
	// A zero MaxSize means unbounded.
	MinSize int64
	MaxSize int64
}

// Config holds process-wide tuning.
type Config struct {
	MaxWorkers        int
	SampleSize        int64
	FullHashThreshold int64
	CheckInterval     int
}

// DefaultConfig returns the tuning used when none is configured.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:        8,
		SampleSize:        64 * kb,
		FullHashThreshold: mb,
		CheckInterval:     100,
	}
}

// Analyzer runs directory analyses.
type Analyzer struct {
	validator *pathguard.Validator
	walker    *walker.Walker
	sessions  Sessions
	cfg       Config
	logger    zerolog.Logger
}

// New creates an analyzer. Zero fields in cfg take their defaults.
func New(v *pathguard.Validator, w *walker.Walker, sessions Sessions, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = def.MaxWorkers
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.FullHashThreshold <= 0 {
		cfg.FullHashThreshold = def.FullHashThreshold
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	return &Analyzer{
		validator: v,
		walker:    w,
		sessions:  sessions,
		cfg:       cfg,
		logger:    observability.Logger("analyzer"),
	}
}

// Run analyzes the directory named by root. The session is registered if
// the caller has not done so already and is always unregistered on return.
// Cancellation through the registry or ctx is not an error: the partial
// outcome is returned with Cancelled set.
func (a *Analyzer) Run(ctx context.Context, root string, opts Options, sessionID string) (*models.AnalysisOutcome, error) {
	dir, err := a.validator.Stat(root)
	if err != nil {
		return nil, err
	}

	if !a.sessions.Active(sessionID) {
		a.sessions.Register(sessionID)
	}
	defer a.sessions.Unregister(sessionID)

	logger := observability.WithSessionID(a.logger, sessionID)
	start := time.Now()
	observability.LogEvent(logger, observability.EventAnalysisStarted, map[string]interface{}{
		"path":            dir,
		"find_duplicates": opts.FindDuplicates,
	})

	out := &models.AnalysisOutcome{
		SessionID:        sessionID,
		Path:             dir,
		FileTypes:        make(map[string]models.TypeStats),
		SizeDistribution: sizeBuckets(),
		DuplicateGroups:  []models.DuplicateGroup{},
		EmptyDirectories: []string{},
		Files:            []models.FileRecord{},
		StartedAt:        start,
	}
	stop := func() bool {
		return ctx.Err() != nil || a.sessions.IsCancelled(sessionID)
	}

	bySize := a.collect(dir, opts, out, stop)
	if !out.Cancelled && opts.FindDuplicates {
		a.duplicates(out, bySize, opts, stop, logger)
	}

	out.Duration = time.Since(start)
	out.Status = models.StatusCompleted
	event := observability.EventAnalysisCompleted
	if out.Cancelled {
		out.Status = models.StatusCancelled
		event = observability.EventAnalysisCancelled
	}
	observability.LogEvent(logger, event, map[string]interface{}{
		"total_files":      out.TotalFiles,
		"total_size":       humanize.IBytes(uint64(out.TotalSize)),
		"hashed_files":     out.HashedFiles,
		"duplicate_groups": len(out.DuplicateGroups),
		"wasted":           humanize.IBytes(uint64(out.TotalWasted)),
		"duration_ms":      out.Duration.Milliseconds(),
	})
	return out, nil
}

// collect is phase 1. It returns file indices grouped by size.
func (a *Analyzer) collect(dir string, opts Options, out *models.AnalysisOutcome, stop func() bool) map[int64][]int {
	bySize := make(map[int64][]int)

	for entry := range a.walker.All(dir) {
		if entry.Dir {
			if stop() {
				out.Cancelled = true
				break
			}
			if entry.Children == 0 && entry.Rel != "." {
				out.EmptyDirectories = append(out.EmptyDirectories, entry.Rel)
			}
			continue
		}

		if out.TotalFiles > 0 && out.TotalFiles%a.cfg.CheckInterval == 0 && stop() {
			out.Cancelled = true
			break
		}

		size := entry.Info.Size()
		if size < opts.MinSize || (opts.MaxSize > 0 && size > opts.MaxSize) {
			continue
		}

		name := filepath.Base(entry.Path)
		ext := typeKey(name)
		out.Files = append(out.Files, models.FileRecord{
			Path:       entry.Rel,
			Name:       name,
			Size:       size,
			Extension:  ext,
			MimeType:   mimeType(ext),
			ModifiedAt: entry.Info.ModTime(),
		})
		out.TotalFiles++
		out.TotalSize += size

		ts := out.FileTypes[ext]
		ts.Count++
		ts.TotalSize += size
		out.FileTypes[ext] = ts
		addToBucket(out.SizeDistribution, size)

		bySize[size] = append(bySize[size], len(out.Files)-1)
	}
	return bySize
}

// candidates flattens the size buckets that can hold duplicates into hash
// jobs, ordered by size for a deterministic submission order.
func (a *Analyzer) candidates(out *models.AnalysisOutcome, bySize map[int64][]int, opts Options) []hashJob {
	limit := opts.MaxHashSizeMB * mb
	sizes := make([]int64, 0, len(bySize))
	for size, idx := range bySize {
		if len(idx) < 2 || (limit > 0 && size > limit) {
			continue
		}
		sizes = append(sizes, size)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	var jobs []hashJob
	for _, size := range sizes {
		for _, i := range bySize[size] {
			jobs = append(jobs, hashJob{
				index: i,
				path:  filepath.Join(out.Path, out.Files[i].Path),
				size:  size,
			})
		}
	}
	return jobs
}

// duplicates is phase 2.
func (a *Analyzer) duplicates(out *models.AnalysisOutcome, bySize map[int64][]int, opts Options, stop func() bool, logger zerolog.Logger) {
	jobs := a.candidates(out, bySize, opts)
	if len(jobs) == 0 {
		return
	}

	s := sampler{sampleSize: a.cfg.SampleSize, fullThreshold: a.cfg.FullHashThreshold}
	pool := newHashPool(poolSize(a.cfg.MaxWorkers), len(jobs), s)
	for _, job := range jobs {
		if stop() {
			out.Cancelled = true
			break
		}
		pool.submit(job)
	}
	pool.close()
	// On cancellation only the results already posted are used; in-flight
	// digests finish in the background and are dropped.
	if !out.Cancelled {
		pool.wait()
	}

	type groupKey struct {
		size int64
		hash string
	}
	byHash := make(map[groupKey][]int)
	for _, r := range pool.drain() {
		if r.err != nil {
			logger.Warn().Err(r.err).Str("path", out.Files[r.index].Path).Msg("skipping unhashable file")
			continue
		}
		out.Files[r.index].Hash = r.hash
		out.HashedFiles++
		key := groupKey{size: out.Files[r.index].Size, hash: r.hash}
		byHash[key] = append(byHash[key], r.index)
	}

	for key, idx := range byHash {
		if len(idx) < 2 {
			continue
		}
		size := key.size
		paths := make([]string, len(idx))
		for i, fi := range idx {
			paths[i] = out.Files[fi].Path
		}
		sort.Strings(paths)
		g := models.DuplicateGroup{
			Hash:        key.hash,
			Size:        size,
			Count:       len(idx),
			WastedSpace: size * int64(len(idx)-1),
			Files:       paths,
		}
		out.DuplicateGroups = append(out.DuplicateGroups, g)
		out.TotalWasted += g.WastedSpace
	}
	sortGroups(out.DuplicateGroups)
}
