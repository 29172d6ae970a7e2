package search

import (
	"context"
	"errors"
	"time"

	"github.com/simpleflo/filescout/pkg/models"
)

// ErrConsumerGone is returned by a ProgressSink whose reader has left.
var ErrConsumerGone = errors.New("progress consumer gone")

// Progress is emitted before each file is examined.
type Progress struct {
	CurrentFile   string `json:"current_file"`
	FilesSearched int    `json:"files_searched"`
}

// Summary is emitted once when a run ends.
type Summary struct {
	SessionID     string            `json:"session_id"`
	FilesSearched int               `json:"total_files"`
	TotalMatches  int               `json:"total_matches"`
	Status        models.ScanStatus `json:"status"`
	Duration      time.Duration     `json:"duration"`
}

// ProgressSink receives live progress. A non-nil error from Progress means
// nobody is listening any more and the run stops as cancelled.
type ProgressSink interface {
	Progress(p Progress) error
	Complete(s Summary)
}

// PersistenceSink records a run as it happens. Failures are logged by the
// engine and never stop the scan.
type PersistenceSink interface {
	CreateSearchSession(ctx context.Context, s *models.SearchSession) error
	CheckpointSearch(ctx context.Context, sessionID string, files, matches int) error
	SaveFileMatches(ctx context.Context, sessionID string, fm *models.FileMatches) error
	FinishSearch(ctx context.Context, sessionID string, status models.ScanStatus, files, matches int) error
}

// ProgressFunc adapts a function to a ProgressSink with no completion hook.
type ProgressFunc func(p Progress) error

func (f ProgressFunc) Progress(p Progress) error { return f(p) }

func (f ProgressFunc) Complete(Summary) {}

type nopProgress struct{}

func (nopProgress) Progress(Progress) error { return nil }
func (nopProgress) Complete(Summary)        {}

type nopPersistence struct{}

func (nopPersistence) CreateSearchSession(context.Context, *models.SearchSession) error {
	return nil
}

func (nopPersistence) CheckpointSearch(context.Context, string, int, int) error {
	return nil
}

func (nopPersistence) SaveFileMatches(context.Context, string, *models.FileMatches) error {
	return nil
}

func (nopPersistence) FinishSearch(context.Context, string, models.ScanStatus, int, int) error {
	return nil
}
