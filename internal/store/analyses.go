package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/simpleflo/filescout/pkg/models"
)

// CreateAnalysis records an analysis that has started but not finished.
func (s *Store) CreateAnalysis(ctx context.Context, id, path string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_sessions (id, path, status, start_time)
		VALUES (?, ?, ?, ?)
	`, id, path, models.StatusRunning, startedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

// SaveAnalysis stores the final outcome of an analysis, creating the row
// if CreateAnalysis was never called.
func (s *Store) SaveAnalysis(ctx context.Context, out *models.AnalysisOutcome) error {
	if out.SessionID == "" {
		return models.NewError(models.ErrInternal, "analysis outcome has no session id")
	}
	if !out.Status.Terminal() {
		return models.NewError(models.ErrInvalidRequest, "analysis outcome must have a final status").
			WithDetails("status", out.Status)
	}
	blob, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}

	startedAt := out.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_sessions (
			id, path, status, total_files, total_size, duplicate_groups,
			total_wasted_space, start_time, end_time, outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_files = excluded.total_files,
			total_size = excluded.total_size,
			duplicate_groups = excluded.duplicate_groups,
			total_wasted_space = excluded.total_wasted_space,
			end_time = excluded.end_time,
			outcome = excluded.outcome
	`,
		out.SessionID,
		out.Path,
		out.Status,
		out.TotalFiles,
		out.TotalSize,
		len(out.DuplicateGroups),
		out.TotalWasted,
		startedAt.UTC().Format(timeLayout),
		time.Now().UTC().Format(timeLayout),
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the summary of an analysis and, once it has
// finished, its full outcome.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*models.AnalysisSummary, *models.AnalysisOutcome, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, status, total_files, total_size, duplicate_groups,
			total_wasted_space, start_time, end_time, outcome
		FROM analysis_sessions
		WHERE id = ?
	`, id)

	var blob sql.NullString
	summary, err := scanAnalysis(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, models.NewError(models.ErrSessionNotFound, "analysis not found").WithDetails("session_id", id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get analysis: %w", err)
	}

	if !blob.Valid {
		return summary, nil, nil
	}
	var out models.AnalysisOutcome
	if err := json.Unmarshal([]byte(blob.String), &out); err != nil {
		return nil, nil, fmt.Errorf("decode analysis: %w", err)
	}
	return summary, &out, nil
}

// ListAnalyses returns analysis summaries, newest first.
func (s *Store) ListAnalyses(ctx context.Context) ([]*models.AnalysisSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, status, total_files, total_size, duplicate_groups,
			total_wasted_space, start_time, end_time, NULL
		FROM analysis_sessions
		ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var summaries []*models.AnalysisSummary
	for rows.Next() {
		var blob sql.NullString
		summary, err := scanAnalysis(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

func scanAnalysis(row rowScanner, blob *sql.NullString) (*models.AnalysisSummary, error) {
	var (
		a         models.AnalysisSummary
		startTime string
		endTime   sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.Path,
		&a.Status,
		&a.TotalFiles,
		&a.TotalSize,
		&a.DuplicateGroups,
		&a.TotalWasted,
		&startTime,
		&endTime,
		blob,
	)
	if err != nil {
		return nil, err
	}
	a.StartTime = parseTime(startTime)
	a.EndTime = parseNullTime(endTime)
	return &a, nil
}
