package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/simpleflo/filescout/pkg/models"
)

// CreateSearchSession records a new running search.
func (s *Store) CreateSearchSession(ctx context.Context, sess *models.SearchSession) error {
	status := sess.Status
	if status == "" {
		status = models.StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_sessions (
			id, search_term, search_path, mode, case_sensitive, start_time, status
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.Term,
		sess.Path,
		sess.Mode,
		sess.CaseSensitive,
		sess.StartTime.UTC().Format(timeLayout),
		status,
	)
	if err != nil {
		return fmt.Errorf("create search session: %w", err)
	}
	return nil
}

// CheckpointSearch stores running counters for a session.
func (s *Store) CheckpointSearch(ctx context.Context, sessionID string, files, matches int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE search_sessions
		SET total_files_searched = ?, total_matches = ?
		WHERE id = ?
	`, files, matches, sessionID)
	if err != nil {
		return fmt.Errorf("checkpoint search: %w", err)
	}
	return nil
}

// SaveFileMatches stores one result row and its match details atomically.
func (s *Store) SaveFileMatches(ctx context.Context, sessionID string, fm *models.FileMatches) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO search_results (
			session_id, file_path, file_name, file_size, file_type, match_count,
			truncated, is_archive_member, archive_parent_path, preview_text, found_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sessionID,
		fm.Path,
		fm.Name,
		fm.Size,
		fm.FileType,
		fm.MatchCount,
		fm.Truncated,
		fm.ArchiveMember,
		nullString(fm.ArchiveParent),
		fm.Preview,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO match_details (
			result_id, line_number, line_content, match_position, context_before, context_after
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare match insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range fm.Matches {
		if _, err := stmt.ExecContext(ctx, resultID, m.Line, m.LineText, m.Column,
			nullString(m.ContextBefore), nullString(m.ContextAfter)); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
	}

	return tx.Commit()
}

// FinishSearch records the terminal status and final counters. A session
// can only be finished once.
func (s *Store) FinishSearch(ctx context.Context, sessionID string, status models.ScanStatus, files, matches int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current models.ScanStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM search_sessions WHERE id = ?`, sessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NewError(models.ErrSessionNotFound, "search session not found").WithDetails("session_id", sessionID)
	}
	if err != nil {
		return fmt.Errorf("get search status: %w", err)
	}
	if !models.IsValidTransition(current, status) {
		return models.NewError(models.ErrInvalidRequest, "invalid session status transition").
			WithDetails("session_id", sessionID).
			WithDetails("from", current).
			WithDetails("to", status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE search_sessions
		SET status = ?, total_files_searched = ?, total_matches = ?, end_time = ?
		WHERE id = ?
	`, status, files, matches, time.Now().UTC().Format(timeLayout), sessionID)
	if err != nil {
		return fmt.Errorf("finish search: %w", err)
	}

	return tx.Commit()
}

const sessionColumns = `
	id, search_term, search_path, mode, case_sensitive, start_time, end_time,
	total_files_searched, total_matches, status`

// GetSearchSession retrieves a session by ID.
func (s *Store) GetSearchSession(ctx context.Context, sessionID string) (*models.SearchSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM search_sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewError(models.ErrSessionNotFound, "search session not found").WithDetails("session_id", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get search session: %w", err)
	}
	return sess, nil
}

// ListSearchSessions returns sessions, newest first.
func (s *Store) ListSearchSessions(ctx context.Context) ([]*models.SearchSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM search_sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("list search sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.SearchSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// ListSearchResults returns a page of results for a session in insertion order.
func (s *Store) ListSearchResults(ctx context.Context, sessionID string, limit, offset int) ([]*models.SearchResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			id, session_id, file_path, file_name, file_size, file_type, match_count,
			truncated, is_archive_member, archive_parent_path, preview_text, found_at
		FROM search_results
		WHERE session_id = ?
		ORDER BY id
		LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list search results: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		var (
			r                models.SearchResult
			fileType, parent sql.NullString
			preview          sql.NullString
			foundAt          string
		)
		if err := rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.Path,
			&r.Name,
			&r.Size,
			&fileType,
			&r.MatchCount,
			&r.Truncated,
			&r.ArchiveMember,
			&parent,
			&preview,
			&foundAt,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.FileType = fileType.String
		r.ArchiveParent = parent.String
		r.Preview = preview.String
		r.FoundAt = parseTime(foundAt)
		results = append(results, &r)
	}
	return results, rows.Err()
}

// ListMatchDetails returns the stored matches of one result row.
func (s *Store) ListMatchDetails(ctx context.Context, resultID int64) ([]models.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_number, line_content, match_position, context_before, context_after
		FROM match_details
		WHERE result_id = ?
		ORDER BY id
	`, resultID)
	if err != nil {
		return nil, fmt.Errorf("list match details: %w", err)
	}
	defer rows.Close()

	matches := []models.MatchRecord{}
	for rows.Next() {
		var (
			m                   models.MatchRecord
			line, before, after sql.NullString
		)
		if err := rows.Scan(&m.Line, &line, &m.Column, &before, &after); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.LineText = line.String
		m.ContextBefore = before.String
		m.ContextAfter = after.String
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteSearchSession removes a session with its results and matches.
func (s *Store) DeleteSearchSession(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM search_sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete search session: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return models.NewError(models.ErrSessionNotFound, "search session not found").WithDetails("session_id", sessionID)
	}
	return nil
}

func scanSession(row rowScanner) (*models.SearchSession, error) {
	var (
		sess      models.SearchSession
		startTime string
		endTime   sql.NullString
	)
	err := row.Scan(
		&sess.ID,
		&sess.Term,
		&sess.Path,
		&sess.Mode,
		&sess.CaseSensitive,
		&startTime,
		&endTime,
		&sess.FilesSearched,
		&sess.TotalMatches,
		&sess.Status,
	)
	if err != nil {
		return nil, err
	}
	sess.StartTime = parseTime(startTime)
	sess.EndTime = parseNullTime(endTime)
	return &sess, nil
}
