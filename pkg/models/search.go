package models

import "time"

// SearchMode selects what a search pattern is matched against.
type SearchMode string

const (
	// ModeContent matches the term literally against file contents.
	ModeContent SearchMode = "content"
	// ModeFilename matches a wildcard or substring pattern against file names.
	ModeFilename SearchMode = "filename"
)

// ScanStatus is the terminal state of a search or analysis run.
type ScanStatus string

const (
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusCancelled ScanStatus = "cancelled"
	StatusError     ScanStatus = "error"
)

// ValidTransitions defines the status changes a run may go through.
var ValidTransitions = map[ScanStatus][]ScanStatus{
	StatusRunning:   {StatusCompleted, StatusCancelled, StatusError},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusError:     {},
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to ScanStatus) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s ScanStatus) Terminal() bool {
	allowed, ok := ValidTransitions[s]
	return ok && len(allowed) == 0
}

// MatchRecord is a single occurrence of the pattern inside a file.
// Line is 1-based for content matches and 0 for filename matches.
// Column is a 0-based character offset within the line.
type MatchRecord struct {
	Line          int    `json:"line_number"`
	Column        int    `json:"match_position"`
	LineText      string `json:"line_content"`
	ContextBefore string `json:"context_before,omitempty"`
	ContextAfter  string `json:"context_after,omitempty"`
}

// FileMatches groups the matches found in one file or archive member.
// Path and ArchiveParent are rooted at the base directory, the same form
// progress notifications use.
// MatchCount never exceeds the applicable cap; when Truncated is set it is
// a lower bound on the real number of occurrences.
type FileMatches struct {
	Path          string        `json:"file_path"`
	Name          string        `json:"file_name"`
	Size          int64         `json:"file_size"`
	FileType      string        `json:"file_type"`
	MatchCount    int           `json:"match_count"`
	Truncated     bool          `json:"truncated,omitempty"`
	ArchiveMember bool          `json:"is_archive_member"`
	ArchiveParent string        `json:"archive_parent_path,omitempty"`
	Preview       string        `json:"preview_text"`
	Matches       []MatchRecord `json:"matches"`
}

// SearchOutcome is the aggregate result of one search run.
type SearchOutcome struct {
	SessionID     string        `json:"session_id"`
	Term          string        `json:"search_term"`
	Path          string        `json:"search_path"`
	Mode          SearchMode    `json:"mode"`
	FilesSearched int           `json:"total_files_searched"`
	TotalMatches  int           `json:"total_matches"`
	Results       []FileMatches `json:"results"`
	Status        ScanStatus    `json:"status"`
	StartedAt     time.Time     `json:"start_time"`
	Duration      time.Duration `json:"duration"`
}

// SearchSession is the persisted view of a search run.
type SearchSession struct {
	ID            string     `json:"id"`
	Term          string     `json:"search_term"`
	Path          string     `json:"search_path"`
	Mode          SearchMode `json:"mode"`
	CaseSensitive bool       `json:"case_sensitive"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	FilesSearched int        `json:"total_files_searched"`
	TotalMatches  int        `json:"total_matches"`
	Status        ScanStatus `json:"status"`
}

// SearchResult is the persisted view of one FileMatches row.
type SearchResult struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Path          string    `json:"file_path"`
	Name          string    `json:"file_name"`
	Size          int64     `json:"file_size"`
	FileType      string    `json:"file_type"`
	MatchCount    int       `json:"match_count"`
	Truncated     bool      `json:"truncated,omitempty"`
	ArchiveMember bool      `json:"is_archive_member"`
	ArchiveParent string    `json:"archive_parent_path,omitempty"`
	Preview       string    `json:"preview_text"`
	FoundAt       time.Time `json:"found_at"`
}
