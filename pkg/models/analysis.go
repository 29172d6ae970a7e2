package models

import "time"

// FileRecord describes one regular file seen by the analyzer.
// Hash is empty unless the file shared its size with another file and was
// hashed in the second phase.
type FileRecord struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Extension  string    `json:"extension"`
	MimeType   string    `json:"mime_type"`
	ModifiedAt time.Time `json:"modified_at"`
	Hash       string    `json:"hash,omitempty"`
}

// DuplicateGroup is a set of files with the same size and sampled digest.
type DuplicateGroup struct {
	Hash        string   `json:"hash"`
	Size        int64    `json:"size"`
	Count       int      `json:"count"`
	WastedSpace int64    `json:"wasted_space"`
	Files       []string `json:"files"`
}

// TypeStats aggregates files sharing an extension.
type TypeStats struct {
	Count     int   `json:"count"`
	TotalSize int64 `json:"total_size"`
}

// SizeBucket is one bar of the size histogram.
type SizeBucket struct {
	Label string `json:"label"`
	Min   int64  `json:"min"`
	Max   int64  `json:"max"` // exclusive; 0 means unbounded
	Count int    `json:"count"`
	Size  int64  `json:"total_size"`
}

// AnalysisOutcome is the result of a directory analysis run.
type AnalysisOutcome struct {
	SessionID        string               `json:"session_id,omitempty"`
	Path             string               `json:"path"`
	TotalFiles       int                  `json:"total_files"`
	TotalSize        int64                `json:"total_size"`
	HashedFiles      int                  `json:"hashed_files"`
	FileTypes        map[string]TypeStats `json:"file_types"`
	SizeDistribution []SizeBucket         `json:"size_distribution"`
	DuplicateGroups  []DuplicateGroup     `json:"duplicate_groups"`
	TotalWasted      int64                `json:"total_wasted_space"`
	EmptyDirectories []string             `json:"empty_directories"`
	Files            []FileRecord         `json:"files"`
	Cancelled        bool                 `json:"cancelled"`
	Status           ScanStatus           `json:"status"`
	StartedAt        time.Time            `json:"start_time"`
	Duration         time.Duration        `json:"duration"`
}

// AnalysisSummary is the persisted header of an analysis run.
type AnalysisSummary struct {
	ID              string     `json:"id"`
	Path            string     `json:"path"`
	Status          ScanStatus `json:"status"`
	TotalFiles      int        `json:"total_files"`
	TotalSize       int64      `json:"total_size"`
	DuplicateGroups int        `json:"duplicate_groups"`
	TotalWasted     int64      `json:"total_wasted_space"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
}
