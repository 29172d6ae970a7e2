package analyzer

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/simpleflo/filescout/pkg/models"
)

const noExtension = "no_extension"

const (
	kb = 1024
	mb = 1024 * kb
)

// sizeBuckets returns the fixed histogram with zero counts.
func sizeBuckets() []models.SizeBucket {
	return []models.SizeBucket{
		{Label: "0-1KB", Min: 0, Max: kb},
		{Label: "1KB-10KB", Min: kb, Max: 10 * kb},
		{Label: "10KB-100KB", Min: 10 * kb, Max: 100 * kb},
		{Label: "100KB-1MB", Min: 100 * kb, Max: mb},
		{Label: "1MB-10MB", Min: mb, Max: 10 * mb},
		{Label: "10MB-100MB", Min: 10 * mb, Max: 100 * mb},
		{Label: "100MB+", Min: 100 * mb},
	}
}

func addToBucket(buckets []models.SizeBucket, size int64) {
	for i := range buckets {
		b := &buckets[i]
		if size >= b.Min && (b.Max == 0 || size < b.Max) {
			b.Count++
			b.Size += size
			return
		}
	}
}

// typeKey is the lower-cased extension, or noExtension.
func typeKey(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == name {
		return noExtension
	}
	return ext
}

func mimeType(ext string) string {
	if ext == noExtension {
		return "application/octet-stream"
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return "application/octet-stream"
	}
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// sortGroups orders duplicate groups by wasted space, largest first. Ties
// are broken by hash so the output is stable across runs.
func sortGroups(groups []models.DuplicateGroup) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].WastedSpace != groups[j].WastedSpace {
			return groups[i].WastedSpace > groups[j].WastedSpace
		}
		return groups[i].Hash < groups[j].Hash
	})
}
