package match

import (
	"strings"
	"unicode/utf8"

	"github.com/simpleflo/filescout/pkg/models"
)

// Records converts spans over text into match records. Spans must be in
// ascending order. Lines are 1-based; columns count runes from the start of
// the line. When contextLines > 0, up to that many neighbouring lines are
// attached before and after each match.
func Records(text string, spans []Span, contextLines int) []models.MatchRecord {
	records := make([]models.MatchRecord, 0, len(spans))

	line := 1
	cursor := 0
	for _, s := range spans {
		line += strings.Count(text[cursor:s.Start], "\n")
		cursor = s.Start

		start := lineStart(text, s.Start)
		end := lineEnd(text, s.Start)

		rec := models.MatchRecord{
			Line:     line,
			Column:   utf8.RuneCountInString(text[start:s.Start]),
			LineText: strings.TrimSuffix(text[start:end], "\r"),
		}
		if contextLines > 0 {
			rec.ContextBefore = linesBefore(text, start, contextLines)
			rec.ContextAfter = linesAfter(text, end, contextLines)
		}
		records = append(records, rec)
	}
	return records
}

// Preview returns a window of radius runes on either side of offset, with
// "..." marking each side that was clipped.
func Preview(text string, offset, radius int) string {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}

	from := offset
	for i := 0; i < radius && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := offset
	for i := 0; i < radius && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	preview := text[from:to]
	if from > 0 {
		preview = "..." + preview
	}
	if to < len(text) {
		preview += "..."
	}
	return preview
}

func lineStart(text string, offset int) int {
	return strings.LastIndexByte(text[:offset], '\n') + 1
}

func lineEnd(text string, offset int) int {
	if i := strings.IndexByte(text[offset:], '\n'); i >= 0 {
		return offset + i
	}
	return len(text)
}

// linesBefore returns up to n lines ending just before the line at start.
func linesBefore(text string, start, n int) string {
	if start == 0 {
		return ""
	}
	prev := text[:start-1]
	from := len(prev)
	for i := 0; i < n; i++ {
		j := strings.LastIndexByte(prev[:from], '\n')
		if j < 0 {
			return trimCR(prev)
		}
		from = j
	}
	return trimCR(prev[from+1:])
}

// linesAfter returns up to n lines following the line that ends at end.
func linesAfter(text string, end, n int) string {
	if end >= len(text) {
		return ""
	}
	rest := text[end+1:]
	to := 0
	for i := 0; i < n; i++ {
		j := strings.IndexByte(rest[to:], '\n')
		if j < 0 {
			return trimCR(rest)
		}
		to += j + 1
	}
	return trimCR(rest[:to-1])
}

func trimCR(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	return strings.TrimSuffix(strings.ReplaceAll(s, "\r\n", "\n"), "\r")
}
