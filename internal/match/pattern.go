// Package match compiles search terms and locates their occurrences.
package match

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/simpleflo/filescout/pkg/models"
)

// Span is a half-open byte range [Start, End) within a text.
type Span struct {
	Start int
	End   int
}

// Pattern is a compiled search term. It is immutable and safe for
// concurrent use.
type Pattern struct {
	Term          string
	Mode          models.SearchMode
	CaseSensitive bool

	re *regexp.Regexp
}

// Compile builds a Pattern. In content mode every character of term is
// literal. In filename mode '*' and '?' are wildcards and the whole name must
// match; a term with no wildcard matches anywhere in the name.
func Compile(term string, mode models.SearchMode, caseSensitive bool) (*Pattern, error) {
	if term == "" {
		return nil, models.NewError(models.ErrInvalidPattern, "search term must not be empty")
	}

	var expr string
	switch mode {
	case models.ModeContent:
		expr = regexp.QuoteMeta(term)
	case models.ModeFilename:
		expr = filenameExpr(term)
	default:
		return nil, models.NewError(models.ErrInvalidPattern, "unknown search mode").
			WithDetails("mode", string(mode))
	}
	if !caseSensitive {
		expr = "(?i)" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, models.Wrap(models.ErrInvalidPattern, "compile pattern", err).
			WithDetails("term", term)
	}

	return &Pattern{Term: term, Mode: mode, CaseSensitive: caseSensitive, re: re}, nil
}

func filenameExpr(term string) string {
	if !strings.ContainsAny(term, "*?") {
		return regexp.QuoteMeta(term)
	}
	var b strings.Builder
	b.WriteString("^")
	for _, r := range term {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// Find returns up to limit match spans in order of occurrence, and whether
// more matches exist past the limit. A limit <= 0 returns every match.
func (p *Pattern) Find(text string, limit int) ([]Span, bool) {
	n := -1
	if limit > 0 {
		n = limit + 1
	}
	idx := p.re.FindAllStringIndex(text, n)

	truncated := false
	if limit > 0 && len(idx) > limit {
		idx = idx[:limit]
		truncated = true
	}

	spans := make([]Span, len(idx))
	for i, m := range idx {
		spans[i] = Span{Start: m[0], End: m[1]}
	}
	return spans, truncated
}

// MatchName matches the pattern against a bare file name. The returned
// record has line 0 and the rune offset of the match as its column.
func (p *Pattern) MatchName(name string) (models.MatchRecord, bool) {
	loc := p.re.FindStringIndex(name)
	if loc == nil {
		return models.MatchRecord{}, false
	}
	return models.MatchRecord{
		Line:     0,
		Column:   utf8.RuneCountInString(name[:loc[0]]),
		LineText: name,
	}, true
}

// String returns the term as the user entered it.
func (p *Pattern) String() string {
	return p.Term
}
