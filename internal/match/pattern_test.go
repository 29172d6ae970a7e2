package match

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simpleflo/filescout/pkg/models"
)

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("", models.ModeContent, false)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrInvalidPattern))

	_, err = Compile("x", models.SearchMode("regex"), false)
	require.Error(t, err)
	assert.True(t, models.IsCode(err, models.ErrInvalidPattern))
}

func TestContentMode_Literal(t *testing.T) {
	p, err := Compile("a.b*(c)", models.ModeContent, true)
	require.NoError(t, err)

	spans, truncated := p.Find("xx a.b*(c) axb(c) a.b*(c)", 0)
	assert.False(t, truncated)
	require.Len(t, spans, 2)
	assert.Equal(t, Span{Start: 3, End: 10}, spans[0])
}

func TestContentMode_CaseFold(t *testing.T) {
	text := "alpha\nBeta\ngamma beta"

	insensitive, err := Compile("beta", models.ModeContent, false)
	require.NoError(t, err)
	spans, _ := insensitive.Find(text, 10)
	records := Records(text, spans, 0)

	require.Len(t, records, 2)
	assert.Equal(t, 2, records[0].Line)
	assert.Equal(t, 0, records[0].Column)
	assert.Equal(t, "Beta", records[0].LineText)
	assert.Equal(t, 3, records[1].Line)
	assert.Equal(t, 6, records[1].Column)
	assert.Equal(t, "gamma beta", records[1].LineText)

	sensitive, err := Compile("beta", models.ModeContent, true)
	require.NoError(t, err)
	spans, _ = sensitive.Find(text, 10)
	assert.Len(t, spans, 1)
}

func TestFind_Cap(t *testing.T) {
	p, err := Compile("x", models.ModeContent, true)
	require.NoError(t, err)

	text := strings.Repeat("x ", 12)

	spans, truncated := p.Find(text, 10)
	assert.Len(t, spans, 10)
	assert.True(t, truncated)

	spans, truncated = p.Find("x x x", 10)
	assert.Len(t, spans, 3)
	assert.False(t, truncated)

	spans, truncated = p.Find(strings.Repeat("x", 10), 10)
	assert.Len(t, spans, 10)
	assert.False(t, truncated)
}

func TestFilenameMode(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*.log", "access.log", true},
		{"*.log", "error.log", true},
		{"*.log", "access.log.gz", false},
		{"rep?rt", "report", true},
		{"rep?rt", "repXrt", true},
		{"rep?rt", "reprt", false},
		{"report", "annual_report_2024.pdf", true},
		{"report", "summary.pdf", false},
		{"a+b", "a+b.txt", true},
		{"*.LOG", "system.log", true},
		{"[x]*", "[x]file", true},
		{"[x]*", "xfile", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"_"+tt.name, func(t *testing.T) {
			p, err := Compile(tt.pattern, models.ModeFilename, false)
			require.NoError(t, err)
			_, ok := p.MatchName(tt.name)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFilenameMode_CaseSensitive(t *testing.T) {
	p, err := Compile("*.LOG", models.ModeFilename, true)
	require.NoError(t, err)

	_, ok := p.MatchName("system.log")
	assert.False(t, ok)
	_, ok = p.MatchName("SYSTEM.LOG")
	assert.True(t, ok)
}

func TestMatchName_Record(t *testing.T) {
	p, err := Compile("port", models.ModeFilename, false)
	require.NoError(t, err)

	rec, ok := p.MatchName("réport.txt")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Line)
	assert.Equal(t, 2, rec.Column)
	assert.Equal(t, "réport.txt", rec.LineText)
}

func TestRecords_UnicodeColumn(t *testing.T) {
	text := "héllo wörld target"
	p, err := Compile("target", models.ModeContent, true)
	require.NoError(t, err)

	spans, _ := p.Find(text, 0)
	records := Records(text, spans, 0)
	require.Len(t, records, 1)
	assert.Equal(t, 12, records[0].Column)
}

func TestRecords_Context(t *testing.T) {
	text := "one\ntwo\nthree\nHIT\nfive\nsix\nseven"
	p, err := Compile("HIT", models.ModeContent, true)
	require.NoError(t, err)

	spans, _ := p.Find(text, 0)
	records := Records(text, spans, 2)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, 4, rec.Line)
	assert.Equal(t, "two\nthree", rec.ContextBefore)
	assert.Equal(t, "five\nsix", rec.ContextAfter)
}

func TestRecords_ContextAtEdges(t *testing.T) {
	text := "HIT first\nsecond\nlast HIT"
	p, err := Compile("HIT", models.ModeContent, true)
	require.NoError(t, err)

	spans, _ := p.Find(text, 0)
	records := Records(text, spans, 2)
	require.Len(t, records, 2)

	assert.Equal(t, "", records[0].ContextBefore)
	assert.Equal(t, "second\nlast HIT", records[0].ContextAfter)
	assert.Equal(t, "HIT first\nsecond", records[1].ContextBefore)
	assert.Equal(t, "", records[1].ContextAfter)
}

func TestRecords_CRLF(t *testing.T) {
	text := "first\r\nsecond HIT\r\nthird\r\n"
	p, err := Compile("HIT", models.ModeContent, true)
	require.NoError(t, err)

	spans, _ := p.Find(text, 0)
	records := Records(text, spans, 1)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Line)
	assert.Equal(t, "second HIT", records[0].LineText)
	assert.Equal(t, "first", records[0].ContextBefore)
	assert.Equal(t, "third", records[0].ContextAfter)
}

func TestRecords_MultipleOnSameLine(t *testing.T) {
	text := "aa\nx x\nx"
	p, err := Compile("x", models.ModeContent, true)
	require.NoError(t, err)

	spans, _ := p.Find(text, 0)
	records := Records(text, spans, 0)
	require.Len(t, records, 3)
	assert.Equal(t, []int{2, 2, 3}, []int{records[0].Line, records[1].Line, records[2].Line})
	assert.Equal(t, []int{0, 2, 0}, []int{records[0].Column, records[1].Column, records[2].Column})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short text", Preview("short text", 2, 100))

	long := strings.Repeat("a", 150) + "MATCH" + strings.Repeat("b", 150)
	got := Preview(long, 150, 100)
	assert.True(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 206, len(got))
	assert.Contains(t, got, "MATCH")

	got = Preview(long, 10, 100)
	assert.False(t, strings.HasPrefix(got, "..."))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestPreview_RuneSafe(t *testing.T) {
	text := strings.Repeat("é", 5) + "x" + strings.Repeat("ü", 5)
	got := Preview(text, len(strings.Repeat("é", 5)), 2)
	assert.Equal(t, "...éé"+"xü...", got)
}
