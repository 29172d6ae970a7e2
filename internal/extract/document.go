package extract

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// DocumentExtractor reads Office Open XML and OpenDocument containers
// natively and hands legacy binary formats to external converters.
type DocumentExtractor struct {
	maxPart int64
	legacy  *LegacyConverter
}

// NewDocumentExtractor creates an extractor that reads at most maxPart bytes
// from any single XML part.
func NewDocumentExtractor(maxPart int64) *DocumentExtractor {
	if maxPart <= 0 {
		maxPart = DefaultMaxContentSize
	}
	return &DocumentExtractor{maxPart: maxPart, legacy: NewLegacyConverter()}
}

// Extract returns the document's text blocks in reading order.
func (e *DocumentExtractor) Extract(path string, format Format) ([]string, error) {
	switch format {
	case FormatDOCX, FormatPPTX, FormatXLSX, FormatODT, FormatODS, FormatODP:
		r, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", format, err)
		}
		defer r.Close()
		return e.extractContainer(&r.Reader, format)
	case FormatDOC, FormatXLS, FormatPPT:
		text, err := e.legacy.Convert(path, format)
		if err != nil {
			return nil, err
		}
		return strings.Split(text, "\n"), nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

func (e *DocumentExtractor) extractContainer(r *zip.Reader, format Format) ([]string, error) {
	switch format {
	case FormatDOCX:
		return e.paragraphsFrom(r, []string{"word/document.xml"}, wordLayout)
	case FormatPPTX:
		return e.paragraphsFrom(r, numberedParts(r, "ppt/slides/slide"), drawingLayout)
	case FormatXLSX:
		return e.spreadsheetRows(r)
	default:
		return e.paragraphsFrom(r, []string{"content.xml"}, odfLayout)
	}
}

// xmlLayout names the elements that shape text in one XML vocabulary.
// Names are local names; namespaces are ignored.
type xmlLayout struct {
	blocks    map[string]bool // elements that start a new text block
	text      string          // element holding character data; "" takes all data inside a block
	tab       string
	lineBreak string
	space     string // ODF text:s, repeated by its c attribute
	skip      string // container whose children are ignored, e.g. tab stop definitions
	keepEmpty bool
}

var (
	wordLayout = xmlLayout{
		blocks:    map[string]bool{"p": true},
		text:      "t",
		tab:       "tab",
		lineBreak: "br",
		skip:      "tabs",
		keepEmpty: true,
	}
	drawingLayout = xmlLayout{
		blocks:    map[string]bool{"p": true},
		text:      "t",
		lineBreak: "br",
	}
	odfLayout = xmlLayout{
		blocks:    map[string]bool{"p": true, "h": true},
		tab:       "tab",
		lineBreak: "line-break",
		space:     "s",
	}
)

func (e *DocumentExtractor) paragraphsFrom(r *zip.Reader, parts []string, layout xmlLayout) ([]string, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	var blocks []string
	found := false
	for _, name := range parts {
		f := findPart(r, name)
		if f == nil {
			continue
		}
		found = true
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		part, err := xmlBlocks(io.LimitReader(rc, e.maxPart), layout)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		blocks = append(blocks, part...)
	}
	if !found {
		return nil, fmt.Errorf("missing document part %s", parts[0])
	}
	return blocks, nil
}

// xmlBlocks streams an XML part and collects its text one block at a time.
func xmlBlocks(r io.Reader, layout xmlLayout) ([]string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		blocks  []string
		cur     strings.Builder
		depth   int // nesting of block elements
		inText  int
		skipped int
	)
	flush := func() {
		s := cur.String()
		cur.Reset()
		if layout.keepEmpty || strings.TrimSpace(s) != "" {
			blocks = append(blocks, s)
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return blocks, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			switch {
			case layout.skip != "" && name == layout.skip:
				skipped++
			case skipped > 0:
			case layout.blocks[name]:
				depth++
			case depth == 0:
			case name == layout.text:
				inText++
			case name == layout.tab:
				cur.WriteByte('\t')
			case name == layout.lineBreak:
				cur.WriteByte('\n')
			case layout.space != "" && name == layout.space:
				cur.WriteString(strings.Repeat(" ", spaceCount(t)))
			}
		case xml.EndElement:
			name := t.Name.Local
			switch {
			case layout.skip != "" && name == layout.skip:
				skipped--
			case skipped > 0:
			case layout.blocks[name]:
				depth--
				if depth == 0 {
					flush()
				}
			case name == layout.text && inText > 0:
				inText--
			}
		case xml.CharData:
			if depth > 0 && skipped == 0 && (layout.text == "" || inText > 0) {
				cur.Write(t)
			}
		}
	}
	return blocks, nil
}

func spaceCount(t xml.StartElement) int {
	for _, a := range t.Attr {
		if a.Name.Local == "c" {
			if n, err := strconv.Atoi(a.Value); err == nil && n > 0 && n < 1024 {
				return n
			}
		}
	}
	return 1
}

// spreadsheetRows renders each non-blank row as its cell values joined by
// spaces, sheet by sheet.
func (e *DocumentExtractor) spreadsheetRows(r *zip.Reader) ([]string, error) {
	shared, err := e.sharedStrings(r)
	if err != nil {
		return nil, err
	}

	sheets := numberedParts(r, "xl/worksheets/sheet")
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no worksheets")
	}

	var rows []string
	for _, name := range sheets {
		f := findPart(r, name)
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		sheetRows, err := worksheetRows(io.LimitReader(rc, e.maxPart), shared)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		rows = append(rows, sheetRows...)
	}
	return rows, nil
}

func (e *DocumentExtractor) sharedStrings(r *zip.Reader) ([]string, error) {
	f := findPart(r, "xl/sharedStrings.xml")
	if f == nil {
		return nil, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open shared strings: %w", err)
	}
	defer rc.Close()

	// Each <si> is one string, possibly split across rich-text runs.
	layout := xmlLayout{blocks: map[string]bool{"si": true}, text: "t", keepEmpty: true}
	return xmlBlocks(io.LimitReader(rc, e.maxPart), layout)
}

func worksheetRows(r io.Reader, shared []string) ([]string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false

	var (
		rows     []string
		cells    []string
		cellType string
		value    strings.Builder
		inValue  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "row":
				cells = cells[:0]
			case "c":
				cellType = ""
				value.Reset()
				for _, a := range t.Attr {
					if a.Name.Local == "t" {
						cellType = a.Value
					}
				}
			case "v", "t":
				inValue = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "v", "t":
				inValue = false
			case "c":
				cells = append(cells, cellText(cellType, value.String(), shared))
			case "row":
				line := strings.Join(cells, " ")
				if strings.TrimSpace(line) != "" {
					rows = append(rows, line)
				}
			}
		case xml.CharData:
			if inValue {
				value.Write(t)
			}
		}
	}
	return rows, nil
}

func cellText(cellType, raw string, shared []string) string {
	if cellType == "s" {
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || i < 0 || i >= len(shared) {
			return ""
		}
		return shared[i]
	}
	return raw
}

func findPart(r *zip.Reader, name string) *zip.File {
	for _, f := range r.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// numberedParts returns parts named prefix + N + ".xml" ordered by N.
func numberedParts(r *zip.Reader, prefix string) []string {
	type part struct {
		name string
		n    int
	}
	var parts []part
	for _, f := range r.File {
		if !strings.HasPrefix(f.Name, prefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		num := strings.TrimSuffix(strings.TrimPrefix(f.Name, prefix), ".xml")
		n, err := strconv.Atoi(num)
		if err != nil {
			continue
		}
		parts = append(parts, part{name: f.Name, n: n})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })

	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.name
	}
	return names
}
