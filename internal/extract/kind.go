// Package extract classifies files and turns them into searchable text.
//
// Classification yields exactly one Kind per file and each Kind has one
// handler. Adding a format means adding a Kind and its handler.
package extract

import (
	"path/filepath"
	"strings"
)

// Kind is the closed set of content variants the search engine understands.
type Kind int

const (
	KindUnsupported Kind = iota
	KindText
	KindZip
	KindTar
	KindOffice
	KindODF
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindZip:
		return "zip"
	case KindTar:
		return "tar"
	case KindOffice:
		return "office"
	case KindODF:
		return "odf"
	default:
		return "unsupported"
	}
}

// Archive reports whether the kind holds members rather than text.
func (k Kind) Archive() bool {
	return k == KindZip || k == KindTar
}

// Format names a document container handed to a TextExtractor.
type Format string

const (
	FormatDOCX Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatPPTX Format = "pptx"
	FormatDOC  Format = "doc"
	FormatXLS  Format = "xls"
	FormatPPT  Format = "ppt"
	FormatODT  Format = "odt"
	FormatODS  Format = "ods"
	FormatODP  Format = "odp"
)

var officeFormats = map[string]Format{
	".docx": FormatDOCX,
	".xlsx": FormatXLSX,
	".pptx": FormatPPTX,
	".doc":  FormatDOC,
	".xls":  FormatXLS,
	".ppt":  FormatPPT,
}

var odfFormats = map[string]Format{
	".odt": FormatODT,
	".ods": FormatODS,
	".odp": FormatODP,
}

// tarSuffixes are checked longest first so ".tar.gz" wins over ".gz".
var tarSuffixes = []string{".tar.gz", ".tar.bz2", ".tgz", ".tar", ".gz", ".bz2"}

// textExtensions are read as text without sniffing. Archive members must
// carry one of these to be searched.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".rst": true, ".log": true,
	".py": true, ".js": true, ".ts": true, ".go": true, ".rs": true,
	".java": true, ".cs": true, ".php": true, ".rb": true, ".pl": true,
	".c": true, ".cpp": true, ".h": true, ".hpp": true, ".m": true, ".mm": true,
	".swift": true, ".kt": true, ".scala": true, ".clj": true, ".lua": true,
	".r": true, ".vim": true, ".sql": true,
	".html": true, ".css": true, ".xml": true,
	".json": true, ".yml": true, ".yaml": true, ".toml": true,
	".cfg": true, ".conf": true, ".ini": true, ".properties": true,
	".sh": true, ".bash": true, ".zsh": true, ".ps1": true, ".bat": true, ".cmd": true,
	".dockerfile": true, ".makefile": true,
	".csv": true, ".tsv": true,
}

// IsTextExtension reports whether ext (with leading dot, any case) is a
// known text extension.
func IsTextExtension(ext string) bool {
	return textExtensions[strings.ToLower(ext)]
}

// classifyName assigns a kind from the file name alone. Names that need a
// content sniff come back as KindUnsupported with sniff set. Archive names
// are never sniffed: with archives disabled they are unsupported.
func classifyName(name string, includeArchives bool) (kind Kind, format Format, sniff bool) {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)

	if ext == ".zip" {
		if includeArchives {
			return KindZip, "", false
		}
		return KindUnsupported, "", false
	}
	for _, suffix := range tarSuffixes {
		if strings.HasSuffix(lower, suffix) {
			if includeArchives {
				return KindTar, "", false
			}
			return KindUnsupported, "", false
		}
	}
	if f, ok := officeFormats[ext]; ok {
		return KindOffice, f, false
	}
	if f, ok := odfFormats[ext]; ok {
		return KindODF, f, false
	}
	if textExtensions[ext] {
		return KindText, "", false
	}
	return KindUnsupported, "", true
}
