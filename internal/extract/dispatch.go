package extract

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simpleflo/filescout/internal/observability"
)

// DefaultMaxContentSize is the read ceiling for a file or archive member.
const DefaultMaxContentSize int64 = 10 * 1024 * 1024

// Status is the per-file outcome of an extraction.
type Status int

const (
	StatusOK Status = iota
	StatusExtractionFailed
	StatusPermissionDenied
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusExtractionFailed:
		return "extraction_failed"
	case StatusPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Result reports how one file was handled. Failures are values, never
// errors that stop a scan.
type Result struct {
	Kind    Kind
	Status  Status
	Members int
	Err     error
}

// OK reports whether extraction succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Member is one unit of searchable text. For plain files and documents Name
// is empty; for archive members it is the path inside the archive.
type Member struct {
	Name string
	Size int64
	Text string
}

// Sink receives extracted text. Returning false stops an archive walk.
type Sink func(Member) bool

// TextExtractor turns a document into an ordered list of text blocks.
// Implementations must return an error rather than panic on bad input.
type TextExtractor interface {
	Extract(path string, format Format) ([]string, error)
}

// Classification is the dispatch decision for one file.
type Classification struct {
	Kind   Kind
	Format Format
}

// Options configures a Dispatcher.
type Options struct {
	IncludeArchives bool
	MaxContentSize  int64
	Documents       TextExtractor
}

// Dispatcher classifies files and runs the handler for their kind.
type Dispatcher struct {
	includeArchives bool
	maxSize         int64
	documents       TextExtractor
	logger          zerolog.Logger
	handlers        map[Kind]handler
}

type handler func(path string, c Classification, sink Sink) Result

// NewDispatcher creates a Dispatcher. A nil Documents extractor falls back
// to the built-in DocumentExtractor.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.MaxContentSize <= 0 {
		opts.MaxContentSize = DefaultMaxContentSize
	}
	if opts.Documents == nil {
		opts.Documents = NewDocumentExtractor(opts.MaxContentSize)
	}

	d := &Dispatcher{
		includeArchives: opts.IncludeArchives,
		maxSize:         opts.MaxContentSize,
		documents:       opts.Documents,
		logger:          observability.Logger("extract"),
	}
	d.handlers = map[Kind]handler{
		KindText:   d.handleText,
		KindZip:    d.handleZip,
		KindTar:    d.handleTar,
		KindOffice: d.handleDocument,
		KindODF:    d.handleDocument,
	}
	return d
}

// Classify picks the kind for a file. Names without a known extension are
// sniffed for text, which needs the file's size.
func (d *Dispatcher) Classify(path string, size int64) Classification {
	kind, format, sniff := classifyName(path, d.includeArchives)
	if sniff && looksLikeText(path, size, d.maxSize) {
		kind = KindText
	}
	return Classification{Kind: kind, Format: format}
}

// Extract runs the handler for c.Kind and feeds its text to sink.
// Unsupported files produce an OK result with no members.
func (d *Dispatcher) Extract(path string, c Classification, sink Sink) Result {
	h, ok := d.handlers[c.Kind]
	if !ok {
		return Result{Kind: c.Kind, Status: StatusOK}
	}
	res := h(path, c, sink)
	res.Kind = c.Kind
	if !res.OK() {
		d.logger.Debug().
			Err(res.Err).
			Str("path", path).
			Str("kind", c.Kind.String()).
			Str("status", res.Status.String()).
			Msg("extraction failed")
	}
	return res
}

func (d *Dispatcher) handleText(path string, _ Classification, sink Sink) Result {
	f, err := os.Open(path)
	if err != nil {
		return failure(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return failure(err)
	}
	if info.Size() > d.maxSize {
		return failure(tooLarge(info.Size(), d.maxSize))
	}

	text, err := readLimited(f, d.maxSize)
	if err != nil {
		return failure(err)
	}
	sink(Member{Text: text, Size: int64(len(text))})
	return Result{Status: StatusOK, Members: 1}
}

func (d *Dispatcher) handleDocument(path string, c Classification, sink Sink) Result {
	if _, err := os.Stat(path); err != nil {
		return failure(err)
	}
	blocks, err := d.documents.Extract(path, c.Format)
	if err != nil {
		return failure(err)
	}
	text := strings.Join(blocks, "\n")
	sink(Member{Text: text, Size: int64(len(text))})
	return Result{Status: StatusOK, Members: 1}
}

func failure(err error) Result {
	if errors.Is(err, fs.ErrPermission) {
		return Result{Status: StatusPermissionDenied, Err: err}
	}
	return Result{Status: StatusExtractionFailed, Err: err}
}
