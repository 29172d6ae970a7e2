package extract

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sniffSize is how much of an unknown file is inspected for UTF-8.
const sniffSize = 1024

// Decode converts raw bytes to a string, replacing invalid UTF-8 sequences
// with U+FFFD. A UTF-16 byte order mark switches to UTF-16 decoding and a
// UTF-8 one is dropped.
func Decode(b []byte) string {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	out, _, err := transform.Bytes(dec, b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}
	return string(out)
}

// ErrTooLarge reports content above the read ceiling. Such content is
// skipped whole rather than searched in part.
var ErrTooLarge = errors.New("content exceeds read ceiling")

func tooLarge(size, limit int64) error {
	return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, limit)
}

// readLimited reads and decodes r, failing with ErrTooLarge when r holds
// more than limit bytes.
func readLimited(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", tooLarge(int64(len(data)), limit)
	}
	return Decode(data), nil
}

// looksLikeText decides whether a file without a known text extension is
// worth reading. A text/* MIME type is enough; otherwise the file must fit
// under limit and its first kilobyte must be valid UTF-8.
func looksLikeText(path string, size, limit int64) bool {
	if t := mime.TypeByExtension(filepath.Ext(path)); strings.HasPrefix(t, "text/") {
		return true
	}
	if size > limit {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return validPrefix(buf[:n], n == sniffSize)
}

// validPrefix reports whether b is valid UTF-8. When the buffer was cut at
// sniffSize, a trailing partial rune is ignored.
func validPrefix(b []byte, cut bool) bool {
	if cut {
		for i := 0; i < utf8.UTFMax-1 && len(b) > 0; i++ {
			if utf8.Valid(b) {
				return true
			}
			r, _ := utf8.DecodeLastRune(b)
			if r != utf8.RuneError {
				break
			}
			b = b[:len(b)-1]
		}
	}
	return utf8.Valid(b)
}
