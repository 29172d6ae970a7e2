package extract

import (
	"archive/tar"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
)

// Archives are opened one level deep. Members are only searched when their
// own extension is a text extension, so nested archives are never opened.

func (d *Dispatcher) handleZip(archivePath string, _ Classification, sink Sink) Result {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return failure(fmt.Errorf("open zip: %w", err))
	}
	defer r.Close()

	members := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !IsTextExtension(path.Ext(f.Name)) {
			continue
		}

		text, err := d.readZipMember(f)
		if err != nil {
			d.logger.Debug().Err(err).
				Str("archive", archivePath).
				Str("member", f.Name).
				Msg("skipping unreadable archive member")
			continue
		}

		members++
		if !sink(Member{Name: f.Name, Size: int64(f.UncompressedSize64), Text: text}) {
			break
		}
	}
	return Result{Status: StatusOK, Members: members}
}

func (d *Dispatcher) readZipMember(f *zip.File) (string, error) {
	if size := int64(f.UncompressedSize64); size > d.maxSize {
		return "", tooLarge(size, d.maxSize)
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return readLimited(rc, d.maxSize)
}

func (d *Dispatcher) handleTar(archivePath string, _ Classification, sink Sink) Result {
	f, err := os.Open(archivePath)
	if err != nil {
		return failure(err)
	}
	defer f.Close()

	stream, closeStream, err := decompressor(archivePath, f)
	if err != nil {
		return failure(fmt.Errorf("open %s: %w", path.Base(archivePath), err))
	}
	defer closeStream()

	tr := tar.NewReader(stream)
	members := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if members == 0 {
				return failure(fmt.Errorf("read tar: %w", err))
			}
			// A corrupt stream cannot be resynchronised; keep what was read.
			d.logger.Debug().Err(err).Str("archive", archivePath).Msg("tar stream truncated")
			break
		}

		if hdr.Typeflag != tar.TypeReg || !IsTextExtension(path.Ext(hdr.Name)) {
			continue
		}

		var text string
		if hdr.Size > d.maxSize {
			err = tooLarge(hdr.Size, d.maxSize)
		} else {
			text, err = readLimited(tr, d.maxSize)
		}
		if err != nil {
			d.logger.Debug().Err(err).
				Str("archive", archivePath).
				Str("member", hdr.Name).
				Msg("skipping unreadable archive member")
			continue
		}

		members++
		if !sink(Member{Name: hdr.Name, Size: hdr.Size, Text: text}) {
			break
		}
	}
	return Result{Status: StatusOK, Members: members}
}

// decompressor wraps r according to the archive's suffix.
func decompressor(name string, r io.Reader) (io.Reader, func(), error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"), strings.HasSuffix(lower, ".tgz"):
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case strings.HasSuffix(lower, ".bz2"):
		return bzip2.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}
