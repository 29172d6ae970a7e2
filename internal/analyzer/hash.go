package analyzer

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// sampler computes the size-tiered digest used to group duplicates.
//
// Files below fullThreshold are hashed in full. Larger files contribute
// only a head, middle and tail window of sampleSize bytes each, so two
// large files that differ only between the windows share a digest.
type sampler struct {
	sampleSize    int64
	fullThreshold int64
}

func (s sampler) digest(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	h.WriteString(strconv.FormatInt(size, 10))

	if size < s.fullThreshold {
		if _, err := io.Copy(h, f); err != nil {
			return "", err
		}
		return fmt.Sprintf("%016x", h.Sum64()), nil
	}

	for _, off := range s.windows(size) {
		if _, err := io.Copy(h, io.NewSectionReader(f, off, s.sampleSize)); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// windows returns the offsets of the sampled regions for a large file.
func (s sampler) windows(size int64) []int64 {
	offsets := []int64{0}
	if size > 2*s.sampleSize {
		offsets = append(offsets, size/2-s.sampleSize/2)
	}
	if size > s.sampleSize {
		offsets = append(offsets, size-s.sampleSize)
	}
	return offsets
}
