package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// converterTimeout bounds every external conversion.
const converterTimeout = 60 * time.Second

// LegacyConverter shells out to whatever converter is installed for the
// pre-2007 binary Office formats.
type LegacyConverter struct {
	textutil string // macOS only, .doc
	antiword string // .doc
	soffice  string // .doc, .xls
}

// NewLegacyConverter looks up the available tools once.
func NewLegacyConverter() *LegacyConverter {
	c := &LegacyConverter{}
	if runtime.GOOS == "darwin" {
		c.textutil, _ = exec.LookPath("textutil")
	}
	c.antiword, _ = exec.LookPath("antiword")
	for _, name := range []string{"soffice", "libreoffice"} {
		if p, err := exec.LookPath(name); err == nil {
			c.soffice = p
			break
		}
	}
	return c
}

// Available reports whether some converter handles format.
func (c *LegacyConverter) Available(format Format) bool {
	switch format {
	case FormatDOC:
		return c.textutil != "" || c.antiword != "" || c.soffice != ""
	case FormatXLS:
		return c.soffice != ""
	default:
		return false
	}
}

// Convert returns the plain text of a legacy document.
func (c *LegacyConverter) Convert(path string, format Format) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), converterTimeout)
	defer cancel()

	switch {
	case format == FormatDOC && c.textutil != "":
		return run(ctx, c.textutil, "-convert", "txt", "-stdout", path)
	case format == FormatDOC && c.antiword != "":
		return run(ctx, c.antiword, path)
	case format == FormatDOC && c.soffice != "":
		return c.viaOffice(ctx, path, "txt:Text")
	case format == FormatXLS && c.soffice != "":
		return c.viaOffice(ctx, path, "csv")
	default:
		return "", fmt.Errorf("no converter available for .%s", format)
	}
}

// viaOffice converts into a scratch directory and reads the result back.
func (c *LegacyConverter) viaOffice(ctx context.Context, path, target string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "filescout-convert-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if _, err := run(ctx, c.soffice, "--headless", "--convert-to", target, "--outdir", tmpDir, path); err != nil {
		return "", err
	}

	ext := "." + strings.SplitN(target, ":", 2)[0]
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	content, err := os.ReadFile(filepath.Join(tmpDir, base+ext))
	if err != nil {
		return "", fmt.Errorf("read converted file: %w", err)
	}
	return Decode(content), nil
}

func run(ctx context.Context, tool string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s failed: %s: %w", filepath.Base(tool), strings.TrimSpace(stderr.String()), err)
	}
	return Decode(stdout.Bytes()), nil
}
