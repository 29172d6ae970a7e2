package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	pathColor    = color.New(color.FgCyan)
	lineColor    = color.New(color.FgGreen)
	dimColor     = color.New(color.Faint)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen, color.Bold)
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printHeader(w io.Writer, title string) {
	headerColor.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("─", 56))
}

// statusLine rewrites a single line on stderr. It is a no-op when stderr is
// not a terminal.
type statusLine struct {
	enabled bool
	width   int
}

func newStatusLine() *statusLine {
	return &statusLine{enabled: isatty.IsTerminal(os.Stderr.Fd())}
}

func (s *statusLine) Update(format string, args ...interface{}) {
	if !s.enabled {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if len(msg) > 100 {
		msg = "…" + msg[len(msg)-99:]
	}
	pad := s.width - len(msg)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(os.Stderr, "\r%s%s", msg, strings.Repeat(" ", pad))
	s.width = len(msg)
}

func (s *statusLine) Clear() {
	if !s.enabled || s.width == 0 {
		return
	}
	fmt.Fprintf(os.Stderr, "\r%s\r", strings.Repeat(" ", s.width))
	s.width = 0
}
