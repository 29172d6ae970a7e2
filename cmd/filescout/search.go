package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/simpleflo/filescout/internal/search"
	"github.com/simpleflo/filescout/pkg/models"
)

func searchCmd() *cobra.Command {
	var (
		filename      bool
		caseSensitive bool
		noArchives    bool
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "search <term> [path]",
		Short: "Search file contents or names under a directory",
		Long: `Search for a term in every readable file under path (default: the
current directory). Plain text, zip and tar archives, and office documents
are searched. With --filename, the term is a glob matched against file
names instead; without wildcards it matches any name containing it.

Press Ctrl-C to stop early; the results found so far are printed.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupCLILogging(cfg)

			var pathArg string
			if len(args) > 1 {
				pathArg = args[1]
			}
			root, err := resolveArg(pathArg)
			if err != nil {
				return err
			}

			c, err := buildComponents(cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mode := models.ModeContent
			if filename {
				mode = models.ModeFilename
			}
			req := search.Request{
				Term:            args[0],
				Path:            root,
				Mode:            mode,
				CaseSensitive:   caseSensitive,
				IncludeArchives: cfg.Scan.IncludeArchives && !noArchives,
			}

			status := newStatusLine()
			progress := search.ProgressFunc(func(p search.Progress) error {
				if p.FilesSearched%50 == 0 {
					status.Update("searched %d files: %s", p.FilesSearched, p.CurrentFile)
				}
				return nil
			})

			out, err := c.engine.Run(ctx, req, progress)
			status.Clear()
			if err != nil {
				return err
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printSearchOutcome(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().BoolVar(&filename, "filename", false, "Match the term against file names")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match case exactly")
	cmd.Flags().BoolVar(&noArchives, "no-archives", false, "Do not look inside zip and tar archives")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcome as JSON")

	return cmd
}

func printSearchOutcome(w io.Writer, out *models.SearchOutcome) {
	for _, fm := range out.Results {
		pathColor.Fprint(w, fm.Path)
		count := fmt.Sprintf(" (%d)", fm.MatchCount)
		if fm.Truncated {
			count = fmt.Sprintf(" (%d+)", fm.MatchCount)
		}
		dimColor.Fprintf(w, "%s %s\n", count, humanize.IBytes(uint64(fm.Size)))

		if out.Mode == models.ModeFilename {
			continue
		}
		for _, m := range fm.Matches {
			printContext(w, m.ContextBefore)
			lineColor.Fprintf(w, "  %6d:", m.Line)
			fmt.Fprintf(w, " %s\n", strings.TrimRight(m.LineText, "\r"))
			printContext(w, m.ContextAfter)
		}
	}

	if len(out.Results) > 0 {
		fmt.Fprintln(w)
	}

	summary := fmt.Sprintf("%d matches in %d files (%d files searched, %s)",
		out.TotalMatches, len(out.Results), out.FilesSearched, out.Duration.Round(time.Millisecond))
	switch out.Status {
	case models.StatusCancelled:
		warnColor.Fprintln(w, "Search cancelled: "+summary)
	case models.StatusCompleted:
		successColor.Fprintln(w, summary)
	default:
		errorColor.Fprintln(w, summary)
	}
}

func printContext(w io.Writer, block string) {
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		dimColor.Fprintf(w, "        | %s\n", strings.TrimRight(line, "\r"))
	}
}
