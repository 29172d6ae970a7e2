package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/simpleflo/filescout/internal/analyzer"
	"github.com/simpleflo/filescout/pkg/models"
)

func analyzeCmd() *cobra.Command {
	var (
		noDuplicates  bool
		minSize       string
		maxSize       string
		maxHashSizeMB int64
		top           int
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Report file types, sizes, empty directories and duplicates",
		Long: `Analyze the directory tree under path (default: the current
directory). Duplicates are found by hashing only files whose size is
shared with another file; files of 1MB or more are compared on sampled
windows rather than their full content.

Sizes accept units, e.g. --min-size 10KB --max-size 2GiB.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			setupCLILogging(cfg)

			opts := analyzer.Options{
				FindDuplicates: !noDuplicates,
				MaxHashSizeMB:  maxHashSizeMB,
			}
			if opts.MinSize, err = parseSize(minSize); err != nil {
				return fmt.Errorf("--min-size: %w", err)
			}
			if opts.MaxSize, err = parseSize(maxSize); err != nil {
				return fmt.Errorf("--max-size: %w", err)
			}
			if opts.MaxSize > 0 && opts.MinSize > opts.MaxSize {
				return fmt.Errorf("--min-size is larger than --max-size")
			}

			var pathArg string
			if len(args) > 0 {
				pathArg = args[0]
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

			id := uuid.New().String()
			if c.store != nil {
				if err := c.store.CreateAnalysis(ctx, id, root, time.Now()); err != nil {
					return err
				}
			}

			status := newStatusLine()
			status.Update("analyzing %s", c.validator.Display(root))
			out, err := c.analyzer.Run(ctx, root, opts, id)
			status.Clear()
			if err != nil {
				return err
			}

			if c.store != nil {
				if err := c.store.SaveAnalysis(context.Background(), out); err != nil {
					warnColor.Fprintf(os.Stderr, "could not save analysis: %v\n", err)
				}
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			printAnalysisOutcome(cmd.OutOrStdout(), out, top)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noDuplicates, "no-duplicates", false, "Skip duplicate detection")
	cmd.Flags().StringVar(&minSize, "min-size", "", "Ignore files smaller than this")
	cmd.Flags().StringVar(&maxSize, "max-size", "", "Ignore files larger than this")
	cmd.Flags().Int64Var(&maxHashSizeMB, "max-hash-size-mb", 0, "Do not hash files larger than this many MB (0: no limit)")
	cmd.Flags().IntVar(&top, "top", 10, "Rows shown per section")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full outcome as JSON")

	return cmd
}

// parseSize accepts plain byte counts and humanized sizes. Empty means 0.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func printAnalysisOutcome(w io.Writer, out *models.AnalysisOutcome, top int) {
	printHeader(w, "Summary")
	fmt.Fprintf(w, "   Path:        %s\n", out.Path)
	fmt.Fprintf(w, "   Files:       %s\n", humanize.Comma(int64(out.TotalFiles)))
	fmt.Fprintf(w, "   Total size:  %s\n", humanize.IBytes(uint64(out.TotalSize)))
	fmt.Fprintf(w, "   Duration:    %s\n", out.Duration.Round(time.Millisecond))
	fmt.Fprintln(w)

	printHeader(w, "File types")
	types := make([]string, 0, len(out.FileTypes))
	for ext := range out.FileTypes {
		types = append(types, ext)
	}
	sort.Slice(types, func(i, j int) bool {
		a, b := out.FileTypes[types[i]], out.FileTypes[types[j]]
		if a.TotalSize != b.TotalSize {
			return a.TotalSize > b.TotalSize
		}
		return types[i] < types[j]
	})
	for i, ext := range types {
		if i == top {
			dimColor.Fprintf(w, "   ... %d more\n", len(types)-top)
			break
		}
		st := out.FileTypes[ext]
		fmt.Fprintf(w, "   %-16s %8d files  %10s\n", ext, st.Count, humanize.IBytes(uint64(st.TotalSize)))
	}
	fmt.Fprintln(w)

	printHeader(w, "Sizes")
	for _, b := range out.SizeDistribution {
		fmt.Fprintf(w, "   %-12s %8d files  %10s\n", b.Label, b.Count, humanize.IBytes(uint64(b.Size)))
	}
	fmt.Fprintln(w)

	if len(out.EmptyDirectories) > 0 {
		printHeader(w, fmt.Sprintf("Empty directories (%d)", len(out.EmptyDirectories)))
		for i, dir := range out.EmptyDirectories {
			if i == top {
				dimColor.Fprintf(w, "   ... %d more\n", len(out.EmptyDirectories)-top)
				break
			}
			fmt.Fprintf(w, "   %s\n", dir)
		}
		fmt.Fprintln(w)
	}

	if len(out.DuplicateGroups) > 0 {
		printHeader(w, fmt.Sprintf("Duplicates (%d groups, %s wasted)",
			len(out.DuplicateGroups), humanize.IBytes(uint64(out.TotalWasted))))
		for i, g := range out.DuplicateGroups {
			if i == top {
				dimColor.Fprintf(w, "   ... %d more groups\n", len(out.DuplicateGroups)-top)
				break
			}
			warnColor.Fprintf(w, "   %d × %s", g.Count, humanize.IBytes(uint64(g.Size)))
			dimColor.Fprintf(w, "  (%s wasted)\n", humanize.IBytes(uint64(g.WastedSpace)))
			for _, f := range g.Files {
				pathColor.Fprintf(w, "      %s\n", f)
			}
		}
		fmt.Fprintln(w)
	}

	if out.Cancelled {
		warnColor.Fprintln(w, "Analysis cancelled; results are partial.")
		return
	}
	successColor.Fprintln(w, "Analysis complete.")
}
