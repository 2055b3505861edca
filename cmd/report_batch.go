package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/insightloom/internal/dataset"
	"github.com/KaramelBytes/insightloom/internal/insight"
	"github.com/KaramelBytes/insightloom/internal/utils"
)

var (
	batchLoad      loadFlags
	batchGen       genFlags
	batchWorkers   int
	batchOutputDir string
	batchJSON      bool
	batchQuiet     bool
	batchFailFast  bool
)

type batchItem struct {
	path string
	res  *insight.Result
	err  error
}

var reportBatchCmd = &cobra.Command{
	Use:   "report-batch <files...>",
	Short: "Generate reports for many datasets concurrently",
	Example: `  insightloom report-batch 'data/*.csv' --workers 4 --output-dir reports
  insightloom report-batch a.csv b.xlsx --no-llm --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := expandInputs(args)
		if err != nil {
			return err
		}
		dopt, err := batchLoad.datasetOptions(cmd)
		if err != nil {
			return err
		}
		aopt, err := batchLoad.analysisOptions(cmd)
		if err != nil {
			return err
		}
		if batchWorkers <= 0 {
			return fmt.Errorf("--workers must be positive")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		gen := newGenerator(&batchGen, aopt)
		items := make([]batchItem, len(files))
		total := len(files)
		var (
			mu   sync.Mutex
			done int
		)
		progress := func(path string, res *insight.Result, err error) {
			if batchQuiet {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			done++
			switch {
			case err != nil:
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] ✗ %s: %v\n", done, total, filepath.Base(path), err)
			case res.Outcome == insight.OutcomeDegraded:
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] ⚠ %s: %s\n", done, total, filepath.Base(path), explain(res.Cause))
			default:
				fmt.Fprintf(cmd.ErrOrStderr(), "[%d/%d] ✓ %s (%s)\n", done, total, filepath.Base(path), res.Outcome)
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchWorkers)
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				items[i].path = path
				if err := gctx.Err(); err != nil {
					items[i].err = err
					return nil
				}
				ds, err := dataset.Load(path, dopt)
				if err == nil {
					ictx, cancel := batchGen.withTimeout(gctx)
					items[i].res, err = gen.Generate(ictx, ds, insight.Request{UseLLM: !batchGen.noLLM})
					cancel()
				}
				items[i].err = err
				progress(path, items[i].res, err)
				if err != nil {
					slog.Error("dataset report failed", "path", path, "error", err)
					if batchFailFast {
						return fmt.Errorf("%s: %w", path, err)
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		failed := 0
		used := map[string]int{}
		for _, it := range items {
			if it.err != nil {
				failed++
				continue
			}
			if err := writeBatchItem(cmd, it, used); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d datasets failed", failed, total)
		}
		return nil
	},
}

// writeBatchItem prints a report or saves it under --output-dir. Datasets
// sharing a base name get "__N" suffixes in input order.
func writeBatchItem(cmd *cobra.Command, it batchItem, used map[string]int) error {
	var (
		out []byte
		ext = ".md"
		err error
	)
	if batchJSON {
		ext = ".json"
		if out, err = it.res.JSON(); err != nil {
			return err
		}
	} else {
		out = []byte(it.res.Markdown())
	}
	if batchOutputDir != "" {
		path := utils.ReportPath(batchOutputDir, it.path, ext)
		used[path]++
		if n := used[path]; n > 1 {
			path = strings.TrimSuffix(path, ".report"+ext) + fmt.Sprintf("__%d.report%s", n, ext)
		}
		if err := utils.SafeWriteFile(path, out); err != nil {
			return fmt.Errorf("write report for %s: %w", it.path, err)
		}
		if !batchQuiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
		}
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "=== %s ===\n%s\n", it.path, out)
	return nil
}

// expandInputs resolves globs, keeps literal paths that exist, drops
// duplicates and sorts the result.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

func init() {
	rootCmd.AddCommand(reportBatchCmd)
	batchLoad.register(reportBatchCmd)
	batchGen.register(reportBatchCmd)
	f := reportBatchCmd.Flags()
	f.Lookup("timeout").Usage = "timeout in seconds for each dataset's interpretation, 0 = none"
	f.IntVar(&batchWorkers, "workers", 4, "number of datasets processed concurrently")
	f.StringVar(&batchOutputDir, "output-dir", "", "write one report per dataset into this directory")
	f.BoolVar(&batchJSON, "json", false, "emit reports as JSON")
	f.BoolVar(&batchQuiet, "quiet", false, "suppress progress and non-essential output")
	f.BoolVar(&batchFailFast, "fail-fast", false, "stop scheduling datasets after the first failure")
}
