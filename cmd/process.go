package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/guias-cli/internal/model"
	"github.com/sells-group/guias-cli/internal/pipeline"
	"github.com/sells-group/guias-cli/internal/watch"
)

var processCmd = &cobra.Command{
	Use:   "process [file.pdf ...]",
	Short: "Process the inbox (or the given files) once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "process")
		if err != nil {
			return err
		}
		defer env.Close()

		paths := args
		if len(paths) == 0 {
			paths, err = watch.Scan(cfg.Paths.Inbox)
			if err != nil {
				return err
			}
		}
		if len(paths) == 0 {
			fmt.Fprintln(os.Stderr, "No guides to process.")
			return nil
		}

		zap.L().Info("processing guides",
			zap.Int("files", len(paths)),
			zap.Int("workers", cfg.Pipeline.Workers),
		)

		var mu sync.Mutex
		var results []pipeline.Result
		q := pipeline.NewQueue(env.Pipeline, cfg.Pipeline.Workers, len(paths), env.Metrics)
		q.OnResult = func(r pipeline.Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}

		go func() {
			for _, p := range paths {
				if !q.Enqueue(ctx, p) {
					zap.L().Debug("path not queued", zap.String("path", p))
				}
			}
			q.Close()
		}()

		if err := q.Run(ctx); err != nil {
			return eris.Wrap(err, "process")
		}

		formatResults(os.Stdout, results)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(processCmd)
}

// formatResults writes one line per processed file followed by totals per
// terminal state.
func formatResults(out io.Writer, results []pipeline.Result) {
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FILE\tSTATE\tTYPE\tCNPJ\tDESTINATION")
	_, _ = fmt.Fprintln(w, "----\t-----\t----\t----\t-----------")

	counts := make(map[model.State]int)
	for _, r := range results {
		counts[r.State]++

		docType, taxID := "", ""
		if r.Guide != nil {
			docType = string(r.Guide.DocType)
			taxID = r.Guide.TaxID
		}
		dest := r.StoredPath
		if r.Conflict != nil {
			dest = r.Conflict.Path
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Path, r.State, docType, taxID, dest)
	}
	_ = w.Flush()

	states := make([]string, 0, len(counts))
	for s := range counts {
		states = append(states, string(s))
	}
	sort.Strings(states)

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, s := range states {
		_, _ = fmt.Fprintf(w, "%s:\t%d\n", s, counts[model.State(s)])
	}
	_, _ = fmt.Fprintf(w, "total:\t%d\n", len(results))
	_ = w.Flush()
}
