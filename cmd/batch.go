package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ragle/driver-recon/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Reconcile a range of report dates",
	Long: "Runs one independent reconciliation per date from --from through --to. " +
		"A failing date is logged and reported; the remaining dates still run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		fromRaw, _ := cmd.Flags().GetString("from")
		toRaw, _ := cmd.Flags().GetString("to")
		from, err := parseDate(fromRaw)
		if err != nil {
			return err
		}
		to, err := parseDate(toRaw)
		if err != nil {
			return err
		}
		dates, err := dateRange(from, to)
		if err != nil {
			return err
		}

		applyFlags(cmd, cfg)
		if cmd.Flags().Changed("concurrency") {
			cfg.Batch.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		env, err := initReconcile(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		outcomes := runBatch(ctx, dates, cfg.Batch.Concurrency, env.Pipeline.Run)
		formatBatch(os.Stdout, outcomes)

		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return eris.Errorf("batch: %d of %d dates failed", failed, len(outcomes))
		}
		return nil
	},
}

// dateOutcome is the result of reconciling one date in a batch.
type dateOutcome struct {
	Date     time.Time
	Result   *pipeline.Result
	Err      error
	Duration time.Duration
}

type runFunc func(ctx context.Context, date time.Time) (*pipeline.Result, error)

// runBatch runs every date with at most concurrency in flight. Failures are
// recorded per date and never cancel the others. Outcomes are in date order.
func runBatch(ctx context.Context, dates []time.Time, concurrency int, run runFunc) []dateOutcome {
	if concurrency < 1 {
		concurrency = 1
	}
	var g errgroup.Group
	g.SetLimit(concurrency)

	var mu sync.Mutex
	outcomes := make([]dateOutcome, 0, len(dates))

	for _, date := range dates {
		g.Go(func() error {
			log := zap.L().With(zap.String("date", date.Format(time.DateOnly)))
			start := time.Now()

			var (
				res *pipeline.Result
				err error
			)
			if err = ctx.Err(); err == nil {
				res, err = run(ctx, date)
			}
			o := dateOutcome{Date: date, Result: res, Err: err, Duration: time.Since(start)}
			if err != nil {
				log.Error("batch: date failed", zap.Error(err))
			} else {
				log.Info("batch: date complete", zap.Duration("duration", o.Duration))
			}

			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Date.Before(outcomes[j].Date) })

	ok := 0
	for _, o := range outcomes {
		if o.Err == nil {
			ok++
		}
	}
	zap.L().Info("batch complete",
		zap.Int("dates", len(outcomes)),
		zap.Int("succeeded", ok),
		zap.Int("failed", len(outcomes)-ok),
	)
	return outcomes
}

// formatBatch writes one line per date to w.
func formatBatch(out io.Writer, outcomes []dateOutcome) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tSTATUS\tDRIVERS\tVERIFIED\tEXCLUDED\tDURATION")
	for _, o := range outcomes {
		date := o.Date.Format(time.DateOnly)
		dur := o.Duration.Round(time.Millisecond).String()
		if o.Err != nil {
			_, _ = fmt.Fprintf(w, "%s\tfailed: %v\t-\t-\t-\t%s\n", date, o.Err, dur)
			continue
		}
		s := o.Result.Report.Summary
		_, _ = fmt.Fprintf(w, "%s\tok\t%d\t%d\t%d\t%s\n", date, s.Drivers, s.Verified, s.Excluded, dur)
	}
	_ = w.Flush()
}

func init() {
	batchCmd.Flags().String("from", "", "first report date (YYYY-MM-DD)")
	batchCmd.Flags().String("to", "", "last report date (YYYY-MM-DD)")
	batchCmd.Flags().Int("concurrency", 1, "dates reconciled in parallel")
	_ = batchCmd.MarkFlagRequired("from")
	_ = batchCmd.MarkFlagRequired("to")
	addReconcileFlags(batchCmd)
	rootCmd.AddCommand(batchCmd)
}
