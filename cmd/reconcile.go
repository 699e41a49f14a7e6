package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ragle/driver-recon/internal/model"
	"github.com/ragle/driver-recon/internal/pipeline"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile drivers and classify attendance for one report date",
	Example: "  driver-recon reconcile --date 2025-05-16\n" +
		"  driver-recon reconcile --date 2025-05-16 --profile permissive --workbook billing.xlsx",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		raw, _ := cmd.Flags().GetString("date")
		date, err := parseDate(raw)
		if err != nil {
			return err
		}

		applyFlags(cmd, cfg)
		env, err := initReconcile(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx, date)
		if err != nil {
			return err
		}

		printResult(os.Stdout, res)
		zap.L().Info("reconcile complete",
			zap.String("date", raw),
			zap.Strings("files", res.Files),
			zap.String("run_id", res.RunID),
		)
		return nil
	},
}

// printResult writes a short per-date summary to w.
func printResult(out io.Writer, res *pipeline.Result) {
	s := res.Report.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Date:\t%s (%s)\n", s.Date, s.Profile)
	_, _ = fmt.Fprintf(w, "Drivers:\t%d\n", s.Drivers)
	_, _ = fmt.Fprintf(w, "Verified:\t%d\n", s.Verified)
	_, _ = fmt.Fprintf(w, "Excluded:\t%d\n", s.Excluded)
	for _, c := range model.Classifications {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", c, s.Classifications[c])
	}
	_, _ = fmt.Fprintf(w, "Asset conflicts:\t%d\n", s.AssetConflicts)
	_, _ = fmt.Fprintf(w, "Trailers excluded:\t%d\n", s.TrailersExcluded)
	if len(s.DegradedSources) > 0 {
		_, _ = fmt.Fprintf(w, "Degraded sources:\t%v\n", s.DegradedSources)
	}
	for _, f := range res.Files {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", f)
	}
	_ = w.Flush()
}

func init() {
	reconcileCmd.Flags().String("date", "", "report date (YYYY-MM-DD)")
	_ = reconcileCmd.MarkFlagRequired("date")
	addReconcileFlags(reconcileCmd)
	rootCmd.AddCommand(reconcileCmd)
}
