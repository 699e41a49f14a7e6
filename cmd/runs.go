package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ragle/driver-recon/internal/report"
	"github.com/ragle/driver-recon/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived reconciliation runs",
	Long:  "Commands for listing archived runs and showing the latest report for a date.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		date, _ := cmd.Flags().GetString("date")
		limit, _ := cmd.Flags().GetInt("limit")
		if date != "" {
			if _, err := parseDate(date); err != nil {
				return err
			}
		}

		runs, err := st.ListRuns(ctx, store.RunFilter{Date: date, Limit: limit})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest run for a report date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		date, _ := cmd.Flags().GetString("date")
		if _, err := parseDate(date); err != nil {
			return err
		}
		if err := cfg.Validate("runs"); err != nil {
			return err
		}
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetLatestRun(ctx, date)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if summaryOnly, _ := cmd.Flags().GetBool("summary"); summaryOnly {
			return writeIndented(os.Stdout, run.Summary)
		}
		return writeIndented(os.Stdout, run)
	},
}

func init() {
	runsListCmd.Flags().String("date", "", "filter by report date (YYYY-MM-DD)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().String("date", "", "report date (YYYY-MM-DD)")
	runsShowCmd.Flags().Bool("summary", false, "print only the summary")
	_ = runsShowCmd.MarkFlagRequired("date")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func writeIndented(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatRunsList writes a tabular list of runs to w. Summary columns are
// blank when the stored summary cannot be decoded.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tDATE\tPROFILE\tDRIVERS\tVERIFIED\tEXCLUDED\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t-------\t--------\t--------\t-------")

	for _, r := range runs {
		drivers, verified, excluded := "", "", ""
		var s report.Summary
		if err := json.Unmarshal(r.Summary, &s); err == nil {
			drivers = fmt.Sprint(s.Drivers)
			verified = fmt.Sprint(s.Verified)
			excluded = fmt.Sprint(s.Excluded)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.ReportDate,
			r.Profile,
			drivers,
			verified,
			excluded,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
