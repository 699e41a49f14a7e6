package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ragle/driver-recon/internal/fetcher"
	"github.com/ragle/driver-recon/internal/resilience"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download telematics exports from the export drop",
	Long: "Downloads the driving-history and activity-detail exports for --date " +
		"(through --to, if given) from ftp.url (ftp, http or https) into sources.data_dir. " +
		"Transient failures are retried. Files already present are skipped unless --force; " +
		"files missing on the server are logged and skipped.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		fromRaw, _ := cmd.Flags().GetString("date")
		from, err := parseDate(fromRaw)
		if err != nil {
			return err
		}
		to := from
		if toRaw, _ := cmd.Flags().GetString("to"); toRaw != "" {
			if to, err = parseDate(toRaw); err != nil {
				return err
			}
		}
		dir := cfg.Sources.DataDir
		if cmd.Flags().Changed("data-dir") {
			dir, _ = cmd.Flags().GetString("data-dir")
		}
		force, _ := cmd.Flags().GetBool("force")

		f, err := fetcher.New(cfg.FTP.URL, fetcher.Options{
			Timeout:  time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
			Username: cfg.FTP.Username,
			Password: cfg.FTP.Password,
		})
		if err != nil {
			return err
		}

		var limiter *rate.Limiter
		if cfg.FTP.RequestsPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.FTP.RequestsPerSecond), 1)
		}

		res, err := fetcher.Pull(ctx, f, limiter, fetcher.PullRequest{
			BaseURL:  cfg.FTP.URL,
			Dir:      dir,
			Patterns: []string{cfg.Sources.DrivingHistoryPattern, cfg.Sources.ActivityDetailPattern},
			From:     from,
			To:       to,
			Force:    force,
			Retry:    resilience.FromRetryConfig(cfg.FTP.MaxAttempts, cfg.FTP.RetryBackoffMs),
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "Downloaded %d file(s) (%d bytes), skipped %d, missing %d\n",
			res.Downloaded, res.Bytes, res.Skipped, len(res.Missing))
		for _, m := range res.Missing {
			fmt.Fprintf(os.Stdout, "  missing: %s\n", m)
		}
		zap.L().Info("fetch complete",
			zap.Int("downloaded", res.Downloaded),
			zap.Int("skipped", res.Skipped),
			zap.Int("missing", len(res.Missing)),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().String("date", "", "first report date (YYYY-MM-DD)")
	fetchCmd.Flags().String("to", "", "last report date (YYYY-MM-DD); defaults to --date")
	fetchCmd.Flags().String("data-dir", "", "download directory (overrides sources.data_dir)")
	fetchCmd.Flags().Bool("force", false, "re-download files that already exist")
	_ = fetchCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(fetchCmd)
}
