package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/civicdata/registry-ingest/pkg/loader"
)

var (
	loadFrom string
	loadTo   string
)

var loadCmd = &cobra.Command{
	Use:   "load [source...]",
	Short: "Load one or more sources for a date window",
	Long: `Load runs the named sources (hansard, written-questions,
firms-register) over the given date window. With no sources named, all of
them run. The firms register is a snapshot source and ignores the window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, err := parseWindow(loadFrom, loadTo)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		runner, err := a.runner(args)
		if err != nil {
			return err
		}
		reports, err := runner.Run(ctx, window)
		printReports(reports)
		return err
	},
}

func init() {
	loadCmd.Flags().StringVar(&loadFrom, "from-date", "", "window start (YYYY-MM-DD, default 2 days ago)")
	loadCmd.Flags().StringVar(&loadTo, "to-date", "", "window end (YYYY-MM-DD, default today)")
}

func parseWindow(from, to string) (loader.DateRange, error) {
	window := loader.LastNDays(time.Now(), loader.DailyWindowDays)
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return window, fmt.Errorf("parse --from-date: %w", err)
		}
		window.From = t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return window, fmt.Errorf("parse --to-date: %w", err)
		}
		window.To = t
	}
	if window.To.Before(window.From) {
		return window, fmt.Errorf("window end %s is before start %s", window.ToDate(), window.FromDate())
	}
	return window, nil
}
