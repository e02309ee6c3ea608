package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/dusk-indust/jobwatch/internal/backend"
	"github.com/dusk-indust/jobwatch/internal/progress"
	"github.com/dusk-indust/jobwatch/internal/tracker"
	"github.com/spf13/cobra"
)

type runFlags struct {
	Interval  time.Duration
	MaxPolls  int
	MaxErrors int
	JSON      bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an analysis job and follow it to completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv(cmd, root)
			if err != nil {
				return err
			}

			p := e.policy()
			if cmd.Flags().Changed("interval") {
				p.Interval = flags.Interval
			}
			if cmd.Flags().Changed("max-polls") {
				p.MaxPolls = flags.MaxPolls
			}
			if cmd.Flags().Changed("max-errors") {
				p.MaxConsecutiveErrors = flags.MaxErrors
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return runAnalysis(ctx, cmd.OutOrStdout(), e.tracker(p), flags.JSON)
		},
	}

	cmd.Flags().DurationVar(&flags.Interval, "interval", 0, "delay between progress polls (default from config)")
	cmd.Flags().IntVar(&flags.MaxPolls, "max-polls", 0, "polls before giving up (default from config)")
	cmd.Flags().IntVar(&flags.MaxErrors, "max-errors", 0, "consecutive poll failures before giving up (default from config)")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the final result payload as JSON")
	return cmd
}

// errAnalysisFailed marks a failure already reported on stdout.
var errAnalysisFailed = errors.New("analysis failed")

func runAnalysis(ctx context.Context, w io.Writer, tr *tracker.Tracker, asJSON bool) error {
	reg := progress.NewDefaultRegistry()
	job := tr.NewJob()
	fmt.Fprintf(w, "Job %s\n", job.ID)

	out, err := tr.TrackJob(ctx, job, reg, func(ev progress.Event) {
		fmt.Fprintln(w, progress.FormatProgress(ev))
	})

	fmt.Fprintln(w)
	printSteps(w, out.Steps)
	fmt.Fprintf(w, "  %s\n", progress.FormatSummary(reg.Summary()))

	if err != nil {
		fmt.Fprintf(w, "\n%s\n", tracker.Message(err))
		if errors.Is(err, tracker.ErrConnectivity) {
			fmt.Fprintln(w, "Check that the analysis server is reachable.")
		}
		return fmt.Errorf("%w: %w", errAnalysisFailed, err)
	}
	return printResult(w, out.Result, asJSON)
}

func printSteps(w io.Writer, steps []progress.Step) {
	for _, st := range steps {
		fmt.Fprintln(w, progress.FormatStep(st))
	}
}

func printResult(w io.Writer, result *backend.AnalysisResult, asJSON bool) error {
	if asJSON {
		if len(result.Raw) > 0 {
			_, err := fmt.Fprintln(w, string(result.Raw))
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(w)
	if rec := result.Recommendation(); rec != "" {
		fmt.Fprintf(w, "Recommendation: %s\n", rec)
	}
	if mc := result.MarketCondition(); mc != "" {
		fmt.Fprintf(w, "Market condition: %s\n", mc)
	}
	if result.Timestamp != "" {
		fmt.Fprintf(w, "Timestamp: %s\n", result.Timestamp)
	}
	return nil
}
